package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/artifacts"

	"github.com/liushuangls/go-anthropic/v2"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicBackend calls the Messages API. Artifacts are inlined as base64
// image sources, so only image MIME types are accepted.
type AnthropicBackend struct {
	client    *anthropic.Client
	store     artifacts.Store
	model     string
	language  string
	maxTokens int
}

func NewAnthropicBackend(apiKey, model, baseURL, language string, maxTokens int, store artifacts.Store) (*AnthropicBackend, error) {
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicBackend{
		client:    anthropic.NewClient(apiKey, opts...),
		store:     store,
		model:     model,
		language:  language,
		maxTokens: maxTokens,
	}, nil
}

func (b *AnthropicBackend) Upload(ctx context.Context, data []byte, kind ai.Kind, mime string) (ai.Reference, error) {
	if !strings.HasPrefix(strings.ToLower(mime), "image/") {
		return "", ai.Permanent("upload", fmt.Errorf("unsupported media type %q", mime))
	}
	return upload(ctx, b.store, data, kind, mime)
}

func (b *AnthropicBackend) Ask(ctx context.Context, ref ai.Reference, question string, history []ai.Turn) (string, error) {
	msgs := make([]anthropic.Message, 0, 2*len(history)+1)
	for _, t := range history {
		msgs = append(msgs,
			anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(t.Question)}},
			anthropic.Message{Role: anthropic.RoleAssistant, Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(t.Answer)}},
		)
	}

	var content []anthropic.MessageContent
	if ref != "" {
		data, mime, err := b.store.Get(ctx, string(ref))
		if err != nil {
			return "", storeError("resolve reference", err)
		}
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				mime,
				base64.StdEncoding.EncodeToString(data),
			),
		))
	}
	content = append(content, anthropic.NewTextMessageContent(question))
	msgs = append(msgs, anthropic.Message{Role: anthropic.RoleUser, Content: content})

	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(b.model),
		Messages:  msgs,
		MaxTokens: b.maxTokens,
		MultiSystem: []anthropic.MessageSystemPart{
			{Type: "text", Text: ai.SystemPrompt(b.language)},
		},
	}

	resp, err := b.client.CreateMessages(ctx, req)
	if err != nil {
		return "", ai.Classify("create message", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", ai.Transient("create message", errors.New("empty answer"))
	}
	return answer, nil
}
