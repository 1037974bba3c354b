// Package providers adapts hosted model SDKs to ai.Backend. Uploaded media
// lives in an artifacts.Store; a Reference is the store key.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/artifacts"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
// The referenced artifact is attached as an image_url part pointing at the
// store URL.
type OpenAIBackend struct {
	client   *openai.Client
	store    artifacts.Store
	model    string
	language string
}

// NewOpenAIBackend creates a backend for apiKey. An empty baseURL means the
// OpenAI API itself.
func NewOpenAIBackend(apiKey, model, baseURL, language string, store artifacts.Store) (*OpenAIBackend, error) {
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIBackend{
		client:   openai.NewClientWithConfig(config),
		store:    store,
		model:    model,
		language: language,
	}, nil
}

func (b *OpenAIBackend) Upload(ctx context.Context, data []byte, kind ai.Kind, mime string) (ai.Reference, error) {
	return upload(ctx, b.store, data, kind, mime)
}

func (b *OpenAIBackend) Ask(ctx context.Context, ref ai.Reference, question string, history []ai.Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2*len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: ai.SystemPrompt(b.language),
	})
	for _, t := range history {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Answer},
		)
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if ref == "" {
		user.Content = question
	} else {
		url, err := b.store.URL(ctx, string(ref))
		if err != nil {
			return "", storeError("resolve reference", err)
		}
		// Content must stay empty when MultiContent is set.
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: url}},
			{Type: openai.ChatMessagePartTypeText, Text: question},
		}
	}
	msgs = append(msgs, user)

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: msgs,
	})
	if err != nil {
		return "", ai.Classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", ai.Transient("chat completion", errors.New("no choices in response"))
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ai.Transient("chat completion", errors.New("empty answer"))
	}
	return answer, nil
}

func upload(ctx context.Context, store artifacts.Store, data []byte, kind ai.Kind, mime string) (ai.Reference, error) {
	if len(data) == 0 {
		return "", ai.Permanent("upload", errors.New("empty file"))
	}
	if mime == "" {
		return "", ai.Permanent("upload", fmt.Errorf("missing mime type for %s", kind))
	}
	key, err := store.Put(ctx, data, mime)
	if err != nil {
		return "", ai.Classify("upload", err)
	}
	return ai.Reference(key), nil
}

// storeError reports a vanished artifact as an expired reference.
func storeError(op string, err error) error {
	if errors.Is(err, artifacts.ErrNotFound) {
		return ai.Expired(op, err)
	}
	return ai.Classify(op, err)
}
