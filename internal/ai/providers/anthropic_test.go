package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/artifacts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicBackend_Ask(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "A red "}, {"type": "text", "text": "bicycle."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	store := artifacts.NewMemoryStore(0)
	b, err := NewAnthropicBackend("k", "claude-test", srv.URL, "en", 0, store)
	require.NoError(t, err)
	assert.Equal(t, defaultAnthropicMaxTokens, b.maxTokens)

	ctx := context.Background()
	ref, err := b.Upload(ctx, []byte("png-bytes"), ai.KindImage, "image/png")
	require.NoError(t, err)

	answer, err := b.Ask(ctx, ref, "describe", nil)
	require.NoError(t, err)
	assert.Equal(t, "A red bicycle.", answer)

	require.NotNil(t, body)
	assert.Equal(t, "claude-test", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "image", content[0].(map[string]any)["type"])
	assert.Equal(t, "describe", content[1].(map[string]any)["text"])
}

func TestAnthropicBackend_RejectsNonImage(t *testing.T) {
	b, err := NewAnthropicBackend("k", "m", "", "", 0, artifacts.NewMemoryStore(0))
	require.NoError(t, err)

	_, err = b.Upload(context.Background(), []byte("x"), ai.KindVideo, "video/mp4")
	assert.ErrorIs(t, err, ai.ErrPermanent)
}

func TestAnthropicBackend_MissingArtifactIsExpired(t *testing.T) {
	b, err := NewAnthropicBackend("k", "m", "", "", 0, artifacts.NewMemoryStore(0))
	require.NoError(t, err)

	_, err = b.Ask(context.Background(), "uploads/none", "q", nil)
	assert.ErrorIs(t, err, ai.ErrReferenceExpired)
}
