package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarexio/ragblade/llm"
)

var _ llm.Generator = (*Generator)(nil)

func TestNewMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := New(llm.Config{Provider: "anthropic"})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}

func TestGenerate(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/messages", r.URL.Path)
		assert.Equal("test-key", r.Header.Get("x-api-key"))

		var body map[string]any
		assert.NoError(json.NewDecoder(r.Body).Decode(&body))
		assert.Equal("claude-test", body["model"])
		assert.Equal(float64(256), body["max_tokens"])
		assert.NotEmpty(body["system"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-test",
			"stop_reason": "end_turn",
			"content": []any{
				map[string]any{"type": "text", "text": "Paris, per "},
				map[string]any{"type": "text", "text": "[1]."},
			},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 4},
		})
	}))
	defer srv.Close()

	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	g, err := New(llm.Config{
		Provider:  "anthropic",
		Model:     "claude-test",
		BaseURL:   srv.URL + "/",
		MaxTokens: 256,
	})
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), "cite sources", "capital of France?")
	require.NoError(t, err)

	assert.Equal("Paris, per [1].", answer)
}
