package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarexio/ragblade/embedding"
)

func TestNewMissingAPIKey(t *testing.T) {
	t.Setenv("RAGBLADE_TEST_EMBED_KEY", "")

	_, err := New(embedding.Config{APIKeyEnv: "RAGBLADE_TEST_EMBED_KEY"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func embeddingServer(t *testing.T, width int) *httptest.Server {
	return indexedEmbeddingServer(t, width, func(i int) int { return i })
}

func indexedEmbeddingServer(t *testing.T, width int, index func(i int) int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		// reply out of order to exercise index handling
		data := make([]any, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			vec := make([]float64, width)
			vec[0] = float64(len(body.Input[i]))
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     index(i),
				"embedding": vec,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  body.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestEncode(t *testing.T) {
	assert := assert.New(t)

	srv := embeddingServer(t, 4)
	defer srv.Close()

	t.Setenv("RAGBLADE_TEST_EMBED_KEY", "test-key")

	m, err := New(embedding.Config{
		Dimension:         4,
		APIKeyEnv:         "RAGBLADE_TEST_EMBED_KEY",
		BaseURL:           srv.URL + "/",
		RequestsPerSecond: 100,
	})
	require.NoError(t, err)

	assert.Equal("text-embedding-3-small", m.Name())

	rows, err := m.Encode(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal([]float32{1, 0, 0, 0}, rows[0])
	assert.Equal([]float32{3, 0, 0, 0}, rows[1])
}

func TestEncodeWidthMismatch(t *testing.T) {
	srv := embeddingServer(t, 3)
	defer srv.Close()

	t.Setenv("RAGBLADE_TEST_EMBED_KEY", "test-key")

	m, err := New(embedding.Config{
		Dimension: 4,
		APIKeyEnv: "RAGBLADE_TEST_EMBED_KEY",
		BaseURL:   srv.URL + "/",
	})
	require.NoError(t, err)

	_, err = m.Encode(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, embedding.ErrModelOutput)
}

func TestEncodeRepeatedIndex(t *testing.T) {
	srv := indexedEmbeddingServer(t, 4, func(int) int { return 0 })
	defer srv.Close()

	t.Setenv("RAGBLADE_TEST_EMBED_KEY", "test-key")

	m, err := New(embedding.Config{
		Dimension: 4,
		APIKeyEnv: "RAGBLADE_TEST_EMBED_KEY",
		BaseURL:   srv.URL + "/",
	})
	require.NoError(t, err)

	_, err = m.Encode(context.Background(), []string{"a", "bbb"})
	assert.ErrorIs(t, err, embedding.ErrModelOutput)
}
