// Package openai embeds text through an OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"golang.org/x/time/rate"

	"github.com/flarexio/ragblade/embedding"
)

var ErrMissingAPIKey = errors.New("missing api key")

type Model struct {
	client    openaisdk.Client
	model     string
	dimension int
	limiter   *rate.Limiter
}

func New(cfg embedding.Config) (*Model, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: env %s", ErrMissingAPIKey, cfg.APIKeyEnv)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.ModelName
	if model == "" || model == embedding.DefaultModelName {
		model = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	}

	m := &Model{
		client:    openaisdk.NewClient(opts...),
		model:     model,
		dimension: cfg.Dimension,
	}

	if cfg.RequestsPerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return m, nil
}

// Loader defers client construction until the embedding service needs it.
func Loader(cfg embedding.Config) embedding.Loader {
	return func(context.Context) (embedding.Model, error) {
		return New(cfg)
	}
}

func (m *Model) Name() string   { return m.model }
func (m *Model) Dimension() int { return m.dimension }

func (m *Model) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openaisdk.EmbeddingModel(m.model),
	}

	if m.dimension > 0 {
		params.Dimensions = param.NewOpt(int64(m.dimension))
	}

	resp, err := m.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", embedding.ErrModelOutput, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("%w: index %d out of range", embedding.ErrModelOutput, d.Index)
		}

		if out[d.Index] != nil {
			return nil, fmt.Errorf("%w: index %d repeated", embedding.ErrModelOutput, d.Index)
		}

		if m.dimension > 0 && len(d.Embedding) != m.dimension {
			return nil, fmt.Errorf("%w: width %d, expected %d", embedding.ErrModelOutput, len(d.Embedding), m.dimension)
		}

		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		out[d.Index] = vec
	}

	return out, nil
}
