package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/flarexio/ragblade/llm"
)

const DefaultModel = "gemini-2.5-flash"

type Generator struct {
	client *genai.Client
	cfg    llm.Config
}

func New(ctx context.Context, cfg llm.Config) (*Generator, error) {
	cfg = cfg.WithDefaults()

	key, err := cfg.APIKey()
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: creating client: %w", err)
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Generator{
		client: client,
		cfg:    cfg,
	}, nil
}

func (g *Generator) Name() string { return "google/" + g.cfg.Model }

func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.cfg.Temperature)),
		MaxOutputTokens: int32(g.cfg.MaxTokens),
	}

	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("google: generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("google: %w", llm.ErrEmptyResponse)
	}

	return text, nil
}
