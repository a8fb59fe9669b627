package anthropic

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flarexio/ragblade/llm"
)

const DefaultModel = "claude-haiku-4-5"

type Generator struct {
	client anthropicsdk.Client
	cfg    llm.Config
}

func New(cfg llm.Config) (*Generator, error) {
	cfg = cfg.WithDefaults()

	key, err := cfg.APIKey()
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Generator{
		client: anthropicsdk.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

func (g *Generator) Name() string { return "anthropic/" + g.cfg.Model }

func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(g.cfg.Model),
		MaxTokens: int64(g.cfg.MaxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
		},
		Temperature: anthropicsdk.Float(g.cfg.Temperature),
	}

	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: system},
		}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w", llm.ErrEmptyResponse)
	}

	return strings.TrimSpace(sb.String()), nil
}
