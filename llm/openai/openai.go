package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/flarexio/ragblade/llm"
)

const DefaultModel = "gpt-4o-mini"

type Generator struct {
	client openaisdk.Client
	cfg    llm.Config
}

func New(cfg llm.Config) (*Generator, error) {
	cfg = cfg.WithDefaults()

	key, err := cfg.APIKey()
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
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
		client: openaisdk.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

func (g *Generator) Name() string { return "openai/" + g.cfg.Model }

func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(g.cfg.Model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(prompt),
		},
		MaxCompletionTokens: param.NewOpt(int64(g.cfg.MaxTokens)),
		Temperature:         param.NewOpt(g.cfg.Temperature),
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", llm.ErrEmptyResponse)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
