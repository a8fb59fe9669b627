// Package llm defines the text generation collaborator used to answer
// questions from retrieved context.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	ErrMissingAPIKey   = errors.New("missing api key")
	ErrEmptyResponse   = errors.New("empty response")
	ErrUnknownProvider = errors.New("unknown provider")
)

type Generator interface {
	Name() string
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type GeneratorFunc func(ctx context.Context, system, prompt string) (string, error)

func (f GeneratorFunc) Name() string { return "func" }

func (f GeneratorFunc) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

type Config struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

func (cfg Config) WithDefaults() Config {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = defaultKeyEnv[cfg.Provider]
	}
	return cfg
}

var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
}

// APIKey reads the key from the configured environment variable.
func (cfg Config) APIKey() (string, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%w: env %q", ErrMissingAPIKey, cfg.APIKeyEnv)
	}
	return key, nil
}
