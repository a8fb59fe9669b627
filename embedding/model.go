package embedding

import (
	"context"
	"errors"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrModelOutput     = errors.New("unexpected model output")
)

// Model turns texts into fixed-width vectors. Implementations must be
// deterministic: the same text always yields the same vector.
type Model interface {
	Name() string
	Dimension() int
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Loader performs the heavyweight model initialisation.
type Loader func(ctx context.Context) (Model, error)

// StaticLoader wraps an already constructed model.
func StaticLoader(m Model) Loader {
	return func(context.Context) (Model, error) {
		return m, nil
	}
}

type Config struct {
	Model     string `yaml:"model"`
	ModelName string `yaml:"model_name"`

	// CacheFolder is where a model keeps downloaded weights. The hashing
	// and OpenAI models have no local weights and ignore it.
	CacheFolder string `yaml:"cache_folder"`

	Dimension         int     `yaml:"dimension"`
	BatchSize         int     `yaml:"batch_size"`
	CacheSize         int     `yaml:"cache_size"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

const DefaultModelName = "paraphrase-multilingual-MiniLM-L12-v2"

func DefaultConfig() Config {
	return Config{
		Model:     "hashing",
		ModelName: DefaultModelName,
		Dimension: 384,
		BatchSize: 32,
		CacheSize: 1024,
		APIKeyEnv: "OPENAI_API_KEY",
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()

	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.ModelName == "" {
		cfg.ModelName = def.ModelName
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = def.Dimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = def.APIKeyEnv
	}

	return cfg
}
