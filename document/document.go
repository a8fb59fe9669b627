package document

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("document not found")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrEmptyDocument       = errors.New("document has no text")
)

type Metadata = map[string]any

// Document is the parsed form of a source file. It lives only for the
// duration of an ingest call.
type Document struct {
	Text     string   `json:"text"`
	Pages    []Page   `json:"pages,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// Page is one extracted page of a paged document. Number is 1-based.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Chunk is a contiguous span of a document's text. Overlap is the rune
// length of the prefix shared with the previous chunk.
type Chunk struct {
	Text     string   `json:"text"`
	Index    int      `json:"chunk_index"`
	Overlap  int      `json:"overlap"`
	Metadata Metadata `json:"metadata"`
}

type Strategy string

const (
	StrategyRecursive Strategy = "recursive"
	StrategySeparator Strategy = "separator"
)

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "recursive":
		return StrategyRecursive, nil
	case "separator", "character", "fixed":
		return StrategySeparator, nil
	default:
		return "", fmt.Errorf("%w: unknown chunking strategy %q", ErrInvalidArgument, s)
	}
}

type Config struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Strategy     string `yaml:"strategy"`
	Separator    string `yaml:"separator"`
	BatchSize    int    `yaml:"batch_size"`
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    500,
		ChunkOverlap: 50,
		Strategy:     string(StrategyRecursive),
		Separator:    "\n",
		BatchSize:    32,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.Separator == "" {
		cfg.Separator = def.Separator
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	return cfg
}

func baseMetadata(path, fileType string) Metadata {
	return Metadata{
		"file_type": fileType,
		"file_path": path,
		"source":    sourceName(path),
		"parsed_at": time.Now().UTC().Format(time.RFC3339),
	}
}
