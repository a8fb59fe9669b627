package vector

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrDimensionMismatch      = errors.New("dimension mismatch")
	ErrMetadataLengthMismatch = errors.New("metadata length mismatch")
	ErrNotTrained             = errors.New("index not trained")
	ErrCorruptIndex           = errors.New("corrupt index file")
)

// DimensionMismatchError reports the expected and actual vector width.
// It matches ErrDimensionMismatch with errors.Is.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

type Metric string

const (
	MetricInnerProduct Metric = "IP"
	MetricL2           Metric = "L2"
)

func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ip", "inner_product", "cosine":
		return MetricInnerProduct, nil
	case "l2", "euclidean":
		return MetricL2, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, s)
	}
}

type IndexType string

const (
	IndexTypeFlat IndexType = "flat"
	IndexTypeIVF  IndexType = "ivf"
	IndexTypeHNSW IndexType = "hnsw"
)

func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return IndexTypeFlat, nil
	case "ivf", "ivfflat", "ivf_flat":
		return IndexTypeIVF, nil
	case "hnsw", "graph":
		return IndexTypeHNSW, nil
	default:
		return "", fmt.Errorf("%w: unknown index type %q", ErrInvalidArgument, s)
	}
}

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

type Config struct {
	Dimension              int         `yaml:"dimension"`
	IndexType              string      `yaml:"index_type"`
	Metric                 string      `yaml:"metric"`
	PersistDir             string      `yaml:"persist_dir"`
	NList                  int         `yaml:"nlist"`
	NProbe                 int         `yaml:"nprobe"`
	M                      int         `yaml:"m"`
	EfConstruction         int         `yaml:"ef_construction"`
	EfSearch               int         `yaml:"ef_search"`
	Seed                   int64       `yaml:"seed"`
	Compression            Compression `yaml:"compression"`
	AllowDimensionMismatch bool        `yaml:"allow_dimension_mismatch"`
}

func DefaultConfig() Config {
	return Config{
		Dimension:      384,
		IndexType:      string(IndexTypeFlat),
		Metric:         string(MetricInnerProduct),
		NList:          100,
		NProbe:         8,
		M:              32,
		EfConstruction: 40,
		EfSearch:       16,
		Seed:           42,
		Compression:    CompressionZstd,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (cfg Config) withDefaults() Config {
	def := DefaultConfig()

	if cfg.Dimension <= 0 {
		cfg.Dimension = def.Dimension
	}
	if cfg.IndexType == "" {
		cfg.IndexType = def.IndexType
	}
	if cfg.Metric == "" {
		cfg.Metric = def.Metric
	}
	if cfg.NList <= 0 {
		cfg.NList = def.NList
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = def.NProbe
	}
	if cfg.M <= 1 {
		cfg.M = def.M
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = def.EfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	if cfg.Compression == "" {
		cfg.Compression = def.Compression
	}

	return cfg
}

// Metadata is the payload stored alongside a vector id.
type Metadata = map[string]any

type SearchResult struct {
	ID       int64    `json:"id"`
	Score    float32  `json:"score"`
	Distance float32  `json:"distance"`
	Metadata Metadata `json:"metadata,omitempty"`

	// Removed marks a tombstoned hit whose metadata was erased.
	Removed bool `json:"removed,omitempty"`
}

type Stats struct {
	TotalVectors  int    `json:"total_vectors"`
	Dimension     int    `json:"dimension"`
	IndexType     string `json:"index_type"`
	Metric        string `json:"metric"`
	MetadataCount int    `json:"metadata_count"`
	IsTrained     bool   `json:"is_trained"`
	RemovedCount  int    `json:"removed_count"`
	NextID        int64  `json:"next_id"`
}
