package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type loadedModel struct {
	Model
}

// Service maps text to vectors. The model is loaded on first use; any
// number of concurrent first calls share a single load.
type Service struct {
	cfg    Config
	loader Loader

	group singleflight.Group
	model atomic.Pointer[loadedModel]
	loads atomic.Int64
	cache *lruCache
	log   *zap.Logger
}

func NewService(cfg Config, loader Loader) *Service {
	cfg = cfg.withDefaults()

	return &Service{
		cfg:    cfg,
		loader: loader,
		cache:  newLRUCache(cfg.CacheSize),
		log: zap.L().With(
			zap.String("service", "embedding"),
			zap.String("model", cfg.ModelName),
		),
	}
}

func (s *Service) Dimension() int {
	return s.cfg.Dimension
}

// Warmup loads the model eagerly, typically at process start.
func (s *Service) Warmup(ctx context.Context) error {
	_, err := s.loadModel(ctx)
	return err
}

func (s *Service) loadModel(ctx context.Context) (Model, error) {
	if m := s.model.Load(); m != nil {
		return m.Model, nil
	}

	v, err, _ := s.group.Do("model", func() (any, error) {
		if m := s.model.Load(); m != nil {
			return m.Model, nil
		}

		log := s.log.With(
			zap.String("action", "load_model"),
		)

		m, err := s.loader(ctx)
		if err != nil {
			log.Error(err.Error())
			return nil, err
		}

		if m.Dimension() != s.cfg.Dimension {
			log.Warn("model dimension differs from configuration",
				zap.Int("model_dimension", m.Dimension()),
				zap.Int("configured_dimension", s.cfg.Dimension),
			)
		}

		s.model.Store(&loadedModel{m})
		s.loads.Add(1)

		log.Info("model loaded", zap.String("name", m.Name()))
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(Model), nil
}

// Embedding returns the vector for text. Blank text yields an all-zero
// vector of the configured dimension; it carries no signal and must not
// be mixed into statistics.
func (s *Service) Embedding(ctx context.Context, text string, normalize bool) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, s.cfg.Dimension), nil
	}

	raw, ok := s.cache.Get(text)
	if !ok {
		model, err := s.loadModel(ctx)
		if err != nil {
			return nil, err
		}

		out, err := model.Encode(ctx, []string{text})
		if err != nil {
			return nil, err
		}

		if len(out) != 1 {
			return nil, fmt.Errorf("%w: %d rows for 1 text", ErrModelOutput, len(out))
		}

		raw = out[0]
		s.cache.Set(text, raw)
	}

	if normalize {
		return Normalize(raw), nil
	}

	vec := make([]float32, len(raw))
	copy(vec, raw)
	return vec, nil
}

// Embeddings encodes texts in slices of batchSize. Empty strings are
// encoded as a single space so the output always has one row per input.
func (s *Service) Embeddings(ctx context.Context, texts []string, batchSize int, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	model, err := s.loadModel(ctx)
	if err != nil {
		return nil, err
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		prepared[i] = t
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(prepared); start += batchSize {
		end := min(start+batchSize, len(prepared))

		rows, err := model.Encode(ctx, prepared[start:end])
		if err != nil {
			return nil, err
		}

		if len(rows) != end-start {
			return nil, fmt.Errorf("%w: %d rows for %d texts", ErrModelOutput, len(rows), end-start)
		}

		for _, row := range rows {
			if len(out) > 0 && len(row) != len(out[0]) {
				return nil, fmt.Errorf("%w: inconsistent widths %d and %d", ErrModelOutput, len(out[0]), len(row))
			}

			if normalize {
				row = Normalize(row)
			}
			out = append(out, row)
		}
	}

	return out, nil
}

func (s *Service) ClearCache() {
	s.cache.Reset()
	s.log.Debug("cache cleared")
}

type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

func (s *Service) CacheStats() CacheStats {
	return CacheStats{
		Hits:   s.cache.hits.Load(),
		Misses: s.cache.misses.Load(),
		Size:   s.cache.Len(),
	}
}
