package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/flarexio/ragblade"
	"github.com/flarexio/ragblade/embedding"
	"github.com/flarexio/ragblade/embedding/hashing"
	"github.com/flarexio/ragblade/llm"
	"github.com/flarexio/ragblade/persistence/bolt"
	"github.com/flarexio/ragblade/persistence/chromem"
	"github.com/flarexio/ragblade/persistence/minio"
	"github.com/flarexio/ragblade/vector"

	openaiE "github.com/flarexio/ragblade/embedding/openai"
	anthropicL "github.com/flarexio/ragblade/llm/anthropic"
	googleL "github.com/flarexio/ragblade/llm/google"
	openaiL "github.com/flarexio/ragblade/llm/openai"
)

// loadConfig reads <path>/config.yaml over the defaults. A missing file
// leaves the defaults in place.
func loadConfig(path string) (ragblade.Config, error) {
	cfg := ragblade.DefaultConfig()

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return withPaths(cfg, path), nil
		}
		return cfg, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}

	return withPaths(cfg, path), nil
}

func withPaths(cfg ragblade.Config, path string) ragblade.Config {
	if cfg.Vector.PersistDir == "" {
		cfg.Vector.PersistDir = filepath.Join(path, "index")
	}

	if cfg.Records.Path == "" {
		cfg.Records.Path = filepath.Join(path, "records.db")
	}

	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = filepath.Join(path, "catalog")
	}

	return cfg
}

func newLoader(cfg embedding.Config) (embedding.Loader, error) {
	switch cfg.Model {
	case "", "hashing":
		return embedding.StaticLoader(hashing.New(cfg.Dimension)), nil
	case "openai":
		return openaiE.Loader(cfg), nil
	default:
		return nil, fmt.Errorf("%w: embedding model %q", embedding.ErrInvalidArgument, cfg.Model)
	}
}

// newGenerator returns nil when no provider is configured.
func newGenerator(ctx context.Context, cfg llm.Config) (llm.Generator, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return openaiL.New(cfg)
	case "anthropic":
		return anthropicL.New(cfg)
	case "google", "gemini":
		return googleL.New(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", llm.ErrUnknownProvider, cfg.Provider)
	}
}

// newService assembles the service from cfg. The index is restored when
// a saved copy exists locally or in the snapshot store.
func newService(ctx context.Context, cfg ragblade.Config, log *zap.Logger) (ragblade.Service, error) {
	loader, err := newLoader(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	embedder := embedding.NewService(cfg.Embedding, loader)

	if cfg.Vector.Dimension <= 0 {
		cfg.Vector.Dimension = embedder.Dimension()
	}

	vectors, err := vector.NewService(cfg.Vector)
	if err != nil {
		return nil, err
	}

	opts := []ragblade.Option{
		ragblade.WithEmbedding(embedder),
		ragblade.WithVectorService(vectors),
	}

	generator, err := newGenerator(ctx, cfg.LLM)
	if err != nil {
		log.Warn("answering disabled", zap.Error(err))
	} else if generator != nil {
		opts = append(opts, ragblade.WithGenerator(generator))
	}

	if cfg.Records.Enabled {
		records, err := bolt.NewRecordStore(cfg.Records.Path)
		if err != nil {
			return nil, err
		}

		opts = append(opts, ragblade.WithRecordStore(records))
	}

	if cfg.Catalog.Enabled {
		embed := func(ctx context.Context, text string) ([]float32, error) {
			return embedder.Embedding(ctx, text, true)
		}

		catalog, err := chromem.NewCatalog(cfg.Catalog, embed)
		if err != nil {
			return nil, err
		}

		opts = append(opts, ragblade.WithCatalog(catalog))
	}

	if snap := cfg.Snapshot; snap.Enabled {
		client, err := minio.Connect(snap.Endpoint,
			os.Getenv(snap.AccessKeyEnv),
			os.Getenv(snap.SecretKeyEnv),
			snap.Secure,
		)
		if err != nil {
			return nil, err
		}

		snapshots, err := minio.NewSnapshotStore(ctx, client, snap.Bucket, snap.Prefix)
		if err != nil {
			return nil, err
		}

		opts = append(opts, ragblade.WithSnapshotStore(snapshots))
	}

	svc, err := ragblade.NewService(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	err = svc.Load(ctx)
	switch {
	case err == nil:
		log.Info("index restored", zap.Int("vectors", vectors.Stats().TotalVectors))
	case errors.Is(err, vector.ErrNotFound), errors.Is(err, minio.ErrSnapshotNotFound):
		log.Info("starting with an empty index")
	default:
		svc.Close()
		return nil, err
	}

	return ragblade.LoggingMiddleware(log)(svc), nil
}
