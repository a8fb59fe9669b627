package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarexio/ragblade/embedding"
)

func TestLoadConfigMissingFile(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	cfg, err := loadConfig(dir)
	require.NoError(t, err)

	assert.Equal("hashing", cfg.Embedding.Model)
	assert.Equal(filepath.Join(dir, "index"), cfg.Vector.PersistDir)
	assert.Equal(filepath.Join(dir, "records.db"), cfg.Records.Path)
	assert.Equal(filepath.Join(dir, "catalog"), cfg.Catalog.Path)
}

func TestLoadConfigCacheFolder(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	input := `embedding:
  model: hashing
  cache_folder: /var/cache/models
  dimension: 64`

	err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(input), 0o644)
	require.NoError(t, err)

	cfg, err := loadConfig(dir)
	require.NoError(t, err)
	assert.Equal("/var/cache/models", cfg.Embedding.CacheFolder)

	// models without local weights load regardless of cache_folder
	loader, err := newLoader(cfg.Embedding)
	require.NoError(t, err)

	model, err := loader(context.Background())
	require.NoError(t, err)
	assert.Equal(64, model.Dimension())
}

func TestNewLoaderUnknownModel(t *testing.T) {
	_, err := newLoader(embedding.Config{Model: "word2vec"})
	assert.ErrorIs(t, err, embedding.ErrInvalidArgument)
}
