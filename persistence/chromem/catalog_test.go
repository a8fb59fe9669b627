package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarexio/ragblade/embedding"
	"github.com/flarexio/ragblade/embedding/hashing"
	"github.com/flarexio/ragblade/record"
)

func newCatalog(t *testing.T, cfg record.CatalogConfig) record.Catalog {
	svc := embedding.NewService(embedding.Config{Dimension: 256}, embedding.StaticLoader(hashing.New(256)))

	c, err := NewCatalog(cfg, func(ctx context.Context, text string) ([]float32, error) {
		return svc.Embedding(ctx, text, true)
	})
	require.NoError(t, err)

	return c
}

func TestCatalogSearch(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newCatalog(t, record.CatalogConfig{})

	empty, err := c.Search(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(empty)

	leave := record.Record{ID: record.NewID(), Filename: "leave.md", SceneID: "hr",
		ContentPreview: "annual leave policy and holiday allowance"}
	vpn := record.Record{ID: record.NewID(), Filename: "vpn.txt", SceneID: "it",
		ContentPreview: "connect to the office vpn with your laptop"}

	require.NoError(t, c.Add(ctx, leave))
	require.NoError(t, c.Add(ctx, vpn))

	hits, err := c.Search(ctx, "holiday leave allowance", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(leave.ID, hits[0].ID)
	assert.Equal("leave.md", hits[0].Filename)
	assert.Equal("hr", hits[0].SceneID)
	assert.Greater(hits[0].Score, hits[1].Score)

	require.NoError(t, c.Remove(ctx, leave.ID))

	hits, err = c.Search(ctx, "holiday leave allowance", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(vpn.ID, hits[0].ID)
}

func TestCatalogPersistent(t *testing.T) {
	ctx := context.Background()
	cfg := record.CatalogConfig{
		Persistent: true,
		Path:       t.TempDir(),
		Collection: "docs",
	}

	r := record.Record{ID: record.NewID(), Filename: "guide.txt", ContentPreview: "vector search guide"}
	require.NoError(t, newCatalog(t, cfg).Add(ctx, r))

	hits, err := newCatalog(t, cfg).Search(ctx, "vector search", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, r.ID, hits[0].ID)
}
