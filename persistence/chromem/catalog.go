package chromem

import (
	"context"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/flarexio/ragblade/record"
)

// EmbeddingFunc embeds catalog entries and queries. The result must be
// normalized.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

func NewCatalog(cfg record.CatalogConfig, embed EmbeddingFunc) (record.Catalog, error) {
	var db *chromem.DB
	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, err
		}

		db = d
	}

	name := cfg.Collection
	if name == "" {
		name = "documents"
	}

	c, err := db.GetOrCreateCollection(name, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, err
	}

	return &catalog{c}, nil
}

type catalog struct {
	collection *chromem.Collection
}

func (c *catalog) Add(ctx context.Context, r record.Record) error {
	content := catalogContent(r)
	if content == "" {
		return nil
	}

	doc := chromem.Document{
		ID: r.ID,
		Metadata: map[string]string{
			"filename": r.Filename,
			"scene_id": r.SceneID,
			"category": r.Category,
		},
		Content: content,
	}

	return c.collection.AddDocument(ctx, doc)
}

func (c *catalog) Remove(ctx context.Context, id string) error {
	return c.collection.Delete(ctx, nil, nil, id)
}

func (c *catalog) Search(ctx context.Context, query string, k int) ([]record.Hit, error) {
	if k > c.collection.Count() {
		k = c.collection.Count()
	}

	if k <= 0 || strings.TrimSpace(query) == "" {
		return []record.Hit{}, nil
	}

	results, err := c.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, err
	}

	hits := make([]record.Hit, len(results))
	for i, result := range results {
		hits[i] = record.Hit{
			ID:       result.ID,
			Filename: result.Metadata["filename"],
			SceneID:  result.Metadata["scene_id"],
			Preview:  result.Content,
			Score:    result.Similarity,
		}
	}

	return hits, nil
}

func catalogContent(r record.Record) string {
	return strings.TrimSpace(r.Filename + "\n" + r.ContentPreview)
}
