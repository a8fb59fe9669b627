// Package record describes ingested source documents as they are kept
// outside the vector index.
package record

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidRecord  = errors.New("invalid record")
)

type Record struct {
	ID             string            `json:"id"`
	Filename       string            `json:"filename"`
	Path           string            `json:"path"`
	ContentPreview string            `json:"content_preview"`
	Category       string            `json:"category,omitempty"`
	SceneID        string            `json:"scene_id,omitempty"`
	Status         string            `json:"status"`
	ChunkCount     int               `json:"chunk_count"`
	VectorIDs      []int64           `json:"vector_ids,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

func NewID() string {
	return uuid.NewString()
}

func (r Record) Validate() error {
	if r.ID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("empty id"))
	}

	if _, err := uuid.Parse(r.ID); err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}

	return nil
}

type Filter struct {
	SceneID  string `json:"scene_id,omitempty" form:"scene_id"`
	Category string `json:"category,omitempty" form:"category"`
}

func (f Filter) Match(r Record) bool {
	if f.SceneID != "" && r.SceneID != f.SceneID {
		return false
	}

	if f.Category != "" && r.Category != f.Category {
		return false
	}

	return true
}

// Store keeps records by id.
type Store interface {
	Put(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, filter Filter) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

type Hit struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	SceneID  string  `json:"scene_id,omitempty"`
	Preview  string  `json:"preview"`
	Score    float32 `json:"score"`
}

// Catalog answers which documents are about a query, as opposed to which
// chunks are.
type Catalog interface {
	Add(ctx context.Context, r Record) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type CatalogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Persistent bool   `yaml:"persistent"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}
