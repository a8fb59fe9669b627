package ragblade

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flarexio/ragblade/document"
	"github.com/flarexio/ragblade/embedding"
	"github.com/flarexio/ragblade/llm"
	"github.com/flarexio/ragblade/record"
	"github.com/flarexio/ragblade/vector"
)

// Service defines the retrieval-augmented generation workflow of RAGBlade.
type Service interface {

	// Close stops background work and releases the record store.
	Close() error

	// Ingest parses, chunks, embeds and indexes a single document.
	Ingest(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error)

	// BatchIngest ingests documents one by one; a failing file is
	// reported in its own result and does not stop the batch.
	BatchIngest(ctx context.Context, paths []string, opts IngestOptions) ([]*IngestResult, error)

	// Retrieve returns the chunks most similar to the query.
	Retrieve(ctx context.Context, query RetrieveQuery) (*RetrieveResult, error)

	// Generate answers the query from retrieved chunks.
	Generate(ctx context.Context, req GenerateRequest) (*Answer, error)

	// RemoveDocument tombstones the vectors of a document and forgets it.
	RemoveDocument(ctx context.Context, id string) (int, error)

	// ListDocuments returns the ingested documents.
	ListDocuments(ctx context.Context, filter record.Filter) ([]record.Record, error)

	// SearchDocuments finds documents, rather than chunks, about a query.
	SearchDocuments(ctx context.Context, query string, k int) ([]record.Hit, error)

	// Stats reports index and cache figures.
	Stats(ctx context.Context) (*Stats, error)

	// Save persists the index and mirrors it to the snapshot store.
	Save(ctx context.Context) error

	// Load restores the index, fetching it from the snapshot store when
	// it is missing locally.
	Load(ctx context.Context) error
}

type ServiceMiddleware func(Service) Service

// SnapshotStore mirrors local index artifacts to remote storage.
type SnapshotStore interface {
	Upload(ctx context.Context, localPath string) error
	Download(ctx context.Context, localPath string) error
}

type Option func(*service)

func WithEmbedding(e *embedding.Service) Option {
	return func(svc *service) {
		svc.embedder = e
	}
}

func WithVectorService(v *vector.Service) Option {
	return func(svc *service) {
		svc.vectors = v
	}
}

func WithGenerator(g llm.Generator) Option {
	return func(svc *service) {
		svc.generator = g
	}
}

func WithRecordStore(s record.Store) Option {
	return func(svc *service) {
		svc.records = s
	}
}

func WithCatalog(c record.Catalog) Option {
	return func(svc *service) {
		svc.catalog = c
	}
}

func WithSnapshotStore(s SnapshotStore) Option {
	return func(svc *service) {
		svc.snapshots = s
	}
}

func NewService(ctx context.Context, cfg Config, opts ...Option) (Service, error) {
	log := zap.L().With(
		zap.String("service", "ragblade"),
	)

	ctx, cancel := context.WithCancel(ctx)

	svc := &service{
		cfg:    cfg,
		log:    log,
		cancel: cancel,
	}

	for _, opt := range opts {
		opt(svc)
	}

	docOpts := make([]document.Option, 0, 2)
	if svc.embedder != nil {
		docOpts = append(docOpts, document.WithEmbedder(svc.embedder))
	}
	if svc.vectors != nil {
		docOpts = append(docOpts, document.WithVectorStore(svc.vectors))
	}

	docs, err := document.NewService(cfg.Document, docOpts...)
	if err != nil {
		cancel()
		return nil, err
	}

	svc.docs = docs

	if interval := cfg.AutoSave.Duration(); interval > 0 && svc.vectors != nil {
		go svc.autoSave(ctx, interval)
	}

	return svc, nil
}

type service struct {
	docs      *document.Service
	embedder  *embedding.Service
	vectors   *vector.Service
	generator llm.Generator
	records   record.Store
	catalog   record.Catalog
	snapshots SnapshotStore

	dirty atomic.Bool

	cfg    Config
	log    *zap.Logger
	cancel context.CancelFunc
}

func (svc *service) Close() error {
	if svc.cancel != nil {
		svc.cancel()
		svc.cancel = nil
	}

	if svc.records != nil {
		return svc.records.Close()
	}

	return nil
}

func (svc *service) autoSave(ctx context.Context, interval time.Duration) {
	log := svc.log.With(
		zap.String("action", "auto_save"),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("done")
			return

		case <-ticker.C:
			if !svc.dirty.Load() {
				continue
			}

			if err := svc.Save(ctx); err != nil {
				log.Error(err.Error())
				continue
			}

			log.Info("index saved")
		}
	}
}

func (svc *service) Ingest(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error) {
	docID := record.NewID()

	metadata := make(map[string]any, len(opts.Metadata)+3)
	maps.Copy(metadata, opts.Metadata)
	metadata["doc_id"] = docID
	if opts.SceneID != "" {
		metadata["scene_id"] = opts.SceneID
	}
	if opts.Category != "" {
		metadata["category"] = opts.Category
	}

	res, err := svc.docs.IngestDocument(ctx, path, metadata)
	if err != nil {
		return &IngestResult{IngestResult: res}, err
	}

	if len(res.VectorIDs) > 0 {
		svc.dirty.Store(true)
	}

	result := &IngestResult{
		DocID:        docID,
		IngestResult: res,
	}

	if svc.records == nil && svc.catalog == nil {
		return result, nil
	}

	r := record.Record{
		ID:         docID,
		Filename:   filepath.Base(path),
		Path:       path,
		Category:   opts.Category,
		SceneID:    opts.SceneID,
		Status:     string(res.Status),
		ChunkCount: res.ChunkCount,
		VectorIDs:  res.VectorIDs,
		Metadata:   recordMetadata(res.Metadata),
		CreatedAt:  time.Now(),
	}

	if len(res.Chunks) > 0 {
		r.ContentPreview = document.Preview(res.Chunks[0].Text, 200)
	}

	if svc.records != nil {
		if err := svc.records.Put(ctx, r); err != nil {
			// without a record the vectors could never be removed
			if svc.vectors != nil {
				svc.vectors.RemoveVectors(res.VectorIDs)
			}

			err = fmt.Errorf("record %s: %w", docID, err)
			res.Status = document.StatusFailed
			res.Error = err.Error()
			res.VectorIDs = nil
			return result, err
		}
	}

	if svc.catalog != nil {
		if err := svc.catalog.Add(ctx, r); err != nil {
			svc.log.Warn("catalog add failed",
				zap.String("doc_id", docID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// keys worth keeping with the record; everything else stays in the index
var recordMetadataKeys = []string{"title", "author", "file_type", "encoding", "page_count"}

func recordMetadata(meta document.Metadata) map[string]string {
	out := make(map[string]string)
	for _, k := range recordMetadataKeys {
		if v, ok := meta[k]; ok {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func (svc *service) BatchIngest(ctx context.Context, paths []string, opts IngestOptions) ([]*IngestResult, error) {
	results := make([]*IngestResult, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := svc.Ingest(ctx, path, opts)
		if err != nil {
			if result.IngestResult == nil {
				result.IngestResult = &document.IngestResult{
					Path: path,
				}
			}

			result.Status = document.StatusFailed
			result.Error = err.Error()
		}

		results = append(results, result)
	}

	return results, nil
}

func (svc *service) Retrieve(ctx context.Context, q RetrieveQuery) (*RetrieveResult, error) {
	result := &RetrieveResult{
		Query:     q.Query,
		SceneID:   q.SceneID,
		Documents: []RetrievedDoc{},
	}

	if svc.vectors == nil || svc.embedder == nil {
		result.Status = RetrieveError
		result.Message = "no knowledge base is available"
		return result, nil
	}

	if strings.TrimSpace(q.Query) == "" {
		return nil, ErrEmptyQuery
	}

	topK := q.TopK
	if topK <= 0 {
		topK = svc.cfg.Retrieval.TopK
	}
	if topK <= 0 {
		topK = 5
	}

	threshold := svc.cfg.Retrieval.ScoreThreshold
	if q.ScoreThreshold != nil {
		threshold = *q.ScoreThreshold
	}

	// scene filtering discards candidates, so ask for more
	fetch := topK
	if q.SceneID != "" {
		fetch = 3 * topK
	}

	query, err := svc.embedder.Embedding(ctx, q.Query, true)
	if err != nil {
		return nil, err
	}

	hits, err := svc.vectors.Search(query, fetch, true)
	if err != nil {
		return nil, err
	}

	for _, hit := range hits {
		if hit.Removed || hit.Score < threshold {
			continue
		}

		doc := toRetrievedDoc(hit)
		if q.SceneID != "" && doc.SceneID != q.SceneID {
			continue
		}

		result.Documents = append(result.Documents, doc)
		if len(result.Documents) == topK {
			break
		}
	}

	result.Status = RetrieveSuccess
	return result, nil
}

func toRetrievedDoc(hit vector.SearchResult) RetrievedDoc {
	md := hit.Metadata

	doc := RetrievedDoc{
		ID:      hit.ID,
		Score:   hit.Score,
		Content: stringValue(md[document.ContentKey]),
		Source:  stringValue(md["source"]),
		DocID:   stringValue(md["doc_id"]),
		SceneID: stringValue(md["scene_id"]),
	}

	doc.Page, _ = intValue(md["page"])
	doc.ChunkIndex, _ = intValue(md["chunk_index"])

	return doc
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// intValue accepts the integer forms metadata takes before and after a
// JSON round trip.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (svc *service) Generate(ctx context.Context, req GenerateRequest) (*Answer, error) {
	if svc.generator == nil {
		return nil, ErrNoLLMConfigured
	}

	retrieved, err := svc.Retrieve(ctx, req.RetrieveQuery)
	if err != nil {
		return nil, err
	}

	if retrieved.Status == RetrieveError {
		svc.log.Warn("answering without context",
			zap.String("action", "generate"),
			zap.String("reason", retrieved.Message),
		)
	}

	scene, ok := svc.cfg.Scenes[req.SceneID]
	if !ok {
		scene = Scene{Name: req.SceneID}
	}

	system, prompt := BuildPrompt(req.Query, retrieved.Documents, scene, req.History)

	if timeout := svc.cfg.Retrieval.Timeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := svc.generator.Generate(ctx, system, prompt)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Answer:    text,
		Sources:   sourcesOf(retrieved.Documents),
		Documents: retrieved.Documents,
	}, nil
}

func (svc *service) RemoveDocument(ctx context.Context, id string) (int, error) {
	if svc.records == nil {
		return 0, ErrRecordStoreNotSet
	}

	r, err := svc.records.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	removed := 0
	if svc.vectors != nil {
		removed = svc.vectors.RemoveVectors(r.VectorIDs)
		svc.dirty.Store(true)
	}

	if svc.catalog != nil {
		if err := svc.catalog.Remove(ctx, id); err != nil {
			svc.log.Warn("catalog remove failed",
				zap.String("doc_id", id),
				zap.Error(err),
			)
		}
	}

	if err := svc.records.Delete(ctx, id); err != nil {
		return removed, err
	}

	return removed, nil
}

func (svc *service) ListDocuments(ctx context.Context, filter record.Filter) ([]record.Record, error) {
	if svc.records == nil {
		return nil, ErrRecordStoreNotSet
	}

	return svc.records.List(ctx, filter)
}

func (svc *service) SearchDocuments(ctx context.Context, query string, k int) ([]record.Hit, error) {
	if svc.catalog == nil {
		return nil, ErrCatalogNotSet
	}

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	if k <= 0 {
		k = 5
	}

	return svc.catalog.Search(ctx, query, k)
}

func (svc *service) Stats(ctx context.Context) (*Stats, error) {
	stats := new(Stats)

	if svc.vectors != nil {
		vs := svc.vectors.Stats()
		stats.Vectors = &vs
	}

	if svc.embedder != nil {
		cs := svc.embedder.CacheStats()
		stats.Cache = &cs
	}

	if svc.generator != nil {
		stats.LLM = svc.generator.Name()
	}

	if svc.records != nil {
		records, err := svc.records.List(ctx, record.Filter{})
		if err != nil {
			return nil, err
		}

		stats.Documents = len(records)
	}

	return stats, nil
}

func (svc *service) Save(ctx context.Context) error {
	if svc.vectors == nil {
		return ErrVectorServiceNotSet
	}

	svc.dirty.Store(false)

	if err := svc.vectors.Save("", ""); err != nil {
		svc.dirty.Store(true)
		return err
	}

	if svc.snapshots == nil {
		return nil
	}

	indexPath, metadataPath, err := svc.vectors.Paths("", "")
	if err != nil {
		return err
	}

	for _, path := range []string{indexPath, metadataPath} {
		if err := svc.snapshots.Upload(ctx, path); err != nil {
			return err
		}
	}

	return nil
}

func (svc *service) Load(ctx context.Context) error {
	if svc.vectors == nil {
		return ErrVectorServiceNotSet
	}

	if svc.snapshots != nil {
		indexPath, metadataPath, err := svc.vectors.Paths("", "")
		if err != nil {
			return err
		}

		for _, path := range []string{indexPath, metadataPath} {
			if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
				continue
			}

			if err := svc.snapshots.Download(ctx, path); err != nil {
				return err
			}
		}
	}

	if err := svc.vectors.Load("", ""); err != nil {
		return err
	}

	svc.dirty.Store(false)
	return nil
}
