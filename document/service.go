package document

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Embedder is the part of the embedding service used during ingest.
type Embedder interface {
	Embeddings(ctx context.Context, texts []string, batchSize int, normalize bool) ([][]float32, error)
}

// VectorStore is the part of the vector service used during ingest.
type VectorStore interface {
	AddVectors(embeddings [][]float32, metadata []map[string]any) ([]int64, error)
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// IngestResult reports how far a document got through the pipeline. A
// partial result carries the last artifact produced so the caller can
// finish the remaining steps itself.
type IngestResult struct {
	Path       string        `json:"path"`
	Status     Status        `json:"status"`
	Chunks     []Chunk       `json:"chunks,omitempty"`
	Embeddings [][]float32   `json:"embeddings,omitempty"`
	VectorIDs  []int64       `json:"vector_ids,omitempty"`
	ChunkCount int           `json:"chunk_count"`
	Metadata   Metadata      `json:"metadata,omitempty"`
	Error      string        `json:"error,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ProgressFunc is called after each file of a batch; current is 1-based.
type ProgressFunc func(current, total int, path string)

// ContentKey holds the chunk text in vector metadata.
const ContentKey = "content"

// document-level counters that do not describe a chunk
var chunkExcludedKeys = []string{"char_count", "line_count", "paragraph_count"}

type Option func(*Service)

func WithParsers(r *Registry) Option {
	return func(s *Service) {
		s.parsers = r
	}
}

func WithEmbedder(e Embedder) Option {
	return func(s *Service) {
		s.embedder = e
	}
}

func WithVectorStore(v VectorStore) Option {
	return func(s *Service) {
		s.store = v
	}
}

type Service struct {
	cfg      Config
	parsers  *Registry
	splitter *Splitter
	embedder Embedder
	store    VectorStore
	log      *zap.Logger
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	cfg = cfg.withDefaults()

	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	splitter, err := NewSplitter(strategy, cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separator)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		parsers:  DefaultRegistry(),
		splitter: splitter,
		log: zap.L().With(
			zap.String("service", "document"),
		),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) Parsers() *Registry {
	return s.parsers
}

func (s *Service) ParseDocument(path string) (*Document, error) {
	return s.parsers.Parse(path)
}

// ChunkDocument splits doc into chunks. Paged documents are split page by
// page so every chunk knows its page; chunk indexes run across pages.
func (s *Service) ChunkDocument(doc *Document, metadata Metadata) ([]Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidArgument)
	}

	base := make(Metadata, len(doc.Metadata))
	maps.Copy(base, doc.Metadata)
	for _, k := range chunkExcludedKeys {
		delete(base, k)
	}

	var chunks []Chunk
	if len(doc.Pages) > 0 {
		for _, page := range doc.Pages {
			for _, c := range s.splitter.Split(page.Text) {
				c.Metadata = Metadata{"page": page.Number}
				chunks = append(chunks, c)
			}
		}
	} else {
		chunks = s.splitter.Split(doc.Text)
	}

	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}

	for i := range chunks {
		meta := make(Metadata, len(base)+len(metadata)+4)
		maps.Copy(meta, base)
		maps.Copy(meta, chunks[i].Metadata)

		meta["chunk_index"] = i
		meta["chunk_size"] = utf8.RuneCountInString(chunks[i].Text)
		meta["total_chunks"] = len(chunks)

		// caller metadata is authoritative
		maps.Copy(meta, metadata)

		chunks[i].Index = i
		chunks[i].Metadata = meta
	}

	return chunks, nil
}

// IngestDocument runs parse, chunk, embed and store. Parse and chunk
// failures are returned alongside a failed result; a missing embedder or
// vector store yields a partial result and no error. Embeddings are kept
// in the result only when they were not stored.
func (s *Service) IngestDocument(ctx context.Context, path string, metadata Metadata) (*IngestResult, error) {
	log := s.log.With(
		zap.String("action", "ingest"),
		zap.String("path", path),
	)

	start := time.Now()
	result := &IngestResult{Path: path}

	fail := func(err error) (*IngestResult, error) {
		result.Status = StatusFailed
		result.Error = err.Error()
		result.Elapsed = time.Since(start)

		log.Error(err.Error())
		return result, err
	}

	doc, err := s.ParseDocument(path)
	if err != nil {
		return fail(err)
	}

	chunks, err := s.ChunkDocument(doc, metadata)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", path, err))
	}

	result.Chunks = chunks
	result.ChunkCount = len(chunks)
	result.Metadata = doc.Metadata

	if s.embedder == nil {
		result.Status = StatusPartial
		result.Elapsed = time.Since(start)

		log.Warn("no embedding service, returning chunks", zap.Int("chunks", len(chunks)))
		return result, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := s.embedder.Embeddings(ctx, texts, s.cfg.BatchSize, true)
	if err != nil {
		return fail(err)
	}

	result.Embeddings = embeddings

	if s.store == nil {
		result.Status = StatusPartial
		result.Elapsed = time.Since(start)

		log.Warn("no vector service, returning embeddings", zap.Int("chunks", len(chunks)))
		return result, nil
	}

	metas := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]any, len(c.Metadata)+1)
		maps.Copy(meta, c.Metadata)
		meta[ContentKey] = c.Text
		metas[i] = meta
	}

	ids, err := s.store.AddVectors(embeddings, metas)
	if err != nil {
		return fail(err)
	}

	// stored vectors are reachable by id
	result.Embeddings = nil
	result.VectorIDs = ids
	result.Status = StatusSuccess
	result.Elapsed = time.Since(start)

	log.Info("document ingested",
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

// BatchIngestDocuments ingests paths one after another. A failing file is
// recorded in its result and does not stop the batch.
func (s *Service) BatchIngestDocuments(ctx context.Context, paths []string, metadata Metadata, progress ProgressFunc) []*IngestResult {
	results := make([]*IngestResult, 0, len(paths))

	for i, path := range paths {
		var result *IngestResult
		if err := ctx.Err(); err != nil {
			result = &IngestResult{
				Path:   path,
				Status: StatusFailed,
				Error:  err.Error(),
			}
		} else {
			result, _ = s.IngestDocument(ctx, path, metadata)
		}

		results = append(results, result)

		if progress != nil {
			progress(i+1, len(paths), path)
		}
	}

	s.log.Info("batch ingested",
		zap.String("action", "batch_ingest"),
		zap.Int("files", len(paths)),
		zap.Int("failed", countStatus(results, StatusFailed)),
	)

	return results
}

func countStatus(results []*IngestResult, status Status) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Preview returns the first n runes of text on a single line.
func Preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}

	runes := []rune(text)
	return string(runes[:n]) + "…"
}
