package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"
)

const (
	DefaultIndexFile    = "vector.index"
	DefaultMetadataFile = "metadata.json"
)

// Service owns a similarity index and the metadata attached to each id.
//
// Ids are assigned from a counter that starts at 0 and never goes back,
// even when vectors are removed. Removal only erases metadata: the vector
// stays in the index and later surfaces from Search as a tombstoned hit.
type Service struct {
	cfg       Config
	dimension int

	index     Index
	metadata  map[int64]Metadata
	removed   *roaring.Bitmap
	currentID int64

	log *zap.Logger
	mu  sync.RWMutex
}

func NewService(cfg Config) (*Service, error) {
	cfg = cfg.withDefaults()

	index, err := NewIndex(cfg)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("service", "vector"),
		zap.String("index_type", string(index.Type())),
		zap.String("metric", string(index.Metric())),
	)

	return &Service{
		cfg:       cfg,
		dimension: cfg.Dimension,
		index:     index,
		metadata:  make(map[int64]Metadata),
		removed:   roaring.New(),
		log:       log,
	}, nil
}

func (s *Service) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// AddVectors stores the embeddings and returns their ids, which are
// contiguous and follow input order.
func (s *Service) AddVectors(embeddings [][]float32, metadata []Metadata) ([]int64, error) {
	if metadata != nil && len(metadata) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d metadata entries for %d vectors",
			ErrMetadataLengthMismatch, len(metadata), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, v := range embeddings {
		if len(v) != s.dimension {
			return nil, &DimensionMismatchError{Expected: s.dimension, Actual: len(v)}
		}

		if !finite(v) {
			return nil, fmt.Errorf("%w: vector %d has a non-finite component", ErrInvalidArgument, i)
		}
	}

	if len(embeddings) == 0 {
		return []int64{}, nil
	}

	if !s.index.IsTrained() {
		if err := s.index.Train(embeddings); err != nil {
			return nil, err
		}

		s.log.Info("index trained", zap.Int("vectors", len(embeddings)))
	}

	ids := make([]int64, len(embeddings))
	for i := range ids {
		ids[i] = s.currentID + int64(i)
	}

	if err := s.index.Add(ids, embeddings); err != nil {
		return nil, err
	}

	for i, id := range ids {
		md := Metadata{}
		if metadata != nil {
			for k, v := range metadata[i] {
				md[k] = v
			}
		}
		s.metadata[id] = md
	}

	s.currentID += int64(len(embeddings))
	return ids, nil
}

// Search returns up to topK hits ordered by descending score. Hits whose
// metadata was removed come back with Removed set and no metadata.
func (s *Service) Search(query []float32, topK int, returnMetadata bool) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.search(query, topK, returnMetadata)
}

func (s *Service) search(query []float32, topK int, returnMetadata bool) ([]SearchResult, error) {
	if len(query) != s.dimension {
		return nil, &DimensionMismatchError{Expected: s.dimension, Actual: len(query)}
	}

	total := s.index.Len()
	if total == 0 {
		return []SearchResult{}, nil
	}

	metric := s.index.Metric()
	neighbors := s.index.Search(query, min(topK, total))

	results := make([]SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		result := SearchResult{
			ID:       n.ID,
			Distance: n.Distance,
			Score:    metric.score(n.Distance),
		}

		md, ok := s.metadata[n.ID]
		if !ok {
			result.Removed = true
		} else if returnMetadata {
			result.Metadata = md
		}

		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}

func (s *Service) BatchSearch(queries [][]float32, topK int) ([][]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]SearchResult, len(queries))
	for i, q := range queries {
		results, err := s.search(q, topK, true)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		out[i] = results
	}

	return out, nil
}

// RemoveVectors erases metadata for the given ids and reports how many
// were present. The index itself is not compacted; see Rebuild.
func (s *Service) RemoveVectors(ids []int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := s.metadata[id]; !ok {
			continue
		}

		delete(s.metadata, id)
		s.removed.Add(uint32(id))
		removed++
	}

	return removed
}

// Rebuild recreates the index from the vectors that still have metadata,
// keeping their ids. It returns the number of tombstones dropped.
func (s *Service) Rebuild() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ids     []int64
		vectors [][]float32
		dropped int
	)

	s.index.Each(func(id int64, vec []float32) {
		if _, ok := s.metadata[id]; !ok {
			dropped++
			return
		}

		ids = append(ids, id)
		vectors = append(vectors, vec)
	})

	cfg := s.cfg
	cfg.Dimension = s.dimension
	cfg.IndexType = string(s.index.Type())
	cfg.Metric = string(s.index.Metric())

	index, err := NewIndex(cfg)
	if err != nil {
		return 0, err
	}

	if len(vectors) > 0 {
		if err := index.Train(vectors); err != nil {
			return 0, err
		}

		if err := index.Add(ids, vectors); err != nil {
			return 0, err
		}
	}

	s.index = index
	s.removed.Clear()

	s.log.Info("index rebuilt",
		zap.Int("vectors", len(ids)),
		zap.Int("dropped", dropped),
	)

	return dropped, nil
}

func (s *Service) paths(indexPath, metadataPath string) (string, string, error) {
	if indexPath == "" {
		if s.cfg.PersistDir == "" {
			return "", "", fmt.Errorf("%w: no index path and no persist_dir", ErrInvalidArgument)
		}
		indexPath = filepath.Join(s.cfg.PersistDir, DefaultIndexFile)
	}

	if metadataPath == "" {
		if s.cfg.PersistDir == "" {
			return "", "", fmt.Errorf("%w: no metadata path and no persist_dir", ErrInvalidArgument)
		}
		metadataPath = filepath.Join(s.cfg.PersistDir, DefaultMetadataFile)
	}

	return indexPath, metadataPath, nil
}

// Paths resolves the artifact locations Save and Load would use.
func (s *Service) Paths(indexPath, metadataPath string) (string, string, error) {
	return s.paths(indexPath, metadataPath)
}

type metadataFile struct {
	Metadata  map[int64]Metadata `json:"metadata"`
	CurrentID int64              `json:"current_id"`
	Dimension int                `json:"dimension"`
	IndexType IndexType          `json:"index_type"`
	Metric    Metric             `json:"metric"`
	Removed   []byte             `json:"removed,omitempty"`
}

// Save writes the index blob and the metadata blob. Empty paths fall
// back to persist_dir.
func (s *Service) Save(indexPath, metadataPath string) error {
	indexPath, metadataPath, err := s.paths(indexPath, metadataPath)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, err := encodeIndex(s.index, s.cfg.Compression)
	if err != nil {
		return err
	}

	removed, err := s.removed.ToBytes()
	if err != nil {
		return err
	}

	meta, err := json.Marshal(metadataFile{
		Metadata:  s.metadata,
		CurrentID: s.currentID,
		Dimension: s.dimension,
		IndexType: s.index.Type(),
		Metric:    s.index.Metric(),
		Removed:   removed,
	})
	if err != nil {
		return err
	}

	if err := writeFileAtomic(indexPath, blob); err != nil {
		return err
	}

	if err := writeFileAtomic(metadataPath, meta); err != nil {
		return err
	}

	s.log.Info("index saved",
		zap.String("index_path", indexPath),
		zap.String("metadata_path", metadataPath),
		zap.Int("vectors", s.index.Len()),
	)

	return nil
}

// Load replaces the current state with the saved artifacts. Both files
// must exist; on any failure the current state is left untouched.
func (s *Service) Load(indexPath, metadataPath string) error {
	indexPath, metadataPath, err := s.paths(indexPath, metadataPath)
	if err != nil {
		return err
	}

	blob, err := readArtifact(indexPath)
	if err != nil {
		return err
	}

	raw, err := readArtifact(metadataPath)
	if err != nil {
		return err
	}

	env, err := decodeIndex(blob)
	if err != nil {
		return err
	}

	var meta metadataFile
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}

	cfg := s.cfg
	cfg.Dimension = env.Dimension
	cfg.IndexType = string(env.Type)
	cfg.Metric = string(env.Metric)

	index, err := NewIndex(cfg)
	if err != nil {
		return err
	}

	if err := index.UnmarshalBinary(env.Data); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}

	removed := roaring.New()
	if len(meta.Removed) > 0 {
		if err := removed.UnmarshalBinary(meta.Removed); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptIndex, err)
		}
	}

	log := s.log.With(
		zap.String("action", "load"),
		zap.String("index_path", indexPath),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	if env.Dimension != s.dimension {
		mismatch := &DimensionMismatchError{Expected: s.dimension, Actual: env.Dimension}
		if !s.cfg.AllowDimensionMismatch {
			return mismatch
		}

		log.Warn(mismatch.Error(), zap.Int("adopted_dimension", env.Dimension))
	}

	if meta.Metadata == nil {
		meta.Metadata = make(map[int64]Metadata)
	}

	s.index = index
	s.metadata = meta.Metadata
	s.removed = removed
	s.currentID = meta.CurrentID
	s.dimension = env.Dimension

	log.Info("index loaded", zap.Int("vectors", index.Len()))
	return nil
}

func readArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		TotalVectors:  s.index.Len(),
		Dimension:     s.dimension,
		IndexType:     string(s.index.Type()),
		Metric:        string(s.index.Metric()),
		MetadataCount: len(s.metadata),
		IsTrained:     s.index.IsTrained(),
		RemovedCount:  int(s.removed.GetCardinality()),
		NextID:        s.currentID,
	}
}

// Clear returns the service to the state of a freshly constructed one.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// cfg was validated by NewService
	index, _ := NewIndex(s.cfg)

	s.index = index
	s.metadata = make(map[int64]Metadata)
	s.removed.Clear()
	s.currentID = 0
	s.dimension = s.cfg.Dimension

	s.log.Info("index cleared")
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
