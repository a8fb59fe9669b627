package vector

import "encoding"

// Neighbor is a raw index hit. Distance is the inner product for IP
// indexes and the squared euclidean distance for L2 indexes.
type Neighbor struct {
	ID       int64
	Distance float32
}

// Index is the similarity-search structure behind a Service. Indexes
// never delete in place; removal is tracked by the Service.
type Index interface {
	Type() IndexType
	Metric() Metric
	Dimension() int
	Len() int
	IsTrained() bool

	// Train is a no-op for indexes that need no training.
	Train(vectors [][]float32) error
	Add(ids []int64, vectors [][]float32) error
	Search(query []float32, k int) []Neighbor

	// Each visits every stored vector in insertion order.
	Each(fn func(id int64, vec []float32))

	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

func NewIndex(cfg Config) (Index, error) {
	cfg = cfg.withDefaults()

	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	indexType, err := ParseIndexType(cfg.IndexType)
	if err != nil {
		return nil, err
	}

	switch indexType {
	case IndexTypeIVF:
		return newIVFIndex(cfg.Dimension, metric, cfg.NList, cfg.NProbe, cfg.Seed), nil
	case IndexTypeHNSW:
		return newHNSWIndex(cfg.Dimension, metric, cfg.M, cfg.EfConstruction, cfg.EfSearch, cfg.Seed), nil
	default:
		return newFlatIndex(cfg.Dimension, metric), nil
	}
}

func toNeighbors(metric Metric, items []queueItem, ids func(uint32) int64) []Neighbor {
	out := make([]Neighbor, len(items))
	for i, item := range items {
		out[i] = Neighbor{
			ID:       ids(item.node),
			Distance: metric.distance(item.cost),
		}
	}
	return out
}

func copyVector(v []float32) []float32 {
	c := make([]float32, len(v))
	copy(c, v)
	return c
}
