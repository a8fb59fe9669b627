package vector

import (
	"bytes"
	"encoding/gob"
)

// flatIndex compares the query against every stored vector.
type flatIndex struct {
	dim     int
	metric  Metric
	ids     []int64
	vectors [][]float32
}

func newFlatIndex(dim int, metric Metric) *flatIndex {
	return &flatIndex{
		dim:    dim,
		metric: metric,
	}
}

func (idx *flatIndex) Type() IndexType { return IndexTypeFlat }
func (idx *flatIndex) Metric() Metric  { return idx.metric }
func (idx *flatIndex) Dimension() int  { return idx.dim }
func (idx *flatIndex) Len() int        { return len(idx.ids) }
func (idx *flatIndex) IsTrained() bool { return true }

func (idx *flatIndex) Train([][]float32) error { return nil }

func (idx *flatIndex) Add(ids []int64, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != idx.dim {
			return &DimensionMismatchError{Expected: idx.dim, Actual: len(v)}
		}

		idx.ids = append(idx.ids, ids[i])
		idx.vectors = append(idx.vectors, copyVector(v))
	}
	return nil
}

func (idx *flatIndex) Search(query []float32, k int) []Neighbor {
	if k <= 0 || len(idx.vectors) == 0 {
		return nil
	}

	top := newBoundedMax(k)
	for i, v := range idx.vectors {
		top.offer(queueItem{node: uint32(i), cost: idx.metric.cost(query, v)})
	}

	return toNeighbors(idx.metric, top.sorted(), func(pos uint32) int64 {
		return idx.ids[pos]
	})
}

func (idx *flatIndex) Each(fn func(id int64, vec []float32)) {
	for i, v := range idx.vectors {
		fn(idx.ids[i], v)
	}
}

type flatState struct {
	Dim     int
	Metric  Metric
	IDs     []int64
	Vectors [][]float32
}

func (idx *flatIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(flatState{
		Dim:     idx.dim,
		Metric:  idx.metric,
		IDs:     idx.ids,
		Vectors: idx.vectors,
	})
	return buf.Bytes(), err
}

func (idx *flatIndex) UnmarshalBinary(data []byte) error {
	var state flatState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}

	idx.dim = state.Dim
	idx.metric = state.Metric
	idx.ids = state.IDs
	idx.vectors = state.Vectors
	return nil
}
