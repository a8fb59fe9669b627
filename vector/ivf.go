package vector

import (
	"bytes"
	"encoding/gob"
)

type ivfList struct {
	IDs     []int64
	Vectors [][]float32
}

// ivfIndex buckets vectors by their nearest trained centroid and scans
// only the nprobe closest buckets at query time.
type ivfIndex struct {
	dim       int
	metric    Metric
	nlist     int
	nprobe    int
	seed      int64
	centroids [][]float32
	lists     []ivfList
	order     []ivfRef
}

// ivfRef locates a vector inside the inverted lists.
type ivfRef struct {
	List   int
	Offset int
}

func newIVFIndex(dim int, metric Metric, nlist, nprobe int, seed int64) *ivfIndex {
	return &ivfIndex{
		dim:    dim,
		metric: metric,
		nlist:  nlist,
		nprobe: nprobe,
		seed:   seed,
	}
}

func (idx *ivfIndex) Type() IndexType { return IndexTypeIVF }
func (idx *ivfIndex) Metric() Metric  { return idx.metric }
func (idx *ivfIndex) Dimension() int  { return idx.dim }
func (idx *ivfIndex) Len() int        { return len(idx.order) }
func (idx *ivfIndex) IsTrained() bool { return len(idx.centroids) > 0 }

func (idx *ivfIndex) Train(vectors [][]float32) error {
	if idx.IsTrained() {
		return nil
	}

	for _, v := range vectors {
		if len(v) != idx.dim {
			return &DimensionMismatchError{Expected: idx.dim, Actual: len(v)}
		}
	}

	idx.centroids = trainKMeans(vectors, idx.nlist, idx.seed)
	idx.lists = make([]ivfList, len(idx.centroids))
	return nil
}

func (idx *ivfIndex) Add(ids []int64, vectors [][]float32) error {
	if !idx.IsTrained() {
		return ErrNotTrained
	}

	for i, v := range vectors {
		if len(v) != idx.dim {
			return &DimensionMismatchError{Expected: idx.dim, Actual: len(v)}
		}

		c := nearestCentroid(v, idx.centroids)
		list := &idx.lists[c]
		list.IDs = append(list.IDs, ids[i])
		list.Vectors = append(list.Vectors, copyVector(v))

		idx.order = append(idx.order, ivfRef{List: c, Offset: len(list.IDs) - 1})
	}
	return nil
}

func (idx *ivfIndex) Search(query []float32, k int) []Neighbor {
	if k <= 0 || len(idx.order) == 0 {
		return nil
	}

	var ids []int64
	top := newBoundedMax(k)
	for _, c := range closestCentroids(query, idx.centroids, idx.nprobe) {
		list := idx.lists[c]
		for i, v := range list.Vectors {
			top.offer(queueItem{node: uint32(len(ids)), cost: idx.metric.cost(query, v)})
			ids = append(ids, list.IDs[i])
		}
	}

	return toNeighbors(idx.metric, top.sorted(), func(pos uint32) int64 {
		return ids[pos]
	})
}

func (idx *ivfIndex) Each(fn func(id int64, vec []float32)) {
	for _, ref := range idx.order {
		list := idx.lists[ref.List]
		fn(list.IDs[ref.Offset], list.Vectors[ref.Offset])
	}
}

type ivfState struct {
	Dim       int
	Metric    Metric
	NList     int
	NProbe    int
	Seed      int64
	Centroids [][]float32
	Lists     []ivfList
	Order     []ivfRef
}

func (idx *ivfIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(ivfState{
		Dim:       idx.dim,
		Metric:    idx.metric,
		NList:     idx.nlist,
		NProbe:    idx.nprobe,
		Seed:      idx.seed,
		Centroids: idx.centroids,
		Lists:     idx.lists,
		Order:     idx.order,
	})
	return buf.Bytes(), err
}

func (idx *ivfIndex) UnmarshalBinary(data []byte) error {
	var state ivfState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}

	idx.dim = state.Dim
	idx.metric = state.Metric
	idx.nlist = state.NList
	idx.nprobe = state.NProbe
	idx.seed = state.Seed
	idx.centroids = state.Centroids
	idx.lists = state.Lists
	idx.order = state.Order

	if len(idx.lists) < len(idx.centroids) {
		lists := make([]ivfList, len(idx.centroids))
		copy(lists, idx.lists)
		idx.lists = lists
	}
	return nil
}
