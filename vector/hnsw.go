package vector

import (
	"bytes"
	"container/heap"
	"encoding/gob"
	"math"
	"math/rand"
	"sort"

	"github.com/bits-and-blooms/bitset"
)

type hnswNode struct {
	ID     int64
	Vector []float32
	Level  int
	Links  [][]uint32
}

// hnswIndex is a hierarchical navigable small-world graph. Nodes are
// addressed by position; each node carries the caller's id.
type hnswIndex struct {
	dim            int
	metric         Metric
	m              int
	m0             int
	efConstruction int
	efSearch       int
	ml             float64
	seed           int64
	rng            *rand.Rand

	nodes    []*hnswNode
	entry    int
	maxLevel int
}

func newHNSWIndex(dim int, metric Metric, m, efConstruction, efSearch int, seed int64) *hnswIndex {
	if m < 2 {
		m = 2
	}

	return &hnswIndex{
		dim:            dim,
		metric:         metric,
		m:              m,
		m0:             2 * m,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		ml:             1 / math.Log(float64(m)),
		seed:           seed,
		rng:            rand.New(rand.NewSource(seed)),
		entry:          -1,
	}
}

func (h *hnswIndex) Type() IndexType { return IndexTypeHNSW }
func (h *hnswIndex) Metric() Metric  { return h.metric }
func (h *hnswIndex) Dimension() int  { return h.dim }
func (h *hnswIndex) Len() int        { return len(h.nodes) }
func (h *hnswIndex) IsTrained() bool { return true }

func (h *hnswIndex) Train([][]float32) error { return nil }

func (h *hnswIndex) Add(ids []int64, vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != h.dim {
			return &DimensionMismatchError{Expected: h.dim, Actual: len(v)}
		}

		h.insert(ids[i], copyVector(v))
	}
	return nil
}

func (h *hnswIndex) randomLevel() int {
	return int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
}

func (h *hnswIndex) maxLinks(level int) int {
	if level == 0 {
		return h.m0
	}
	return h.m
}

func (h *hnswIndex) insert(id int64, vec []float32) {
	level := h.randomLevel()
	node := &hnswNode{
		ID:     id,
		Vector: vec,
		Level:  level,
		Links:  make([][]uint32, level+1),
	}

	pos := uint32(len(h.nodes))
	h.nodes = append(h.nodes, node)

	if h.entry < 0 {
		h.entry = int(pos)
		h.maxLevel = level
		return
	}

	ep := queueItem{node: uint32(h.entry)}
	ep.cost = h.metric.cost(vec, h.nodes[ep.node].Vector)

	for l := h.maxLevel; l > level; l-- {
		ep = h.greedy(vec, ep, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(vec, ep, h.efConstruction, l)

		neighbours := h.selectNeighbours(candidates, h.m)
		node.Links[l] = make([]uint32, len(neighbours))
		for i, n := range neighbours {
			node.Links[l][i] = n.node
		}

		for _, n := range neighbours {
			h.link(n.node, pos, l)
		}

		ep = candidates[0]
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = int(pos)
	}
}

// greedy walks one layer towards the query until no neighbour is closer.
func (h *hnswIndex) greedy(q []float32, ep queueItem, level int) queueItem {
	for changed := true; changed; {
		changed = false

		for _, n := range h.nodes[ep.node].Links[level] {
			if c := h.metric.cost(q, h.nodes[n].Vector); c < ep.cost {
				ep = queueItem{node: n, cost: c}
				changed = true
			}
		}
	}
	return ep
}

// searchLayer returns up to ef nodes of the layer closest to q, ascending.
func (h *hnswIndex) searchLayer(q []float32, ep queueItem, ef int, level int) []queueItem {
	var visited bitset.BitSet
	visited.Set(uint(ep.node))

	candidates := &priorityQueue{}
	heap.Push(candidates, ep)

	results := newBoundedMax(ef)
	results.offer(ep)

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(queueItem)
		if results.pq.Len() >= ef && current.cost > results.pq.top().cost {
			break
		}

		links := h.nodes[current.node].Links
		if level >= len(links) {
			continue
		}

		for _, n := range links[level] {
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))

			item := queueItem{node: n, cost: h.metric.cost(q, h.nodes[n].Vector)}
			if results.pq.Len() < ef || item.cost < results.pq.top().cost {
				heap.Push(candidates, item)
				results.offer(item)
			}
		}
	}

	return results.sorted()
}

// selectNeighbours keeps a candidate only when it is closer to the base
// than to every neighbour already kept, then tops up with the closest
// pruned candidates. candidates must be sorted ascending.
func (h *hnswIndex) selectNeighbours(candidates []queueItem, m int) []queueItem {
	if len(candidates) <= m {
		return candidates
	}

	selected := make([]queueItem, 0, m)
	var pruned []queueItem

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}

		keep := true
		for _, s := range selected {
			if h.metric.cost(h.nodes[c.node].Vector, h.nodes[s.node].Vector) < c.cost {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	for _, p := range pruned {
		if len(selected) >= m {
			break
		}
		selected = append(selected, p)
	}

	return selected
}

func (h *hnswIndex) link(from, to uint32, level int) {
	node := h.nodes[from]
	node.Links[level] = append(node.Links[level], to)

	limit := h.maxLinks(level)
	if len(node.Links[level]) <= limit {
		return
	}

	candidates := make([]queueItem, len(node.Links[level]))
	for i, n := range node.Links[level] {
		candidates[i] = queueItem{node: n, cost: h.metric.cost(node.Vector, h.nodes[n].Vector)}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].cost < candidates[j].cost
	})

	kept := h.selectNeighbours(candidates, limit)
	links := make([]uint32, len(kept))
	for i, k := range kept {
		links[i] = k.node
	}
	node.Links[level] = links
}

func (h *hnswIndex) Search(query []float32, k int) []Neighbor {
	if k <= 0 || h.entry < 0 {
		return nil
	}

	ep := queueItem{node: uint32(h.entry)}
	ep.cost = h.metric.cost(query, h.nodes[ep.node].Vector)

	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedy(query, ep, l)
	}

	found := h.searchLayer(query, ep, max(h.efSearch, k), 0)
	if len(found) > k {
		found = found[:k]
	}

	return toNeighbors(h.metric, found, func(pos uint32) int64 {
		return h.nodes[pos].ID
	})
}

func (h *hnswIndex) Each(fn func(id int64, vec []float32)) {
	for _, node := range h.nodes {
		fn(node.ID, node.Vector)
	}
}

type hnswState struct {
	Dim            int
	Metric         Metric
	M              int
	EfConstruction int
	EfSearch       int
	Seed           int64
	Nodes          []*hnswNode
	Entry          int
	MaxLevel       int
}

func (h *hnswIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(hnswState{
		Dim:            h.dim,
		Metric:         h.metric,
		M:              h.m,
		EfConstruction: h.efConstruction,
		EfSearch:       h.efSearch,
		Seed:           h.seed,
		Nodes:          h.nodes,
		Entry:          h.entry,
		MaxLevel:       h.maxLevel,
	})
	return buf.Bytes(), err
}

func (h *hnswIndex) UnmarshalBinary(data []byte) error {
	var state hnswState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}

	restored := newHNSWIndex(state.Dim, state.Metric, state.M, state.EfConstruction, state.EfSearch, state.Seed)
	restored.nodes = state.Nodes
	restored.entry = state.Entry
	restored.maxLevel = state.MaxLevel

	// links trimmed by gob for empty layers must keep their slot
	for _, node := range restored.nodes {
		if len(node.Links) < node.Level+1 {
			links := make([][]uint32, node.Level+1)
			copy(links, node.Links)
			node.Links = links
		}
	}

	*h = *restored
	return nil
}
