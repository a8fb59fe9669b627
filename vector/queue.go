package vector

import "container/heap"

var _ heap.Interface = (*priorityQueue)(nil)

type queueItem struct {
	node uint32
	cost float32
}

// priorityQueue is a min-heap on cost, or a max-heap when max is set.
type priorityQueue struct {
	max   bool
	items []queueItem
}

func (pq *priorityQueue) Len() int { return len(pq.items) }

func (pq *priorityQueue) Less(i, j int) bool {
	if pq.max {
		return pq.items[i].cost > pq.items[j].cost
	}
	return pq.items[i].cost < pq.items[j].cost
}

func (pq *priorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

func (pq *priorityQueue) Push(x any) {
	pq.items = append(pq.items, x.(queueItem))
}

func (pq *priorityQueue) Pop() any {
	n := len(pq.items)
	item := pq.items[n-1]
	pq.items = pq.items[:n-1]
	return item
}

func (pq *priorityQueue) top() queueItem {
	return pq.items[0]
}

// boundedMax keeps the k lowest-cost items seen so far.
type boundedMax struct {
	k  int
	pq priorityQueue
}

func newBoundedMax(k int) *boundedMax {
	return &boundedMax{
		k:  k,
		pq: priorityQueue{max: true, items: make([]queueItem, 0, k)},
	}
}

func (b *boundedMax) offer(item queueItem) {
	if b.pq.Len() < b.k {
		heap.Push(&b.pq, item)
		return
	}

	if item.cost < b.pq.top().cost {
		b.pq.items[0] = item
		heap.Fix(&b.pq, 0)
	}
}

// sorted drains the queue in ascending cost order.
func (b *boundedMax) sorted() []queueItem {
	out := make([]queueItem, b.pq.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&b.pq).(queueItem)
	}
	return out
}
