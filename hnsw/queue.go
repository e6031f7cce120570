package hnsw

import "container/heap"

var _ heap.Interface = (*queue)(nil)

// item is a node id and its distance to the current query.
type item struct {
	id   uint32
	dist float64
}

// queue is a binary heap of items ordered by distance, nearest first, or
// furthest first when max is set. Ties order by id so searches are
// deterministic.
type queue struct {
	max   bool
	items []item
}

func (q *queue) Len() int { return len(q.items) }

func (q *queue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.dist != b.dist {
		return (a.dist < b.dist) != q.max
	}
	return (a.id < b.id) != q.max
}

func (q *queue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *queue) Push(x any) { q.items = append(q.items, x.(item)) }

func (q *queue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items = q.items[:n-1]
	return it
}

// top returns the head of the queue without removing it.
func (q *queue) top() item { return q.items[0] }

// drain empties a max queue into a slice sorted nearest first.
func (q *queue) drain() []item {
	out := make([]item, q.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(q).(item)
	}
	return out
}
