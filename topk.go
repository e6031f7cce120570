package sketchy

import (
	"container/heap"
	"fmt"
	"maps"
)

// TopK tracks the k most frequent items of a stream.
//
// Counts are exact: TopK keeps a count for every distinct item it has seen, so
// its memory grows with the number of distinct items, not with k. Only the
// reported view is capped at k. Use a [CountMinSketch] with
// [CountMinSketch.HeavyHitters] when memory must stay bounded.
//
// TopK is not safe for concurrent mutation.
type TopK struct {
	k      int
	counts map[string]uint64
	view   topkHeap
	total  uint64
}

// NewTopK creates an empty tracker reporting the k most frequent items.
func NewTopK(k int) (*TopK, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: topk k must be positive, got %d", ErrConfiguration, k)
	}
	return &TopK{
		k:      k,
		counts: make(map[string]uint64),
		view:   topkHeap{pos: make(map[string]int)},
	}, nil
}

// NewTopKFromCounts creates a tracker from exact counts.
func NewTopKFromCounts(k int, counts map[string]uint64) (*TopK, error) {
	t, err := NewTopK(k)
	if err != nil {
		return nil, err
	}
	for item, c := range counts {
		t.counts[item] = c
		t.total += c
	}
	t.rebuild()
	return t, nil
}

// Add records count occurrences of item.
func (t *TopK) Add(item string, count uint64) {
	t.counts[item] += count
	t.total += count
	c := t.counts[item]

	if i, ok := t.view.pos[item]; ok {
		t.view.entries[i].Count = c
		heap.Fix(&t.view, i)
		return
	}

	if t.view.Len() < t.k {
		heap.Push(&t.view, ItemCount{Item: item, Count: c})
		return
	}

	if c > t.view.entries[0].Count {
		delete(t.view.pos, t.view.entries[0].Item)
		t.view.entries[0] = ItemCount{Item: item, Count: c}
		t.view.pos[item] = 0
		heap.Fix(&t.view, 0)
	}
}

// Top returns up to n of the tracked items, most frequent first. n <= 0 or
// n > k returns the whole view.
func (t *TopK) Top(n int) []ItemCount {
	out := make([]ItemCount, len(t.view.entries))
	copy(out, t.view.entries)
	sortItemCounts(out)
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Estimate returns the exact count of item.
func (t *TopK) Estimate(item string) uint64 {
	return t.counts[item]
}

// Contains reports whether item is in the top-k view.
func (t *TopK) Contains(item string) bool {
	_, ok := t.view.pos[item]
	return ok
}

// Combine sums the exact counts of both trackers and rebuilds the view. Both
// must report the same k.
func (t *TopK) Combine(other *TopK) (*TopK, error) {
	if t.k != other.k {
		return nil, fmt.Errorf("%w: topk k %d vs %d", ErrDimensionMismatch, t.k, other.k)
	}
	merged := maps.Clone(t.counts)
	for item, c := range other.counts {
		merged[item] += c
	}
	return NewTopKFromCounts(t.k, merged)
}

// Zero returns an empty tracker with the same k.
func (t *TopK) Zero() *TopK {
	z, _ := NewTopK(t.k)
	return z
}

// IsZero reports whether no item has been added.
func (t *TopK) IsZero() bool {
	return len(t.counts) == 0
}

// Equal reports whether both trackers have the same k and exact counts.
func (t *TopK) Equal(other *TopK) bool {
	return other != nil && t.k == other.k && maps.Equal(t.counts, other.counts)
}

// K returns the size of the reported view.
func (t *TopK) K() int { return t.k }

// Len returns the number of distinct items tracked.
func (t *TopK) Len() int { return len(t.counts) }

// TotalCount returns the sum of all counts added.
func (t *TopK) TotalCount() uint64 { return t.total }

func (t *TopK) rebuild() {
	all := make([]ItemCount, 0, len(t.counts))
	for item, c := range t.counts {
		all = append(all, ItemCount{Item: item, Count: c})
	}
	sortItemCounts(all)
	if len(all) > t.k {
		all = all[:t.k]
	}

	t.view = topkHeap{entries: all, pos: make(map[string]int, len(all))}
	for i, e := range all {
		t.view.pos[e.Item] = i
	}
	heap.Init(&t.view)
}

// String implements fmt.Stringer.
func (t *TopK) String() string {
	return fmt.Sprintf("TopK(k=%d, top=%v)", t.k, t.Top(3))
}

// topkHeap is a min-heap on count with an item index for heap.Fix.
type topkHeap struct {
	entries []ItemCount
	pos     map[string]int
}

var _ heap.Interface = (*topkHeap)(nil)

func (h *topkHeap) Len() int { return len(h.entries) }

func (h *topkHeap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	// Among equal counts the lexically largest item is evicted first.
	return a.Item > b.Item
}

func (h *topkHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.pos[h.entries[i].Item] = i
	h.pos[h.entries[j].Item] = j
}

func (h *topkHeap) Push(x any) {
	e := x.(ItemCount)
	h.pos[e.Item] = len(h.entries)
	h.entries = append(h.entries, e)
}

func (h *topkHeap) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries = h.entries[:n-1]
	delete(h.pos, e.Item)
	return e
}
