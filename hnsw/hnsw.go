// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest neighbour search over any vector type and distance.
//
// Each node joins layers 0 through a randomly drawn level, with each layer
// holding exponentially fewer nodes than the one below. Searches descend
// greedily through the sparse upper layers and finish with a beam search on
// layer 0.
//
// Graphs do not merge. To search several graphs built independently, query
// each and merge the results with [Federated].
//
// Reference: https://arxiv.org/abs/1603.09320
package hnsw

import (
	"cmp"
	"container/heap"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/jcalabro/sketchy"
	"github.com/jcalabro/sketchy/internal/rng"
)

// Result is a search hit.
type Result[K comparable] struct {
	Key      K
	Distance float64
}

type node[K comparable, V any] struct {
	key    K
	vector V
	level  int
	links  [][]uint32 // links[layer] for layers 0..level
}

// HNSW is a proximity graph over vectors of type V keyed by K.
//
// Inserts mutate neighbour lists across the graph and must be serialized by
// the caller. Searches may run concurrently while no insert is in flight.
type HNSW[K comparable, V any] struct {
	dist DistanceFunc[V]
	opts Options

	nodes    []node[K, V]
	ids      map[K]uint32
	entry    uint32
	maxLevel int

	rand   *rand.Rand
	logger *slog.Logger
}

// New creates an empty graph using dist to compare vectors.
func New[K comparable, V any](dist func(a, b V) float64, optFns ...func(o *Options)) (*HNSW[K, V], error) {
	if dist == nil {
		return nil, fmt.Errorf("%w: nil distance function", sketchy.ErrConfiguration)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = sketchy.NoopLogger()
	}

	return &HNSW[K, V]{
		dist:     dist,
		opts:     opts,
		ids:      make(map[K]uint32),
		maxLevel: -1,
		rand:     rand.New(rng.New(opts.Seed)),
		logger:   opts.Logger,
	}, nil
}

// Insert adds vector under key. The graph keeps vector as given; callers must
// not modify it afterwards.
func (h *HNSW[K, V]) Insert(key K, vector V) error {
	if _, ok := h.ids[key]; ok {
		return fmt.Errorf("%w: key %v already inserted", sketchy.ErrKeyConflict, key)
	}

	level := h.randomLevel()
	id := uint32(len(h.nodes))
	h.nodes = append(h.nodes, node[K, V]{
		key:    key,
		vector: vector,
		level:  level,
		links:  make([][]uint32, level+1),
	})
	h.ids[key] = id

	if id == 0 {
		h.entry, h.maxLevel = id, level
		return nil
	}

	// Greedy descent through the layers above the new node's level.
	ep := []item{{id: h.entry, dist: h.dist(vector, h.nodes[h.entry].vector)}}
	for layer := h.maxLevel; layer > level; layer-- {
		ep = h.searchLayer(vector, ep, 1, layer)
	}

	for layer := min(level, h.maxLevel); layer >= 0; layer-- {
		candidates := h.searchLayer(vector, ep, h.opts.EFConstruction, layer)
		neighbours := candidates[:min(len(candidates), h.maxLinks(layer))]

		links := make([]uint32, len(neighbours))
		for i, n := range neighbours {
			links[i] = n.id
		}
		h.nodes[id].links[layer] = links
		for _, n := range neighbours {
			h.link(n.id, id, layer)
		}
		ep = candidates
	}

	if level > h.maxLevel {
		h.logger.Debug("hnsw entry point promoted", "key", key, "level", level, "previous_level", h.maxLevel)
		h.entry, h.maxLevel = id, level
	}
	return nil
}

// randomLevel draws floor(-ln(U) * ml) with U uniform on (0, 1].
func (h *HNSW[K, V]) randomLevel() int {
	u := 1 - h.rand.Float64()
	return int(math.Floor(-math.Log(u) * h.opts.ML))
}

func (h *HNSW[K, V]) maxLinks(layer int) int {
	if layer == 0 {
		return 2 * h.opts.M
	}
	return h.opts.M
}

// link adds an edge from -> to on layer, pruning from's list to its nearest
// maxLinks neighbours when it overflows.
func (h *HNSW[K, V]) link(from, to uint32, layer int) {
	n := &h.nodes[from]
	n.links[layer] = append(n.links[layer], to)

	limit := h.maxLinks(layer)
	if len(n.links[layer]) <= limit {
		return
	}

	scored := make([]item, len(n.links[layer]))
	for i, id := range n.links[layer] {
		scored[i] = item{id: id, dist: h.dist(n.vector, h.nodes[id].vector)}
	}
	slices.SortFunc(scored, func(a, b item) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	kept := n.links[layer][:0]
	for _, s := range scored[:limit] {
		kept = append(kept, s.id)
	}
	n.links[layer] = kept
}

// searchLayer runs a best-first beam search of width ef on layer starting
// from ep. It returns up to ef items, nearest first.
func (h *HNSW[K, V]) searchLayer(q V, ep []item, ef, layer int) []item {
	visited := bitset.New(uint(len(h.nodes)))
	candidates := &queue{}
	results := &queue{max: true}

	for _, e := range ep {
		if visited.Test(uint(e.id)) {
			continue
		}
		visited.Set(uint(e.id))
		heap.Push(candidates, e)
		heap.Push(results, e)
		if results.Len() > ef {
			heap.Pop(results)
		}
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(item)
		if c.dist > results.top().dist {
			break
		}

		for _, n := range h.nodes[c.id].links[layer] {
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))

			d := h.dist(q, h.nodes[n].vector)
			if results.Len() < ef || d < results.top().dist {
				it := item{id: n, dist: d}
				heap.Push(candidates, it)
				heap.Push(results, it)
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	return results.drain()
}

// Search returns the keys of the k nearest vectors, nearest first, using a
// beam width of max(EF, k).
func (h *HNSW[K, V]) Search(vector V, k int) ([]K, error) {
	results, err := h.SearchWithDistances(vector, k)
	if err != nil {
		return nil, err
	}
	return keys(results), nil
}

// SearchEF is Search with an explicit beam width, which must be at least M.
func (h *HNSW[K, V]) SearchEF(vector V, k, ef int) ([]K, error) {
	if ef < h.opts.M {
		return nil, fmt.Errorf("%w: ef %d is below m %d", sketchy.ErrInvalidArgument, ef, h.opts.M)
	}
	results, err := h.search(vector, k, ef)
	if err != nil {
		return nil, err
	}
	return keys(results), nil
}

// SearchWithDistances is Search with the distance of each hit.
func (h *HNSW[K, V]) SearchWithDistances(vector V, k int) ([]Result[K], error) {
	return h.search(vector, k, h.opts.EF)
}

func (h *HNSW[K, V]) search(vector V, k, ef int) ([]Result[K], error) {
	if len(h.nodes) == 0 {
		return nil, fmt.Errorf("%w: graph is empty", sketchy.ErrState)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", sketchy.ErrInvalidArgument, k)
	}

	ep := []item{{id: h.entry, dist: h.dist(vector, h.nodes[h.entry].vector)}}
	for layer := h.maxLevel; layer > 0; layer-- {
		ep = h.searchLayer(vector, ep, 1, layer)
	}
	found := h.searchLayer(vector, ep, max(ef, k), 0)

	found = found[:min(k, len(found))]
	out := make([]Result[K], len(found))
	for i, it := range found {
		out[i] = Result[K]{Key: h.nodes[it.id].key, Distance: it.dist}
	}
	return out, nil
}

func keys[K comparable](results []Result[K]) []K {
	out := make([]K, len(results))
	for i, r := range results {
		out[i] = r.Key
	}
	return out
}

// Contains reports whether key has been inserted.
func (h *HNSW[K, V]) Contains(key K) bool {
	_, ok := h.ids[key]
	return ok
}

// Vector returns the vector stored under key.
func (h *HNSW[K, V]) Vector(key K) (V, bool) {
	id, ok := h.ids[key]
	if !ok {
		var zero V
		return zero, false
	}
	return h.nodes[id].vector, true
}

// Len returns the number of inserted vectors.
func (h *HNSW[K, V]) Len() int { return len(h.nodes) }

// Options returns the graph's configuration.
func (h *HNSW[K, V]) Options() Options { return h.opts }

// Stats summarises the shape of a graph.
type Stats struct {
	Nodes     int
	Levels    int     // number of layers in use
	AvgDegree float64 // mean neighbour count over every (node, layer) pair
	MaxDegree int
	M         int
	EF        int
}

// Stats returns statistics about the graph.
func (h *HNSW[K, V]) Stats() Stats {
	s := Stats{Nodes: len(h.nodes), Levels: h.maxLevel + 1, M: h.opts.M, EF: h.opts.EF}

	var lists, total int
	for _, n := range h.nodes {
		for _, l := range n.links {
			lists++
			total += len(l)
			s.MaxDegree = max(s.MaxDegree, len(l))
		}
	}
	if lists > 0 {
		s.AvgDegree = float64(total) / float64(lists)
	}
	return s
}

// String implements fmt.Stringer.
func (h *HNSW[K, V]) String() string {
	return fmt.Sprintf("HNSW(m=%d, ef=%d, levels=%d, items=%d)", h.opts.M, h.opts.EF, h.maxLevel+1, len(h.nodes))
}
