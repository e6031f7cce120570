package lsh

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/jcalabro/sketchy"
	"golang.org/x/sync/errgroup"
)

const (
	// prefixBits is the depth of each permutation's prefix tree.
	prefixBits = 8
	prefixStep = 4
	leafCount  = 1 << prefixBits
)

// prefixTree holds the ids of one permutation, bucketed by the top prefixBits
// bits of their slot value. Leaf i covers slot values whose prefix is i, so a
// subtree of depth d is a contiguous run of leaves.
type prefixTree struct {
	leaves [leafCount]*roaring.Bitmap
}

func leafOf(v uint32) int {
	return int(v >> (32 - prefixBits))
}

// match returns the leaves sharing the top depth bits with v.
func (t *prefixTree) match(v uint32, depth int) []*roaring.Bitmap {
	span := 1 << (prefixBits - depth)
	first := leafOf(v) &^ (span - 1)

	var out []*roaring.Bitmap
	for _, leaf := range t.leaves[first : first+span] {
		if leaf != nil {
			out = append(out, leaf)
		}
	}
	return out
}

type forestEntry[K comparable] struct {
	key    K
	sig    *sketchy.MinHash
	values []uint32
}

// Forest answers top-k similarity queries without a fixed threshold. Each
// permutation gets a prefix tree over its slot values; queries start with
// an exact prefix match and relax it until enough candidates are found, then
// rank candidates by estimated Jaccard similarity.
//
// A Forest has two phases. Insert keys, call Index once, then query. The
// indexed forest is read-only and safe for concurrent queries. Call Clear to
// start over.
type Forest[K comparable] struct {
	numPerm int
	entries []forestEntry[K] // id is the position
	ids     map[K]uint32
	trees   []prefixTree
	indexed bool

	logger *slog.Logger
}

// NewForest creates an empty forest for signatures of numPerm slots.
func NewForest[K comparable](numPerm int, optFns ...Option) (*Forest[K], error) {
	if err := checkNumPerm(numPerm); err != nil {
		return nil, err
	}
	o := buildOptions(optFns)
	return &Forest[K]{
		numPerm: numPerm,
		ids:     make(map[K]uint32),
		logger:  o.Logger,
	}, nil
}

// Insert adds m under key. It fails with [sketchy.ErrState] once the forest
// is indexed and with [sketchy.ErrKeyConflict] for a duplicate key.
func (f *Forest[K]) Insert(key K, m *sketchy.MinHash) error {
	if f.indexed {
		return fmt.Errorf("%w: forest is indexed, call Clear before inserting", sketchy.ErrState)
	}
	if err := checkSignature(m, f.numPerm); err != nil {
		return err
	}
	if len(f.entries) > 0 && f.entries[0].sig.Seed() != m.Seed() {
		return fmt.Errorf("%w: minhash seed %d, forest holds seed %d",
			sketchy.ErrDimensionMismatch, m.Seed(), f.entries[0].sig.Seed())
	}
	if _, ok := f.ids[key]; ok {
		return fmt.Errorf("%w: key %v already inserted", sketchy.ErrKeyConflict, key)
	}

	f.ids[key] = uint32(len(f.entries))
	f.entries = append(f.entries, forestEntry[K]{key: key, sig: m.Clone(), values: m.HashValues()})
	return nil
}

// Index builds the prefix trees. Calling it again is a no-op.
func (f *Forest[K]) Index() error {
	return f.IndexContext(context.Background())
}

// IndexContext is Index with cancellation. Trees are built concurrently.
func (f *Forest[K]) IndexContext(ctx context.Context) error {
	if f.indexed {
		return nil
	}

	trees := make([]prefixTree, f.numPerm)
	g, ctx := errgroup.WithContext(ctx)
	for perm := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var buckets [leafCount][]uint32
			for id, e := range f.entries {
				leaf := leafOf(e.values[perm])
				buckets[leaf] = append(buckets[leaf], uint32(id))
			}
			for leaf, ids := range buckets {
				if len(ids) > 0 {
					trees[perm].leaves[leaf] = roaring.BitmapOf(ids...)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.indexed = true
	f.logger.Debug("forest indexed", "keys", len(f.entries), "trees", f.numPerm)
	return nil
}

// Query returns up to k keys most similar to m, most similar first.
func (f *Forest[K]) Query(m *sketchy.MinHash, k int) ([]K, error) {
	results, err := f.QueryWithSimilarity(m, k)
	if err != nil {
		return nil, err
	}
	keys := make([]K, len(results))
	for i, r := range results {
		keys[i] = r.Key
	}
	return keys, nil
}

// QueryWithSimilarity is Query with the estimated similarities.
func (f *Forest[K]) QueryWithSimilarity(m *sketchy.MinHash, k int) ([]Result[K], error) {
	if !f.indexed {
		return nil, fmt.Errorf("%w: forest is not indexed, call Index first", sketchy.ErrState)
	}
	if len(f.entries) == 0 {
		return nil, fmt.Errorf("%w: forest is empty", sketchy.ErrState)
	}
	if err := checkSignature(m, f.numPerm); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", sketchy.ErrInvalidArgument, k)
	}

	candidates := f.candidates(m.HashValues(), k)

	type scored struct {
		id  uint32
		sim float64
	}
	ranked := make([]scored, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		j, err := m.Jaccard(f.entries[id].sig)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, scored{id: id, sim: j})
	}
	slices.SortFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.sim, a.sim); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	ranked = ranked[:min(k, len(ranked))]
	out := make([]Result[K], len(ranked))
	for i, s := range ranked {
		out[i] = Result[K]{Key: f.entries[s.id].key, Similarity: s.sim}
	}
	return out, nil
}

// candidates collects ids sharing a prefix with values in any tree. The
// prefix is relaxed by prefixStep bits per round until there are at least 2k
// candidates or every key is a candidate.
func (f *Forest[K]) candidates(values []uint32, k int) *roaring.Bitmap {
	want := uint64(min(2*k, len(f.entries)))

	var found *roaring.Bitmap
	for depth := prefixBits; depth >= 0; depth -= prefixStep {
		var hits []*roaring.Bitmap
		for perm := range f.trees {
			hits = append(hits, f.trees[perm].match(values[perm], depth)...)
		}
		found = roaring.FastOr(hits...)
		if found.GetCardinality() >= want {
			break
		}
	}
	return found
}

// Clear removes every key and the index, returning the forest to the insert
// phase.
func (f *Forest[K]) Clear() {
	f.entries = nil
	f.ids = make(map[K]uint32)
	f.trees = nil
	f.indexed = false
}

// IsIndexed reports whether Index has run since the last Clear.
func (f *Forest[K]) IsIndexed() bool { return f.indexed }

// Len returns the number of inserted keys.
func (f *Forest[K]) Len() int { return len(f.entries) }

// NumPerm returns the expected signature length.
func (f *Forest[K]) NumPerm() int { return f.numPerm }

// String implements fmt.Stringer.
func (f *Forest[K]) String() string {
	status := "not indexed"
	if f.indexed {
		status = "indexed"
	}
	return fmt.Sprintf("Forest(num_perm=%d, keys=%d, %s)", f.numPerm, len(f.entries), status)
}

// BuildForest inserts every signature of items and indexes the forest.
func BuildForest[K comparable](ctx context.Context, numPerm int, items map[K]*sketchy.MinHash, optFns ...Option) (*Forest[K], error) {
	f, err := NewForest[K](numPerm, optFns...)
	if err != nil {
		return nil, err
	}
	for key, m := range items {
		if err := f.Insert(key, m); err != nil {
			return nil, err
		}
	}
	if err := f.IndexContext(ctx); err != nil {
		return nil, err
	}
	return f, nil
}
