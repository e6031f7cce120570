// Package lsh provides locality-sensitive hashing indexes over MinHash
// signatures: [MinHashLSH] for Jaccard threshold queries, [Forest] for top-k
// queries and [Ensemble] for containment queries.
//
// Posting lists are roaring bitmaps over interned uint32 ids, so keys can be
// any comparable type.
package lsh

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jcalabro/sketchy"
)

// Result is a key with its estimated similarity to the query.
type Result[K comparable] struct {
	Key        K
	Similarity float64
}

type lshEntry[K comparable] struct {
	key    K
	sig    *sketchy.MinHash
	hashes []uint64 // band hashes, needed to remove the entry later
}

// MinHashLSH answers "which stored sets have Jaccard similarity of at least
// threshold with this one" in sub-linear time. Signatures are split into b
// bands of r slots; sets sharing any band hash become candidates, and
// candidates are verified against the threshold with their full signatures.
//
// MinHashLSH is a monoid, so shards built independently can be merged with
// [MinHashLSH.Combine]. It is not safe for concurrent mutation.
type MinHashLSH[K comparable] struct {
	threshold float64
	numPerm   int
	bands     *bandIndex
	seed      uint64
	seeded    bool

	ids     map[K]uint32
	entries map[uint32]*lshEntry[K]
	nextID  uint32

	logger *slog.Logger
}

// New creates an empty index for signatures of numPerm slots.
func New[K comparable](threshold float64, numPerm int, optFns ...Option) (*MinHashLSH[K], error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if err := checkNumPerm(numPerm); err != nil {
		return nil, err
	}

	o := buildOptions(optFns)
	b, r := o.Bands, o.Rows
	switch {
	case b == 0 && r == 0:
		b, r = OptimalParams(threshold, numPerm)
	case b < 1 || r < 1 || b*r != numPerm:
		return nil, fmt.Errorf("%w: bands %d * rows %d must equal num_perm %d",
			sketchy.ErrConfiguration, b, r, numPerm)
	}

	return &MinHashLSH[K]{
		threshold: threshold,
		numPerm:   numPerm,
		bands:     newBandIndex(b, r),
		ids:       make(map[K]uint32),
		entries:   make(map[uint32]*lshEntry[K]),
		logger:    o.Logger,
	}, nil
}

// Insert indexes m under key. Inserting a key that is already present fails
// with [sketchy.ErrKeyConflict]; use Upsert to overwrite.
func (l *MinHashLSH[K]) Insert(key K, m *sketchy.MinHash) error {
	if err := l.checkInsert(m); err != nil {
		return err
	}
	if _, ok := l.ids[key]; ok {
		return fmt.Errorf("%w: key %v already indexed", sketchy.ErrKeyConflict, key)
	}
	l.insert(key, m)
	return nil
}

// Upsert indexes m under key, replacing any previous signature.
func (l *MinHashLSH[K]) Upsert(key K, m *sketchy.MinHash) error {
	if err := l.checkInsert(m); err != nil {
		return err
	}
	l.Remove(key)
	l.insert(key, m)
	return nil
}

func (l *MinHashLSH[K]) checkInsert(m *sketchy.MinHash) error {
	if err := checkSignature(m, l.numPerm); err != nil {
		return err
	}
	if l.seeded && m.Seed() != l.seed {
		return fmt.Errorf("%w: minhash seed %d, index holds seed %d",
			sketchy.ErrDimensionMismatch, m.Seed(), l.seed)
	}
	return nil
}

func (l *MinHashLSH[K]) insert(key K, m *sketchy.MinHash) {
	if !l.seeded {
		l.seed, l.seeded = m.Seed(), true
	}

	id := l.nextID
	l.nextID++

	e := &lshEntry[K]{key: key, sig: m.Clone(), hashes: l.bands.bandHashes(m.HashValues())}
	l.bands.add(id, e.hashes)
	l.ids[key] = id
	l.entries[id] = e
}

// Remove deletes key from the index and reports whether it was present.
func (l *MinHashLSH[K]) Remove(key K) bool {
	id, ok := l.ids[key]
	if !ok {
		return false
	}
	l.bands.remove(id, l.entries[id].hashes)
	delete(l.ids, key)
	delete(l.entries, id)
	return true
}

// Query returns the keys whose signatures have estimated Jaccard similarity
// of at least the threshold with m, in insertion order.
func (l *MinHashLSH[K]) Query(m *sketchy.MinHash) ([]K, error) {
	results, err := l.query(m)
	if err != nil {
		return nil, err
	}
	keys := make([]K, len(results))
	for i, r := range results {
		keys[i] = r.Key
	}
	return keys, nil
}

// QueryWithSimilarity is Query with the estimated similarities, most similar
// first.
func (l *MinHashLSH[K]) QueryWithSimilarity(m *sketchy.MinHash) ([]Result[K], error) {
	results, err := l.query(m)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(results, func(a, b Result[K]) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	return results, nil
}

func (l *MinHashLSH[K]) query(m *sketchy.MinHash) ([]Result[K], error) {
	if err := l.checkInsert(m); err != nil {
		return nil, err
	}

	var results []Result[K]
	it := l.bands.candidates(m.HashValues()).Iterator()
	for it.HasNext() {
		e := l.entries[it.Next()]
		j, err := m.Jaccard(e.sig)
		if err != nil {
			return nil, err
		}
		if j >= l.threshold {
			results = append(results, Result[K]{Key: e.key, Similarity: j})
		}
	}
	return results, nil
}

// Contains reports whether key is indexed.
func (l *MinHashLSH[K]) Contains(key K) bool {
	_, ok := l.ids[key]
	return ok
}

// Get returns a copy of the signature stored under key.
func (l *MinHashLSH[K]) Get(key K) (*sketchy.MinHash, bool) {
	id, ok := l.ids[key]
	if !ok {
		return nil, false
	}
	return l.entries[id].sig.Clone(), true
}

// Len returns the number of indexed keys.
func (l *MinHashLSH[K]) Len() int { return len(l.ids) }

// Keys returns the indexed keys in insertion order.
func (l *MinHashLSH[K]) Keys() []K {
	keys := make([]K, 0, len(l.entries))
	for _, e := range l.sortedEntries() {
		keys = append(keys, e.key)
	}
	return keys
}

func (l *MinHashLSH[K]) sortedEntries() []*lshEntry[K] {
	ids := make([]uint32, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*lshEntry[K], len(ids))
	for i, id := range ids {
		out[i] = l.entries[id]
	}
	return out
}

// Threshold returns the Jaccard threshold.
func (l *MinHashLSH[K]) Threshold() float64 { return l.threshold }

// NumPerm returns the expected signature length.
func (l *MinHashLSH[K]) NumPerm() int { return l.numPerm }

// Params returns the band count and rows per band.
func (l *MinHashLSH[K]) Params() (b, r int) { return l.bands.b, l.bands.r }

// Stats describes the bucket layout of an index.
type Stats struct {
	Keys          int
	Bands         int
	Rows          int
	Buckets       []int // number of non-empty buckets per band
	LargestBucket uint64
}

// Stats returns the current bucket layout.
func (l *MinHashLSH[K]) Stats() Stats {
	return Stats{
		Keys:          len(l.ids),
		Bands:         l.bands.b,
		Rows:          l.bands.r,
		Buckets:       l.bands.bucketCounts(),
		LargestBucket: l.bands.largestBucket(),
	}
}

// Combine returns an index holding the keys of both operands. When a key is
// in both, other's signature wins. Both indexes must share threshold, num_perm,
// banding and signature seed.
func (l *MinHashLSH[K]) Combine(other *MinHashLSH[K]) (*MinHashLSH[K], error) {
	if l.threshold != other.threshold || l.numPerm != other.numPerm ||
		l.bands.b != other.bands.b || l.bands.r != other.bands.r {
		return nil, fmt.Errorf("%w: lsh (threshold=%v, num_perm=%d, b=%d, r=%d) vs (threshold=%v, num_perm=%d, b=%d, r=%d)",
			sketchy.ErrDimensionMismatch,
			l.threshold, l.numPerm, l.bands.b, l.bands.r,
			other.threshold, other.numPerm, other.bands.b, other.bands.r)
	}
	if l.seeded && other.seeded && l.seed != other.seed {
		return nil, fmt.Errorf("%w: lsh seed %d vs %d", sketchy.ErrDimensionMismatch, l.seed, other.seed)
	}

	out := l.Zero()
	for _, src := range []*MinHashLSH[K]{l, other} {
		for _, e := range src.sortedEntries() {
			out.Remove(e.key)
			out.insertEntry(e)
		}
	}
	return out, nil
}

// insertEntry indexes an entry whose band hashes are already known.
func (l *MinHashLSH[K]) insertEntry(e *lshEntry[K]) {
	if !l.seeded {
		l.seed, l.seeded = e.sig.Seed(), true
	}
	id := l.nextID
	l.nextID++
	l.bands.add(id, e.hashes)
	l.ids[e.key] = id
	l.entries[id] = e
}

// Zero returns an empty index with the same configuration.
func (l *MinHashLSH[K]) Zero() *MinHashLSH[K] {
	return &MinHashLSH[K]{
		threshold: l.threshold,
		numPerm:   l.numPerm,
		bands:     newBandIndex(l.bands.b, l.bands.r),
		ids:       make(map[K]uint32),
		entries:   make(map[uint32]*lshEntry[K]),
		logger:    l.logger,
	}
}

// IsZero reports whether the index is empty.
func (l *MinHashLSH[K]) IsZero() bool { return len(l.ids) == 0 }

// Equal reports whether both indexes share configuration and hold the same
// signature for every key.
func (l *MinHashLSH[K]) Equal(other *MinHashLSH[K]) bool {
	if other == nil || l.threshold != other.threshold || l.numPerm != other.numPerm ||
		l.bands.b != other.bands.b || l.bands.r != other.bands.r || len(l.ids) != len(other.ids) {
		return false
	}
	for key, id := range l.ids {
		oid, ok := other.ids[key]
		if !ok || !l.entries[id].sig.Equal(other.entries[oid].sig) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (l *MinHashLSH[K]) String() string {
	return fmt.Sprintf("MinHashLSH(threshold=%.2f, num_perm=%d, b=%d, r=%d, keys=%d)",
		l.threshold, l.numPerm, l.bands.b, l.bands.r, len(l.ids))
}

// Build indexes every signature of items into a new index.
func Build[K comparable](threshold float64, numPerm int, items map[K]*sketchy.MinHash, optFns ...Option) (*MinHashLSH[K], error) {
	l, err := New[K](threshold, numPerm, optFns...)
	if err != nil {
		return nil, err
	}
	for key, m := range items {
		if err := l.Insert(key, m); err != nil {
			return nil, err
		}
	}
	l.logger.Debug("lsh built", "keys", l.Len(), "bands", l.bands.b, "rows", l.bands.r)
	return l, nil
}
