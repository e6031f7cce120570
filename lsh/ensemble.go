package lsh

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/jcalabro/sketchy"
	"golang.org/x/sync/errgroup"
)

type ensembleEntry[K comparable] struct {
	key    K
	sig    *sketchy.MinHash
	values []uint32
	size   int
}

type partition struct {
	lower, upper float64 // lower <= size < upper
	bands        *bandIndex
	ids          []uint32
}

// Partition describes one size partition of an indexed Ensemble.
type Partition struct {
	Lower float64
	Upper float64 // +Inf for the last partition
	Keys  int
	Bands int
	Rows  int
}

// Ensemble answers containment queries: which stored sets X contain at least
// a threshold fraction of the query set Q, |Q ∩ X| / |Q| >= threshold. Sets
// are partitioned by size, and each partition is banded with parameters
// tuned to its sizes.
//
// Like [Forest], an Ensemble is built in two phases and is read-only once
// indexed.
type Ensemble[K comparable] struct {
	threshold  float64
	numPerm    int
	numPart    int
	entries    []ensembleEntry[K]
	ids        map[K]uint32
	partitions []partition
	indexed    bool

	logger *slog.Logger
}

// NewEnsemble creates an empty ensemble with numPart size partitions.
func NewEnsemble[K comparable](threshold float64, numPerm, numPart int, optFns ...Option) (*Ensemble[K], error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	if err := checkNumPerm(numPerm); err != nil {
		return nil, err
	}
	if numPart < 1 {
		return nil, fmt.Errorf("%w: num_part must be at least 1, got %d", sketchy.ErrConfiguration, numPart)
	}
	o := buildOptions(optFns)
	return &Ensemble[K]{
		threshold: threshold,
		numPerm:   numPerm,
		numPart:   numPart,
		ids:       make(map[K]uint32),
		logger:    o.Logger,
	}, nil
}

// Insert adds m, the signature of a set with size elements, under key.
func (e *Ensemble[K]) Insert(key K, m *sketchy.MinHash, size int) error {
	if e.indexed {
		return fmt.Errorf("%w: ensemble is indexed, call Clear before inserting", sketchy.ErrState)
	}
	if err := checkSignature(m, e.numPerm); err != nil {
		return err
	}
	if size < 1 {
		return fmt.Errorf("%w: set size must be at least 1, got %d", sketchy.ErrInvalidArgument, size)
	}
	if len(e.entries) > 0 && e.entries[0].sig.Seed() != m.Seed() {
		return fmt.Errorf("%w: minhash seed %d, ensemble holds seed %d",
			sketchy.ErrDimensionMismatch, m.Seed(), e.entries[0].sig.Seed())
	}
	if _, ok := e.ids[key]; ok {
		return fmt.Errorf("%w: key %v already inserted", sketchy.ErrKeyConflict, key)
	}

	e.ids[key] = uint32(len(e.entries))
	e.entries = append(e.entries, ensembleEntry[K]{key: key, sig: m.Clone(), values: m.HashValues(), size: size})
	return nil
}

// Index partitions the inserted sets by size and builds each partition's
// bands. Calling it again is a no-op.
func (e *Ensemble[K]) Index() error {
	return e.IndexContext(context.Background())
}

// IndexContext is Index with cancellation. Partitions are built concurrently.
func (e *Ensemble[K]) IndexContext(ctx context.Context) error {
	if e.indexed {
		return nil
	}

	parts := e.layout()
	g, ctx := errgroup.WithContext(ctx)
	for i := range parts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := &parts[i]
			for _, id := range p.ids {
				p.bands.add(id, p.bands.bandHashes(e.entries[id].values))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.partitions = parts
	e.indexed = true
	for _, p := range parts {
		e.logger.Debug("ensemble partition",
			"lower", p.lower, "upper", p.upper, "keys", len(p.ids), "b", p.bands.b, "r", p.bands.r)
	}
	return nil
}

// layout sorts ids by size and cuts them into partitions of roughly equal
// count. Partition bounds are the sizes found at each cut, so sets of equal
// size always share a partition.
func (e *Ensemble[K]) layout() []partition {
	if len(e.entries) == 0 {
		return nil
	}

	order := make([]uint32, len(e.entries))
	for i := range order {
		order[i] = uint32(i)
	}
	slices.SortStableFunc(order, func(a, b uint32) int {
		return cmp.Compare(e.entries[a].size, e.entries[b].size)
	})

	step := max(1, len(order)/e.numPart)
	var bounds []float64
	for i := range e.numPart {
		start := i * step
		if start >= len(order) {
			break
		}
		bounds = append(bounds, float64(e.entries[order[start]].size))
	}
	bounds = append(bounds, math.Inf(1))

	var parts []partition
	for i := range len(bounds) - 1 {
		p := partition{lower: bounds[i], upper: bounds[i+1]}
		var sizeSum, largest int
		for _, id := range order {
			s := float64(e.entries[id].size)
			if s >= p.lower && s < p.upper {
				p.ids = append(p.ids, id)
				sizeSum += e.entries[id].size
				largest = max(largest, e.entries[id].size)
			}
		}
		if len(p.ids) == 0 {
			continue
		}
		avg := float64(sizeSum) / float64(len(p.ids))
		b, r := OptimalParams(jaccardThreshold(e.threshold, avg, float64(largest)), e.numPerm)
		p.bands = newBandIndex(b, r)
		parts = append(parts, p)
	}
	return parts
}

// jaccardThreshold converts a containment threshold t for a query of size q
// against sets of up to size x into the Jaccard similarity such a pair must
// reach: t*q / (q + x - t*q).
func jaccardThreshold(t, q, x float64) float64 {
	j := t * q / (q + x - t*q)
	return min(max(j, 1e-6), 1)
}

// Query returns the keys whose sets contain at least the threshold fraction
// of the query set. m is the query signature and size the query set's size.
func (e *Ensemble[K]) Query(m *sketchy.MinHash, size int) ([]K, error) {
	results, err := e.query(m, size)
	if err != nil {
		return nil, err
	}
	keys := make([]K, len(results))
	for i, r := range results {
		keys[i] = r.Key
	}
	return keys, nil
}

// QueryWithContainment is Query with the estimated containments, highest
// first.
func (e *Ensemble[K]) QueryWithContainment(m *sketchy.MinHash, size int) ([]Result[K], error) {
	results, err := e.query(m, size)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(results, func(a, b Result[K]) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	return results, nil
}

func (e *Ensemble[K]) query(m *sketchy.MinHash, size int) ([]Result[K], error) {
	if !e.indexed {
		return nil, fmt.Errorf("%w: ensemble is not indexed, call Index first", sketchy.ErrState)
	}
	if len(e.entries) == 0 {
		return nil, fmt.Errorf("%w: ensemble is empty", sketchy.ErrState)
	}
	if err := checkSignature(m, e.numPerm); err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, fmt.Errorf("%w: query size must be at least 1, got %d", sketchy.ErrInvalidArgument, size)
	}

	values := m.HashValues()
	minSize := e.threshold * float64(size)

	var results []Result[K]
	for _, p := range e.partitions {
		// Sets smaller than t*|Q| cannot contain t*|Q| elements of Q.
		if p.upper < minSize {
			continue
		}
		it := p.bands.candidates(values).Iterator()
		for it.HasNext() {
			entry := e.entries[it.Next()]
			j, err := m.Jaccard(entry.sig)
			if err != nil {
				return nil, err
			}
			if c := containment(j, float64(size), float64(entry.size)); c >= e.threshold {
				results = append(results, Result[K]{Key: entry.key, Similarity: c})
			}
		}
	}
	return results, nil
}

// containment estimates |Q ∩ X| / |Q| from the Jaccard estimate j and the
// set sizes, using |Q ∩ X| = j(|Q| + |X|) / (1 + j).
func containment(j, q, x float64) float64 {
	return min(1, j*(q+x)/((1+j)*q))
}

// Partitions describes the size partitions of an indexed ensemble.
func (e *Ensemble[K]) Partitions() []Partition {
	out := make([]Partition, len(e.partitions))
	for i, p := range e.partitions {
		out[i] = Partition{Lower: p.lower, Upper: p.upper, Keys: len(p.ids), Bands: p.bands.b, Rows: p.bands.r}
	}
	return out
}

// Clear removes every key and the index, returning the ensemble to the
// insert phase.
func (e *Ensemble[K]) Clear() {
	e.entries = nil
	e.ids = make(map[K]uint32)
	e.partitions = nil
	e.indexed = false
}

// IsIndexed reports whether Index has run since the last Clear.
func (e *Ensemble[K]) IsIndexed() bool { return e.indexed }

// Len returns the number of inserted keys.
func (e *Ensemble[K]) Len() int { return len(e.entries) }

// String implements fmt.Stringer.
func (e *Ensemble[K]) String() string {
	status := "not indexed"
	if e.indexed {
		status = "indexed"
	}
	return fmt.Sprintf("Ensemble(threshold=%.2f, num_perm=%d, partitions=%d, keys=%d, %s)",
		e.threshold, e.numPerm, len(e.partitions), len(e.entries), status)
}
