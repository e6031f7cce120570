package hnsw

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jcalabro/sketchy"
	"golang.org/x/sync/errgroup"
)

// Federated searches several independently built graphs as one. Each graph
// is queried concurrently and the hits are merged by distance. A key present
// in more than one graph is reported once, at its smallest distance.
//
// The graphs must not be inserted into while a federated search runs.
type Federated[K comparable, V any] struct {
	graphs []*HNSW[K, V]
}

// NewFederated groups graphs for federated search.
func NewFederated[K comparable, V any](graphs ...*HNSW[K, V]) (*Federated[K, V], error) {
	if len(graphs) == 0 {
		return nil, fmt.Errorf("%w: federated search needs at least one graph", sketchy.ErrConfiguration)
	}
	for i, g := range graphs {
		if g == nil {
			return nil, fmt.Errorf("%w: graph %d is nil", sketchy.ErrConfiguration, i)
		}
	}
	return &Federated[K, V]{graphs: slices.Clone(graphs)}, nil
}

// Search returns the k nearest keys across every graph, nearest first.
// Empty graphs are skipped; if every graph is empty it fails with
// [sketchy.ErrState].
func (f *Federated[K, V]) Search(ctx context.Context, vector V, k int) ([]Result[K], error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", sketchy.ErrInvalidArgument, k)
	}

	perGraph := make([][]Result[K], len(f.graphs))
	g, ctx := errgroup.WithContext(ctx)
	for i, graph := range f.graphs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := graph.SearchWithDistances(vector, k)
			if errors.Is(err, sketchy.ErrState) {
				return nil
			}
			perGraph[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		merged   []Result[K]
		nonEmpty bool
	)
	for i, res := range perGraph {
		if f.graphs[i].Len() > 0 {
			nonEmpty = true
		}
		merged = append(merged, res...)
	}
	if !nonEmpty {
		return nil, fmt.Errorf("%w: every graph is empty", sketchy.ErrState)
	}

	slices.SortStableFunc(merged, func(a, b Result[K]) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	seen := make(map[K]struct{}, len(merged))
	out := merged[:0]
	for _, r := range merged {
		if _, dup := seen[r.Key]; dup {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Len returns the total number of vectors across the graphs, counting a key
// once per graph holding it.
func (f *Federated[K, V]) Len() int {
	var n int
	for _, g := range f.graphs {
		n += g.Len()
	}
	return n
}
