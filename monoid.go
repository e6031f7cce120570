package sketchy

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Monoid is implemented by values that merge associatively with an identity
// element. Combine never mutates its operands and fails with
// [ErrDimensionMismatch] when the two values are configured differently.
type Monoid[T any] interface {
	Combine(other T) (T, error)
	Zero() T
}

// Sum folds items left to right with Combine.
func Sum[T Monoid[T]](items ...T) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, fmt.Errorf("%w: nothing to sum", ErrInvalidArgument)
	}

	acc := items[0]
	for _, item := range items[1:] {
		next, err := acc.Combine(item)
		if err != nil {
			return zero, err
		}
		acc = next
	}
	return acc, nil
}

// ReduceParallel merges items with a pairwise tree reduction, combining the
// pairs of each round concurrently. This is the reduce barrier for the
// one-sketch-per-producer pattern. The result equals Sum(items...) for any
// associative Combine.
func ReduceParallel[T Monoid[T]](ctx context.Context, items []T) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, fmt.Errorf("%w: nothing to reduce", ErrInvalidArgument)
	}

	level := append([]T(nil), items...)
	for len(level) > 1 {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		next := make([]T, (len(level)+1)/2)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i+1 < len(level); i += 2 {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				merged, err := level[i].Combine(level[i+1])
				if err != nil {
					return err
				}
				next[i/2] = merged
				return nil
			})
		}
		if len(level)%2 == 1 {
			next[len(next)-1] = level[len(level)-1]
		}
		if err := g.Wait(); err != nil {
			return zero, err
		}
		level = next
	}
	return level[0], nil
}
