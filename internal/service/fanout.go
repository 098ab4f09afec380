package service

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type itemResult[T any] struct {
	value T
	err   error
}

// boundedMap applies fn to every item with at most limit calls in flight.
// Results keep input order. Item errors are returned per item and do not
// stop sibling items.
func boundedMap[In, Out any](ctx context.Context, items []In, limit int, fn func(context.Context, In) (Out, error)) []itemResult[Out] {
	results := make([]itemResult[Out], len(items))
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			v, err := fn(ctx, item)
			results[i] = itemResult[Out]{value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
