package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is used when a caller passes a non-positive concurrency.
const DefaultConcurrency = 8

// ForEach calls fn for every index in [0, n) on at most concurrency
// goroutines. The first error cancels the context handed to the remaining
// calls and is returned once all started calls have finished. Callers that
// need ordered output write into slot i of a pre-sized slice.
func ForEach(ctx context.Context, n int, concurrency int, fn func(ctx context.Context, i int) error) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := 0; i < n; i++ {
		idx := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, idx)
		})
	}

	return g.Wait()
}
