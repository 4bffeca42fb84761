package stage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-simjudge/pkg/activity"
)

// DefaultConcurrency bounds per-case provider calls when no limit is configured.
const DefaultConcurrency = 5

// FanOut applies fn to every item with at most limit calls in flight and
// returns the results in input order. fn reports per-item failures inside
// its result; FanOut itself only fails when ctx ends before every item ran,
// so a caller never persists a partial batch.
func FanOut[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, i int, item T) R) ([]R, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	out := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			activity.RecordHeartbeat(gctx, fmt.Sprintf("case %d/%d", i+1, len(items)))
			out[i] = fn(gctx, i, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A cancellation that landed after the last item started still leaves
	// results built from aborted calls.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
