// Package parallel maps pure per-element functions over a batch.
package parallel

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ElementError identifies the batch element and stage that failed.
type ElementError struct {
	Index int
	Stage string
	Err   error
}

func (e *ElementError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("element %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("element %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

// Fail builds an ElementError for use inside Map callbacks.
func Fail(index int, stage string, err error) error {
	return &ElementError{Index: index, Stage: stage, Err: err}
}

// Map evaluates fn for every index in [0, n) with at most limit calls in
// flight and returns the results in index order. limit <= 0 uses
// GOMAXPROCS. The first error cancels the remaining work; errors that are
// not already an *ElementError are wrapped with their index.
func Map[R any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) (R, error)) ([]R, error) {
	out := make([]R, n)
	if n == 0 {
		return out, nil
	}
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := fn(gctx, i)
			if err != nil {
				if _, ok := err.(*ElementError); ok {
					return err
				}
				return &ElementError{Index: i, Err: err}
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// For runs fn over [0, n) split into contiguous chunks of at least
// minChunk indices.
func For(n, minChunk int, fn func(start, end int)) {
	workers := runtime.GOMAXPROCS(0)
	if minChunk < 1 {
		minChunk = 1
	}
	if n <= minChunk || workers <= 1 {
		fn(0, n)
		return
	}
	if n/minChunk < workers {
		workers = n / minChunk
	}
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	_ = g.Wait()
}
