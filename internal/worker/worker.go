// Package worker provides a bounded fan-out pool replacing the
// cooperative green_pool.spawn_n/waitall pattern of spec.md §9: "model as
// a bounded worker pool that accepts tasks and exposes join(); no
// language-level coroutines are required". Built on
// golang.org/x/sync/errgroup.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool bounds the number of concurrently-running tasks submitted via
// RunAll.
type Pool struct {
	limit int
}

// New returns a Pool that runs at most limit tasks concurrently. limit<=0
// means unbounded.
func New(limit int) *Pool {
	return &Pool{limit: limit}
}

// RunAll runs every task in tasks, waiting for all to complete before
// returning (spec.md §4.3 step 3: "Allocations execute in parallel; the
// call returns only after all complete"). Tasks are expected to record
// their own errors via captured closures; RunAll itself never fails.
func (p *Pool) RunAll(tasks []func()) {
	var g errgroup.Group

	if p.limit > 0 {
		g.SetLimit(p.limit)
	}

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			task()
			return nil
		})
	}

	_ = g.Wait()
}

// RunAllCtx is RunAll's context-aware, error-propagating variant for
// callers whose tasks return their own error rather than capturing it
// into a slice.
func RunAllCtx(ctx context.Context, limit int, tasks []func(ctx context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)

	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, task := range tasks {
		task := task
		g.Go(func() error { return task(ctx) })
	}

	return g.Wait()
}
