package worker_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hostfleet/fleetnet/internal/worker"
)

func TestPool_RunAll_RunsEveryTask(t *testing.T) {
	pool := worker.New(2)

	var count int32
	tasks := make([]func(), 10)
	for i := range tasks {
		tasks[i] = func() { atomic.AddInt32(&count, 1) }
	}

	pool.RunAll(tasks)
	assert.Equal(t, int32(10), count)
}

func TestRunAllCtx_PropagatesFirstError(t *testing.T) {
	tasks := []func(context.Context) error{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return fmt.Errorf("boom") },
	}

	err := worker.RunAllCtx(context.Background(), 2, tasks)
	assert.Error(t, err)
}
