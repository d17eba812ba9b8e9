package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRejectsInvalidConcurrency(t *testing.T) {
	t.Parallel()

	_, err := NewWorkerPool(context.Background(), 0)
	require.Error(t, err)
}

func TestWorkerPoolRunsJobsAndNestedSubmits(t *testing.T) {
	t.Parallel()

	pool, err := NewWorkerPool(context.Background(), 2)
	require.NoError(t, err)

	var ran atomic.Int32
	var wg sync.WaitGroup

	// Each job fans out far beyond the worker count; Submit must not block.
	var fanOut func(depth int) job
	fanOut = func(depth int) job {
		return func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
			if depth == 0 {
				return
			}
			for i := 0; i < 10; i++ {
				wg.Add(1)
				assert.NoError(t, pool.Submit(fanOut(depth-1)))
			}
		}
	}
	wg.Add(1)
	require.NoError(t, pool.Submit(fanOut(2)))
	wg.Wait()
	pool.Close()

	assert.EqualValues(t, 1+10+100, ran.Load())
	assert.ErrorIs(t, pool.Submit(func(context.Context) {}), ErrPoolClosed)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 3
	pool, err := NewWorkerPool(context.Background(), workers)
	require.NoError(t, err)

	var current, peak atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(func(context.Context) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}))
	}
	pool.Close()

	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.Zero(t, pool.Pending())
}

func TestWorkerPoolDrainsAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	pool, err := NewWorkerPool(ctx, 1)
	require.NoError(t, err)

	gate := make(chan struct{})
	require.NoError(t, pool.Submit(func(context.Context) { <-gate }))

	var cancelled atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) {
			if ctx.Err() != nil {
				cancelled.Add(1)
			}
		}))
	}
	cancel()
	close(gate)
	pool.Close()

	assert.EqualValues(t, 5, cancelled.Load())
}
