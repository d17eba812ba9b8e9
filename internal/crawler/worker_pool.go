package crawler

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = errors.New("worker pool closed")

type job func(ctx context.Context)

// WorkerPool runs jobs on a fixed number of goroutines fed by an unbounded
// FIFO queue. Submit never blocks, so a job may enqueue further jobs without
// waiting on other workers.
type WorkerPool struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	closed bool

	group errgroup.Group
}

// NewWorkerPool creates a pool with the given concurrency. Jobs receive a
// context derived from parent; they keep being drained after it is cancelled.
func NewWorkerPool(parent context.Context, concurrency int) (*WorkerPool, error) {
	if concurrency <= 0 {
		return nil, errors.New("worker pool requires positive concurrency")
	}
	ctx, cancel := context.WithCancel(parent)
	pool := &WorkerPool{
		ctx:    ctx,
		cancel: cancel,
	}
	pool.cond = sync.NewCond(&pool.mu)
	pool.start(concurrency)
	return pool, nil
}

func (p *WorkerPool) start(concurrency int) {
	for i := 0; i < concurrency; i++ {
		p.group.Go(func() error {
			for {
				fn, ok := p.next()
				if !ok {
					return nil
				}
				fn(p.ctx)
			}
		})
	}
}

// next blocks until a job is queued or the pool is closed and drained.
func (p *WorkerPool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	fn := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return fn, true
}

// Submit schedules a job.
func (p *WorkerPool) Submit(fn job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.queue = append(p.queue, fn)
	p.cond.Signal()
	return nil
}

// Pending is the number of queued jobs not yet picked up by a worker.
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close rejects new jobs, lets workers drain the queue and waits for them.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	_ = p.group.Wait()
	p.cancel()
}
