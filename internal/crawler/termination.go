package crawler

import (
	"context"
	"sync"
	"sync/atomic"
)

// Termination counts outstanding tasks and signals once when the count drops
// to zero. The count starts at one for the seed task.
//
// Every Add must happen inside a task that has not yet called Done, so the
// count can only reach zero when no task is left that could add more work.
type Termination struct {
	outstanding atomic.Int64
	done        chan struct{}
	once        sync.Once
}

// NewTermination returns a detector holding the seed task.
func NewTermination() *Termination {
	t := &Termination{done: make(chan struct{})}
	t.outstanding.Store(1)
	return t
}

// Add registers one more dispatched task.
func (t *Termination) Add() {
	if t.outstanding.Add(1) <= 1 {
		panic("crawler: task added after crawl reached quiescence")
	}
}

// Done marks one task finished and reports whether it was the last one.
func (t *Termination) Done() bool {
	return t.Release() == 0
}

// Release marks one task finished and returns how many remain.
func (t *Termination) Release() int64 {
	n := t.outstanding.Add(-1)
	switch {
	case n < 0:
		panic("crawler: more tasks finished than were dispatched")
	case n == 0:
		t.once.Do(func() { close(t.done) })
	}
	return n
}

// Outstanding is the number of dispatched but unfinished tasks.
func (t *Termination) Outstanding() int64 {
	return t.outstanding.Load()
}

// Wait is closed once the crawl has gone quiet.
func (t *Termination) Wait() <-chan struct{} {
	return t.done
}

// Finished reports whether the crawl has gone quiet.
func (t *Termination) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Await blocks until the crawl goes quiet or ctx ends.
func (t *Termination) Await(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
