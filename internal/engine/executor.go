package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Executor runs CPU-bound work on a bounded set of worker goroutines, away
// from the goroutines that accept requests.
type Executor struct {
	sem  *semaphore.Weighted
	size int
}

// NewExecutor creates an executor running at most size jobs at once.
func NewExecutor(size int) *Executor {
	if size < 1 {
		size = 1
	}
	return &Executor{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of workers.
func (x *Executor) Size() int {
	return x.size
}

// Go starts fn as soon as a worker is free. The returned channel is closed
// when fn returns. An error means fn was never started.
func (x *Executor) Go(ctx context.Context, fn func()) (<-chan struct{}, error) {
	if err := x.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for worker: %w", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer x.sem.Release(1)
		fn()
	}()
	return done, nil
}

// Do runs fn on a worker and waits for it. When ctx ends first Do returns
// ctx.Err() and fn keeps running to completion on its worker.
func (x *Executor) Do(ctx context.Context, fn func()) error {
	done, err := x.Go(ctx, fn)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
