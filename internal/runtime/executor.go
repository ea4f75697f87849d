package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrExecutorClosed = errors.New("runtime: executor closed")

// Executor runs jobs one at a time on a dedicated goroutine. Every call
// that waits on the engine goes through Submit, so calls sharing a session
// interleave at job boundaries.
type Executor struct {
	jobs      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewExecutor() *Executor {
	e := &Executor{
		jobs: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		select {
		case job := <-e.jobs:
			job()
		case <-e.quit:
			return
		}
	}
}

// Close stops the goroutine once the running job, if any, finishes. Jobs
// submitted afterwards fail with ErrExecutorClosed.
func (e *Executor) Close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
}

type result[T any] struct {
	val T
	err error
}

// Submit runs fn on e and blocks until it returns. A panic in fn is
// returned as an error.
func Submit[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	out := make(chan result[T], 1)
	job := func() {
		defer func() {
			if rec := recover(); rec != nil {
				out <- result[T]{err: fmt.Errorf("panic in executor job: %v", rec)}
			}
		}()
		v, err := fn(ctx)
		out <- result[T]{val: v, err: err}
	}

	select {
	case e.jobs <- job:
	case <-e.quit:
		return zero, ErrExecutorClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	r := <-out
	return r.val, r.err
}
