// Package taskrunner runs CPU-bound or blocking work for endpoints on a
// bounded set of goroutines, so exchanges waiting on it only hold a cheap
// Future.
package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("taskrunner: runner closed")

// Task is a unit of work with its arguments.
type Task func(ctx context.Context, args ...any) (any, error)

// Runner executes tasks with at most size running at once.
type Runner struct {
	sem    *semaphore.Weighted
	size   int64
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Runner. A non-positive size selects GOMAXPROCS.
func New(size int, logger *slog.Logger) *Runner {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sem: semaphore.NewWeighted(int64(size)), size: int64(size), logger: logger}
}

// Size returns the maximum number of concurrently running tasks.
func (r *Runner) Size() int { return int(r.size) }

// Submit schedules fn(ctx, args...) and returns immediately. The task waits
// for a free slot; if ctx ends first the Future resolves with ctx's error.
// A panicking task resolves its Future with an error.
func (r *Runner) Submit(ctx context.Context, fn Task, args ...any) *Future {
	f := newFuture()

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		f.resolve(nil, ErrClosed)
		return f
	}
	r.wg.Add(1)
	r.mu.RUnlock()

	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(ctx, 1); err != nil {
			f.resolve(nil, err)
			return
		}
		defer r.sem.Release(1)
		f.resolve(r.run(ctx, fn, args))
	}()
	return f
}

func (r *Runner) run(ctx context.Context, fn Task, args []any) (val any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("task panicked", "panic", p, "stack", string(debug.Stack()))
			val, err = nil, fmt.Errorf("taskrunner: task panicked: %v", p)
		}
	}()
	return fn(ctx, args...)
}

// Close stops accepting work and waits for submitted tasks to finish or
// ctx to end.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run submits fn to r and awaits its typed result.
func Run[T any](ctx context.Context, r *Runner, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := r.Submit(ctx, func(ctx context.Context, _ ...any) (any, error) {
		return fn(ctx)
	}).Await(ctx)
	if err != nil {
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

type contextKey struct{}

// WithRunner stores r in ctx for endpoints to find.
func WithRunner(ctx context.Context, r *Runner) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext returns the runner stored in ctx, or nil.
func FromContext(ctx context.Context) *Runner {
	r, _ := ctx.Value(contextKey{}).(*Runner)
	return r
}
