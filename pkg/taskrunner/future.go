package taskrunner

import (
	"context"
	"sync"
)

// Future is the pending result of a submitted task.
type Future struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(val any, err error) {
	f.once.Do(func() {
		f.val, f.err = val, err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the task finished or ctx ends. Ending ctx does not stop
// the task; cancel the context passed to Submit for that.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
