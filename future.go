package memcached

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Future resolves exactly once, per spec.md §8 invariant P1 ("every
// submitted command's future is eventually completed"). Completion
// callbacks attached via Then run on whichever goroutine calls the
// completion function — the connection's read loop for a normal
// response, or the goroutine that detects a terminal failure — per
// spec.md §5: "completion callbacks... run on the I/O task unless the
// caller explicitly reschedules."
type Future[T any] struct {
	mu   sync.Mutex
	done chan struct{}
	value T
	err  error
	cb   func(T, error)
}

func newFuture[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.complete
}

func (f *Future[T]) complete(v T, err error) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return // already resolved; spec.md §8 P1 holds exactly one completion
	default:
	}

	f.value, f.err = v, err
	cb := f.cb
	close(f.done)
	f.mu.Unlock()

	if cb != nil {
		cb(v, err)
	}
}

// Await blocks until the Future resolves or ctx is done, whichever
// comes first. Cancelling ctx does not affect the underlying command;
// the response (or failure), once it arrives, is simply no longer
// observed by this call.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrap(ctx.Err(), "await")
	}
}

// Then registers a callback to run on completion. If the Future has
// already resolved, cb runs synchronously on the calling goroutine.
func (f *Future[T]) Then(cb func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		v, err := f.value, f.err
		f.mu.Unlock()
		cb(v, err)
		return
	default:
	}

	f.cb = cb
	f.mu.Unlock()
}
