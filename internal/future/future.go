// Package future provides the asynchronous half of the resolver contract: a
// resolver may return either a plain value or a *Future, and the executor
// lifts both into the same shape before completing the field.
//
// A Future is a one-shot completion cell. It is resolved exactly once, either
// at construction (Ready, Fail), by the goroutine started by Go, or by the
// first call of the resolve function returned by New, and it can be awaited
// any number of times afterwards.
package future

import (
	"context"
	"sync"
)

// Future is a value that may not have finished computing yet.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

// New returns an unresolved Future together with its resolve function.
// Only the first call of the resolve function takes effect; later calls are
// ignored.
func New() (*Future, func(val any, err error)) {
	f := &Future{done: make(chan struct{})}
	var once sync.Once
	resolve := func(val any, err error) {
		once.Do(func() {
			f.val, f.err = val, err
			close(f.done)
		})
	}
	return f, resolve
}

// Ready returns a Future already resolved with val.
func Ready(val any) *Future {
	f, resolve := New()
	resolve(val, nil)
	return f
}

// Fail returns a Future already resolved with err.
func Fail(err error) *Future {
	f, resolve := New()
	resolve(nil, err)
	return f
}

// Go runs fn on its own goroutine and returns a Future resolved with its
// outcome.
func Go(fn func() (any, error)) *Future {
	f, resolve := New()
	go func() {
		resolve(fn())
	}()
	return f
}

// Await blocks until the future resolves or ctx is done, whichever comes
// first. A context error does not resolve the future; the computation keeps
// running and its result is discarded.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Join awaits all futures in order and collects their values. The first error
// encountered is returned alongside the values gathered so far.
func Join(ctx context.Context, fs ...*Future) ([]any, error) {
	vals := make([]any, 0, len(fs))
	for _, f := range fs {
		v, err := f.Await(ctx)
		if err != nil {
			return vals, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}
