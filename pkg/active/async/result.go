package async

import (
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/gofun/pkg/threading/event"
)

// Result is the future of an asynchronous call. The executing side calls
// SetData or SetError once and then Notify; any number of goroutines may
// wait on it.
type Result[T any] struct {
	done *event.Event

	mu       sync.Mutex
	data     T
	err      error
	notified bool
}

// NewResult returns a pending result.
func NewResult[T any]() *Result[T] {
	return &Result[T]{done: event.New(event.ManualReset)}
}

// Wait blocks until the result is available.
func (r *Result[T]) Wait() {
	r.done.Wait()
}

// WaitTimeout waits at most d and returns errors.ErrTimeout if the result
// is still pending.
func (r *Result[T]) WaitTimeout(d time.Duration) error {
	return r.done.WaitTimeout(d)
}

// TryWait waits at most d and reports whether the result is available.
func (r *Result[T]) TryWait(d time.Duration) bool {
	return r.done.TryWait(d)
}

// WaitContext waits until the result is available or ctx is done.
func (r *Result[T]) WaitContext(ctx context.Context) error {
	return r.done.WaitContext(ctx)
}

// Available reports whether Notify has been called.
func (r *Result[T]) Available() bool {
	return r.done.IsSet()
}

// Data returns the value set by SetData. It is only meaningful once the
// result is available and did not fail.
func (r *Result[T]) Data() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Error returns the error set by SetError.
func (r *Result[T]) Error() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Failed reports whether an error was set.
func (r *Result[T]) Failed() bool {
	return r.Error() != nil
}

// Get waits for the result and returns its value and error.
func (r *Result[T]) Get() (T, error) {
	r.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data, r.err
}

// GetContext is Get bounded by ctx.
func (r *Result[T]) GetContext(ctx context.Context) (T, error) {
	if err := r.WaitContext(ctx); err != nil {
		var zero T
		return zero, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data, r.err
}

// SetData stores the value of a successful call.
func (r *Result[T]) SetData(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBePending()
	r.data = v
}

// SetError stores the failure of a call.
func (r *Result[T]) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBePending()
	r.err = err
}

// Notify marks the result available and releases all waiters. Calling it
// twice panics.
func (r *Result[T]) Notify() {
	r.mu.Lock()
	r.mustBePending()
	r.notified = true
	r.mu.Unlock()
	r.done.Set()
}

func (r *Result[T]) mustBePending() {
	if r.notified {
		panic("async: result already notified")
	}
}
