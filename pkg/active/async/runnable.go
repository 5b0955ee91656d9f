package async

import (
	"time"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
)

// Runnable binds a function, its argument and the Result it reports to.
// It satisfies thread.Runnable and is what a Method hands to its Starter.
type Runnable[A, R any] struct {
	fn      func(A) (R, error)
	arg     A
	result  *Result[R]
	metrics *methodMetrics
}

// NewRunnable returns a runnable that calls fn(arg) and reports to result.
func NewRunnable[A, R any](fn func(A) (R, error), arg A, result *Result[R]) *Runnable[A, R] {
	return &Runnable[A, R]{fn: fn, arg: arg, result: result}
}

// Result returns the result the runnable reports to.
func (r *Runnable[A, R]) Result() *Result[R] {
	return r.result
}

// Run calls the function. A returned error or a panic is stored on the
// result; the result is notified in every case.
func (r *Runnable[A, R]) Run() {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.result.SetError(gferrors.NewPanicError(p))
		}
		r.metrics.observe(time.Since(start), r.result.Failed())
		r.result.Notify()
	}()

	v, err := r.fn(r.arg)
	if err != nil {
		r.result.SetError(err)
		return
	}
	r.result.SetData(v)
}

// Cancel fails the result with err without calling the function.
func (r *Runnable[A, R]) Cancel(err error) {
	r.result.SetError(err)
	r.result.Notify()
}
