// Package async turns function calls into work executed on another thread.
//
// A Method wraps a function. Each Call returns a Result immediately and
// hands a Runnable to the method's Starter: by default the process-wide
// thread pool, or a dispatcher.Dispatcher to serialize every call of one
// active object on a single thread.
package async

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/gofun/pkg/metrics"
)

// MethodOption configures a Method.
type MethodOption func(*methodOptions)

type methodOptions struct {
	name    string
	starter Starter
	reg     *metrics.Registry
}

// WithStarter selects how calls are scheduled.
func WithStarter(s Starter) MethodOption {
	return func(o *methodOptions) { o.starter = s }
}

// WithName labels the method's metrics.
func WithName(name string) MethodOption {
	return func(o *methodOptions) { o.name = name }
}

// WithMetrics enables call metrics on reg.
func WithMetrics(reg *metrics.Registry) MethodOption {
	return func(o *methodOptions) { o.reg = reg }
}

// Method is an asynchronously callable function of one argument.
type Method[A, R any] struct {
	fn      func(A) (R, error)
	starter Starter
	metrics *methodMetrics
}

// NewMethod wraps fn. Bind the owning object with a method value, e.g.
// NewMethod(obj.Compute). It panics if fn is nil.
func NewMethod[A, R any](fn func(A) (R, error), opts ...MethodOption) *Method[A, R] {
	if fn == nil {
		panic("async: nil method")
	}
	o := methodOptions{name: "anonymous"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.starter == nil {
		o.starter = PoolStarter{}
	}
	return &Method[A, R]{
		fn:      fn,
		starter: o.starter,
		metrics: newMethodMetrics(o.reg, o.name),
	}
}

// Call schedules fn(arg) and returns its pending result. If the starter
// rejects the call, the error is returned and nothing runs.
func (m *Method[A, R]) Call(arg A) (*Result[R], error) {
	result := NewResult[R]()
	r := NewRunnable(m.fn, arg, result)
	r.metrics = m.metrics

	if err := m.starter.Start(r); err != nil {
		return nil, err
	}
	m.metrics.called()
	return result, nil
}

type methodMetrics struct {
	calls    prometheus.Counter
	failures prometheus.Counter
	duration prometheus.Observer
}

func newMethodMetrics(reg *metrics.Registry, name string) *methodMetrics {
	if reg == nil {
		return nil
	}
	return &methodMetrics{
		calls:    reg.AsyncCalls.WithLabelValues(name),
		failures: reg.AsyncFailures.WithLabelValues(name),
		duration: reg.AsyncDuration.WithLabelValues(name),
	}
}

func (m *methodMetrics) called() {
	if m == nil {
		return
	}
	m.calls.Inc()
}

func (m *methodMetrics) observe(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
	if failed {
		m.failures.Inc()
	}
}
