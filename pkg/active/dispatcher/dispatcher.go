// Package dispatcher runs runnables one at a time, in submission order, on
// a single dedicated thread.
//
// A Dispatcher is an async.Starter: giving it to every Method of an object
// makes that object an active object whose methods never run concurrently
// with each other.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification/queue"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
)

// canceler is implemented by runnables that can fail their result without
// running, such as async.Runnable.
type canceler interface {
	Cancel(err error)
}

type work struct {
	r thread.Runnable
}

func (*work) Name() string { return "dispatcher.work" }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithName names the dispatcher thread and labels metrics.
func WithName(name string) Option {
	return func(d *Dispatcher) { d.name = name }
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics enables metrics on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(d *Dispatcher) { d.reg = reg }
}

// Dispatcher owns one thread draining a FIFO queue of runnables.
type Dispatcher struct {
	name   string
	logger *slog.Logger
	reg    *metrics.Registry

	pending  prometheus.Gauge
	executed prometheus.Counter

	queue  *queue.Queue
	thread *thread.Thread

	// done ends the run loop; cancelled by Stop.
	done   context.Context
	finish context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

// New creates a dispatcher and starts its thread.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{name: "dispatcher"}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("dispatcher", d.name)
	if d.reg != nil {
		d.pending = d.reg.DispatcherPending.WithLabelValues(d.name)
		d.executed = d.reg.DispatcherExecuted.WithLabelValues(d.name)
	}

	d.queue = queue.New(queue.WithName(d.name), queue.WithMetrics(d.reg))
	d.done, d.finish = context.WithCancel(context.Background())
	d.thread = thread.New(thread.WithName(d.name))
	if err := d.thread.Start(thread.RunnableFunc(d.run)); err != nil {
		return nil, err
	}
	d.logger.Debug("dispatcher started")
	return d, nil
}

// Start queues r behind every runnable already submitted. It returns
// errors.ErrClosed once the dispatcher is stopped.
func (d *Dispatcher) Start(r thread.Runnable) error {
	if r == nil {
		panic("dispatcher: nil runnable")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return gferrors.NewOperationError("dispatcher", "Start", gferrors.ErrClosed).WithContext("dispatcher=" + d.name)
	}
	d.queue.Enqueue(&work{r: r})
	d.updatePending()
	return nil
}

// Pending returns the number of runnables waiting to run.
func (d *Dispatcher) Pending() int {
	return d.queue.Size()
}

// Cancel drops every runnable that has not started yet. Runnables that can
// be cancelled, such as async.Runnable, fail with errors.ErrCancelled so
// their waiters are released. The runnable currently executing, if any,
// is not affected.
func (d *Dispatcher) Cancel() {
	dropped := 0
	for n := d.queue.Dequeue(); n != nil; n = d.queue.Dequeue() {
		w, ok := n.(*work)
		if !ok {
			continue
		}
		dropped++
		if c, ok := w.r.(canceler); ok {
			c.Cancel(gferrors.ErrCancelled)
		}
	}
	d.updatePending()
	if dropped > 0 {
		d.logger.Debug("cancelled pending runnables", "count", dropped)
	}
}

// Stop cancels pending runnables, waits for the running one to return and
// stops the thread. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.finish()
	d.Cancel()
	d.thread.Join()
	d.logger.Debug("dispatcher stopped")
}

// Close stops the dispatcher. It implements io.Closer.
func (d *Dispatcher) Close() error {
	d.Stop()
	return nil
}

func (d *Dispatcher) run() {
	for d.done.Err() == nil {
		n, err := d.queue.WaitDequeueContext(d.done)
		if err != nil {
			return
		}
		w, ok := n.(*work)
		if !ok {
			continue
		}
		d.updatePending()
		d.execute(w.r)
	}
}

func (d *Dispatcher) execute(r thread.Runnable) {
	defer func() {
		if p := recover(); p != nil {
			thread.HandlePanic(p)
		}
		if d.executed != nil {
			d.executed.Inc()
		}
	}()
	r.Run()
}

func (d *Dispatcher) updatePending() {
	if d.pending != nil {
		d.pending.Set(float64(d.queue.Size()))
	}
}
