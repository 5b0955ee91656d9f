// Package timer runs thread.Runnable values at a given time, repeatedly at
// a fixed delay or rate, or on a cron schedule.
//
// A Timer owns one thread that waits on a timed notification queue. By
// default scheduled work runs on that thread, so a long job delays the
// jobs after it. WithPool hands each run to a thread pool instead.
//
// Basic usage:
//
//	t, err := timer.New(timer.WithName("jobs"))
//	if err != nil {
//		return err
//	}
//	defer t.Stop()
//
//	h, err := t.ScheduleCron("*/30 * * * * *", thread.RunnableFunc(flush))
//	...
//	h.Cancel()
//
// Cron expressions have an optional seconds field and accept descriptors
// such as "@hourly" and "@every 5m".
//
// A panicking job is reported to the thread error handler. Repeating
// schedules keep running after a panic.
package timer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification/timedqueue"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
	"github.com/vnykmshr/gofun/pkg/threading/threadpool"
)

// RefusedRetryDelay is how long a one-shot run waits before it is offered
// to a saturated pool again.
const RefusedRetryDelay = 10 * time.Millisecond

// Option configures a Timer.
type Option func(*Timer)

// WithName labels the timer thread, logs and metrics.
func WithName(name string) Option {
	return func(t *Timer) { t.name = name }
}

// WithPool runs scheduled work on pool instead of the timer thread.
func WithPool(pool *threadpool.ThreadPool) Option {
	return func(t *Timer) { t.pool = pool }
}

// WithLocation sets the time zone cron expressions are evaluated in.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(t *Timer) { t.location = loc }
}

// WithLogger defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Timer) { t.logger = logger }
}

// WithMetrics enables metrics on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(t *Timer) { t.reg = reg }
}

// Timer schedules runnables.
type Timer struct {
	name     string
	pool     *threadpool.ThreadPool
	location *time.Location
	logger   *slog.Logger
	reg      *metrics.Registry
	parser   cron.Parser

	queue  *timedqueue.Queue
	thread *thread.Thread

	mu      sync.Mutex
	handles map[*Handle]struct{}
	stopped bool
}

// New creates a timer and starts its thread.
func New(opts ...Option) (*Timer, error) {
	t := &Timer{
		name:     "timer",
		location: time.Local,
		parser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
		handles: make(map[*Handle]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("timer", t.name)
	t.queue = timedqueue.New(timedqueue.WithName("timer."+t.name), timedqueue.WithMetrics(t.reg))
	t.thread = thread.New(thread.WithName(t.name))

	if err := t.thread.Start(thread.RunnableFunc(t.run)); err != nil {
		return nil, gferrors.NewOperationError("timer", "New", err)
	}
	return t, nil
}

// Name returns the timer name.
func (t *Timer) Name() string { return t.name }

// Schedule runs r once at at. A time in the past runs r as soon as
// possible.
func (t *Timer) Schedule(r thread.Runnable, at time.Time) (*Handle, error) {
	return t.add(r, once{}, at)
}

// ScheduleAfter runs r once after d.
func (t *Timer) ScheduleAfter(r thread.Runnable, d time.Duration) (*Handle, error) {
	return t.add(r, once{}, time.Now().Add(d))
}

// ScheduleRepeating runs r after delay and then again interval after each
// run has finished.
func (t *Timer) ScheduleRepeating(r thread.Runnable, delay, interval time.Duration) (*Handle, error) {
	if interval <= 0 {
		return nil, gferrors.NewValidationError("timer", "interval", interval, "must be positive")
	}
	return t.add(r, fixedDelay{interval}, time.Now().Add(delay))
}

// ScheduleAtFixedRate runs r after delay and then every interval measured
// from the planned start of the previous run. Runs that fall behind are
// caught up one after another.
func (t *Timer) ScheduleAtFixedRate(r thread.Runnable, delay, interval time.Duration) (*Handle, error) {
	if interval <= 0 {
		return nil, gferrors.NewValidationError("timer", "interval", interval, "must be positive")
	}
	return t.add(r, fixedRate{interval}, time.Now().Add(delay))
}

// ScheduleCron runs r at every time matched by expr.
func (t *Timer) ScheduleCron(expr string, r thread.Runnable) (*Handle, error) {
	schedule, err := t.parser.Parse(expr)
	if err != nil {
		return nil, gferrors.NewValidationError("timer", "cron", expr, err.Error()).
			WithHint(`use "[sec] min hour dom month dow" or a descriptor such as "@hourly"`)
	}
	s := cronSchedule{schedule: schedule, location: t.location}
	first := s.first(time.Now())
	if first.IsZero() {
		return nil, gferrors.NewValidationError("timer", "cron", expr, "never matches")
	}
	return t.add(r, s, first)
}

// ValidateCron reports whether expr would be accepted by ScheduleCron.
func (t *Timer) ValidateCron(expr string) error {
	if _, err := t.parser.Parse(expr); err != nil {
		return gferrors.NewValidationError("timer", "cron", expr, err.Error())
	}
	return nil
}

func (t *Timer) add(r thread.Runnable, s schedule, at time.Time) (*Handle, error) {
	if r == nil {
		panic("timer: nil runnable")
	}

	h := &Handle{timer: t, runnable: r, schedule: s}
	h.next = at

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil, gferrors.NewOperationError("timer", "Schedule", gferrors.ErrClosed)
	}
	t.handles[h] = struct{}{}
	t.mu.Unlock()

	if t.reg != nil {
		t.reg.TimerScheduled.WithLabelValues(t.name).Inc()
	}
	t.queue.Enqueue(&fire{handle: h}, at)
	return h, nil
}

func (t *Timer) forget(h *Handle) {
	t.mu.Lock()
	delete(t.handles, h)
	t.mu.Unlock()
}

// Len returns the number of schedules that may still run.
func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}

// CancelAll cancels every schedule. Runs already in progress complete.
func (t *Timer) CancelAll() {
	t.mu.Lock()
	handles := make([]*Handle, 0, len(t.handles))
	for h := range t.handles {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

// Stop cancels every schedule and waits for the timer thread to exit.
// Runs handed to a pool are not waited for. Stop is idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		t.thread.Join()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	t.CancelAll()
	t.queue.Enqueue(stopSignal{}, time.Time{})
	t.thread.Join()
	t.logger.Debug("timer stopped")
}

func (t *Timer) run() {
	for {
		switch n := t.queue.WaitDequeue().(type) {
		case stopSignal:
			return
		case *fire:
			t.fire(n.handle)
		}
	}
}

func (t *Timer) fire(h *Handle) {
	if h.Cancelled() {
		return
	}
	if t.pool == nil {
		h.execute()
		return
	}
	if err := t.pool.Start(thread.RunnableFunc(h.execute), threadpool.WithName(t.name)); err != nil {
		t.logger.Warn("timer run refused", "error", err)
		thread.HandleError(fmt.Errorf("timer %s: %w", t.name, err))
		if _, ok := h.schedule.(once); ok {
			h.retry(time.Now().Add(RefusedRetryDelay))
			return
		}
		// Repeating schedules skip to their next slot.
		h.reschedule(time.Now())
	}
}

func (t *Timer) fired() {
	if t.reg != nil {
		t.reg.TimerFired.WithLabelValues(t.name).Inc()
	}
}

// fire is the queued notification for the next run of a handle.
type fire struct {
	handle *Handle
}

func (*fire) Name() string { return "TimerFire" }

type stopSignal struct{}

func (stopSignal) Name() string { return "TimerStop" }
