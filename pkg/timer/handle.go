package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vnykmshr/gofun/pkg/threading/thread"
)

// Handle controls one schedule.
type Handle struct {
	timer    *Timer
	runnable thread.Runnable
	schedule schedule

	cancelled  atomic.Bool
	executions atomic.Int64

	mu   sync.Mutex
	next time.Time
	last time.Time
}

// Cancel stops future runs. A run already in progress completes.
func (h *Handle) Cancel() {
	if h.cancelled.Swap(true) {
		return
	}
	h.timer.forget(h)
}

// Cancelled reports whether Cancel was called or a one-shot schedule has
// run.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// LastExecution returns the start time of the most recent run, or the zero
// time if r has not run yet.
func (h *Handle) LastExecution() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// NextExecution returns the planned time of the next run. It is
// meaningless once the handle is cancelled.
func (h *Handle) NextExecution() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.next
}

// Executions returns how many runs have started.
func (h *Handle) Executions() int64 {
	return h.executions.Load()
}

// execute runs the runnable once and queues the next run.
func (h *Handle) execute() {
	start := time.Now()
	h.mu.Lock()
	h.last = start
	h.mu.Unlock()
	h.executions.Add(1)
	h.timer.fired()

	func() {
		defer func() {
			if r := recover(); r != nil {
				thread.HandlePanic(r)
			}
		}()
		h.runnable.Run()
	}()

	h.reschedule(start)
}

// retry queues the same run again at at.
func (h *Handle) retry(at time.Time) {
	if h.Cancelled() {
		return
	}
	h.mu.Lock()
	h.next = at
	h.mu.Unlock()
	h.timer.queue.Enqueue(&fire{handle: h}, at)
}

// reschedule queues the run after one that started at start, or retires
// the handle if there is none.
func (h *Handle) reschedule(start time.Time) {
	if h.Cancelled() {
		return
	}

	h.mu.Lock()
	next, ok := h.schedule.after(h.next, start, time.Now())
	if ok {
		h.next = next
	}
	h.mu.Unlock()

	if !ok {
		h.Cancel()
		return
	}
	h.timer.queue.Enqueue(&fire{handle: h}, next)
}

// schedule computes the next run from the planned time of the previous
// one, its actual start and its end.
type schedule interface {
	after(planned, started, ended time.Time) (time.Time, bool)
}

type once struct{}

func (once) after(_, _, _ time.Time) (time.Time, bool) { return time.Time{}, false }

type fixedDelay struct {
	interval time.Duration
}

func (s fixedDelay) after(_, _, ended time.Time) (time.Time, bool) {
	return ended.Add(s.interval), true
}

type fixedRate struct {
	interval time.Duration
}

func (s fixedRate) after(planned, _, _ time.Time) (time.Time, bool) {
	return planned.Add(s.interval), true
}

type cronSchedule struct {
	schedule cron.Schedule
	location *time.Location
}

func (s cronSchedule) first(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.location))
}

func (s cronSchedule) after(planned, _, ended time.Time) (time.Time, bool) {
	from := ended
	if planned.After(from) {
		from = planned
	}
	next := s.schedule.Next(from.In(s.location))
	return next, !next.IsZero()
}
