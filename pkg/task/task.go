// Package task provides cancellable, progress-reporting units of work and
// a Manager that runs them on a thread pool and publishes their lifecycle
// as notifications.
//
// Cancellation is cooperative: Cancel only raises a flag. The task body
// must check IsCancelled, or use Sleep, Yield or Context, to notice it.
package task

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/notification"
	"github.com/vnykmshr/gofun/pkg/threading/event"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
)

// Body is the work of a task. It receives its own Task to report progress
// and observe cancellation.
type Body func(t *Task) error

// Task is a named unit of work.
type Task struct {
	id   string
	name string
	body Body

	state atomic.Int32

	mu       sync.Mutex
	progress float64
	owner    *Manager
	started  time.Time
	ctx      context.Context
	cancel   context.CancelFunc

	cancelled *event.Event
	done      *event.Event
}

// New creates an idle task. It panics if body is nil.
func New(name string, body Body) *Task {
	if body == nil {
		panic("task: nil body")
	}
	t := &Task{
		id:        uuid.NewString(),
		name:      name,
		body:      body,
		cancelled: event.New(event.ManualReset),
		done:      event.New(event.ManualReset),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// ID returns a unique id assigned at creation.
func (t *Task) ID() string { return t.id }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// State returns the current lifecycle state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// Progress returns the last value given to SetProgress.
func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// SetProgress records progress and reports it to the owning Manager, which
// may throttle the resulting notification.
func (t *Task) SetProgress(p float64) {
	t.mu.Lock()
	t.progress = p
	owner := t.owner
	t.mu.Unlock()

	if owner != nil {
		owner.taskProgress(t, p)
	}
}

// Manager returns the owning manager, or nil.
func (t *Task) Manager() *Manager {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner
}

// Context returns a context that is cancelled when the task is cancelled.
func (t *Task) Context() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}

// Cancel asks the task to stop. It has no effect on a finished or already
// cancelled task.
func (t *Task) Cancel() {
	for {
		s := t.State()
		if s == StateCancelling || s == StateFinished {
			return
		}
		if t.state.CompareAndSwap(int32(s), int32(StateCancelling)) {
			break
		}
	}

	t.cancelled.Set()
	t.mu.Lock()
	cancel, owner := t.cancel, t.owner
	t.mu.Unlock()
	cancel()

	if owner != nil {
		owner.taskCancelled(t)
	}
}

// IsCancelled reports whether Cancel has been called.
func (t *Task) IsCancelled() bool {
	return t.cancelled.IsSet()
}

// Sleep pauses for d or until the task is cancelled. It reports whether
// the task was cancelled.
func (t *Task) Sleep(d time.Duration) bool {
	return t.cancelled.TryWait(d)
}

// Yield lets other goroutines run and reports whether the task was
// cancelled.
func (t *Task) Yield() bool {
	runtime.Gosched()
	return t.IsCancelled()
}

// PostNotification posts n through the owning Manager's observers. It is a
// no-op for a task without a manager.
func (t *Task) PostNotification(n notification.Notification) {
	if owner := t.Manager(); owner != nil {
		owner.post(n)
	}
}

// Run executes the body unless the task was cancelled before it started.
// A returned error or panic is reported as a Failed notification, and the
// task always ends in StateFinished with a Finished notification.
func (t *Task) Run() {
	owner := t.Manager()
	t.mu.Lock()
	t.started = time.Now()
	t.mu.Unlock()

	if owner != nil {
		owner.taskStarted(t)
	}

	if t.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) ||
		t.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		if err := t.runBody(); err != nil {
			if owner != nil {
				owner.taskFailed(t, err)
			} else {
				thread.HandleError(fmt.Errorf("task %s: %w", t.name, err))
			}
		}
	}

	t.state.Store(int32(StateFinished))
	if owner != nil {
		owner.taskFinished(t)
	}
	t.done.Set()
}

func (t *Task) runBody() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = gferrors.NewPanicError(p)
		}
	}()
	return t.body(t)
}

// Wait blocks until the task is finished.
func (t *Task) Wait() {
	t.done.Wait()
}

// WaitTimeout waits at most d and returns errors.ErrTimeout if the task is
// still not finished.
func (t *Task) WaitTimeout(d time.Duration) error {
	return t.done.WaitTimeout(d)
}

// WaitContext waits until the task is finished or ctx is done.
func (t *Task) WaitContext(ctx context.Context) error {
	return t.done.WaitContext(ctx)
}

// Reset returns a finished task to StateIdle so it can be started again.
// Resetting a task that is starting or running panics.
func (t *Task) Reset() {
	s := t.State()
	if s != StateIdle && s != StateFinished {
		panic(fmt.Sprintf("task %s: reset while %s", t.name, s))
	}

	t.mu.Lock()
	t.progress = 0
	t.owner = nil
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()

	t.cancelled.Reset()
	t.done.Reset()
	t.state.Store(int32(StateIdle))
}

// elapsed returns the time since Run was entered.
func (t *Task) elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.started)
}

// attach claims t for m. A task cancelled before it was started keeps its
// state so that Run skips the body. It panics if t is already owned.
func (t *Task) attach(m *Manager) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.State()
	if t.owner != nil || (s != StateIdle && s != StateCancelling) {
		panic(fmt.Sprintf("task %s: already started", t.name))
	}
	t.owner = m
	t.state.CompareAndSwap(int32(StateIdle), int32(StateStarting))
}

// detach undoes attach after a failed start.
func (t *Task) detach() {
	t.mu.Lock()
	t.owner = nil
	t.mu.Unlock()
	t.state.CompareAndSwap(int32(StateStarting), int32(StateIdle))
}
