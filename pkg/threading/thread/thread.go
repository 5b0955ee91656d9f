// Package thread runs a Runnable on its own goroutine with a name, an
// advisory priority and optional CPU affinity, and funnels anything the
// Runnable lets escape into a process-wide ErrorHandler.
package thread

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/common/validation"
	"github.com/vnykmshr/gofun/pkg/threading/event"
)

// NoAffinity leaves the thread free to run on any CPU.
const NoAffinity = -1

var lastID atomic.Int64

// Option configures a Thread.
type Option func(*Thread)

// WithName sets the thread name reported in logs and errors.
func WithName(name string) Option {
	return func(t *Thread) { t.name = name }
}

// WithPriority records an advisory priority.
func WithPriority(p Priority) Option {
	return func(t *Thread) { t.priority = p }
}

// WithAffinity pins the thread to cpu while its Runnable executes.
func WithAffinity(cpu int) Option {
	return func(t *Thread) { t.cpu = cpu }
}

// WithStackSize records the requested stack size in bytes. Goroutine stacks
// grow on demand, so the value is informational.
func WithStackSize(size int) Option {
	return func(t *Thread) { t.stackSize = size }
}

// Thread executes one Runnable at a time on a dedicated goroutine. A
// finished thread may be started again.
type Thread struct {
	id int64

	mu        sync.Mutex
	name      string
	priority  Priority
	cpu       int
	stackSize int
	running   bool

	done *event.Event
}

// New creates an idle thread.
func New(opts ...Option) *Thread {
	t := &Thread{
		id:       lastID.Add(1),
		priority: PriorityNormal,
		cpu:      NoAffinity,
		done:     event.New(event.ManualReset),
	}
	t.name = fmt.Sprintf("#%d", t.id)
	for _, opt := range opts {
		opt(t)
	}
	// Nothing has run yet, so Join must not block.
	t.done.Set()
	return t
}

// ID returns the process-unique thread id.
func (t *Thread) ID() int64 { return t.id }

// Name returns the thread name.
func (t *Thread) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// SetName renames the thread.
func (t *Thread) SetName(name string) {
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

// Priority returns the advisory priority.
func (t *Thread) Priority() Priority {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// SetPriority changes the advisory priority.
func (t *Thread) SetPriority(p Priority) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
}

// Affinity returns the pinned CPU or NoAffinity.
func (t *Thread) Affinity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cpu
}

// SetAffinity changes the CPU used by the next Start.
func (t *Thread) SetAffinity(cpu int) {
	t.mu.Lock()
	t.cpu = cpu
	t.mu.Unlock()
}

// StackSize returns the recorded stack size.
func (t *Thread) StackSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stackSize
}

// IsRunning reports whether a Runnable is executing.
func (t *Thread) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start runs r on the thread. Starting a thread that is still running is a
// programming error and panics. An invalid CPU, or a failure to pin to it,
// is returned and r never runs.
func (t *Thread) Start(r Runnable) error {
	if r == nil {
		panic("thread: nil runnable")
	}

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		panic(fmt.Sprintf("thread %s: already running", t.name))
	}
	cpu := t.cpu
	name := t.name
	if cpu != NoAffinity {
		if err := ValidateCPU(cpu); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	t.running = true
	t.done.Reset()
	t.mu.Unlock()

	started := make(chan error, 1)
	go t.run(r, cpu, started)

	if err := <-started; err != nil {
		return gferrors.NewOperationError("thread", "Start", err).WithContext("name=" + name)
	}
	return nil
}

// StartFunc runs fn on the thread.
func (t *Thread) StartFunc(fn func()) error {
	return t.Start(RunnableFunc(fn))
}

func (t *Thread) run(r Runnable, cpu int, started chan<- error) {
	defer t.finish()

	if cpu != NoAffinity {
		unpin, err := PinCPU(cpu)
		if err != nil {
			started <- err
			return
		}
		defer unpin()
	}
	started <- nil

	defer func() {
		if p := recover(); p != nil {
			HandlePanic(p)
		}
	}()
	r.Run()
}

func (t *Thread) finish() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
	t.done.Set()
}

// Join blocks until the current Runnable returns.
func (t *Thread) Join() {
	t.done.Wait()
}

// JoinTimeout waits at most d for the Runnable to return and reports
// errors.ErrTimeout if it did not.
func (t *Thread) JoinTimeout(d time.Duration) error {
	if err := t.done.WaitTimeout(d); err != nil {
		return gferrors.NewOperationError("thread", "Join", err).WithContext("name=" + t.Name())
	}
	return nil
}

// TryJoin waits at most d and reports whether the Runnable returned.
func (t *Thread) TryJoin(d time.Duration) bool {
	return t.done.TryWait(d)
}

// ValidateCPU checks that cpu names an online processor.
func ValidateCPU(cpu int) error {
	return validation.ValidateInRange("thread", "cpu", cpu, 0, runtime.NumCPU()-1)
}

// Sleep pauses the calling goroutine for d.
func Sleep(d time.Duration) {
	time.Sleep(d)
}

// Yield lets other goroutines run.
func Yield() {
	runtime.Gosched()
}
