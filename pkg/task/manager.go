package task

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/gofun/pkg/common/clock"
	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification"
	"github.com/vnykmshr/gofun/pkg/notification/center"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
	"github.com/vnykmshr/gofun/pkg/threading/threadpool"
)

// DefaultProgressInterval is the minimum gap between two Progress
// notifications of one manager.
const DefaultProgressInterval = 100 * time.Millisecond

// Config configures a Manager.
type Config struct {
	// Name labels logs and metrics.
	Name string

	// Pool runs started tasks. Defaults to threadpool.Default().
	Pool *threadpool.ThreadPool

	// ProgressInterval throttles Progress notifications across all tasks
	// of the manager. Zero disables throttling.
	ProgressInterval time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock drives progress throttling. Defaults to the system clock.
	Clock clock.Clock

	// Metrics receives task counters. Nil disables metrics.
	Metrics *metrics.Registry
}

// DefaultConfig returns a configuration with the default progress interval.
func DefaultConfig() Config {
	return Config{
		Name:             "default",
		ProgressInterval: DefaultProgressInterval,
	}
}

// Validate checks the progress interval.
func (c Config) Validate() error {
	if c.ProgressInterval < 0 {
		return gferrors.NewValidationError("taskmanager", "ProgressInterval", c.ProgressInterval, "must not be negative").
			WithHint("use 0 to disable throttling")
	}
	return nil
}

// Manager runs tasks on a thread pool, keeps the list of tasks that have
// not finished and posts their lifecycle notifications to its observers.
//
// Notifications are delivered synchronously on the goroutine that caused
// them, which for most of them is the task's pool thread. An observer
// error is passed to the thread error handler and does not affect the
// task.
type Manager struct {
	name     string
	pool     *threadpool.ThreadPool
	interval time.Duration
	logger   *slog.Logger
	clock    clock.Clock
	center   *center.Center
	metrics  *taskMetrics

	mu           sync.Mutex
	tasks        []*Task
	lastProgress time.Time
}

// NewManager creates a manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Pool == nil {
		cfg.Pool = threadpool.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("taskmanager", cfg.Name)

	return &Manager{
		name:     cfg.Name,
		pool:     cfg.Pool,
		interval: cfg.ProgressInterval,
		logger:   logger,
		clock:    clock.OrSystem(cfg.Clock),
		center: center.New(
			center.WithName("taskmanager."+cfg.Name),
			center.WithLogger(logger),
			center.WithMetrics(cfg.Metrics),
		),
		metrics: newTaskMetrics(cfg.Metrics, cfg.Name),
	}, nil
}

// Name returns the manager name.
func (m *Manager) Name() string { return m.name }

// Start takes ownership of t and runs it on the pool. If the pool refuses
// it, t is returned to StateIdle, forgotten, and the pool error is
// returned. Starting a task that is not idle panics.
func (m *Manager) Start(t *Task, opts ...threadpool.StartOption) error {
	m.track(t)

	opts = append([]threadpool.StartOption{threadpool.WithName(t.Name())}, opts...)
	if err := m.pool.Start(t, opts...); err != nil {
		m.untrack(t)
		t.detach()
		m.logger.Debug("task start failed", "task", t.Name(), "error", err)
		return err
	}
	return nil
}

// StartSync takes ownership of t and runs it on the calling goroutine.
func (m *Manager) StartSync(t *Task) {
	m.track(t)
	t.Run()
}

func (m *Manager) track(t *Task) {
	if t == nil {
		panic("taskmanager: nil task")
	}
	t.attach(m)

	m.mu.Lock()
	m.tasks = append(m.tasks, t)
	m.mu.Unlock()
}

func (m *Manager) untrack(t *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.Index(m.tasks, t); i >= 0 {
		m.tasks = slices.Delete(m.tasks, i, i+1)
	}
}

// CancelAll cancels every task that has not finished.
func (m *Manager) CancelAll() {
	for _, t := range m.Tasks() {
		t.Cancel()
	}
}

// JoinAll waits for every task started so far to finish.
func (m *Manager) JoinAll() {
	for _, t := range m.Tasks() {
		t.Wait()
	}
}

// JoinAllContext is JoinAll bounded by ctx.
func (m *Manager) JoinAllContext(ctx context.Context) error {
	for _, t := range m.Tasks() {
		if err := t.WaitContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Tasks returns the tasks that have not finished, in start order.
func (m *Manager) Tasks() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tasks)
}

// Count returns the number of tasks that have not finished.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// AddObserver registers o for this manager's notifications.
func (m *Manager) AddObserver(o center.Observer) {
	m.center.AddObserver(o)
}

// RemoveObserver unregisters o and reports whether it was registered.
func (m *Manager) RemoveObserver(o center.Observer) bool {
	return m.center.RemoveObserver(o)
}

func (m *Manager) taskStarted(t *Task) {
	m.metrics.started()
	m.post(&Started{base{t}})
}

func (m *Manager) taskProgress(t *Task, p float64) {
	m.mu.Lock()
	now := m.clock.Now()
	due := m.interval == 0 || m.lastProgress.IsZero() || now.Sub(m.lastProgress) >= m.interval
	if due {
		m.lastProgress = now
	}
	m.mu.Unlock()

	if !due {
		m.metrics.throttled()
		return
	}
	m.metrics.progress()
	m.post(&Progress{base: base{t}, Progress: p})
}

func (m *Manager) taskCancelled(t *Task) {
	m.metrics.cancelled()
	m.post(&Cancelled{base{t}})
}

func (m *Manager) taskFailed(t *Task, err error) {
	m.metrics.failed()
	m.logger.Debug("task failed", "task", t.Name(), "error", err)
	m.post(&Failed{base: base{t}, Err: err})
}

// taskFinished forgets t only after Finished has been delivered, so JoinAll
// never returns ahead of the observers.
func (m *Manager) taskFinished(t *Task) {
	m.metrics.finished(t.elapsed())
	m.post(&Finished{base{t}})
	m.untrack(t)
}

// post delivers n without holding m.mu so observers may call back into
// the manager.
func (m *Manager) post(n notification.Notification) {
	if err := m.center.Post(n); err != nil {
		thread.HandleError(fmt.Errorf("taskmanager %s: observer of %s: %w", m.name, n.Name(), err))
	}
}

// taskMetrics binds the registry's task collectors to one manager label.
// A nil *taskMetrics records nothing.
type taskMetrics struct {
	startedC   prometheus.Counter
	finishedC  prometheus.Counter
	failedC    prometheus.Counter
	cancelledC prometheus.Counter
	duration   prometheus.Observer
	posted     prometheus.Counter
	skipped    prometheus.Counter
}

func newTaskMetrics(reg *metrics.Registry, name string) *taskMetrics {
	if reg == nil {
		return nil
	}
	return &taskMetrics{
		startedC:   reg.TasksStarted.WithLabelValues(name),
		finishedC:  reg.TasksFinished.WithLabelValues(name),
		failedC:    reg.TasksFailed.WithLabelValues(name),
		cancelledC: reg.TasksCancelled.WithLabelValues(name),
		duration:   reg.TaskDuration.WithLabelValues(name),
		posted:     reg.TaskProgressPosted.WithLabelValues(name),
		skipped:    reg.TaskProgressThrottled.WithLabelValues(name),
	}
}

func (m *taskMetrics) started() {
	if m != nil {
		m.startedC.Inc()
	}
}

func (m *taskMetrics) finished(d time.Duration) {
	if m != nil {
		m.finishedC.Inc()
		m.duration.Observe(d.Seconds())
	}
}

func (m *taskMetrics) failed() {
	if m != nil {
		m.failedC.Inc()
	}
}

func (m *taskMetrics) cancelled() {
	if m != nil {
		m.cancelledC.Inc()
	}
}

func (m *taskMetrics) progress() {
	if m != nil {
		m.posted.Inc()
	}
}

func (m *taskMetrics) throttled() {
	if m != nil {
		m.skipped.Inc()
	}
}
