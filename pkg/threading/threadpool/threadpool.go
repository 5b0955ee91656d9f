package threadpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/vnykmshr/gofun/pkg/common/clock"
	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/common/validation"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
)

// housekeepEvery is the number of thread allocations between implicit
// housekeeping passes.
const housekeepEvery = 32

// ErrNoThreadAvailable is returned by Start when every thread is busy and
// the pool is already at its maximum capacity.
var ErrNoThreadAvailable = fmt.Errorf("%w: no thread available", gferrors.ErrCapacityExceeded)

// Config holds configuration options for creating a thread pool.
type Config struct {
	// Name prefixes the names of the pool's threads and labels its metrics.
	Name string

	// MinCapacity is the number of threads created up front and never
	// released by housekeeping. Must be positive.
	MinCapacity int

	// MaxCapacity bounds the number of threads. Must be >= MinCapacity.
	MaxCapacity int

	// IdleTime is how long a thread may stay idle before housekeeping may
	// release it.
	IdleTime time.Duration

	// StackSize is recorded for each thread. Goroutine stacks grow on
	// demand so the value is advisory.
	StackSize int

	// Logger receives pool lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock drives idle time tracking. Defaults to the system clock.
	Clock clock.Clock

	// Metrics receives pool gauges and counters. Nil disables metrics.
	Metrics *metrics.Registry
}

// DefaultConfig returns the configuration used by New and Default.
func DefaultConfig() Config {
	return Config{
		Name:        "default",
		MinCapacity: 2,
		MaxCapacity: 16,
		IdleTime:    60 * time.Second,
	}
}

// Validate checks the capacity and idle time settings.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("threadpool", "MinCapacity", c.MinCapacity); err != nil {
		return err
	}
	if err := validation.ValidateOrdered("threadpool", "MinCapacity", "MaxCapacity", c.MinCapacity, c.MaxCapacity); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("threadpool", "IdleTime", c.IdleTime); err != nil {
		return err
	}
	return validation.ValidateNonNegative("threadpool", "StackSize", c.StackSize)
}

// ThreadPool hands out reusable threads to runnables. It never queues:
// when every thread is busy and the pool cannot grow, Start fails with
// ErrNoThreadAvailable and the caller decides whether to retry.
type ThreadPool struct {
	name      string
	idleTime  time.Duration
	stackSize int
	logger    *slog.Logger
	clock     clock.Clock
	metrics   *poolMetrics

	mu          sync.Mutex
	minCapacity int
	maxCapacity int
	threads     []*pooledThread
	serial      int
	age         int
	closed      bool
}

// New creates a pool with the given capacities and idle time.
// It panics on an invalid configuration.
func New(minCapacity, maxCapacity int, idleTime time.Duration) *ThreadPool {
	cfg := DefaultConfig()
	cfg.MinCapacity = minCapacity
	cfg.MaxCapacity = maxCapacity
	cfg.IdleTime = idleTime

	p, err := NewWithConfig(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a pool and starts MinCapacity idle threads.
func NewWithConfig(cfg Config) (*ThreadPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &ThreadPool{
		name:        cfg.Name,
		idleTime:    cfg.IdleTime,
		stackSize:   cfg.StackSize,
		logger:      logger.With("pool", cfg.Name),
		clock:       clock.OrSystem(cfg.Clock),
		metrics:     newPoolMetrics(cfg.Metrics, cfg.Name),
		minCapacity: cfg.MinCapacity,
		maxCapacity: cfg.MaxCapacity,
	}

	p.mu.Lock()
	for i := 0; i < cfg.MinCapacity; i++ {
		p.threads = append(p.threads, p.createThreadLocked())
	}
	p.mu.Unlock()
	p.metrics.threads(cfg.MinCapacity)

	p.logger.Debug("thread pool created",
		"min_capacity", cfg.MinCapacity,
		"max_capacity", cfg.MaxCapacity,
		"idle_time", cfg.IdleTime)
	return p, nil
}

// StartOption configures a single Start call.
type StartOption func(*startOptions)

type startOptions struct {
	name     string
	cpu      int
	priority thread.Priority
}

// WithName labels the runnable for the duration of the run.
func WithName(name string) StartOption {
	return func(o *startOptions) { o.name = name }
}

// WithCPU pins the pool thread to cpu while the runnable executes.
func WithCPU(cpu int) StartOption {
	return func(o *startOptions) { o.cpu = cpu }
}

// WithPriority records an advisory priority for the run.
func WithPriority(p thread.Priority) StartOption {
	return func(o *startOptions) { o.priority = p }
}

// Start runs r on an idle thread, creating one if the pool is below its
// maximum capacity. It returns ErrNoThreadAvailable when the pool is
// saturated and errors.ErrClosed after StopAll.
func (p *ThreadPool) Start(r thread.Runnable, opts ...StartOption) error {
	if r == nil {
		panic("threadpool: nil runnable")
	}

	o := startOptions{cpu: thread.NoAffinity, priority: thread.PriorityNormal}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cpu != thread.NoAffinity {
		if err := thread.ValidateCPU(o.cpu); err != nil {
			return err
		}
	}

	pt, err := p.getThread()
	if err != nil {
		if errors.Is(err, ErrNoThreadAvailable) {
			p.metrics.rejected()
		}
		return err
	}

	p.metrics.started()
	pt.start(r, o)
	return nil
}

// StartFunc runs fn on a pool thread.
func (p *ThreadPool) StartFunc(fn func(), opts ...StartOption) error {
	return p.Start(thread.RunnableFunc(fn), opts...)
}

// StartWithRetry calls Start until a thread becomes available, the
// attempts are exhausted or ctx is done. Only ErrNoThreadAvailable is
// retried.
func (p *ThreadPool) StartWithRetry(ctx context.Context, r thread.Runnable, attempts uint, delay time.Duration, opts ...StartOption) error {
	return retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrNoThreadAvailable)
		}),
	).Do(func() error {
		return p.Start(r, opts...)
	})
}

func (p *ThreadPool) getThread() (*pooledThread, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, gferrors.NewOperationError("threadpool", "Start", gferrors.ErrClosed).WithContext("pool=" + p.name)
	}

	var released []*pooledThread
	p.age++
	if p.age >= housekeepEvery {
		p.age = 0
		released = p.housekeepLocked()
	}

	var pt *pooledThread
	for _, candidate := range p.threads {
		if candidate.isIdle() {
			pt = candidate
			break
		}
	}
	if pt == nil && len(p.threads) < p.maxCapacity {
		pt = p.createThreadLocked()
		p.threads = append(p.threads, pt)
	}
	if pt != nil {
		pt.activate()
	}
	allocated := len(p.threads)
	p.mu.Unlock()

	p.stopThreads(released)
	p.metrics.threads(allocated)

	if pt == nil {
		return nil, ErrNoThreadAvailable
	}
	return pt, nil
}

func (p *ThreadPool) createThreadLocked() *pooledThread {
	p.serial++
	return newPooledThread(p, fmt.Sprintf("%s[#%d]", p.name, p.serial))
}

// housekeepLocked keeps every active thread plus idle threads up to
// max(MinCapacity, active+recently idle), preferring the most recently
// used idle threads. It returns the threads that were dropped so the
// caller can stop them after releasing the lock.
func (p *ThreadPool) housekeepLocked() []*pooledThread {
	now := p.clock.Now()

	var active, idle, expired []*pooledThread
	for _, pt := range p.threads {
		switch {
		case !pt.isIdle():
			active = append(active, pt)
		case pt.idleFor(now) < p.idleTime:
			idle = append(idle, pt)
		default:
			expired = append(expired, pt)
		}
	}

	n := len(active)
	limit := len(idle) + n
	if limit < p.minCapacity {
		limit = p.minCapacity
	}
	if limit > p.maxCapacity {
		limit = p.maxCapacity
	}

	kept := make([]*pooledThread, 0, len(p.threads))
	var released []*pooledThread
	for _, pt := range append(idle, expired...) {
		if n < limit {
			kept = append(kept, pt)
			n++
		} else {
			released = append(released, pt)
		}
	}
	p.threads = append(kept, active...)
	return released
}

func (p *ThreadPool) stopThreads(threads []*pooledThread) {
	if len(threads) == 0 {
		return
	}
	for _, pt := range threads {
		pt.stop()
	}
	p.metrics.released(len(threads))
	p.logger.Debug("released idle threads", "count", len(threads))
}

// finished is called by a pool thread after its runnable returned.
func (p *ThreadPool) finished() {
	p.metrics.done()
}

// AddCapacity changes the maximum capacity by n, which may be negative,
// and housekeeps. Lowering the maximum below the minimum panics.
func (p *ThreadPool) AddCapacity(n int) {
	p.mu.Lock()
	if p.maxCapacity+n < p.minCapacity {
		p.mu.Unlock()
		panic(fmt.Sprintf("threadpool: capacity %d below minimum %d", p.maxCapacity+n, p.minCapacity))
	}
	p.maxCapacity += n
	released := p.housekeepLocked()
	allocated := len(p.threads)
	p.mu.Unlock()

	p.stopThreads(released)
	p.metrics.threads(allocated)
}

// Collect releases idle threads that exceeded the idle time.
func (p *ThreadPool) Collect() {
	p.mu.Lock()
	released := p.housekeepLocked()
	allocated := len(p.threads)
	p.mu.Unlock()

	p.stopThreads(released)
	p.metrics.threads(allocated)
}

// JoinAll blocks until every runnable that was running when it was called
// has returned. Threads stay alive for reuse.
func (p *ThreadPool) JoinAll() {
	p.mu.Lock()
	threads := slices.Clone(p.threads)
	p.mu.Unlock()

	for _, pt := range threads {
		pt.join()
	}
	p.Collect()
}

// StopAll waits for running runnables, then stops every thread. The pool
// rejects Start calls afterwards.
func (p *ThreadPool) StopAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	threads := p.threads
	p.threads = nil
	p.mu.Unlock()

	for _, pt := range threads {
		pt.join()
		pt.stop()
	}
	p.metrics.threads(0)
	p.logger.Debug("thread pool stopped", "threads", len(threads))
}

// Name returns the pool name.
func (p *ThreadPool) Name() string {
	return p.name
}

// IdleTime returns the idle time after which threads may be released.
func (p *ThreadPool) IdleTime() time.Duration {
	return p.idleTime
}

// StackSize returns the advisory stack size given to threads.
func (p *ThreadPool) StackSize() int {
	return p.stackSize
}

// Capacity returns the maximum number of threads.
func (p *ThreadPool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxCapacity
}

// MinCapacity returns the number of threads housekeeping always keeps.
func (p *ThreadPool) MinCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minCapacity
}

// Used returns the number of threads running a runnable.
func (p *ThreadPool) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pt := range p.threads {
		if !pt.isIdle() {
			n++
		}
	}
	return n
}

// Allocated returns the number of threads currently owned by the pool.
func (p *ThreadPool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// Available returns how many more runnables can be started right now:
// idle threads plus threads that may still be created.
func (p *ThreadPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pt := range p.threads {
		if pt.isIdle() {
			n++
		}
	}
	return n + p.maxCapacity - len(p.threads)
}

var (
	defaultOnce sync.Once
	defaultPool *ThreadPool
)

// Default returns the process-wide pool, creating it on first use with
// DefaultConfig.
func Default() *ThreadPool {
	defaultOnce.Do(func() {
		cfg := DefaultConfig()
		cfg.Metrics = metrics.DefaultRegistry
		p, err := NewWithConfig(cfg)
		if err != nil {
			panic(err)
		}
		defaultPool = p
	})
	return defaultPool
}
