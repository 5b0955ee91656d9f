package task

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/gofun/internal/testutil"
	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification/center"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
	"github.com/vnykmshr/gofun/pkg/threading/threadpool"
)

func newTestPool(t *testing.T, minCap, maxCap int) *threadpool.ThreadPool {
	t.Helper()
	cfg := threadpool.DefaultConfig()
	cfg.Name = "task-test"
	cfg.MinCapacity = minCap
	cfg.MaxCapacity = maxCap
	p, err := threadpool.NewWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(p.StopAll)
	return p
}

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.Pool = newTestPool(t, 1, 4)
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

// watcher records the names of lifecycle notifications in delivery order.
type watcher struct {
	testutil.Recorder

	mu       sync.Mutex
	failures []error
	progress []float64
}

func (w *watcher) onStarted(n *Started) error     { w.Record("started:" + n.Task().Name()); return nil }
func (w *watcher) onCancelled(n *Cancelled) error { w.Record("cancelled:" + n.Task().Name()); return nil }
func (w *watcher) onFinished(n *Finished) error   { w.Record("finished:" + n.Task().Name()); return nil }

func (w *watcher) onFailed(n *Failed) error {
	w.Record("failed:" + n.Task().Name())
	w.mu.Lock()
	w.failures = append(w.failures, n.Err)
	w.mu.Unlock()
	return nil
}

func (w *watcher) onProgress(n *Progress) error {
	w.mu.Lock()
	w.progress = append(w.progress, n.Progress)
	w.mu.Unlock()
	return nil
}

func (w *watcher) Progress() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]float64(nil), w.progress...)
}

func (w *watcher) Failures() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]error(nil), w.failures...)
}

func watch(m *Manager) *watcher {
	w := &watcher{}
	m.AddObserver(center.NewObserver(w, w.onStarted))
	m.AddObserver(center.NewObserver(w, w.onCancelled))
	m.AddObserver(center.NewObserver(w, w.onFailed))
	m.AddObserver(center.NewObserver(w, w.onProgress))
	m.AddObserver(center.NewObserver(w, w.onFinished))
	return w
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{}.Validate())

	err := Config{ProgressInterval: -time.Millisecond}.Validate()
	assert.True(t, gferrors.IsValidationError(err))

	_, err = NewManager(Config{ProgressInterval: -1})
	assert.Error(t, err)
}

func TestTaskLifecycle(t *testing.T) {
	m := newTestManager(t, nil)
	w := watch(m)

	release := make(chan struct{})
	running := make(chan struct{})
	tk := New("copy", func(*Task) error {
		close(running)
		<-release
		return nil
	})
	assert.Equal(t, StateIdle, tk.State())
	assert.NotEmpty(t, tk.ID())

	require.NoError(t, m.Start(tk))
	<-running
	assert.Equal(t, StateRunning, tk.State())
	assert.Same(t, m, tk.Manager())
	assert.Equal(t, []*Task{tk}, m.Tasks())

	close(release)
	m.JoinAll()

	assert.Equal(t, StateFinished, tk.State())
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, []string{"started:copy", "finished:copy"}, w.Entries())
}

func TestTaskFailure(t *testing.T) {
	m := newTestManager(t, nil)
	w := watch(m)

	boom := errors.New("boom")
	m.StartSync(New("err", func(*Task) error { return boom }))
	m.StartSync(New("panic", func(*Task) error { panic("oops") }))

	assert.Equal(t, []string{
		"started:err", "failed:err", "finished:err",
		"started:panic", "failed:panic", "finished:panic",
	}, w.Entries())

	failures := w.Failures()
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0], boom)
	pe, ok := gferrors.AsPanic(failures[1])
	require.True(t, ok)
	assert.Equal(t, "oops", pe.Value)
}

func TestCancel(t *testing.T) {
	m := newTestManager(t, nil)
	w := watch(m)

	running := make(chan struct{})
	tk := New("loop", func(tk *Task) error {
		close(running)
		for !tk.Sleep(5 * time.Millisecond) {
		}
		assert.True(t, tk.Yield())
		<-tk.Context().Done()
		return nil
	})
	require.NoError(t, m.Start(tk))
	<-running

	m.CancelAll()
	assert.True(t, tk.IsCancelled())
	require.NoError(t, tk.WaitTimeout(testutil.TestTimeout))

	assert.Equal(t, StateFinished, tk.State())
	assert.Equal(t, []string{"started:loop", "cancelled:loop", "finished:loop"}, w.Entries())

	// Cancelling a finished task posts nothing.
	tk.Cancel()
	assert.Equal(t, 3, w.Len())
}

func TestCancelBeforeStartSkipsBody(t *testing.T) {
	m := newTestManager(t, nil)
	w := watch(m)

	ran := false
	tk := New("early", func(*Task) error {
		ran = true
		return nil
	})
	tk.Cancel()
	assert.Equal(t, StateCancelling, tk.State())

	m.StartSync(tk)
	assert.False(t, ran)
	assert.Equal(t, StateFinished, tk.State())
	assert.Equal(t, []string{"started:early", "finished:early"}, w.Entries())
}

func TestProgressThrottledPerManager(t *testing.T) {
	clk := testutil.NewMockClock(time.Time{})
	m := newTestManager(t, func(c *Config) { c.Clock = clk })
	w := watch(m)

	m.StartSync(New("a", func(tk *Task) error {
		tk.SetProgress(0.1)
		tk.SetProgress(0.2)
		clk.Advance(50 * time.Millisecond)
		tk.SetProgress(0.3)
		clk.Advance(50 * time.Millisecond)
		tk.SetProgress(0.4)
		return nil
	}))
	// A different task of the same manager shares the window.
	m.StartSync(New("b", func(tk *Task) error {
		tk.SetProgress(0.5)
		clk.Advance(100 * time.Millisecond)
		tk.SetProgress(0.6)
		return nil
	}))

	assert.Equal(t, []float64{0.1, 0.4, 0.6}, w.Progress())
}

func TestProgressUnthrottled(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.ProgressInterval = 0 })
	w := watch(m)

	tk := New("fast", func(tk *Task) error {
		for i := 1; i <= 5; i++ {
			tk.SetProgress(float64(i) / 5)
		}
		return nil
	})
	m.StartSync(tk)

	assert.Len(t, w.Progress(), 5)
	assert.Equal(t, 1.0, tk.Progress())
}

func TestStartRollsBackOnPoolRefusal(t *testing.T) {
	pool := newTestPool(t, 1, 1)
	m := newTestManager(t, func(c *Config) { c.Pool = pool })

	release := make(chan struct{})
	require.NoError(t, pool.StartFunc(func() { <-release }))
	defer func() {
		close(release)
		pool.JoinAll()
	}()

	tk := New("refused", func(*Task) error { return nil })
	err := m.Start(tk)
	assert.ErrorIs(t, err, threadpool.ErrNoThreadAvailable)
	assert.Equal(t, StateIdle, tk.State())
	assert.Nil(t, tk.Manager())
	assert.Equal(t, 0, m.Count())
}

func TestStartTwicePanics(t *testing.T) {
	m := newTestManager(t, nil)
	tk := New("once", func(*Task) error { return nil })
	m.StartSync(tk)

	assert.Panics(t, func() { m.StartSync(tk) })
	assert.Panics(t, func() { New("nil", nil) })
}

func TestReset(t *testing.T) {
	m := newTestManager(t, nil)
	runs := 0
	tk := New("again", func(tk *Task) error {
		runs++
		tk.SetProgress(1)
		return nil
	})
	m.StartSync(tk)
	tk.Cancel()

	tk.Reset()
	assert.Equal(t, StateIdle, tk.State())
	assert.False(t, tk.IsCancelled())
	assert.Zero(t, tk.Progress())
	assert.Nil(t, tk.Manager())
	assert.NoError(t, tk.Context().Err())

	require.NoError(t, m.Start(tk))
	tk.Wait()
	assert.Equal(t, 2, runs)
}

func TestResetWhileRunningPanics(t *testing.T) {
	m := newTestManager(t, nil)
	release := make(chan struct{})
	running := make(chan struct{})
	tk := New("busy", func(*Task) error {
		close(running)
		<-release
		return nil
	})
	require.NoError(t, m.Start(tk))
	<-running

	assert.Panics(t, tk.Reset)
	close(release)
	m.JoinAll()
}

func TestCustomNotification(t *testing.T) {
	m := newTestManager(t, nil)

	var got []string
	owner := &struct{ int }{}
	m.AddObserver(center.NewObserver(owner, func(n *Custom[string]) error {
		got = append(got, n.Task().Name()+"="+n.Data)
		return nil
	}))

	m.StartSync(New("emit", func(tk *Task) error {
		tk.PostNotification(NewCustom(tk, "halfway"))
		return nil
	}))
	assert.Equal(t, []string{"emit=halfway"}, got)

	// Without a manager the notification goes nowhere.
	orphan := New("orphan", func(*Task) error { return nil })
	assert.NotPanics(t, func() { orphan.PostNotification(NewCustom(orphan, "x")) })
}

func TestObserverErrorGoesToErrorHandler(t *testing.T) {
	var handled testutil.Recorder
	old := thread.SetErrorHandler(thread.ErrorHandlerFunc(func(err error) {
		handled.Record(err.Error())
	}))
	t.Cleanup(func() { thread.SetErrorHandler(old) })

	m := newTestManager(t, nil)
	owner := &struct{ int }{}
	m.AddObserver(center.NewObserver(owner, func(*Started) error {
		return errors.New("observer down")
	}))

	tk := New("robust", func(*Task) error { return nil })
	m.StartSync(tk)

	assert.Equal(t, StateFinished, tk.State())
	require.Equal(t, 1, handled.Len())
	assert.Contains(t, handled.Entries()[0], "observer down")
}

func TestRemoveObserver(t *testing.T) {
	m := newTestManager(t, nil)
	w := &watcher{}
	o := center.NewObserver(w, w.onStarted)
	m.AddObserver(o)
	assert.True(t, m.RemoveObserver(o))
	assert.False(t, m.RemoveObserver(o))

	m.StartSync(New("quiet", func(*Task) error { return nil }))
	assert.Zero(t, w.Len())
}

func TestJoinAllContext(t *testing.T) {
	m := newTestManager(t, nil)
	release := make(chan struct{})
	require.NoError(t, m.Start(New("slow", func(*Task) error {
		<-release
		return nil
	})))

	ctx, cancel := testutil.WithTimeout(t)
	cancel()
	assert.Error(t, m.JoinAllContext(ctx))

	close(release)
	ctx, cancel = testutil.WithTimeout(t)
	defer cancel()
	assert.NoError(t, m.JoinAllContext(ctx))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestManagerMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	m := newTestManager(t, func(c *Config) { c.Metrics = reg })

	m.StartSync(New("ok", func(*Task) error { return nil }))
	m.StartSync(New("bad", func(*Task) error { return errors.New("x") }))
	cancelled := New("cancelled", func(*Task) error { return nil })
	cancelled.Cancel()
	m.StartSync(cancelled)

	assert.Equal(t, 3.0, promtest.ToFloat64(reg.TasksStarted.WithLabelValues("test")))
	assert.Equal(t, 3.0, promtest.ToFloat64(reg.TasksFinished.WithLabelValues("test")))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.TasksFailed.WithLabelValues("test")))
	assert.Equal(t, 1, promtest.CollectAndCount(reg.TaskDuration))
}
