package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
	"github.com/vnykmshr/gofun/pkg/threading/threadpool"
)

func testPool(t *testing.T) *threadpool.ThreadPool {
	t.Helper()
	p := threadpool.New(2, 4, time.Minute)
	t.Cleanup(p.StopAll)
	return p
}

// inline runs every call on the calling goroutine.
var inline = StarterFunc(func(r thread.Runnable) error {
	r.Run()
	return nil
})

type calculator struct {
	calls atomic.Int32
}

func (c *calculator) square(n int) (int, error) {
	c.calls.Add(1)
	if n < 0 {
		return 0, errors.New("negative input")
	}
	return n * n, nil
}

func TestCallReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	m := NewMethod(func(n int) (int, error) {
		<-release
		return n + 1, nil
	}, WithStarter(PoolStarter{Pool: testPool(t)}))

	result, err := m.Call(41)
	require.NoError(t, err)
	assert.False(t, result.Available())
	assert.False(t, result.TryWait(10*time.Millisecond))

	close(release)
	v, err := result.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, result.Available())
	assert.False(t, result.Failed())
}

func TestMethodValueBindsOwner(t *testing.T) {
	c := &calculator{}
	m := NewMethod(c.square, WithStarter(PoolStarter{Pool: testPool(t)}))

	result, err := m.Call(7)
	require.NoError(t, err)
	result.Wait()

	assert.Equal(t, 49, result.Data())
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestErrorStoredOnResult(t *testing.T) {
	c := &calculator{}
	m := NewMethod(c.square, WithStarter(inline))

	result, err := m.Call(-1)
	require.NoError(t, err)
	require.True(t, result.Available())
	assert.True(t, result.Failed())
	assert.EqualError(t, result.Error(), "negative input")
}

func TestPanicStoredOnResult(t *testing.T) {
	m := NewMethod(func(string) (int, error) { panic("kaboom") }, WithStarter(PoolStarter{Pool: testPool(t)}))

	result, err := m.Call("x")
	require.NoError(t, err)
	require.NoError(t, result.WaitTimeout(time.Second))

	assert.True(t, result.Failed())
	pe, ok := gferrors.AsPanic(result.Error())
	require.True(t, ok)
	assert.Equal(t, "kaboom", pe.Value)
}

func TestStartFailurePropagates(t *testing.T) {
	rejected := errors.New("no room")
	m := NewMethod(func(int) (int, error) {
		t.Error("must not run")
		return 0, nil
	}, WithStarter(StarterFunc(func(thread.Runnable) error { return rejected })))

	result, err := m.Call(1)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, rejected)
}

func TestSaturatedPoolRejectsCall(t *testing.T) {
	pool := threadpool.New(1, 1, time.Minute)
	defer pool.StopAll()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.StartFunc(func() {
		close(started)
		<-release
	}))
	<-started
	defer close(release)

	m := NewMethod(func(int) (int, error) { return 0, nil }, WithStarter(PoolStarter{Pool: pool}))
	_, err := m.Call(1)
	assert.ErrorIs(t, err, threadpool.ErrNoThreadAvailable)
}

func TestResultWaitVariants(t *testing.T) {
	r := NewResult[string]()

	assert.ErrorIs(t, r.WaitTimeout(5*time.Millisecond), gferrors.ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.GetContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	r.SetData("ready")
	r.Notify()

	v, err := r.GetContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.NoError(t, r.WaitTimeout(time.Millisecond))
}

func TestResultSingleWriter(t *testing.T) {
	r := NewResult[int]()
	r.SetData(1)
	r.Notify()

	assert.Panics(t, func() { r.Notify() })
	assert.Panics(t, func() { r.SetData(2) })
	assert.Panics(t, func() { r.SetError(errors.New("late")) })
	assert.Equal(t, 1, r.Data())
}

func TestRunnableCancel(t *testing.T) {
	result := NewResult[int]()
	r := NewRunnable(func(int) (int, error) {
		t.Error("must not run")
		return 0, nil
	}, 3, result)
	assert.Same(t, result, r.Result())

	r.Cancel(gferrors.ErrCancelled)
	assert.True(t, result.Available())
	assert.ErrorIs(t, result.Error(), gferrors.ErrCancelled)
}

func TestNilMethodPanics(t *testing.T) {
	assert.Panics(t, func() { NewMethod[int, int](nil) })
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	c := &calculator{}
	m := NewMethod(c.square, WithStarter(inline), WithName("square"), WithMetrics(reg))

	_, err := m.Call(2)
	require.NoError(t, err)
	_, err = m.Call(-2)
	require.NoError(t, err)

	assert.Equal(t, 2.0, promtest.ToFloat64(reg.AsyncCalls.WithLabelValues("square")))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.AsyncFailures.WithLabelValues("square")))
	assert.Equal(t, 1, promtest.CollectAndCount(reg.AsyncDuration))
}
