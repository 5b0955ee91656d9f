package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/gofun/internal/testutil"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification"
)

func names(ns ...notification.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, notification.NameOf(n))
	}
	return out
}

func (q *Queue) parked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lot.Len()
}

func drain(q *Queue) []notification.Notification {
	var out []notification.Notification
	for n := q.Dequeue(); n != nil; n = q.Dequeue() {
		out = append(out, n)
	}
	return out
}

func TestFIFOOrder(t *testing.T) {
	q := New()
	assert.Nil(t, q.Dequeue())

	q.Enqueue(notification.New("a"))
	q.Enqueue(notification.New("b"))
	q.Enqueue(notification.New("c"))
	assert.Equal(t, 3, q.Size())

	assert.Equal(t, []string{"a", "b", "c"}, names(drain(q)...))
	assert.True(t, q.Empty())
}

func TestEnqueueUrgent(t *testing.T) {
	q := New()
	q.Enqueue(notification.New("a"))
	q.Enqueue(notification.New("b"))
	q.EnqueueUrgent(notification.New("u1"))
	q.EnqueueUrgent(notification.New("u2"))

	assert.Equal(t, []string{"u2", "u1", "a", "b"}, names(drain(q)...))
}

func TestEnqueueNilPanics(t *testing.T) {
	assert.Panics(t, func() { New().Enqueue(nil) })
}

func TestWaitDequeueReceivesHandoff(t *testing.T) {
	q := New()

	got := make(chan notification.Notification, 1)
	go func() { got <- q.WaitDequeue() }()

	testutil.Eventually(t, q.HasIdleThreads, testutil.TestTimeout, time.Millisecond)
	q.Enqueue(notification.New("direct"))

	select {
	case n := <-got:
		assert.Equal(t, "direct", n.Name())
	case <-time.After(testutil.TestTimeout):
		t.Fatal("parked consumer was not woken")
	}
	assert.True(t, q.Empty(), "handed-off notification must not be queued")
	assert.False(t, q.HasIdleThreads())
}

func TestWaitersServedInArrivalOrder(t *testing.T) {
	q := New()

	first := make(chan notification.Notification, 1)
	second := make(chan notification.Notification, 1)

	go func() { first <- q.WaitDequeue() }()
	testutil.Eventually(t, func() bool { return q.parked() == 1 }, testutil.TestTimeout, time.Millisecond)
	go func() { second <- q.WaitDequeue() }()
	testutil.Eventually(t, func() bool { return q.parked() == 2 }, testutil.TestTimeout, time.Millisecond)

	q.Enqueue(notification.New("one"))
	q.Enqueue(notification.New("two"))

	assert.Equal(t, "one", (<-first).Name())
	assert.Equal(t, "two", (<-second).Name())
}

func TestWaitDequeueTimeout(t *testing.T) {
	q := New()

	start := time.Now()
	n := q.WaitDequeueTimeout(30 * time.Millisecond)
	elapsed := time.Since(start)

	assert.Nil(t, n)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.False(t, q.HasIdleThreads(), "timed out waiter must leave the list")

	q.Enqueue(notification.New("later"))
	assert.Equal(t, 1, q.Size(), "nobody is parked, so the notification is queued")
}

func TestWaitDequeueTimeoutReturnsQueued(t *testing.T) {
	q := New()
	q.Enqueue(notification.New("ready"))

	n := q.WaitDequeueTimeout(time.Second)
	require.NotNil(t, n)
	assert.Equal(t, "ready", n.Name())
	assert.Nil(t, q.WaitDequeueTimeout(0))
}

func TestWaitDequeueContext(t *testing.T) {
	q := New()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := q.WaitDequeueContext(ctx)
	assert.Nil(t, n)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, q.HasIdleThreads())
}

func TestWakeUpAll(t *testing.T) {
	q := New()

	const consumers = 3
	var wg sync.WaitGroup
	results := make(chan notification.Notification, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- q.WaitDequeue()
		}()
	}
	testutil.Eventually(t, func() bool { return q.parked() == consumers }, testutil.TestTimeout, time.Millisecond)

	q.WakeUpAll()
	wg.Wait()
	close(results)

	for n := range results {
		assert.Nil(t, n)
	}
	assert.False(t, q.HasIdleThreads())
}

func TestClear(t *testing.T) {
	q := New()
	q.Enqueue(notification.New("a"))
	q.EnqueueUrgent(notification.New("b"))

	q.Clear()
	assert.True(t, q.Empty())
	assert.Nil(t, q.Dequeue())
}

type recordingPoster struct {
	posted []string
	failOn string
}

func (p *recordingPoster) Post(n notification.Notification) error {
	if n.Name() == p.failOn {
		return errors.New("rejected " + n.Name())
	}
	p.posted = append(p.posted, n.Name())
	return nil
}

func TestDispatch(t *testing.T) {
	q := New()
	for _, name := range []string{"a", "b", "c"} {
		q.Enqueue(notification.New(name))
	}

	p := &recordingPoster{failOn: "b"}
	err := q.Dispatch(p)
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, p.posted)
	assert.Equal(t, 1, q.Size(), "notifications after the failure stay queued")

	p.failOn = ""
	require.NoError(t, q.Dispatch(p))
	assert.Equal(t, []string{"a", "c"}, p.posted)
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New()

	const producers, perProducer = 4, 250
	var consumed sync.WaitGroup
	consumed.Add(producers * perProducer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumers sync.WaitGroup
	for i := 0; i < 3; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				n, err := q.WaitDequeueContext(ctx)
				if err != nil || n == nil {
					return
				}
				consumed.Done()
			}
		}()
	}

	for i := 0; i < producers; i++ {
		go func() {
			for j := 0; j < perProducer; j++ {
				q.Enqueue(notification.New("item"))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		consumed.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testutil.TestTimeout):
		t.Fatal("not every notification was consumed")
	}

	cancel()
	consumers.Wait()
	assert.True(t, q.Empty())
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	q := New(WithName("jobs"), WithMetrics(reg))
	assert.Equal(t, "jobs", q.Name())

	q.Enqueue(notification.New("a"))
	q.Enqueue(notification.New("b"))
	q.Dequeue()

	assert.Equal(t, 2.0, promtest.ToFloat64(reg.QueueEnqueued.WithLabelValues("jobs")))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.QueueDequeued.WithLabelValues("jobs")))
	assert.Equal(t, 1.0, promtest.ToFloat64(reg.QueueDepth.WithLabelValues("jobs")))
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}
