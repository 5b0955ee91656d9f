// Package queue provides a blocking FIFO notification queue.
//
// Producers call Enqueue or EnqueueUrgent; consumers call Dequeue to poll
// or one of the WaitDequeue variants to block. When a consumer is parked,
// Enqueue hands the notification straight to the oldest parked consumer
// instead of queuing it.
package queue

import (
	"context"
	"sync"
	"time"

	eq "github.com/eapache/queue"

	"github.com/vnykmshr/gofun/internal/parking"
	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification"
)

// Poster receives notifications drained by Dispatch. *center.Center
// satisfies it.
type Poster interface {
	Post(n notification.Notification) error
}

// Option configures a Queue.
type Option func(*Queue)

// WithName labels the queue's metrics.
func WithName(name string) Option {
	return func(q *Queue) { q.name = name }
}

// WithMetrics enables metrics on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(q *Queue) { q.reg = reg }
}

// Queue is a thread-safe FIFO of notifications. Urgent notifications are
// served before regular ones, most recent first.
type Queue struct {
	name    string
	reg     *metrics.Registry
	metrics *metrics.QueueMetrics

	mu     sync.Mutex
	urgent []notification.Notification
	items  *eq.Queue
	lot    parking.Lot[notification.Notification]
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		name:  "default",
		items: eq.New(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.metrics = q.reg.NewQueueMetrics(q.name)
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue appends n, or hands it to the oldest parked consumer.
func (q *Queue) Enqueue(n notification.Notification) {
	q.enqueue(n, false)
}

// EnqueueUrgent puts n in front of every regular notification, or hands it
// to the oldest parked consumer.
func (q *Queue) EnqueueUrgent(n notification.Notification) {
	q.enqueue(n, true)
}

func (q *Queue) enqueue(n notification.Notification, urgent bool) {
	if n == nil {
		panic("queue: nil notification")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lot.Unpark(n) {
		q.metrics.Enqueued(q.sizeLocked())
		q.metrics.Dequeued(q.sizeLocked())
		q.metrics.Waiters(q.lot.Len())
		return
	}
	if urgent {
		q.urgent = append(q.urgent, n)
	} else {
		q.items.Add(n)
	}
	q.metrics.Enqueued(q.sizeLocked())
}

// Dequeue removes and returns the next notification, or nil if the queue
// is empty. It never blocks.
func (q *Queue) Dequeue() notification.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() notification.Notification {
	var n notification.Notification
	switch {
	case len(q.urgent) > 0:
		last := len(q.urgent) - 1
		n = q.urgent[last]
		q.urgent[last] = nil
		q.urgent = q.urgent[:last]
	case q.items.Length() > 0:
		n = q.items.Remove().(notification.Notification)
	default:
		return nil
	}
	q.metrics.Dequeued(q.sizeLocked())
	return n
}

// WaitDequeue blocks until a notification is available. It returns nil
// when the queue is woken with WakeUpAll.
func (q *Queue) WaitDequeue() notification.Notification {
	n, _ := q.wait(context.Background(), nil)
	return n
}

// WaitDequeueTimeout blocks for at most d. It returns nil on timeout or
// WakeUpAll.
func (q *Queue) WaitDequeueTimeout(d time.Duration) notification.Notification {
	if d <= 0 {
		return q.Dequeue()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	n, _ := q.wait(context.Background(), timer.C)
	return n
}

// WaitDequeueContext blocks until a notification arrives or ctx is done,
// in which case it returns ctx.Err(). It returns nil, nil on WakeUpAll.
func (q *Queue) WaitDequeueContext(ctx context.Context) (notification.Notification, error) {
	return q.wait(ctx, nil)
}

func (q *Queue) wait(ctx context.Context, expired <-chan time.Time) (notification.Notification, error) {
	q.mu.Lock()
	if n := q.dequeueLocked(); n != nil {
		q.mu.Unlock()
		return n, nil
	}
	w := q.lot.Park()
	q.metrics.Waiters(q.lot.Len())
	q.mu.Unlock()

	select {
	case n := <-w.C():
		return n, nil
	case <-expired:
		return q.abandon(w, gferrors.ErrTimeout)
	case <-ctx.Done():
		return q.abandon(w, ctx.Err())
	}
}

// abandon unparks w after a timeout or cancellation. If a producer got to
// w first, the delivered notification wins over err.
func (q *Queue) abandon(w *parking.Waiter[notification.Notification], err error) (notification.Notification, error) {
	q.mu.Lock()
	removed := q.lot.Remove(w)
	q.metrics.Waiters(q.lot.Len())
	q.mu.Unlock()

	if removed {
		return nil, err
	}
	return <-w.C(), nil
}

// Dispatch drains the queue into p in dequeue order. It stops at the first
// error, leaving the remaining notifications queued.
func (q *Queue) Dispatch(p Poster) error {
	for n := q.Dequeue(); n != nil; n = q.Dequeue() {
		if err := p.Post(n); err != nil {
			return err
		}
	}
	return nil
}

// WakeUpAll releases every parked consumer with a nil notification.
func (q *Queue) WakeUpAll() {
	q.mu.Lock()
	q.lot.WakeAll()
	q.metrics.Waiters(0)
	q.mu.Unlock()
}

// Empty reports whether nothing is queued.
func (q *Queue) Empty() bool {
	return q.Size() == 0
}

// Size returns the number of queued notifications.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

func (q *Queue) sizeLocked() int {
	return len(q.urgent) + q.items.Length()
}

// Clear drops every queued notification.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.urgent)
	q.urgent = q.urgent[:0]
	for q.items.Length() > 0 {
		q.items.Remove()
	}
	q.metrics.Depth(0)
}

// HasIdleThreads reports whether a consumer is parked waiting.
func (q *Queue) HasIdleThreads() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lot.Len() > 0
}

var (
	defaultOnce  sync.Once
	defaultQueue *Queue
)

// Default returns the process-wide queue.
func Default() *Queue {
	defaultOnce.Do(func() {
		defaultQueue = New(WithMetrics(metrics.DefaultRegistry))
	})
	return defaultQueue
}
