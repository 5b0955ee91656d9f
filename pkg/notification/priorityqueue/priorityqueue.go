// Package priorityqueue provides a blocking notification queue ordered by
// an integer priority. Lower values are served first; notifications with
// equal priority keep their insertion order.
package priorityqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/gofun/internal/parking"
	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification"
)

type entry struct {
	n        notification.Notification
	priority int
	seq      uint64
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	last := len(old) - 1
	e := old[last]
	old[last] = entry{}
	*h = old[:last]
	return e
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

// Queue is a thread-safe priority queue of notifications.
type Queue struct {
	name    string
	reg     *metrics.Registry
	metrics *metrics.QueueMetrics

	mu    sync.Mutex
	items entryHeap
	seq   uint64
	lot   parking.Lot[notification.Notification]
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{name: "priority"}
	for _, opt := range opts {
		opt(q)
	}
	q.metrics = q.reg.NewQueueMetrics(q.name)
	return q
}

// Enqueue inserts n with the given priority, or hands it to the oldest
// parked consumer.
func (q *Queue) Enqueue(n notification.Notification, priority int) {
	if n == nil {
		panic("priorityqueue: nil notification")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lot.Unpark(n) {
		q.metrics.Enqueued(len(q.items))
		q.metrics.Dequeued(len(q.items))
		q.metrics.Waiters(q.lot.Len())
		return
	}
	q.seq++
	heap.Push(&q.items, entry{n: n, priority: priority, seq: q.seq})
	q.metrics.Enqueued(len(q.items))
}

// Dequeue removes and returns the notification with the lowest priority
// value, or nil if the queue is empty.
func (q *Queue) Dequeue() notification.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() notification.Notification {
	if len(q.items) == 0 {
		return nil
	}
	e := heap.Pop(&q.items).(entry)
	q.metrics.Dequeued(len(q.items))
	return e.n
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

// WaitDequeueContext blocks until a notification arrives or ctx is done.
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

	var err error
	select {
	case n := <-w.C():
		return n, nil
	case <-expired:
		err = gferrors.ErrTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	q.mu.Lock()
	removed := q.lot.Remove(w)
	q.metrics.Waiters(q.lot.Len())
	q.mu.Unlock()
	if removed {
		return nil, err
	}
	return <-w.C(), nil
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
	return len(q.items)
}

// Clear drops every queued notification.
func (q *Queue) Clear() {
	q.mu.Lock()
	clear(q.items)
	q.items = q.items[:0]
	q.metrics.Depth(0)
	q.mu.Unlock()
}

// HasIdleThreads reports whether a consumer is parked waiting.
func (q *Queue) HasIdleThreads() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lot.Len() > 0
}
