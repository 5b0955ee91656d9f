// Package timedqueue provides a notification queue ordered by due time.
//
// A notification becomes available once its due time has passed. A
// consumer blocked in WaitDequeue sleeps until the earliest due time, in
// chunks of at most eight hours so wall clock adjustments are picked up,
// and is woken early by any Enqueue so that a newly queued, earlier item is
// not overslept.
//
// Only one consumer may wait at a time. Several goroutines racing on
// WaitDequeue is not supported.
package timedqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/gofun/pkg/common/clock"
	gfcontext "github.com/vnykmshr/gofun/pkg/common/context"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification"
	"github.com/vnykmshr/gofun/pkg/threading/event"
)

// maxSleep caps a single sleep of a waiting consumer.
const maxSleep = 8 * time.Hour

type entry struct {
	n   notification.Notification
	at  time.Time
	seq uint64
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
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

// WithClock sets the time source used to decide whether an entry is due.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// Queue is a thread-safe, due-time ordered notification queue.
type Queue struct {
	name    string
	reg     *metrics.Registry
	metrics *metrics.QueueMetrics
	clock   clock.Clock

	mu    sync.Mutex
	items entryHeap
	seq   uint64

	available *event.Event
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		name:      "timed",
		available: event.New(event.AutoReset),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.clock = clock.OrSystem(q.clock)
	q.metrics = q.reg.NewQueueMetrics(q.name)
	return q
}

// Enqueue schedules n to become available at at.
func (q *Queue) Enqueue(n notification.Notification, at time.Time) {
	if n == nil {
		panic("timedqueue: nil notification")
	}

	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, entry{n: n, at: at, seq: q.seq})
	q.metrics.Enqueued(len(q.items))
	q.mu.Unlock()

	q.available.Set()
}

// EnqueueAfter schedules n to become available d from now.
func (q *Queue) EnqueueAfter(n notification.Notification, d time.Duration) {
	q.Enqueue(n, q.clock.Now().Add(d))
}

// Dequeue returns the earliest notification if it is due, otherwise nil.
func (q *Queue) Dequeue() notification.Notification {
	n, _, _ := q.next()
	return n
}

// next pops the head if it is due. Otherwise it returns how long until the
// head is due, and false if the queue is empty.
func (q *Queue) next() (notification.Notification, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, 0, false
	}
	wait := q.items[0].at.Sub(q.clock.Now())
	if wait > 0 {
		return nil, wait, true
	}
	e := heap.Pop(&q.items).(entry)
	q.metrics.Dequeued(len(q.items))
	return e.n, 0, true
}

// WaitDequeue blocks until a notification is due.
func (q *Queue) WaitDequeue() notification.Notification {
	n, _ := q.WaitDequeueContext(context.Background())
	return n
}

// WaitDequeueTimeout blocks for at most d until a notification is due. It
// returns nil if none became due in time.
func (q *Queue) WaitDequeueTimeout(d time.Duration) notification.Notification {
	if d <= 0 {
		return q.Dequeue()
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	n, _ := q.WaitDequeueContext(ctx)
	return n
}

// WaitDequeueContext blocks until a notification is due or ctx is done.
func (q *Queue) WaitDequeueContext(ctx context.Context) (notification.Notification, error) {
	for {
		n, wait, ok := q.next()
		if n != nil {
			return n, nil
		}

		sleep := maxSleep
		if ok && wait < sleep {
			sleep = wait
		}

		q.metrics.Waiters(1)
		waitCtx, cancel := gfcontext.WithTimeoutOrCancel(ctx, sleep)
		_ = q.available.WaitContext(waitCtx)
		cancel()
		q.metrics.Waiters(0)

		if err := ctx.Err(); err != nil {
			// An entry may have become due exactly as ctx expired.
			if n := q.Dequeue(); n != nil {
				return n, nil
			}
			return nil, err
		}
	}
}

// Empty reports whether nothing is queued, due or not.
func (q *Queue) Empty() bool {
	return q.Size() == 0
}

// Size returns the number of queued notifications, due or not.
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
