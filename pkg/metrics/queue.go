package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueMetrics binds the queue collectors to one queue label. The FIFO,
// priority and timed queues share it. A nil *QueueMetrics records nothing.
type QueueMetrics struct {
	depth    prometheus.Gauge
	enqueued prometheus.Counter
	dequeued prometheus.Counter
	waiters  prometheus.Gauge
}

// NewQueueMetrics returns metrics for the named queue, or nil when r is nil.
func (r *Registry) NewQueueMetrics(name string) *QueueMetrics {
	if r == nil {
		return nil
	}
	return &QueueMetrics{
		depth:    r.QueueDepth.WithLabelValues(name),
		enqueued: r.QueueEnqueued.WithLabelValues(name),
		dequeued: r.QueueDequeued.WithLabelValues(name),
		waiters:  r.QueueWaiters.WithLabelValues(name),
	}
}

// Enqueued counts one enqueue and records the resulting depth.
func (m *QueueMetrics) Enqueued(depth int) {
	if m == nil {
		return
	}
	m.enqueued.Inc()
	m.depth.Set(float64(depth))
}

// Dequeued counts one notification handed to a consumer.
func (m *QueueMetrics) Dequeued(depth int) {
	if m == nil {
		return
	}
	m.dequeued.Inc()
	m.depth.Set(float64(depth))
}

// Depth records the queue depth, e.g. after Clear.
func (m *QueueMetrics) Depth(depth int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(depth))
}

// Waiters records the number of parked consumers.
func (m *QueueMetrics) Waiters(n int) {
	if m == nil {
		return
	}
	m.waiters.Set(float64(n))
}
