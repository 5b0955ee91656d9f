// Package metrics provides Prometheus instrumentation for gofun components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "gofun"

// Registry holds all metric instances for gofun components.
type Registry struct {
	// Thread Pool Metrics
	PoolThreads    *prometheus.GaugeVec
	PoolActive     *prometheus.GaugeVec
	PoolStarts     *prometheus.CounterVec
	PoolRejections *prometheus.CounterVec
	PoolReleased   *prometheus.CounterVec

	// Notification Queue Metrics
	QueueDepth    *prometheus.GaugeVec
	QueueEnqueued *prometheus.CounterVec
	QueueDequeued *prometheus.CounterVec
	QueueWaiters  *prometheus.GaugeVec

	// Notification Center Metrics
	NotificationsPosted *prometheus.CounterVec
	ObserverErrors      *prometheus.CounterVec

	// Active Object Metrics
	AsyncCalls         *prometheus.CounterVec
	AsyncFailures      *prometheus.CounterVec
	AsyncDuration      *prometheus.HistogramVec
	DispatcherPending  *prometheus.GaugeVec
	DispatcherExecuted *prometheus.CounterVec

	// Task Manager Metrics
	TasksStarted          *prometheus.CounterVec
	TasksFinished         *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TasksCancelled        *prometheus.CounterVec
	TaskDuration          *prometheus.HistogramVec
	TaskProgressPosted    *prometheus.CounterVec
	TaskProgressThrottled *prometheus.CounterVec

	// Timer Metrics
	TimerScheduled *prometheus.CounterVec
	TimerFired     *prometheus.CounterVec

	// Redis Bridge Metrics
	BridgePublished *prometheus.CounterVec
	BridgeReceived  *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by gofun components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithNamespace(reg, DefaultNamespace)
}

// NewRegistryWithNamespace creates a registry whose metric names start with namespace.
func NewRegistryWithNamespace(reg prometheus.Registerer, namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   prometheus.DefBuckets,
		}, labels)
	}

	return &Registry{
		PoolThreads:    gauge("threadpool", "threads", "Number of threads allocated by the pool", "pool"),
		PoolActive:     gauge("threadpool", "active_threads", "Number of threads running a runnable", "pool"),
		PoolStarts:     counter("threadpool", "starts_total", "Total number of runnables started", "pool"),
		PoolRejections: counter("threadpool", "rejections_total", "Total number of starts rejected for lack of a thread", "pool"),
		PoolReleased:   counter("threadpool", "released_total", "Total number of idle threads released by housekeeping", "pool"),

		QueueDepth:    gauge("queue", "depth", "Number of notifications waiting in the queue", "queue"),
		QueueEnqueued: counter("queue", "enqueued_total", "Total number of notifications enqueued", "queue"),
		QueueDequeued: counter("queue", "dequeued_total", "Total number of notifications handed to consumers", "queue"),
		QueueWaiters:  gauge("queue", "waiters", "Number of consumers parked in a blocking dequeue", "queue"),

		NotificationsPosted: counter("center", "posted_total", "Total number of notifications posted", "center", "notification"),
		ObserverErrors:      counter("center", "observer_errors_total", "Total number of observer failures that aborted a post", "center"),

		AsyncCalls:         counter("async", "calls_total", "Total number of asynchronous method calls", "method"),
		AsyncFailures:      counter("async", "failures_total", "Total number of asynchronous calls that failed", "method"),
		AsyncDuration:      histogram("async", "duration_seconds", "Time spent executing asynchronous methods", "method"),
		DispatcherPending:  gauge("dispatcher", "pending", "Number of runnables waiting in the dispatcher queue", "dispatcher"),
		DispatcherExecuted: counter("dispatcher", "executed_total", "Total number of runnables executed by the dispatcher", "dispatcher"),

		TasksStarted:          counter("task", "started_total", "Total number of tasks started", "manager"),
		TasksFinished:         counter("task", "finished_total", "Total number of tasks finished", "manager"),
		TasksFailed:           counter("task", "failed_total", "Total number of tasks that failed", "manager"),
		TasksCancelled:        counter("task", "cancelled_total", "Total number of task cancellations", "manager"),
		TaskDuration:          histogram("task", "duration_seconds", "Time spent running tasks", "manager"),
		TaskProgressPosted:    counter("task", "progress_posted_total", "Total number of progress notifications posted", "manager"),
		TaskProgressThrottled: counter("task", "progress_throttled_total", "Total number of progress updates not posted due to throttling", "manager"),

		TimerScheduled: counter("timer", "scheduled_total", "Total number of timer schedules", "timer"),
		TimerFired:     counter("timer", "fired_total", "Total number of timer executions", "timer"),

		BridgePublished: counter("bridge", "published_total", "Total number of notifications published to redis", "channel"),
		BridgeReceived:  counter("bridge", "received_total", "Total number of notifications received from redis", "channel"),
	}
}
