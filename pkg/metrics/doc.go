// Package metrics provides Prometheus instrumentation for gofun components.
//
// Every instrumented component accepts an optional *Registry. A nil registry
// disables collection, so metrics cost nothing unless requested.
//
// # Quick Start
//
//	reg := metrics.New(metrics.Config{Enabled: true, Registry: prometheus.NewRegistry()})
//
//	pool, _ := threadpool.NewWithConfig(threadpool.Config{
//		Name:        "workers",
//		MinCapacity: 2,
//		MaxCapacity: 8,
//		Metrics:     reg,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Available Metrics
//
// Thread pool (label "pool"):
//   - gofun_threadpool_threads, gofun_threadpool_active_threads
//   - gofun_threadpool_starts_total, gofun_threadpool_rejections_total
//   - gofun_threadpool_released_total
//
// Notification queues (label "queue"):
//   - gofun_queue_depth, gofun_queue_waiters
//   - gofun_queue_enqueued_total, gofun_queue_dequeued_total
//
// Notification center (labels "center", "notification"):
//   - gofun_center_posted_total, gofun_center_observer_errors_total
//
// Active objects (labels "method", "dispatcher"):
//   - gofun_async_calls_total, gofun_async_failures_total, gofun_async_duration_seconds
//   - gofun_dispatcher_pending, gofun_dispatcher_executed_total
//
// Tasks (label "manager"):
//   - gofun_task_started_total, gofun_task_finished_total, gofun_task_failed_total
//   - gofun_task_cancelled_total, gofun_task_duration_seconds
//   - gofun_task_progress_posted_total, gofun_task_progress_throttled_total
//
// Timer (label "timer") and Redis bridge (label "channel"):
//   - gofun_timer_scheduled_total, gofun_timer_fired_total
//   - gofun_bridge_published_total, gofun_bridge_received_total
package metrics
