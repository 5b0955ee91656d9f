/*
Package gofun provides a concurrency runtime for Go applications built from
threads, thread pools, notification queues and active objects.

Threading (pkg/threading):
  - event: Auto and manual reset events
  - thread: Named threads with CPU affinity and a process-wide error handler
  - threadpool: Bounded pool of reusable threads with admission control

Notifications (pkg/notification):
  - queue: FIFO notification queue with urgent entries
  - priorityqueue: Notification queue ordered by priority
  - timedqueue: Notification queue ordered by due time
  - center: Synchronous observer registry
  - redisbridge: Notification fan-out across processes over Redis Pub/Sub

Active objects (pkg/active):
  - async: Typed results, runnables and active methods
  - dispatcher: Serializes active method calls on one thread

Tasks and timers:
  - task: Cancellable, progress-reporting tasks and their manager
  - timer: One-shot, fixed-delay, fixed-rate and cron schedules

Example usage:

	import (
		"github.com/vnykmshr/gofun/pkg/notification/center"
		"github.com/vnykmshr/gofun/pkg/task"
		"github.com/vnykmshr/gofun/pkg/threading/threadpool"
	)

	pool := threadpool.New(2, 8, time.Minute)
	defer pool.StopAll()

	m, _ := task.NewManager(task.Config{Pool: pool})
	m.AddObserver(center.NewObserver(ui, ui.onProgress))

	m.Start(task.New("import", func(t *task.Task) error {
		for i := 1; i <= 10 && !t.IsCancelled(); i++ {
			t.SetProgress(float64(i) / 10)
		}
		return nil
	}))
	m.JoinAll()
*/
package gofun
