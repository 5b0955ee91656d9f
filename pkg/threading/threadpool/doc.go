/*
Package threadpool provides a bounded pool of reusable threads.

A ThreadPool owns between MinCapacity and MaxCapacity pooled threads. Start
hands a Runnable to an idle thread, creating a new one while the pool is
below MaxCapacity. There is no queue: when every thread is busy and the pool
cannot grow, Start fails immediately with ErrNoThreadAvailable.

Basic usage:

	pool := threadpool.New(2, 8, time.Minute)
	defer pool.StopAll()

	err := pool.StartFunc(func() {
		// Do work
	}, threadpool.WithName("indexer"))
	if errors.Is(err, threadpool.ErrNoThreadAvailable) {
		// Saturated: retry later or run elsewhere
	}

	pool.JoinAll()

Admission Control:

ErrNoThreadAvailable wraps errors.ErrCapacityExceeded, so callers can treat
it as a retryable condition. StartWithRetry retries only that error with a
fixed delay until the attempts run out or the context is done:

	err := pool.StartWithRetry(ctx, r, 10, 50*time.Millisecond)

Housekeeping:

Roughly every 32nd thread allocation, and on Collect, AddCapacity and
JoinAll, the pool partitions its threads into active, idle and expired
(idle for longer than IdleTime). Active threads are always kept. Idle
threads are kept up to max(MinCapacity, active+idle) and expired threads
fill any remaining room; the rest are stopped.

Failures:

A panic escaping a Runnable is recovered on the pool thread and forwarded
to the process-wide thread.ErrorHandler. The thread returns to idle and is
reused.

Default Pool:

Default returns a lazily created process-wide pool with DefaultConfig. The
active-object and task packages use it when no pool is configured.
*/
package threadpool
