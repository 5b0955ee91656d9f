package async

import (
	"github.com/vnykmshr/gofun/pkg/threading/thread"
	"github.com/vnykmshr/gofun/pkg/threading/threadpool"
)

// Starter schedules a runnable for execution. It returns an error when the
// runnable could not be scheduled; once scheduled, the runnable reports
// through its own result.
type Starter interface {
	Start(r thread.Runnable) error
}

// StarterFunc adapts a function to the Starter interface.
type StarterFunc func(r thread.Runnable) error

// Start calls f(r).
func (f StarterFunc) Start(r thread.Runnable) error {
	return f(r)
}

// PoolStarter runs each call on a thread pool, so calls execute in
// parallel and in no particular order.
type PoolStarter struct {
	// Pool runs the calls. Nil means threadpool.Default().
	Pool *threadpool.ThreadPool
}

// Start implements Starter.
func (s PoolStarter) Start(r thread.Runnable) error {
	pool := s.Pool
	if pool == nil {
		pool = threadpool.Default()
	}
	return pool.Start(r)
}
