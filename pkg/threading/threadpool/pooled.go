package threadpool

import (
	"fmt"
	"sync"
	"time"

	"github.com/vnykmshr/gofun/pkg/threading/event"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
)

// pooledThread is one reusable goroutine owned by a ThreadPool. It is idle
// while target is nil and active from activate until the target returns.
type pooledThread struct {
	pool *ThreadPool
	name string

	mu        sync.Mutex
	idle      bool
	idleSince time.Time
	target    thread.Runnable
	label     string
	cpu       int

	targetReady     *event.Event
	targetCompleted *event.Event
	stopped         chan struct{}
}

func newPooledThread(p *ThreadPool, name string) *pooledThread {
	pt := &pooledThread{
		pool:            p,
		name:            name,
		idle:            true,
		idleSince:       p.clock.Now(),
		cpu:             thread.NoAffinity,
		targetReady:     event.New(event.AutoReset),
		targetCompleted: event.New(event.ManualReset),
		stopped:         make(chan struct{}),
	}
	pt.targetCompleted.Set()
	go pt.run()
	return pt
}

func (pt *pooledThread) isIdle() bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.idle
}

func (pt *pooledThread) idleFor(now time.Time) time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if !pt.idle {
		return 0
	}
	return now.Sub(pt.idleSince)
}

// activate claims an idle thread for the caller. It must be called with the
// pool lock held so two Start calls cannot claim the same thread.
func (pt *pooledThread) activate() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if !pt.idle {
		panic(fmt.Sprintf("threadpool: thread %s activated while busy", pt.name))
	}
	pt.idle = false
	pt.targetCompleted.Reset()
}

func (pt *pooledThread) start(r thread.Runnable, o startOptions) {
	pt.mu.Lock()
	pt.target = r
	pt.label = o.name
	pt.cpu = o.cpu
	pt.mu.Unlock()

	pt.pool.logger.Debug("runnable started",
		"thread", pt.name,
		"runnable", o.name,
		"priority", o.priority.String())
	pt.targetReady.Set()
}

// join waits for the current target, if any, to return.
func (pt *pooledThread) join() {
	pt.targetCompleted.Wait()
}

// stop asks the goroutine to exit once its current target returns and waits
// for it.
func (pt *pooledThread) stop() {
	pt.mu.Lock()
	pt.target = nil
	pt.mu.Unlock()
	pt.targetReady.Set()
	<-pt.stopped
}

func (pt *pooledThread) run() {
	defer close(pt.stopped)

	for {
		pt.targetReady.Wait()

		pt.mu.Lock()
		r, cpu, label := pt.target, pt.cpu, pt.label
		pt.mu.Unlock()
		if r == nil {
			return
		}

		pt.execute(r, cpu, label)

		// idle and targetCompleted change together under mu.
		pt.mu.Lock()
		pt.target = nil
		pt.label = ""
		pt.cpu = thread.NoAffinity
		pt.idle = true
		pt.idleSince = pt.pool.clock.Now()
		pt.targetCompleted.Set()
		pt.mu.Unlock()

		pt.pool.finished()
	}
}

func (pt *pooledThread) execute(r thread.Runnable, cpu int, label string) {
	if cpu != thread.NoAffinity {
		unpin, err := thread.PinCPU(cpu)
		if err != nil {
			pt.pool.logger.Warn("cpu affinity not applied",
				"thread", pt.name,
				"runnable", label,
				"cpu", cpu,
				"error", err)
		} else {
			defer unpin()
		}
	}

	defer func() {
		if p := recover(); p != nil {
			thread.HandlePanic(p)
		}
	}()
	r.Run()
}
