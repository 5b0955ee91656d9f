package benchmark

import (
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/gofun/pkg/active/async"
	"github.com/vnykmshr/gofun/pkg/active/dispatcher"
	"github.com/vnykmshr/gofun/pkg/task"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
	"github.com/vnykmshr/gofun/pkg/threading/threadpool"
)

func newPool(b *testing.B, threads int) *threadpool.ThreadPool {
	b.Helper()
	cfg := threadpool.DefaultConfig()
	cfg.Name = "bench"
	cfg.MinCapacity, cfg.MaxCapacity = threads, threads
	pool, err := threadpool.NewWithConfig(cfg)
	if err != nil {
		b.Fatalf("failed to create pool: %v", err)
	}
	b.Cleanup(pool.StopAll)
	return pool
}

// BenchmarkThreadPoolStart measures handing a runnable to an idle pool
// thread and waiting for it.
func BenchmarkThreadPoolStart(b *testing.B) {
	for _, threads := range []int{1, 4, 16} {
		b.Run(threadLabel(threads), func(b *testing.B) {
			pool := newPool(b, threads)
			var wg sync.WaitGroup
			r := thread.RunnableFunc(wg.Done)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				wg.Add(1)
				for pool.Start(r) != nil {
					time.Sleep(time.Microsecond)
				}
			}
			wg.Wait()
		})
	}
}

// BenchmarkGoroutineStart is the plain goroutine equivalent of
// BenchmarkThreadPoolStart.
func BenchmarkGoroutineStart(b *testing.B) {
	var wg sync.WaitGroup
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		go wg.Done()
	}
	wg.Wait()
}

// BenchmarkAsyncMethod measures a call and result round trip through a
// dispatcher.
func BenchmarkAsyncMethod(b *testing.B) {
	d, err := dispatcher.New(dispatcher.WithName("bench"))
	if err != nil {
		b.Fatalf("failed to create dispatcher: %v", err)
	}
	defer d.Stop()

	inc := async.NewMethod(func(n int) (int, error) { return n + 1, nil }, async.WithStarter(d))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, err := inc.Call(i)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := r.Get(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkTaskStartSync measures task bookkeeping and notification
// delivery without a pool hop.
func BenchmarkTaskStartSync(b *testing.B) {
	m, err := task.NewManager(task.Config{Name: "bench", Pool: newPool(b, 1)})
	if err != nil {
		b.Fatalf("failed to create manager: %v", err)
	}
	body := func(t *task.Task) error {
		t.SetProgress(1)
		return nil
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.StartSync(task.New("bench", body))
	}
}
