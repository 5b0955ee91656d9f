package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	gfcontext "github.com/vnykmshr/gofun/pkg/common/context"
	"github.com/vnykmshr/gofun/pkg/config"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification/center"
	"github.com/vnykmshr/gofun/pkg/notification/redisbridge"
	"github.com/vnykmshr/gofun/pkg/task"
	"github.com/vnykmshr/gofun/pkg/threading/thread"
	"github.com/vnykmshr/gofun/pkg/threading/threadpool"
	"github.com/vnykmshr/gofun/pkg/timer"
)

const (
	defaultStepDelay  = 50 * time.Millisecond
	heartbeatInterval = time.Second
	startRetryDelay   = 10 * time.Millisecond
)

// workload describes the synthetic tasks of a run.
type workload struct {
	Tasks     int
	Steps     int
	StepDelay time.Duration
	Out       io.Writer
}

// reporter prints task notifications, one line each.
type reporter struct {
	mu       sync.Mutex
	out      io.Writer
	finished atomic.Int32
	failed   atomic.Int32
}

func (r *reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *reporter) onStarted(n *task.Started) error {
	r.printf("%-10s started", n.Task().Name())
	return nil
}

func (r *reporter) onProgress(n *task.Progress) error {
	r.printf("%-10s %3.0f%%", n.Task().Name(), n.Progress*100)
	return nil
}

func (r *reporter) onCancelled(n *task.Cancelled) error {
	r.printf("%-10s cancelled", n.Task().Name())
	return nil
}

func (r *reporter) onFailed(n *task.Failed) error {
	r.failed.Add(1)
	r.printf("%-10s failed: %v", n.Task().Name(), n.Err)
	return nil
}

func (r *reporter) onFinished(n *task.Finished) error {
	r.finished.Add(1)
	r.printf("%-10s finished", n.Task().Name())
	return nil
}

func (r *reporter) onRemote(n *redisbridge.Remote) error {
	r.printf("remote     %s from %s", n.Envelope.Name, n.Origin)
	return nil
}

func (r *reporter) observe(m *task.Manager) {
	m.AddObserver(center.NewObserver(r, r.onStarted))
	m.AddObserver(center.NewObserver(r, r.onProgress))
	m.AddObserver(center.NewObserver(r, r.onCancelled))
	m.AddObserver(center.NewObserver(r, r.onFailed))
	m.AddObserver(center.NewObserver(r, r.onFinished))
}

// runWorkload wires the runtime from cfg, runs w and tears everything down.
// It returns when every task has finished or ctx is done.
func runWorkload(ctx context.Context, cfg config.Config, w workload) error {
	if w.Out == nil {
		w.Out = os.Stdout
	}

	logger, closer, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg := metrics.New(metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Registry:  promReg,
		Namespace: cfg.Metrics.Namespace,
	})

	poolCfg := cfg.ThreadPool.Config()
	poolCfg.Logger = logger
	poolCfg.Metrics = reg
	pool, err := threadpool.NewWithConfig(poolCfg)
	if err != nil {
		return err
	}
	defer pool.StopAll()

	manager, err := task.NewManager(task.Config{
		Name:             cfg.TaskManager.Name,
		Pool:             pool,
		ProgressInterval: cfg.TaskManager.ProgressInterval,
		Logger:           logger,
		Metrics:          reg,
	})
	if err != nil {
		return err
	}

	rep := &reporter{out: w.Out}
	rep.observe(manager)

	zone, err := cfg.Timer.Zone()
	if err != nil {
		return err
	}
	timerOpts := []timer.Option{
		timer.WithName(cfg.Timer.Name),
		timer.WithLocation(zone),
		timer.WithLogger(logger),
		timer.WithMetrics(reg),
	}
	if cfg.Timer.UsePool {
		timerOpts = append(timerOpts, timer.WithPool(pool))
	}
	tm, err := timer.New(timerOpts...)
	if err != nil {
		return err
	}
	defer tm.Stop()

	if _, err := tm.ScheduleAtFixedRate(thread.RunnableFunc(func() {
		logger.Info("heartbeat",
			"tasks", manager.Count(),
			"threads", pool.Allocated(),
			"available", pool.Available())
	}), heartbeatInterval, heartbeatInterval); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		serveMetrics(gctx, g, cfg.Metrics.Addr, promReg, logger)
	}

	if cfg.Redis.Enabled {
		client, err := bridgeRedis(gctx, g, cfg.Redis, manager, rep, reg, logger)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		defer client.Close()
	}

	g.Go(func() error {
		defer cancel()
		err := startTasks(gctx, manager, w)
		if err != nil || manager.JoinAllContext(gctx) != nil {
			manager.CancelAll()
			manager.JoinAll()
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	rep.printf("done: %d finished, %d failed", rep.finished.Load(), rep.failed.Load())
	return nil
}

// startTasks starts w.Tasks tasks, waiting for a free pool thread when the
// pool is saturated.
func startTasks(ctx context.Context, m *task.Manager, w workload) error {
	for i := 1; i <= w.Tasks; i++ {
		t := task.New(fmt.Sprintf("task-%02d", i), stepBody(w.Steps, w.StepDelay))
		for {
			err := m.Start(t)
			if err == nil {
				break
			}
			if !errors.Is(err, threadpool.ErrNoThreadAvailable) {
				return err
			}
			if !gfcontext.Sleep(ctx, startRetryDelay) {
				return nil
			}
		}
	}
	return nil
}

func stepBody(steps int, delay time.Duration) task.Body {
	return func(t *task.Task) error {
		for i := 1; i <= steps; i++ {
			if t.Sleep(delay) {
				return nil
			}
			t.SetProgress(float64(i) / float64(steps))
		}
		return nil
	}
}

// serveMetrics runs a /metrics endpoint in g until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
