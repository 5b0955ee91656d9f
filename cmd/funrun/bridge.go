package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/gofun/pkg/config"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification/center"
	"github.com/vnykmshr/gofun/pkg/notification/queue"
	"github.com/vnykmshr/gofun/pkg/notification/redisbridge"
	"github.com/vnykmshr/gofun/pkg/task"
)

// bridgeRedis publishes the manager's notifications to redis and prints
// notifications published by other processes on the same channel. The
// returned client must be closed once g has finished.
func bridgeRedis(ctx context.Context, g *errgroup.Group, cfg config.Redis, m *task.Manager, rep *reporter, reg *metrics.Registry, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}

	bridge, err := redisbridge.New(client, redisbridge.Config{
		Channel:        cfg.Channel,
		Loopback:       cfg.Loopback,
		PublishTimeout: cfg.PublishTimeout,
		Logger:         logger,
		Metrics:        reg,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	m.AddObserver(bridge.Observer())

	remote := center.New(center.WithName("remote"), center.WithLogger(logger), center.WithMetrics(reg))
	remote.AddObserver(center.NewObserver(rep, rep.onRemote))
	inbox := queue.New(queue.WithName("redis"), queue.WithMetrics(reg))

	g.Go(func() error {
		return bridge.Forward(ctx, inbox)
	})
	g.Go(func() error {
		for {
			n, err := inbox.WaitDequeueContext(ctx)
			if err != nil {
				return nil
			}
			if err := remote.Post(n); err != nil {
				logger.Warn("remote notification", "error", err)
			}
		}
	})

	logger.Info("bridging notifications", "redis", cfg.Addr, "channel", bridge.Channel(), "origin", bridge.Origin())
	return client, nil
}
