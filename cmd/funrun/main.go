// funrun runs a small workload on the gofun runtime: a thread pool, a task
// manager with progress-reporting tasks and a timer heartbeat.
//
// Usage:
//
//	funrun [global options] <command> [command options]
//
// Commands:
//
//	run      run the demo workload
//	config   print the effective configuration
//
// Examples:
//
//	funrun run --tasks 20 --metrics-addr :9090
//	funrun run --config gofun.yaml --redis-addr localhost:6379
//	funrun config --config gofun.yaml --format json
//
// run stops early on SIGINT or SIGTERM, cancelling the running tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/vnykmshr/gofun/pkg/config"
)

// Version is set with -ldflags "-X main.Version=...".
var Version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "funrun:", err)
		os.Exit(1)
	}
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "funrun",
		Usage:   "run a demo workload on the gofun concurrency runtime",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (.yaml, .yml or .json)",
			},
		},
		Commands: []*cli.Command{
			createRunCommand(),
			createConfigCommand(),
		},
	}
}

func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "start tasks on the pool and report their notifications",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Usage:   "number of tasks to run",
				Value:   8,
			},
			&cli.IntFlag{
				Name:  "steps",
				Usage: "progress steps per task",
				Value: 10,
			},
			&cli.DurationFlag{
				Name:  "step-delay",
				Usage: "time each step takes",
				Value: defaultStepDelay,
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve /metrics on this address, overriding the configuration",
			},
			&cli.StringFlag{
				Name:  "redis-addr",
				Usage: "bridge notifications through redis at this address",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			if cmd.IsSet("metrics-addr") {
				cfg.Metrics.Addr = cmd.String("metrics-addr")
			}
			if addr := cmd.String("redis-addr"); addr != "" {
				cfg.Redis.Enabled = true
				cfg.Redis.Addr = addr
			}

			return runWorkload(ctx, cfg, workload{
				Tasks:     cmd.Int("tasks"),
				Steps:     cmd.Int("steps"),
				StepDelay: cmd.Duration("step-delay"),
				Out:       cmd.Root().Writer,
			})
		},
	}
}

func createConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "output format: yaml or json",
				Value: string(config.FormatYAML),
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			data, err := cfg.Marshal(config.Format(cmd.String("format")))
			if err != nil {
				return err
			}
			_, err = cmd.Root().Writer.Write(data)
			return err
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
