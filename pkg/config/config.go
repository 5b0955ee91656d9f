// Package config loads the runtime configuration of a gofun process from
// YAML or JSON.
//
// Every section starts from its defaults, so a file only needs the keys
// it changes:
//
//	threadpool:
//	  min_capacity: 4
//	  max_capacity: 32
//	  idle_time: 30s
//	taskmanager:
//	  progress_interval: 250ms
//	log:
//	  level: debug
//	  format: json
//
// Durations are written as strings such as "60s" or "100ms".
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/common/validation"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification/redisbridge"
	"github.com/vnykmshr/gofun/pkg/task"
	"github.com/vnykmshr/gofun/pkg/threading/threadpool"
)

// Format is a configuration file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	// ErrUnsupportedFormat is returned for unknown formats and file
	// extensions.
	ErrUnsupportedFormat = errors.New("config: unsupported format")

	// ErrParse is returned when the data cannot be parsed or decoded.
	ErrParse = errors.New("config: parse failed")
)

// Config is the complete process configuration.
type Config struct {
	ThreadPool  ThreadPool  `koanf:"threadpool"`
	TaskManager TaskManager `koanf:"taskmanager"`
	Timer       Timer       `koanf:"timer"`
	Metrics     Metrics     `koanf:"metrics"`
	Log         Log         `koanf:"log"`
	Redis       Redis       `koanf:"redis"`
}

// ThreadPool configures the shared thread pool.
type ThreadPool struct {
	Name        string        `koanf:"name"`
	MinCapacity int           `koanf:"min_capacity"`
	MaxCapacity int           `koanf:"max_capacity"`
	IdleTime    time.Duration `koanf:"idle_time"`
	StackSize   int           `koanf:"stack_size"`
}

// TaskManager configures the task manager.
type TaskManager struct {
	Name             string        `koanf:"name"`
	ProgressInterval time.Duration `koanf:"progress_interval"`
}

// Timer configures the timer.
type Timer struct {
	Name string `koanf:"name"`
	// UsePool runs timer jobs on the thread pool instead of the timer thread.
	UsePool bool `koanf:"use_pool"`
	// Location is an IANA zone name for cron schedules. Empty means local.
	Location string `koanf:"location"`
}

// Metrics configures Prometheus collection and the scrape endpoint.
type Metrics struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
	Addr      string `koanf:"addr"`
}

// Log configures the process logger. File enables size based rotation.
type Log struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// Redis configures the notification bridge.
type Redis struct {
	Enabled        bool          `koanf:"enabled"`
	Addr           string        `koanf:"addr"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db"`
	Channel        string        `koanf:"channel"`
	Loopback       bool          `koanf:"loopback"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	pool := threadpool.DefaultConfig()
	return Config{
		ThreadPool: ThreadPool{
			Name:        pool.Name,
			MinCapacity: pool.MinCapacity,
			MaxCapacity: pool.MaxCapacity,
			IdleTime:    pool.IdleTime,
		},
		TaskManager: TaskManager{
			Name:             "default",
			ProgressInterval: task.DefaultProgressInterval,
		},
		Timer: Timer{Name: "timer"},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: metrics.DefaultNamespace,
			Addr:      ":9090",
		},
		Log: Log{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Redis: Redis{
			Addr:           "localhost:6379",
			Channel:        redisbridge.DefaultChannel,
			PublishTimeout: time.Second,
		},
	}
}

// Load reads path, choosing the format from its extension.
func Load(path string) (Config, error) {
	format, err := formatOf(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes decodes data over the defaults and validates the result.
func LoadBytes(data []byte, format Format) (Config, error) {
	parser, err := parserFor(format)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.ThreadPool.Config().Validate(); err != nil {
		return err
	}
	if err := (task.Config{ProgressInterval: c.TaskManager.ProgressInterval}).Validate(); err != nil {
		return err
	}
	if _, err := c.Timer.Zone(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return gferrors.NewValidationError("config", "log.format", c.Log.Format, "unknown format").
			WithHint(`use "text" or "json"`)
	}
	if c.Redis.Enabled {
		if err := validation.ValidateNotEmpty("config", "redis.addr", c.Redis.Addr); err != nil {
			return err
		}
		if err := validation.ValidatePositiveDuration("config", "redis.publish_timeout", c.Redis.PublishTimeout); err != nil {
			return err
		}
	}
	return nil
}

// Config converts the section to a thread pool configuration.
func (p ThreadPool) Config() threadpool.Config {
	cfg := threadpool.DefaultConfig()
	cfg.Name = p.Name
	cfg.MinCapacity = p.MinCapacity
	cfg.MaxCapacity = p.MaxCapacity
	cfg.IdleTime = p.IdleTime
	cfg.StackSize = p.StackSize
	return cfg
}

// Zone resolves Location.
func (t Timer) Zone() (*time.Location, error) {
	if t.Location == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(t.Location)
	if err != nil {
		return nil, gferrors.NewValidationError("config", "timer.location", t.Location, err.Error())
	}
	return loc, nil
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, gferrors.NewValidationError("config", "log.level", l.Level, "unknown level").
			WithHint("use debug, info, warn or error")
	}
	return level, nil
}

// Marshal encodes c in format with durations written as strings, so the
// output can be loaded again.
func (c Config) Marshal(format Format) ([]byte, error) {
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	return parser.Marshal(c.toMap())
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"threadpool": map[string]any{
			"name":         c.ThreadPool.Name,
			"min_capacity": c.ThreadPool.MinCapacity,
			"max_capacity": c.ThreadPool.MaxCapacity,
			"idle_time":    c.ThreadPool.IdleTime.String(),
			"stack_size":   c.ThreadPool.StackSize,
		},
		"taskmanager": map[string]any{
			"name":              c.TaskManager.Name,
			"progress_interval": c.TaskManager.ProgressInterval.String(),
		},
		"timer": map[string]any{
			"name":     c.Timer.Name,
			"use_pool": c.Timer.UsePool,
			"location": c.Timer.Location,
		},
		"metrics": map[string]any{
			"enabled":   c.Metrics.Enabled,
			"namespace": c.Metrics.Namespace,
			"addr":      c.Metrics.Addr,
		},
		"log": map[string]any{
			"level":        c.Log.Level,
			"format":       c.Log.Format,
			"file":         c.Log.File,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
			"compress":     c.Log.Compress,
		},
		"redis": map[string]any{
			"enabled":         c.Redis.Enabled,
			"addr":            c.Redis.Addr,
			"password":        c.Redis.Password,
			"db":              c.Redis.DB,
			"channel":         c.Redis.Channel,
			"loopback":        c.Redis.Loopback,
			"publish_timeout": c.Redis.PublishTimeout.String(),
		},
	}
}

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func parserFor(format Format) (koanf.Parser, error) {
	switch format {
	case FormatYAML:
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
