// Package center provides a synchronous notification center.
//
// Post delivers a notification on the caller's goroutine to every
// registered observer that accepts it, in registration order. Observers may
// add or remove observers while a Post is running; such changes apply to
// the next Post.
package center

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification"
)

// Option configures a Center.
type Option func(*Center)

// WithName labels the center's logs and metrics.
func WithName(name string) Option {
	return func(c *Center) { c.name = name }
}

// WithMetrics enables metrics on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Center) { c.reg = reg }
}

// WithLogger sets the logger used for observer failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Center) { c.logger = logger }
}

// Center is a registry of observers.
type Center struct {
	name   string
	reg    *metrics.Registry
	logger *slog.Logger
	errors prometheus.Counter

	mu        sync.Mutex
	observers []Observer
}

// New creates a center without observers.
func New(opts ...Option) *Center {
	c := &Center{name: "default"}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("center", c.name)
	if c.reg != nil {
		c.errors = c.reg.ObserverErrors.WithLabelValues(c.name)
	}
	return c
}

// Name returns the center name.
func (c *Center) Name() string {
	return c.name
}

// AddObserver registers o after every existing observer.
func (c *Center) AddObserver(o Observer) {
	if o == nil {
		panic("center: nil observer")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]Observer, len(c.observers), len(c.observers)+1)
	copy(next, c.observers)
	c.observers = append(next, o)
}

// RemoveObserver unregisters the first observer whose key equals o's. It
// reports whether one was found.
func (c *Center) RemoveObserver(o Observer) bool {
	key := o.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.observers {
		if existing.Key() == key {
			next := make([]Observer, 0, len(c.observers)-1)
			next = append(next, c.observers[:i]...)
			c.observers = append(next, c.observers[i+1:]...)
			return true
		}
	}
	return false
}

// HasObserver reports whether an observer with o's key is registered.
func (c *Center) HasObserver(o Observer) bool {
	key := o.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.observers {
		if existing.Key() == key {
			return true
		}
	}
	return false
}

// HasObservers reports whether any observer is registered.
func (c *Center) HasObservers() bool {
	return c.CountObservers() > 0
}

// CountObservers returns the number of registered observers.
func (c *Center) CountObservers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

// Post delivers n to every observer registered when Post was called that
// accepts it. The first observer error stops delivery and is returned.
// Panics raised by observers are not recovered.
func (c *Center) Post(n notification.Notification) error {
	if n == nil {
		panic("center: nil notification")
	}

	c.mu.Lock()
	observers := c.observers
	c.mu.Unlock()

	if c.reg != nil {
		c.reg.NotificationsPosted.WithLabelValues(c.name, n.Name()).Inc()
	}

	for _, o := range observers {
		if !o.Accepts(n) {
			continue
		}
		if err := o.Notify(n); err != nil {
			if c.errors != nil {
				c.errors.Inc()
			}
			c.logger.Debug("observer failed", "notification", n.Name(), "error", err)
			return err
		}
	}
	return nil
}

var (
	defaultOnce   sync.Once
	defaultCenter *Center
)

// Default returns the process-wide center.
func Default() *Center {
	defaultOnce.Do(func() {
		defaultCenter = New(WithMetrics(metrics.DefaultRegistry))
	})
	return defaultCenter
}
