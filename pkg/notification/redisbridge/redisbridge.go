// Package redisbridge carries notifications between processes over Redis
// Pub/Sub.
//
// A Bridge publishes notifications as JSON envelopes on one channel and
// forwards envelopes received from other processes into a local queue as
// *Remote notifications. Each Bridge has a random origin id so it can
// ignore its own messages.
package redisbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	gferrors "github.com/vnykmshr/gofun/pkg/common/errors"
	"github.com/vnykmshr/gofun/pkg/common/validation"
	"github.com/vnykmshr/gofun/pkg/metrics"
	"github.com/vnykmshr/gofun/pkg/notification"
	"github.com/vnykmshr/gofun/pkg/notification/center"
)

// DefaultChannel is the Pub/Sub channel used when Config.Channel is empty.
const DefaultChannel = "gofun:notifications"

// Envelope is the wire format of a bridged notification.
type Envelope struct {
	Name    string          `json:"name"`
	Origin  string          `json:"origin"`
	SentAt  time.Time       `json:"sent_at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Remote is a notification received from another process.
type Remote struct {
	Envelope
}

// Name implements notification.Notification.
func (r *Remote) Name() string {
	return r.Envelope.Name
}

// Decode unmarshals the payload of r into a T.
func Decode[T any](r *Remote) (T, error) {
	var v T
	if len(r.Payload) == 0 {
		return v, fmt.Errorf("redisbridge: notification %q has no payload", r.Envelope.Name)
	}
	if err := json.Unmarshal(r.Payload, &v); err != nil {
		return v, fmt.Errorf("redisbridge: decode %q: %w", r.Envelope.Name, err)
	}
	return v, nil
}

// Enqueuer receives forwarded notifications. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(n notification.Notification)
}

// Config holds configuration options for a Bridge.
type Config struct {
	// Channel is the Pub/Sub channel. Defaults to DefaultChannel.
	Channel string

	// Loopback forwards messages published by this bridge as well.
	Loopback bool

	// PublishTimeout bounds publishes made by the Observer. Defaults to 5s.
	PublishTimeout time.Duration

	// Logger receives decode and publish failures. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics counts published and received notifications. Nil disables.
	Metrics *metrics.Registry
}

// Bridge publishes and forwards notifications over one Redis channel.
type Bridge struct {
	client         redis.UniversalClient
	channel        string
	origin         string
	loopback       bool
	publishTimeout time.Duration
	logger         *slog.Logger

	published prometheus.Counter
	received  prometheus.Counter
}

// New creates a bridge on client.
func New(client redis.UniversalClient, cfg Config) (*Bridge, error) {
	if err := validation.ValidateNotNil("redisbridge", "client", client); err != nil {
		return nil, err
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bridge{
		client:         client,
		channel:        cfg.Channel,
		origin:         uuid.NewString(),
		loopback:       cfg.Loopback,
		publishTimeout: cfg.PublishTimeout,
		logger:         cfg.Logger.With("channel", cfg.Channel),
	}
	if cfg.Metrics != nil {
		b.published = cfg.Metrics.BridgePublished.WithLabelValues(cfg.Channel)
		b.received = cfg.Metrics.BridgeReceived.WithLabelValues(cfg.Channel)
	}
	return b, nil
}

// Origin returns the id stamped on every envelope this bridge publishes.
func (b *Bridge) Origin() string {
	return b.origin
}

// Channel returns the Pub/Sub channel.
func (b *Bridge) Channel() string {
	return b.channel
}

// Publish sends n to every bridge subscribed to the channel. The payload is
// n.Payload() for a notification.Payloader and n itself otherwise.
func (b *Bridge) Publish(ctx context.Context, n notification.Notification) error {
	data, err := b.encode(n)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return gferrors.NewOperationError("redisbridge", "Publish", err).WithContext("notification=" + n.Name())
	}
	if b.published != nil {
		b.published.Inc()
	}
	return nil
}

func (b *Bridge) encode(n notification.Notification) ([]byte, error) {
	var body any = n
	if p, ok := n.(notification.Payloader); ok {
		body = p.Payload()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("redisbridge: encode %q: %w", n.Name(), err)
	}

	return json.Marshal(Envelope{
		Name:    n.Name(),
		Origin:  b.origin,
		SentAt:  time.Now().UTC(),
		Payload: payload,
	})
}

// Observer returns a center observer that publishes every notification
// posted to the center. Remote notifications are not published again.
func (b *Bridge) Observer() center.Observer {
	return center.NewObserver(b, b.observe)
}

func (b *Bridge) observe(n notification.Notification) error {
	if _, ok := n.(*Remote); ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.publishTimeout)
	defer cancel()
	return b.Publish(ctx, n)
}

// Forward subscribes to the channel and enqueues every received envelope
// on q as a *Remote until ctx is done. Envelopes published by this bridge
// are skipped unless Loopback is set. Malformed messages are logged and
// dropped. Forward returns nil when ctx ends and an error if the
// subscription fails.
func (b *Bridge) Forward(ctx context.Context, q Enqueuer) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return gferrors.NewOperationError("redisbridge", "Forward", err).WithContext("channel=" + b.channel)
	}
	b.logger.Debug("forwarding notifications")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			remote, err := b.decode(msg.Payload)
			if err != nil {
				b.logger.Warn("dropping malformed notification", "error", err)
				continue
			}
			if remote.Origin == b.origin && !b.loopback {
				continue
			}
			if b.received != nil {
				b.received.Inc()
			}
			q.Enqueue(remote)
		}
	}
}

func (b *Bridge) decode(data string) (*Remote, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, err
	}
	if env.Name == "" {
		return nil, errors.New("envelope without name")
	}
	return &Remote{Envelope: env}, nil
}
