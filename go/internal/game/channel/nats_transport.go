package channel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for the NATS bus
type NATSConfig struct {
	URL           string
	Name          string
	Timeout       time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS settings
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "triviacast",
		Timeout:       5 * time.Second,
		MaxReconnects: 60,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSTransport dials one core NATS connection per Channel. Core NATS has no replay,
// which matches the bus contract: a subscriber that is reconnecting misses messages.
type NATSTransport struct {
	cfg NATSConfig
}

// NewNATSTransport creates a NATS transport
func NewNATSTransport(cfg NATSConfig) *NATSTransport {
	return &NATSTransport{cfg: cfg}
}

type natsConn struct {
	nc      *nats.Conn
	closing atomic.Bool
}

// Dial connects to NATS and wires connection events to onStatus
func (t *NATSTransport) Dial(ctx context.Context, onStatus func(Status)) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &natsConn{}
	opts := []nats.Option{
		nats.Name(t.cfg.Name),
		nats.Timeout(t.cfg.Timeout),
		nats.MaxReconnects(t.cfg.MaxReconnects),
		nats.ReconnectWait(t.cfg.ReconnectWait),
		// Publishes during a reconnect fail instead of being buffered and replayed.
		nats.ReconnectBufSize(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if c.closing.Load() {
				return
			}
			log.Warn().Err(err).Msg("NATS disconnected")
			onStatus(StatusReconnecting)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			onStatus(StatusConnected)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if c.closing.Load() {
				onStatus(StatusDisconnected)
				return
			}
			log.Error().Msg("NATS connection closed after exhausting reconnects")
			onStatus(StatusFailed)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error().Err(err).Str("subject", subject).Msg("NATS async error")
		}),
	}

	nc, err := nats.Connect(t.cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.nc = nc
	return c, nil
}

func (c *natsConn) Subscribe(ctx context.Context, topic string, deliver func(data []byte)) (Subscription, error) {
	sub, err := c.nc.Subscribe(topic, func(m *nats.Msg) {
		deliver(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub, nil
}

func (c *natsConn) Publish(ctx context.Context, topic string, data []byte) error {
	if c.nc.IsReconnecting() {
		return ErrNotConnected
	}
	return c.nc.Publish(topic, data)
}

func (c *natsConn) Close() error {
	c.closing.Store(true)
	c.nc.Close()
	return nil
}
