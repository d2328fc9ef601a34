package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Publisher sends events to any game's topic over one long-lived connection. It never
// subscribes, so one connection serves every game. A failed publish drops the connection
// and the next publish dials again.
type Publisher struct {
	transport Transport
	clock     clockwork.Clock

	mu     sync.Mutex
	conn   Conn
	closed bool
}

func NewPublisher(transport Transport, clock clockwork.Clock) *Publisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Publisher{transport: transport, clock: clock}
}

// Publish sends one event to game:{gameID}
func (p *Publisher) Publish(ctx context.Context, gameID uuid.UUID, eventType events.EventType, payload any) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}

	env, err := events.NewEnvelope(gameID, eventType, payload, p.clock.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := conn.Publish(ctx, Topic(gameID), data); err != nil {
		p.drop(conn)
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	log.Debug().
		Str("game_id", gameID.String()).
		Str("event_type", string(eventType)).
		Str("event_id", env.ID).
		Msg("event published")
	return nil
}

// Close closes the connection. Later publishes fail with ErrClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.closed = true
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func (p *Publisher) connect(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.conn != nil {
		return p.conn, nil
	}

	conn, err := p.transport.Dial(ctx, func(s Status) {
		log.Debug().Str("status", string(s)).Msg("publisher status changed")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial bus: %w", err)
	}
	p.conn = conn
	return conn, nil
}

// drop forgets conn if it is still the current connection
func (p *Publisher) drop(conn Conn) {
	p.mu.Lock()
	current := p.conn == conn
	if current {
		p.conn = nil
	}
	p.mu.Unlock()

	if current {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close dropped publisher connection")
		}
	}
}
