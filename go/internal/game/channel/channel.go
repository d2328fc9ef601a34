package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadySubscribed = errors.New("channel already subscribed")
	ErrNotConnected      = errors.New("channel not connected")
	ErrClosed            = errors.New("channel closed")
)

// Status is the connection state reported to subscribers
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
	StatusFailed       Status = "failed"
)

// Handlers is the full event-handler table for one subscriber. It is installed in one
// piece before the subscription is activated. Nil entries ignore that event kind.
type Handlers struct {
	PlayerJoined     func(events.PlayerPayload)
	PlayerLeft       func(events.PlayerPayload)
	GameStart        func(events.GameStartPayload)
	QuestionAdvance  func(events.QuestionAdvancePayload)
	AnswerReveal     func(events.AnswerRevealPayload)
	LeaderboardReady func(events.LeaderboardReadyPayload)
	GameEnd          func(events.GameEndPayload)
	GamePause        func(events.GamePausePayload)
	GameResume       func(events.GameResumePayload)
	TimerExpired     func(events.TimerExpiredPayload)
	ScoresUpdated    func(events.ScoresUpdatedPayload)

	Status func(Status)
}

// Topic returns the bus topic for a game
func Topic(gameID uuid.UUID) string {
	return "game:" + gameID.String()
}

// Channel is a typed handle on one game's topic
type Channel struct {
	gameID    uuid.UUID
	topic     string
	transport Transport
	clock     clockwork.Clock

	dialMu sync.Mutex

	mu         sync.Mutex
	conn       Conn
	sub        Subscription
	subscribed bool
	closed     bool
	status     Status
	onStatus   func(Status)

	seen *recentIDs
}

// Option configures a Channel
type Option func(*Channel)

// WithClock sets the clock used to stamp published envelopes
func WithClock(clock clockwork.Clock) Option {
	return func(c *Channel) {
		c.clock = clock
	}
}

// Open returns a channel bound to game:{gameID}. Nothing is dialed until the first
// Subscribe or Publish.
func Open(transport Transport, gameID uuid.UUID, opts ...Option) *Channel {
	c := &Channel{
		gameID:    gameID,
		topic:     Topic(gameID),
		transport: transport,
		clock:     clockwork.NewRealClock(),
		status:    StatusIdle,
		seen:      newRecentIDs(512),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GameID returns the game this channel is bound to
func (c *Channel) GameID() uuid.UUID {
	return c.gameID
}

// Status returns the last reported connection status
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe installs the handler table and activates the subscription exactly once.
// The returned function unsubscribes and closes the underlying connection.
func (c *Channel) Subscribe(ctx context.Context, h Handlers) (func() error, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.subscribed {
		c.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	c.subscribed = true
	c.onStatus = h.Status
	c.mu.Unlock()

	c.setStatus(StatusConnecting)

	conn, err := c.connect(ctx)
	if err != nil {
		c.setStatus(StatusFailed)
		c.mu.Lock()
		c.subscribed = false
		c.mu.Unlock()
		return nil, err
	}

	table := h
	sub, err := conn.Subscribe(ctx, c.topic, func(data []byte) {
		c.dispatch(&table, data)
	})
	if err != nil {
		c.setStatus(StatusFailed)
		c.mu.Lock()
		c.subscribed = false
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.topic, err)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	c.setStatus(StatusConnected)

	log.Debug().
		Str("game_id", c.gameID.String()).
		Str("topic", c.topic).
		Msg("channel subscribed")

	return c.Close, nil
}

// Publish sends one event. It returns once the transport accepts the message; delivery is
// never confirmed. Publishing while not connected fails with ErrNotConnected.
func (c *Channel) Publish(ctx context.Context, eventType events.EventType, payload any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		var err error
		if conn, err = c.connect(ctx); err != nil {
			return err
		}
		c.setStatus(StatusConnected)
	}

	if status := c.Status(); status != StatusConnected {
		return fmt.Errorf("publish %s while %s: %w", eventType, status, ErrNotConnected)
	}

	env, err := events.NewEnvelope(c.gameID, eventType, payload, c.clock.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := conn.Publish(ctx, c.topic, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	log.Debug().
		Str("game_id", c.gameID.String()).
		Str("event_type", string(eventType)).
		Str("event_id", env.ID).
		Msg("event published")
	return nil
}

// Close unsubscribes and closes the connection. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub, conn := c.sub, c.conn
	c.sub, c.conn = nil, nil
	c.mu.Unlock()

	var errs []error
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unsubscribe: %w", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	c.setStatus(StatusDisconnected)
	return errors.Join(errs...)
}

func (c *Channel) connect(ctx context.Context) (Conn, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	conn, err := c.transport.Dial(ctx, c.setStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bus: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return nil, ErrClosed
	}
	c.conn = conn
	return conn, nil
}

// setStatus records a transition and reports it if it changed
func (c *Channel) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s || (c.closed && s != StatusDisconnected) {
		c.mu.Unlock()
		return
	}
	c.status = s
	fn := c.onStatus
	c.mu.Unlock()

	log.Debug().
		Str("game_id", c.gameID.String()).
		Str("status", string(s)).
		Msg("channel status changed")

	if fn != nil {
		fn(s)
	}
}

func (c *Channel) dispatch(h *Handlers, data []byte) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("topic", c.topic).Msg("dropping malformed envelope")
		return
	}
	if env.GameID != c.gameID.String() {
		return
	}
	if !c.seen.add(env.ID) {
		log.Debug().
			Str("game_id", env.GameID).
			Str("event_id", env.ID).
			Msg("dropping duplicate delivery")
		return
	}

	payload, err := events.ParsePayload(&env)
	if err != nil {
		log.Warn().Err(err).Str("game_id", env.GameID).Msg("dropping undecodable event")
		return
	}

	switch p := payload.(type) {
	case events.PlayerPayload:
		if env.Type == events.EventTypePlayerJoined && h.PlayerJoined != nil {
			h.PlayerJoined(p)
		}
		if env.Type == events.EventTypePlayerLeft && h.PlayerLeft != nil {
			h.PlayerLeft(p)
		}
	case events.GameStartPayload:
		if h.GameStart != nil {
			h.GameStart(p)
		}
	case events.QuestionAdvancePayload:
		if h.QuestionAdvance != nil {
			h.QuestionAdvance(p)
		}
	case events.AnswerRevealPayload:
		if h.AnswerReveal != nil {
			h.AnswerReveal(p)
		}
	case events.LeaderboardReadyPayload:
		if h.LeaderboardReady != nil {
			h.LeaderboardReady(p)
		}
	case events.GameEndPayload:
		if h.GameEnd != nil {
			h.GameEnd(p)
		}
	case events.GamePausePayload:
		if h.GamePause != nil {
			h.GamePause(p)
		}
	case events.GameResumePayload:
		if h.GameResume != nil {
			h.GameResume(p)
		}
	case events.TimerExpiredPayload:
		if h.TimerExpired != nil {
			h.TimerExpired(p)
		}
	case events.ScoresUpdatedPayload:
		if h.ScoresUpdated != nil {
			h.ScoresUpdated(p)
		}
	}
}

// recentIDs is a bounded set of recently seen envelope ids
type recentIDs struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{
		ids:   make(map[string]struct{}, size),
		order: make([]string, size),
	}
}

// add returns false if id was already present
func (r *recentIDs) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false
	}
	if evicted := r.order[r.next]; evicted != "" {
		delete(r.ids, evicted)
	}
	r.order[r.next] = id
	r.ids[id] = struct{}{}
	r.next = (r.next + 1) % len(r.order)
	return true
}
