// Package device is one participant's view of a game: a state store fed by the room
// channel, with a resync loop for broadcasts it missed.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/mcdev12/triviacast/go/internal/game/state"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyStarted = errors.New("device already started")

const DefaultPollInterval = 10 * time.Second

// Device owns one store and one channel for one game
type Device struct {
	gameID   uuid.UUID
	name     string
	store    *state.Store
	ch       *channel.Channel
	source   StateSource
	clock    clockwork.Clock
	poll     time.Duration
	onEvent  func(events.EventType, any)
	onStatus func(channel.Status)
	nudgeCh  chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu         sync.Mutex
	dropped    bool
	started    bool
	running    bool
	lastResync time.Time
}

// Option configures a Device
type Option func(*Device)

// WithClock sets the clock used for polling and envelope stamps
func WithClock(clock clockwork.Clock) Option {
	return func(d *Device) {
		d.clock = clock
	}
}

// WithPollInterval sets how often the device resyncs on its own. Zero disables polling.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) {
		d.poll = interval
	}
}

// WithName labels the device in logs
func WithName(name string) Option {
	return func(d *Device) {
		d.name = name
	}
}

// WithEventHook is called after every event the device handles, with the decoded payload
func WithEventHook(fn func(events.EventType, any)) Option {
	return func(d *Device) {
		d.onEvent = fn
	}
}

// WithStatusHook is called on every channel status change
func WithStatusHook(fn func(channel.Status)) Option {
	return func(d *Device) {
		d.onStatus = fn
	}
}

// New creates a device for gameID. It opens its own channel on transport.
func New(transport channel.Transport, gameID uuid.UUID, source StateSource, opts ...Option) *Device {
	d := &Device{
		gameID:  gameID,
		name:    "device",
		store:   state.NewStore(),
		source:  source,
		clock:   clockwork.NewRealClock(),
		poll:    DefaultPollInterval,
		nudgeCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ch = channel.Open(transport, gameID, channel.WithClock(d.clock))
	return d
}

// GameID returns the game this device follows
func (d *Device) GameID() uuid.UUID {
	return d.gameID
}

// Store returns the device's state store
func (d *Device) Store() *state.Store {
	return d.store
}

// Status returns the channel's connection status
func (d *Device) Status() channel.Status {
	return d.ch.Status()
}

// LastResync is when the device last installed or confirmed row-store state
func (d *Device) LastResync() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastResync
}

// Start subscribes the handler table, performs an initial resync and runs the fallback
// loop until ctx is done or Close is called.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()

	if _, err := d.ch.Subscribe(ctx, d.handlers()); err != nil {
		d.mu.Lock()
		d.started = false
		d.mu.Unlock()
		return fmt.Errorf("failed to subscribe device: %w", err)
	}

	if err := d.Resync(ctx); err != nil {
		log.Warn().Err(err).Str("game_id", d.gameID.String()).Str("device", d.name).Msg("initial resync failed")
	}

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
	go d.loop(ctx)
	return nil
}

// Close stops the loop and closes the channel
func (d *Device) Close() error {
	var err error
	d.stopOnce.Do(func() {
		close(d.stopCh)
		err = d.ch.Close()
	})
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if running {
		<-d.done
	}
	return err
}

// Publish sends an event on the device's channel. It fails with channel.ErrNotConnected
// while the connection is down.
func (d *Device) Publish(ctx context.Context, eventType events.EventType, payload any) error {
	return d.ch.Publish(ctx, eventType, payload)
}

// Nudge asks the loop to resync soon. Never blocks.
func (d *Device) Nudge() {
	select {
	case d.nudgeCh <- struct{}{}:
	default:
	}
}

// Resync installs the row-store view if it is ahead of the local snapshot
func (d *Device) Resync(ctx context.Context) error {
	if d.source == nil {
		return nil
	}
	a, err := d.source.Authoritative(ctx, d.gameID)
	if err != nil {
		return fmt.Errorf("failed to resync: %w", err)
	}

	outcome := d.store.ApplyAuthoritative(a)

	d.mu.Lock()
	d.lastResync = d.clock.Now()
	d.mu.Unlock()

	if outcome == state.Applied {
		log.Info().
			Str("game_id", d.gameID.String()).
			Str("device", d.name).
			Str("phase", string(a.Phase)).
			Int("question_number", a.QuestionNumber).
			Msg("converged from row store")
	}
	return nil
}

func (d *Device) loop(ctx context.Context) {
	defer close(d.done)

	var tick <-chan time.Time
	if d.poll > 0 {
		ticker := d.clock.NewTicker(d.poll)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-d.nudgeCh:
		case <-tick:
		}

		if err := d.Resync(ctx); err != nil {
			log.Warn().Err(err).Str("game_id", d.gameID.String()).Str("device", d.name).Msg("resync failed")
		}
	}
}

// observe reacts to a setter outcome. Ahead means this device missed something.
func (d *Device) observe(eventType events.EventType, outcome state.Outcome, payload any) {
	switch outcome {
	case state.Ahead:
		log.Debug().
			Str("game_id", d.gameID.String()).
			Str("device", d.name).
			Str("event_type", string(eventType)).
			Msg("event ahead of local state, resyncing")
		d.Nudge()
	case state.Stale:
		log.Debug().
			Str("game_id", d.gameID.String()).
			Str("device", d.name).
			Str("event_type", string(eventType)).
			Msg("dropped stale event")
	}
	if d.onEvent != nil {
		d.onEvent(eventType, payload)
	}
}

func (d *Device) handlers() channel.Handlers {
	return channel.Handlers{
		PlayerJoined: func(p events.PlayerPayload) {
			d.observe(events.EventTypePlayerJoined, state.Applied, p)
		},
		PlayerLeft: func(p events.PlayerPayload) {
			d.observe(events.EventTypePlayerLeft, state.Applied, p)
		},
		GameStart: func(p events.GameStartPayload) {
			d.observe(events.EventTypeGameStart, d.store.ApplyGameStart(p), p)
		},
		QuestionAdvance: func(p events.QuestionAdvancePayload) {
			d.observe(events.EventTypeQuestionAdvance, d.store.ApplyQuestionAdvance(p), p)
		},
		AnswerReveal: func(p events.AnswerRevealPayload) {
			d.observe(events.EventTypeAnswerReveal, d.store.ApplyReveal(p), p)
		},
		LeaderboardReady: func(p events.LeaderboardReadyPayload) {
			d.observe(events.EventTypeLeaderboardReady, d.store.ApplyLeaderboardReady(p), p)
		},
		GameEnd: func(p events.GameEndPayload) {
			d.observe(events.EventTypeGameEnd, d.store.ApplyGameEnd(p), p)
		},
		GamePause: func(p events.GamePausePayload) {
			d.observe(events.EventTypeGamePause, d.store.ApplyPause(p.PausedAt), p)
		},
		GameResume: func(p events.GameResumePayload) {
			d.observe(events.EventTypeGameResume, d.store.ApplyResume(p.ResumedAt), p)
		},
		TimerExpired: func(p events.TimerExpiredPayload) {
			d.observe(events.EventTypeTimerExpired, state.Applied, p)
		},
		ScoresUpdated: func(p events.ScoresUpdatedPayload) {
			d.observe(events.EventTypeScoresUpdated, state.Applied, p)
		},
		Status: d.handleStatus,
	}
}

// handleStatus resyncs once the connection comes back after a drop
func (d *Device) handleStatus(s channel.Status) {
	d.mu.Lock()
	resync := false
	switch s {
	case channel.StatusReconnecting, channel.StatusDisconnected, channel.StatusFailed:
		d.dropped = true
	case channel.StatusConnected:
		resync = d.dropped
		d.dropped = false
	}
	d.mu.Unlock()

	log.Debug().
		Str("game_id", d.gameID.String()).
		Str("device", d.name).
		Str("status", string(s)).
		Msg("device connection status")

	if resync {
		d.Nudge()
	}
	if d.onStatus != nil {
		d.onStatus(s)
	}
}
