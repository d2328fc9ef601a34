package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/device"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/mcdev12/triviacast/go/internal/game/state"
	"github.com/rs/zerolog/log"
)

// Mirrors runs one device per watched game and pushes its store to the game's sockets.
// A mirror lives while the game has at least one connection.
type Mirrors struct {
	transport channel.Transport
	source    device.StateSource
	conns     *ConnectionManager
	clock     clockwork.Clock
	opts      []device.Option

	mu      sync.Mutex
	devices map[uuid.UUID]*device.Device

	// sentMu orders state frames; lastSent is the newest version each mirror broadcast
	sentMu   sync.Mutex
	lastSent map[*device.Device]uint64
}

func NewMirrors(transport channel.Transport, source device.StateSource, conns *ConnectionManager, clock clockwork.Clock, opts ...device.Option) *Mirrors {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Mirrors{
		transport: transport,
		source:    source,
		conns:     conns,
		clock:     clock,
		opts:      opts,
		devices:   make(map[uuid.UUID]*device.Device),
		lastSent:  make(map[*device.Device]uint64),
	}
}

// Acquire returns the game's mirror, starting it on first use
func (m *Mirrors) Acquire(ctx context.Context, gameID uuid.UUID) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[gameID]; ok {
		return d, nil
	}

	opts := append([]device.Option{
		device.WithClock(m.clock),
		device.WithName("gateway"),
		device.WithEventHook(func(et events.EventType, payload any) {
			m.forward(gameID, et, payload)
		}),
	}, m.opts...)
	d := device.New(m.transport, gameID, m.source, opts...)
	d.Store().OnChange(func(snap state.Snapshot) {
		m.pushState(gameID, d, snap)
	})

	// the mirror outlives the request that started it
	if err := d.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("failed to start mirror: %w", err)
	}
	m.devices[gameID] = d

	log.Info().Str("game_id", gameID.String()).Msg("mirror started")
	return d, nil
}

// Release stops the game's mirror
func (m *Mirrors) Release(gameID uuid.UUID) {
	m.mu.Lock()
	d, ok := m.devices[gameID]
	delete(m.devices, gameID)
	m.mu.Unlock()

	if !ok {
		return
	}
	if err := d.Close(); err != nil {
		log.Warn().Err(err).Str("game_id", gameID.String()).Msg("failed to close mirror")
	}
	m.sentMu.Lock()
	delete(m.lastSent, d)
	m.sentMu.Unlock()
	log.Info().Str("game_id", gameID.String()).Msg("mirror stopped")
}

// Nudge asks the game's mirror, if any, to resync from the row store
func (m *Mirrors) Nudge(gameID uuid.UUID) {
	m.mu.Lock()
	d, ok := m.devices[gameID]
	m.mu.Unlock()
	if ok {
		d.Nudge()
	}
}

// CloseAll stops every mirror
func (m *Mirrors) CloseAll() {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Release(id)
	}
}

// StateMessage builds a state frame from a mirror's current snapshot
func (m *Mirrors) StateMessage(gameID uuid.UUID, d *device.Device) (*Message, error) {
	return m.stateMessage(gameID, d, d.Store().Snapshot())
}

func (m *Mirrors) stateMessage(gameID uuid.UUID, d *device.Device, snap state.Snapshot) (*Message, error) {
	now := m.clock.Now()
	return NewMessage(MessageTypeState, gameID, StatePayload{
		Snapshot:    playerView(snap),
		RemainingMs: d.Store().Remaining(now).Milliseconds(),
		ServerTime:  now,
	}, now)
}

// pushState broadcasts a snapshot unless a newer one already went out. Store listeners
// run outside the store lock, so two commits can reach here in either order.
func (m *Mirrors) pushState(gameID uuid.UUID, d *device.Device, snap state.Snapshot) {
	m.sentMu.Lock()
	defer m.sentMu.Unlock()

	if last, ok := m.lastSent[d]; ok && snap.Version <= last {
		log.Debug().
			Str("game_id", gameID.String()).
			Uint64("version", snap.Version).
			Uint64("last_sent", last).
			Msg("dropping out of order state frame")
		return
	}

	msg, err := m.stateMessage(gameID, d, snap)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to build state message")
		return
	}
	m.lastSent[d] = snap.Version
	m.conns.BroadcastToGame(gameID, msg)
}

// playerView hides the correct answer while the question is still open
func playerView(snap state.Snapshot) state.Snapshot {
	if snap.Phase != state.PhaseQuestion || snap.Question == nil || snap.Question.CorrectAnswer == "" {
		return snap
	}
	q := *snap.Question
	q.CorrectAnswer = ""
	snap.Question = &q
	return snap
}

// forward relays roster changes, which the store does not track
func (m *Mirrors) forward(gameID uuid.UUID, et events.EventType, payload any) {
	var t MessageType
	switch et {
	case events.EventTypePlayerJoined:
		t = MessageTypePlayerJoined
	case events.EventTypePlayerLeft:
		t = MessageTypePlayerLeft
	default:
		return
	}

	msg, err := NewMessage(t, gameID, payload, m.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to build player message")
		return
	}
	m.conns.BroadcastToGame(gameID, msg)
}
