package channel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func TestTwoChannelsForSameGameAreIndependent(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus(nil)
	gameID := uuid.New()

	var first, second []events.PlayerPayload
	a := Open(bus, gameID)
	b := Open(bus, gameID)

	_, err := a.Subscribe(ctx, Handlers{PlayerJoined: func(p events.PlayerPayload) { first = append(first, p) }})
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, Handlers{PlayerJoined: func(p events.PlayerPayload) { second = append(second, p) }})
	require.NoError(t, err)

	assert.Equal(t, StatusConnected, a.Status())
	assert.Equal(t, StatusConnected, b.Status())

	require.NoError(t, Open(bus, gameID).Publish(ctx, events.EventTypePlayerJoined, events.PlayerPayload{PlayerID: "p1", PlayerName: "Ruth"}))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "Ruth", first[0].PlayerName)
}

func TestSubscribeOnlyOnce(t *testing.T) {
	ctx := context.Background()
	ch := Open(NewMemoryBus(nil), uuid.New())

	_, err := ch.Subscribe(ctx, Handlers{})
	require.NoError(t, err)

	_, err = ch.Subscribe(ctx, Handlers{})
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
}

func TestOtherGamesAreNotDelivered(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus(nil)

	got := 0
	_, err := Open(bus, uuid.New()).Subscribe(ctx, Handlers{GameEnd: func(events.GameEndPayload) { got++ }})
	require.NoError(t, err)

	require.NoError(t, Open(bus, uuid.New()).Publish(ctx, events.EventTypeGameEnd, events.GameEndPayload{CompletedAt: time.Now()}))
	assert.Zero(t, got)
}

func TestDuplicateDeliveryIsDropped(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus(nil)
	gameID := uuid.New()

	calls := 0
	_, err := Open(bus, gameID).Subscribe(ctx, Handlers{GamePause: func(events.GamePausePayload) { calls++ }})
	require.NoError(t, err)

	env, err := events.NewEnvelope(gameID, events.EventTypeGamePause, events.GamePausePayload{PausedAt: time.Now()}, time.Now())
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	raw, err := bus.Dial(ctx, func(Status) {})
	require.NoError(t, err)
	require.NoError(t, raw.Publish(ctx, Topic(gameID), data))
	require.NoError(t, raw.Publish(ctx, Topic(gameID), data))

	assert.Equal(t, 1, calls)
}

func TestMalformedAndUnknownEventsAreDropped(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus(nil)
	gameID := uuid.New()

	calls := 0
	_, err := Open(bus, gameID).Subscribe(ctx, Handlers{GameResume: func(events.GameResumePayload) { calls++ }})
	require.NoError(t, err)

	raw, err := bus.Dial(ctx, func(Status) {})
	require.NoError(t, err)
	require.NoError(t, raw.Publish(ctx, Topic(gameID), []byte("not json")))
	require.NoError(t, raw.Publish(ctx, Topic(gameID), []byte(`{"id":"x","type":"mystery","gameId":"`+gameID.String()+`","payload":{}}`)))

	assert.Zero(t, calls)
}

func TestStatusTransitionsAndPublishWhileReconnecting(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus(nil)
	gameID := uuid.New()
	rec := &statusRecorder{}

	ch := Open(bus, gameID)
	unsubscribe, err := ch.Subscribe(ctx, Handlers{Status: rec.record})
	require.NoError(t, err)
	connID := bus.LastConnID()

	bus.Disconnect(connID)
	err = ch.Publish(ctx, events.EventTypeGamePause, events.GamePausePayload{PausedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotConnected)

	bus.Reconnect(connID)
	require.NoError(t, ch.Publish(ctx, events.EventTypeGamePause, events.GamePausePayload{PausedAt: time.Now()}))

	require.NoError(t, unsubscribe())
	assert.Equal(t, []Status{
		StatusConnecting,
		StatusConnected,
		StatusReconnecting,
		StatusConnected,
		StatusDisconnected,
	}, rec.all())

	assert.ErrorIs(t, ch.Publish(ctx, events.EventTypeGamePause, events.GamePausePayload{}), ErrClosed)
}

func TestSubscriberOfflineMissesBroadcast(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus(nil)
	gameID := uuid.New()

	calls := 0
	_, err := Open(bus, gameID).Subscribe(ctx, Handlers{GameEnd: func(events.GameEndPayload) { calls++ }})
	require.NoError(t, err)
	subscriber := bus.LastConnID()

	bus.Disconnect(subscriber)
	require.NoError(t, Open(bus, gameID).Publish(ctx, events.EventTypeGameEnd, events.GameEndPayload{}))
	bus.Reconnect(subscriber)

	assert.Zero(t, calls, "bus has no replay")
}

func TestDelayedDelivery(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	bus := NewMemoryBus(clock)
	bus.SetDelay(200 * time.Millisecond)
	gameID := uuid.New()

	delivered := make(chan events.ScoresUpdatedPayload, 1)
	_, err := Open(bus, gameID).Subscribe(ctx, Handlers{ScoresUpdated: func(p events.ScoresUpdatedPayload) { delivered <- p }})
	require.NoError(t, err)

	require.NoError(t, Open(bus, gameID, WithClock(clock)).Publish(ctx, events.EventTypeScoresUpdated, events.ScoresUpdatedPayload{QuestionNumber: 4}))

	select {
	case <-delivered:
		t.Fatal("delivered before delay elapsed")
	default:
	}

	clock.Advance(200 * time.Millisecond)

	select {
	case p := <-delivered:
		assert.Equal(t, 4, p.QuestionNumber)
	case <-time.After(time.Second):
		t.Fatal("delivery did not happen after delay")
	}
}

func TestFilterDropsDeliveries(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus(nil)
	gameID := uuid.New()

	calls := 0
	_, err := Open(bus, gameID).Subscribe(ctx, Handlers{TimerExpired: func(events.TimerExpiredPayload) { calls++ }})
	require.NoError(t, err)
	dropped := bus.LastConnID()
	bus.SetFilter(func(d Delivery) bool { return d.ConnID != dropped })

	require.NoError(t, Open(bus, gameID).Publish(ctx, events.EventTypeTimerExpired, events.TimerExpiredPayload{}))
	assert.Zero(t, calls)
}
