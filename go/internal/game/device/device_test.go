package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/mcdev12/triviacast/go/internal/game/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)

// fakeSource serves whatever authoritative view the test last set
type fakeSource struct {
	mu    sync.Mutex
	view  state.Authoritative
	calls int
}

func (s *fakeSource) set(a state.Authoritative) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = a
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSource) Authoritative(ctx context.Context, gameID uuid.UUID) (state.Authoritative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	a := s.view
	a.GameID = gameID.String()
	return a, nil
}

func gameStart() events.GameStartPayload {
	return events.GameStartPayload{
		QuestionID:     uuid.NewString(),
		QuestionText:   "Who was swallowed by a great fish?",
		Options:        [4]string{"Jonah", "Elijah", "Peter", "Paul"},
		QuestionNumber: 1,
		TimerDuration:  15,
		StartedAt:      start,
		TotalQuestions: 3,
	}
}

func questionView(n int) state.Authoritative {
	return state.Authoritative{
		Phase:            state.PhaseQuestion,
		Question:         &state.QuestionView{ID: uuid.NewString(), Number: n, Text: "q"},
		QuestionNumber:   n,
		TotalQuestions:   3,
		TimerStartedAt:   start.Add(time.Duration(n) * time.Minute),
		TimerDurationSec: 15,
	}
}

func startDevice(t *testing.T, bus *channel.MemoryBus, gameID uuid.UUID, src StateSource, opts ...Option) *Device {
	t.Helper()
	d := New(bus, gameID, src, append([]Option{WithPollInterval(0)}, opts...)...)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDeviceAppliesBroadcasts(t *testing.T) {
	bus := channel.NewMemoryBus(nil)
	gameID := uuid.New()
	src := &fakeSource{view: state.Authoritative{Phase: state.PhaseWaiting}}

	var mu sync.Mutex
	var seen []events.EventType
	d := startDevice(t, bus, gameID, src, WithEventHook(func(et events.EventType, _ any) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, et)
	}))

	host := channel.Open(bus, gameID)
	defer host.Close()
	ctx := context.Background()

	require.NoError(t, host.Publish(ctx, events.EventTypePlayerJoined, events.PlayerPayload{PlayerID: uuid.NewString(), PlayerName: "Jonah"}))
	require.NoError(t, host.Publish(ctx, events.EventTypeGameStart, gameStart()))

	snap := d.Store().Snapshot()
	assert.Equal(t, state.PhaseQuestion, snap.Phase)
	assert.Equal(t, 1, snap.QuestionNumber)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.EventType{events.EventTypePlayerJoined, events.EventTypeGameStart}, seen)
}

func TestDeviceResyncsWhenEventIsAhead(t *testing.T) {
	bus := channel.NewMemoryBus(nil)
	gameID := uuid.New()
	src := &fakeSource{view: state.Authoritative{Phase: state.PhaseWaiting}}
	d := startDevice(t, bus, gameID, src)

	host := channel.Open(bus, gameID)
	defer host.Close()
	ctx := context.Background()
	require.NoError(t, host.Publish(ctx, events.EventTypeGameStart, gameStart()))

	// question 2 was broadcast while this device was not listening
	src.set(questionView(2))
	require.NoError(t, host.Publish(ctx, events.EventTypeAnswerReveal, events.AnswerRevealPayload{
		QuestionID: uuid.NewString(), QuestionNumber: 2, CorrectAnswer: "A",
	}))

	require.Eventually(t, func() bool {
		snap := d.Store().Snapshot()
		return snap.QuestionNumber == 2 && snap.Phase == state.PhaseQuestion
	}, time.Second, 5*time.Millisecond)
}

func TestDeviceRecoversDroppedBroadcastAfterReconnect(t *testing.T) {
	bus := channel.NewMemoryBus(nil)
	gameID := uuid.New()
	src := &fakeSource{view: state.Authoritative{Phase: state.PhaseWaiting}}
	d := startDevice(t, bus, gameID, src)
	connID := bus.LastConnID()

	host := channel.Open(bus, gameID)
	defer host.Close()
	ctx := context.Background()

	bus.Disconnect(connID)
	assert.Equal(t, channel.StatusReconnecting, d.Status())
	assert.ErrorIs(t, d.Publish(ctx, events.EventTypePlayerLeft, events.PlayerPayload{}), channel.ErrNotConnected)

	require.NoError(t, host.Publish(ctx, events.EventTypeGameStart, gameStart()))
	assert.Equal(t, state.PhaseWaiting, d.Store().Snapshot().Phase, "offline device misses the broadcast")

	src.set(questionView(1))
	bus.Reconnect(connID)

	require.Eventually(t, func() bool {
		return d.Store().Snapshot().Phase == state.PhaseQuestion
	}, time.Second, 5*time.Millisecond)
}

func TestDevicePollsOnClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start)
	bus := channel.NewMemoryBus(clock)
	gameID := uuid.New()
	src := &fakeSource{view: state.Authoritative{Phase: state.PhaseWaiting}}

	d := New(bus, gameID, src, WithClock(clock), WithPollInterval(5*time.Second))
	require.NoError(t, d.Start(context.Background()))
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	src.set(questionView(1))
	before := src.count()
	clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool {
		return src.count() > before && d.Store().Snapshot().Phase == state.PhaseQuestion
	}, time.Second, 5*time.Millisecond)
}

func TestDeviceStartTwice(t *testing.T) {
	bus := channel.NewMemoryBus(nil)
	d := startDevice(t, bus, uuid.New(), nil)
	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyStarted)
}

func TestHTTPStateSource(t *testing.T) {
	gameID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/games/"+gameID.String()+"/state", r.URL.Path)
		a := questionView(2)
		a.GameID = gameID.String()
		_ = json.NewEncoder(w).Encode(a)
	}))
	defer srv.Close()

	src := NewHTTPStateSource(srv.URL)
	a, err := src.Authoritative(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseQuestion, a.Phase)
	assert.Equal(t, 2, a.QuestionNumber)

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()
	_, err = NewHTTPStateSource(missing.URL).Authoritative(context.Background(), gameID)
	assert.Error(t, err)
}
