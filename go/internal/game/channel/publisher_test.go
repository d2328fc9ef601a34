package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherSharesOneConnectionAcrossGames(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus(nil)
	first, second := uuid.New(), uuid.New()

	var got []string
	record := func(p events.PlayerPayload) { got = append(got, p.PlayerName) }
	_, err := Open(bus, first).Subscribe(ctx, Handlers{PlayerJoined: record})
	require.NoError(t, err)
	_, err = Open(bus, second).Subscribe(ctx, Handlers{PlayerJoined: record})
	require.NoError(t, err)

	pub := NewPublisher(bus, nil)
	require.NoError(t, pub.Publish(ctx, first, events.EventTypePlayerJoined, events.PlayerPayload{PlayerID: "p1", PlayerName: "Ruth"}))
	dialed := bus.LastConnID()
	require.NoError(t, pub.Publish(ctx, second, events.EventTypePlayerJoined, events.PlayerPayload{PlayerID: "p2", PlayerName: "Naomi"}))

	assert.Equal(t, dialed, bus.LastConnID(), "no dial for the second game")
	assert.Equal(t, []string{"Ruth", "Naomi"}, got)

	bus.FailPublishes(errors.New("bus down"))
	assert.Error(t, pub.Publish(ctx, first, events.EventTypePlayerLeft, events.PlayerPayload{PlayerID: "p1"}))
	bus.FailPublishes(nil)

	require.NoError(t, pub.Publish(ctx, first, events.EventTypePlayerJoined, events.PlayerPayload{PlayerID: "p3", PlayerName: "Boaz"}))
	assert.Equal(t, dialed+1, bus.LastConnID(), "a failed publish redials")
	assert.Equal(t, []string{"Ruth", "Naomi", "Boaz"}, got)

	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(ctx, first, events.EventTypePlayerJoined, events.PlayerPayload{}), ErrClosed)
}
