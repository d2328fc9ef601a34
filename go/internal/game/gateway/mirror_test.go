package gateway

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/device"
	"github.com/mcdev12/triviacast/go/internal/game/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushStateDropsOlderVersions(t *testing.T) {
	bus := channel.NewMemoryBus(nil)
	conns := NewConnectionManager(DefaultConnectionConfig())
	m := NewMirrors(bus, nil, conns, nil)
	gameID := uuid.New()
	d := device.New(bus, gameID, nil)

	m.pushState(gameID, d, state.Snapshot{Phase: state.PhaseQuestion, QuestionNumber: 2, Version: 5})
	m.pushState(gameID, d, state.Snapshot{Phase: state.PhaseQuestion, QuestionNumber: 1, Version: 4})
	m.pushState(gameID, d, state.Snapshot{Phase: state.PhaseQuestion, QuestionNumber: 2, Version: 5})
	m.pushState(gameID, d, state.Snapshot{Phase: state.PhaseReveal, QuestionNumber: 2, Version: 6})

	require.Len(t, conns.broadcastCh, 2)
	var versions []uint64
	for i := 0; i < 2; i++ {
		b := <-conns.broadcastCh
		assert.Equal(t, gameID, b.GameID)
		var p StatePayload
		require.NoError(t, json.Unmarshal(b.Message.Data, &p))
		versions = append(versions, p.Snapshot.Version)
	}
	assert.Equal(t, []uint64{5, 6}, versions)

	// a fresh mirror for the same game starts its own sequence
	fresh := device.New(bus, gameID, nil)
	m.pushState(gameID, fresh, state.Snapshot{Phase: state.PhaseWaiting, Version: 1})
	assert.Len(t, conns.broadcastCh, 1)
}

func TestPlayerViewHidesOpenAnswer(t *testing.T) {
	snap := state.Snapshot{
		Phase:    state.PhaseQuestion,
		Question: &state.QuestionView{ID: "q2", Number: 2, CorrectAnswer: "C"},
	}

	view := playerView(snap)
	require.NotNil(t, view.Question)
	assert.Empty(t, view.Question.CorrectAnswer)
	assert.Equal(t, "q2", view.Question.ID)
	assert.Equal(t, "C", snap.Question.CorrectAnswer, "the mirror's own snapshot is untouched")

	snap.Phase = state.PhaseReveal
	assert.Equal(t, "C", playerView(snap).Question.CorrectAnswer)
}
