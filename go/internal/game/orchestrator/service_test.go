package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/mcdev12/triviacast/go/internal/game/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, f *fixture) *HostClient {
	t.Helper()
	path, handler := NewService(f.orch).Handler()
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHostClient(srv.Client(), srv.URL)
}

func TestHostServiceControlsGame(t *testing.T) {
	f := newFixture(t, 2, "Alice")
	client := newTestClient(t, f)
	ctx := context.Background()

	opened, err := client.OpenGame(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Equal(t, f.game.ID.String(), opened.GameID)
	assert.Equal(t, state.PhaseWaiting, opened.State.Phase)

	require.NoError(t, client.StartGame(ctx, f.game.ID))
	got, err := client.GetHostState(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseQuestion, got.State.Phase)
	assert.Equal(t, int64(15000), got.RemainingMs)

	require.NoError(t, client.PauseGame(ctx, f.game.ID))
	require.NoError(t, client.ResumeGame(ctx, f.game.ID))
	require.NoError(t, client.SkipQuestion(ctx, f.game.ID))

	got, err = client.GetHostState(ctx, f.game.ID)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseReveal, got.State.Phase)
	require.NotNil(t, got.State.Reveal)
	assert.Equal(t, "A", got.State.Reveal.CorrectAnswer)
}

func TestHostServiceErrorCodes(t *testing.T) {
	f := newFixture(t, 1)
	client := newTestClient(t, f)
	ctx := context.Background()

	err := client.StartGame(ctx, f.game.ID)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = client.GetHostState(ctx, uuid.New())
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = f.repo.CreatePlayer(ctx, repository.CreatePlayerRequest{ID: uuid.New(), GameID: f.game.ID, Name: "Bob", JoinedAt: t0})
	require.NoError(t, err)

	f.repo.FailWrites(assert.AnError)
	err = client.StartGame(ctx, f.game.ID)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestHostServiceRejectsBadGameID(t *testing.T) {
	f := newFixture(t, 1, "Alice")
	path, handler := NewService(f.orch).Handler()
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := connect.NewClient[GameRequest, Ack](srv.Client(), srv.URL+HostServiceStartGameProcedure, connect.WithCodec(jsonCodec{}))
	_, err := c.CallUnary(context.Background(), connect.NewRequest(&GameRequest{GameID: "not-a-uuid"}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
