package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lobbyFixture struct {
	app       *App
	repo      *repository.Memory
	bus       *channel.MemoryBus
	clock     *clockwork.FakeClock
	set       models.QuestionSet
	questions []models.Question
}

func newLobbyFixture(t *testing.T) *lobbyFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC))
	repo := repository.NewMemory()
	bus := channel.NewMemoryBus(clock)

	set := models.QuestionSet{ID: uuid.New(), Title: "Judges", CreatedAt: clock.Now()}
	questions := []models.Question{
		{ID: uuid.New(), QuestionSetID: set.ID, OrderIndex: 0, Text: "Who judged under a palm tree?", Options: [4]string{"Deborah", "Gideon", "Samson", "Ehud"}, CorrectOption: "A"},
		{ID: uuid.New(), QuestionSetID: set.ID, OrderIndex: 1, Text: "How many men did Gideon keep?", Options: [4]string{"100", "300", "1000", "10000"}, CorrectOption: "B"},
	}
	require.NoError(t, repo.CreateQuestionSet(context.Background(), set, questions))

	app := NewApp(repo, bus, clock)
	t.Cleanup(func() { _ = app.Close() })

	return &lobbyFixture{
		app:       app,
		repo:      repo,
		bus:       bus,
		clock:     clock,
		set:       set,
		questions: questions,
	}
}

func TestCreateGame(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()

	game, err := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	require.NoError(t, err)
	assert.Len(t, game.RoomCode, RoomCodeLength)
	assert.Equal(t, 2, game.TotalQuestions)
	assert.Equal(t, DefaultTimerDurationSec, game.TimerDurationSec)
	assert.Equal(t, models.GameStatusWaiting, game.Status)

	_, err = f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID, TimerDurationSec: 4})
	assert.ErrorIs(t, err, ErrInvalidTimer)
	_, err = f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID, TimerDurationSec: 121})
	assert.ErrorIs(t, err, ErrInvalidTimer)
	_, err = f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: uuid.New()})
	assert.ErrorIs(t, err, ErrEmptyQuestionSet)
}

func TestCreateGameRetriesRoomCodeCollisions(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	f.app.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.RoomCode)

	second, err := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", second.RoomCode)

	f.app.newCode = func() (string, error) { return "AAAAAA", nil }
	_, err = f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	assert.ErrorIs(t, err, ErrRoomCodeExhausted)
}

func TestGenerateRoomCodeFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateRoomCode()
		require.NoError(t, err)
		normalized, err := NormalizeRoomCode(code)
		require.NoError(t, err)
		assert.Equal(t, code, normalized)
	}

	code, err := NormalizeRoomCode(" ab12cd ")
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", code)

	_, err = NormalizeRoomCode("AB-2CD")
	assert.ErrorIs(t, err, ErrInvalidRoomCode)
	_, err = NormalizeRoomCode("ABC")
	assert.ErrorIs(t, err, ErrInvalidRoomCode)
}

func TestJoinGameAnnouncesPlayer(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()
	game, err := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	require.NoError(t, err)

	var mu sync.Mutex
	var joined []events.PlayerPayload
	host := channel.Open(f.bus, game.ID)
	unsubscribe, err := host.Subscribe(ctx, channel.Handlers{
		PlayerJoined: func(p events.PlayerPayload) {
			mu.Lock()
			defer mu.Unlock()
			joined = append(joined, p)
		},
	})
	require.NoError(t, err)
	defer unsubscribe()

	player, got, err := f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "  Deborah  "})
	require.NoError(t, err)
	assert.Equal(t, game.ID, got.ID)
	assert.Equal(t, "Deborah", player.Name)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, joined, 1)
	assert.Equal(t, player.ID.String(), joined[0].PlayerID)
	assert.Equal(t, "Deborah", joined[0].PlayerName)
}

func TestAnnouncementsReuseOneConnection(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()
	game, err := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	require.NoError(t, err)

	first, _, err := f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "Deborah"})
	require.NoError(t, err)
	dialed := f.bus.LastConnID()

	_, _, err = f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "Barak"})
	require.NoError(t, err)
	require.NoError(t, f.app.LeaveGame(ctx, game.ID, first.ID))
	assert.Equal(t, dialed, f.bus.LastConnID())
}

func TestJoinGameValidation(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()
	game, err := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	require.NoError(t, err)

	for _, name := range []string{"", "J", "Jael!", "abcdefghijklmnopqrstuvwxyzabcde"} {
		_, _, err := f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: name})
		assert.ErrorIs(t, err, ErrInvalidPlayerName, name)
	}

	_, _, err = f.app.JoinGame(ctx, JoinGameRequest{RoomCode: "ZZZZZZ", PlayerName: "Jael"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, _, err = f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "Jael"})
	require.NoError(t, err)
	_, _, err = f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "Jael"})
	require.NoError(t, err, "duplicate names are allowed")

	ok, err := f.repo.StartGame(ctx, game.ID, f.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "Barak"})
	assert.ErrorIs(t, err, ErrGameNotJoinable)
}

func TestLeaveGame(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()
	game, _ := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	player, _, err := f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "Samson"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.app.LeaveGame(ctx, uuid.New(), player.ID), ErrPlayerNotInGame)
	require.NoError(t, f.app.LeaveGame(ctx, game.ID, player.ID))
	assert.ErrorIs(t, f.app.LeaveGame(ctx, game.ID, player.ID), ErrPlayerAlreadyLeft)

	players, err := f.app.ListPlayers(ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.NotNil(t, players[0].LeftAt)
}

func TestSubmitAnswer(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()
	game, _ := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	player, _, err := f.app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "Gideon"})
	require.NoError(t, err)

	a, b, bad := "A", "B", "E"
	req := SubmitAnswerRequest{GameID: game.ID, PlayerID: player.ID, QuestionID: f.questions[0].ID, SelectedOption: &a, ResponseTimeMs: 2000}

	_, err = f.app.SubmitAnswer(ctx, req)
	assert.ErrorIs(t, err, ErrAnswerLocked, "game has not started")

	ok, _ := f.repo.StartGame(ctx, game.ID, f.clock.Now())
	require.True(t, ok)

	_, err = f.app.SubmitAnswer(ctx, SubmitAnswerRequest{GameID: game.ID, PlayerID: player.ID, QuestionID: f.questions[0].ID, SelectedOption: &bad})
	assert.ErrorIs(t, err, ErrInvalidOption)

	answer, err := f.app.SubmitAnswer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2000, answer.ResponseTimeMs)

	req.SelectedOption = &b
	req.ResponseTimeMs = 60000
	answer, err = f.app.SubmitAnswer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 15000, answer.ResponseTimeMs, "clamped to the timer")

	future := req
	future.QuestionID = f.questions[1].ID
	_, err = f.app.SubmitAnswer(ctx, future)
	assert.ErrorIs(t, err, ErrAnswerLocked)

	ok, _ = f.repo.SetPaused(ctx, game.ID, f.clock.Now())
	require.True(t, ok)
	_, err = f.app.SubmitAnswer(ctx, req)
	assert.ErrorIs(t, err, ErrGamePaused)

	ok, _ = f.repo.SetResumed(ctx, game.ID, f.clock.Now())
	require.True(t, ok)
	ok, _ = f.repo.TransitionPhase(ctx, repository.PhaseTransition{GameID: game.ID, QuestionIndex: 0, From: models.QuestionPhaseQuestion, To: models.QuestionPhaseReveal, At: f.clock.Now()})
	require.True(t, ok)
	_, err = f.app.SubmitAnswer(ctx, req)
	assert.ErrorIs(t, err, ErrAnswerLocked)

	answers, err := f.repo.ListAnswers(ctx, game.ID, f.questions[0].ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "B", *answers[0].SelectedOption)
}

// startingRepo starts the game right after the lobby reads it, before the player insert
type startingRepo struct {
	*repository.Memory
	clock clockwork.Clock
}

func (r *startingRepo) GetGameByRoomCode(ctx context.Context, code string) (*models.Game, error) {
	game, err := r.Memory.GetGameByRoomCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := r.Memory.StartGame(ctx, game.ID, r.clock.Now()); err != nil {
		return nil, err
	}
	return game, nil
}

func TestJoinGameLosesRaceWithStart(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()
	game, err := f.app.CreateGame(ctx, CreateGameRequest{QuestionSetID: f.set.ID})
	require.NoError(t, err)

	app := NewApp(&startingRepo{Memory: f.repo, clock: f.clock}, f.bus, f.clock)
	t.Cleanup(func() { _ = app.Close() })
	_, _, err = app.JoinGame(ctx, JoinGameRequest{RoomCode: game.RoomCode, PlayerName: "Sisera"})
	assert.ErrorIs(t, err, ErrGameNotJoinable)

	players, err := f.repo.ListPlayers(ctx, game.ID)
	require.NoError(t, err)
	assert.Empty(t, players)
}
