package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo      *repository.Memory
	rec       *Reconciler
	game      *models.Game
	questions []models.Question
	players   []*models.Player
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC))
	repo := repository.NewMemory()

	set := models.QuestionSet{ID: uuid.New(), Title: "Exodus", CreatedAt: clock.Now()}
	questions := []models.Question{
		{ID: uuid.New(), QuestionSetID: set.ID, OrderIndex: 0, Text: "Who led Israel out of Egypt?", Options: [4]string{"Aaron", "Moses", "Joshua", "Caleb"}, CorrectOption: "B"},
		{ID: uuid.New(), QuestionSetID: set.ID, OrderIndex: 1, Text: "How many plagues?", Options: [4]string{"7", "10", "12", "40"}, CorrectOption: "B"},
	}
	require.NoError(t, repo.CreateQuestionSet(ctx, set, questions))

	game, err := repo.CreateGame(ctx, repository.CreateGameRequest{
		ID: uuid.New(), RoomCode: "EXODUS", QuestionSetID: set.ID, TotalQuestions: 2, TimerDurationSec: 15, CreatedAt: clock.Now(),
	})
	require.NoError(t, err)

	f := &fixture{repo: repo, rec: New(repo, clock), game: game, questions: questions}
	for i, name := range names {
		p, err := repo.CreatePlayer(ctx, repository.CreatePlayerRequest{ID: uuid.New(), GameID: game.ID, Name: name, JoinedAt: clock.Now().Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
		f.players = append(f.players, p)
	}
	ok, err := repo.StartGame(ctx, game.ID, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	return f
}

func (f *fixture) answer(t *testing.T, p *models.Player, q models.Question, option string, ms int) {
	t.Helper()
	ok, err := f.repo.SubmitAnswer(context.Background(), models.Answer{
		PlayerID: p.ID, GameID: f.game.ID, QuestionID: q.ID, SelectedOption: &option, ResponseTimeMs: ms,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestScoreQuestionCorrectAnswerAt2000ms(t *testing.T) {
	f := newFixture(t, "Ruth")
	f.answer(t, f.players[0], f.questions[0], "B", 2000)

	require.NoError(t, f.rec.ScoreQuestion(context.Background(), f.game.ID, f.questions[0].ID))

	p, err := f.repo.GetPlayer(context.Background(), f.players[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 15, p.TotalScore)
	assert.Equal(t, int64(2000), p.CumulativeResponseTimeMs)
}

func TestScoreQuestionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Ruth", "Naomi")
	f.answer(t, f.players[0], f.questions[0], "B", 4000)
	f.answer(t, f.players[1], f.questions[0], "C", 1000)

	require.NoError(t, f.rec.ScoreQuestion(ctx, f.game.ID, f.questions[0].ID))
	first, err := f.rec.Rankings(ctx, f.game.ID)
	require.NoError(t, err)

	require.NoError(t, f.rec.ScoreQuestion(ctx, f.game.ID, f.questions[0].ID))
	second, err := f.rec.Rankings(ctx, f.game.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 13, second[0].TotalScore)
	assert.Equal(t, 0, second[1].TotalScore)
}

func TestScoreQuestionNonAnsweringPlayerIsRanked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Ruth", "Orpah")
	f.answer(t, f.players[0], f.questions[0], "B", 6000)

	require.NoError(t, f.rec.ScoreQuestion(ctx, f.game.ID, f.questions[0].ID))
	rankings, err := f.rec.Rankings(ctx, f.game.ID)
	require.NoError(t, err)
	require.Len(t, rankings, 2)

	assert.Equal(t, "Ruth", rankings[0].PlayerName)
	assert.Equal(t, 10, rankings[0].TotalScore)
	assert.Equal(t, 1, rankings[0].Rank)

	assert.Equal(t, "Orpah", rankings[1].PlayerName)
	assert.Equal(t, 0, rankings[1].TotalScore)
	assert.Equal(t, int64(15000), rankings[1].CumulativeResponseTimeMs)
	assert.Equal(t, 2, rankings[1].Rank)
}

func TestScoreQuestionClampsResponseTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Ruth")
	f.answer(t, f.players[0], f.questions[0], "A", 99000)

	require.NoError(t, f.rec.ScoreQuestion(ctx, f.game.ID, f.questions[0].ID))
	p, err := f.repo.GetPlayer(ctx, f.players[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), p.CumulativeResponseTimeMs)
}

func TestScoreQuestionUnknownQuestion(t *testing.T) {
	f := newFixture(t, "Ruth")
	assert.Error(t, f.rec.ScoreQuestion(context.Background(), f.game.ID, uuid.New()))
}

func TestRankPlayersSharesTies(t *testing.T) {
	players := []models.Player{
		{ID: uuid.New(), Name: "A", TotalScore: 50, CumulativeResponseTimeMs: 9000},
		{ID: uuid.New(), Name: "B", TotalScore: 30, CumulativeResponseTimeMs: 1000},
		{ID: uuid.New(), Name: "C", TotalScore: 50, CumulativeResponseTimeMs: 9000},
	}
	rankings := RankPlayers(players)
	require.Len(t, rankings, 3)
	assert.Equal(t, []int{1, 1, 3}, []int{rankings[0].Rank, rankings[1].Rank, rankings[2].Rank})
	assert.Equal(t, "B", rankings[2].PlayerName)
}
