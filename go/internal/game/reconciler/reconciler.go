// Package reconciler turns answer rows into per-question scores and player totals.
package reconciler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/mcdev12/triviacast/go/internal/scoring"
	"github.com/rs/zerolog/log"
)

// Repository defines what the reconciler reads and writes
type Repository interface {
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ListQuestions(ctx context.Context, setID uuid.UUID) ([]models.Question, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error)
	ListAnswers(ctx context.Context, gameID, questionID uuid.UUID) ([]models.Answer, error)
	SaveQuestionScores(ctx context.Context, gameID uuid.UUID, scores []models.QuestionScore) error
}

type Reconciler struct {
	repo  Repository
	clock clockwork.Clock
}

func New(repo Repository, clock clockwork.Clock) *Reconciler {
	return &Reconciler{repo: repo, clock: clock}
}

// ScoreQuestion scores every player of a game on one question. A player without an answer
// row is scored as incorrect with the full timer as response time. Scores are upserted per
// (player, question) and totals recomputed from them, so repeated calls are harmless.
func (r *Reconciler) ScoreQuestion(ctx context.Context, gameID, questionID uuid.UUID) error {
	game, err := r.repo.GetGame(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to load game: %w", err)
	}

	question, err := r.findQuestion(ctx, game.QuestionSetID, questionID)
	if err != nil {
		return err
	}

	players, err := r.repo.ListPlayers(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to load players: %w", err)
	}

	answers, err := r.repo.ListAnswers(ctx, gameID, questionID)
	if err != nil {
		return fmt.Errorf("failed to load answers: %w", err)
	}
	byPlayer := make(map[uuid.UUID]models.Answer, len(answers))
	for _, a := range answers {
		byPlayer[a.PlayerID] = a
	}

	timerMs := game.TimerDurationMs()
	now := r.clock.Now()
	scores := make([]models.QuestionScore, 0, len(players))
	for _, p := range players {
		correct := false
		responseMs := timerMs
		if a, ok := byPlayer[p.ID]; ok {
			responseMs = scoring.ClampResponseTime(a.ResponseTimeMs, timerMs)
			correct = a.SelectedOption != nil && *a.SelectedOption == question.CorrectOption
		}
		scores = append(scores, models.QuestionScore{
			PlayerID:       p.ID,
			GameID:         gameID,
			QuestionID:     questionID,
			Correct:        correct,
			Points:         scoring.Score(correct, responseMs),
			ResponseTimeMs: responseMs,
			ScoredAt:       now,
		})
	}

	if err := r.repo.SaveQuestionScores(ctx, gameID, scores); err != nil {
		return fmt.Errorf("failed to save scores: %w", err)
	}

	log.Info().
		Str("game_id", gameID.String()).
		Str("question_id", questionID.String()).
		Int("players", len(players)).
		Int("answers", len(answers)).
		Msg("scored question")
	return nil
}

// Rankings returns every player of the game ranked by total score then response time
func (r *Reconciler) Rankings(ctx context.Context, gameID uuid.UUID) ([]events.Ranking, error) {
	players, err := r.repo.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load players: %w", err)
	}
	return RankPlayers(players), nil
}

// RankPlayers ranks players with the scoring engine and attaches display names
func RankPlayers(players []models.Player) []events.Ranking {
	names := make(map[string]string, len(players))
	entries := make([]scoring.Entry, 0, len(players))
	for _, p := range players {
		id := p.ID.String()
		names[id] = p.Name
		entries = append(entries, scoring.Entry{
			PlayerID:                 id,
			TotalScore:               p.TotalScore,
			CumulativeResponseTimeMs: p.CumulativeResponseTimeMs,
		})
	}

	ranked := scoring.Rank(entries)
	out := make([]events.Ranking, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, events.Ranking{
			PlayerID:                 e.PlayerID,
			PlayerName:               names[e.PlayerID],
			TotalScore:               e.TotalScore,
			CumulativeResponseTimeMs: e.CumulativeResponseTimeMs,
			Rank:                     e.Rank,
		})
	}
	return out
}

func (r *Reconciler) findQuestion(ctx context.Context, setID, questionID uuid.UUID) (*models.Question, error) {
	questions, err := r.repo.ListQuestions(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	for i := range questions {
		if questions[i].ID == questionID {
			return &questions[i], nil
		}
	}
	return nil, fmt.Errorf("question %s not in set %s", questionID, setID)
}
