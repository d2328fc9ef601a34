package device

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/mcdev12/triviacast/go/internal/game/reconciler"
	"github.com/mcdev12/triviacast/go/internal/game/state"
	"github.com/mcdev12/triviacast/go/internal/models"
)

// Repository is the slice of the row store needed to rebuild a game's state
type Repository interface {
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetQuestionAt(ctx context.Context, setID uuid.UUID, index int) (*models.Question, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error)
}

// RepositorySource rebuilds the authoritative view straight from the row store
type RepositorySource struct {
	repo  Repository
	clock clockwork.Clock
}

func NewRepositorySource(repo Repository, clock clockwork.Clock) *RepositorySource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RepositorySource{repo: repo, clock: clock}
}

func (s *RepositorySource) Authoritative(ctx context.Context, gameID uuid.UUID) (state.Authoritative, error) {
	game, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return state.Authoritative{}, fmt.Errorf("failed to get game: %w", err)
	}

	a := state.Authoritative{
		GameID:           game.ID.String(),
		Phase:            state.PhaseWaiting,
		TotalQuestions:   game.TotalQuestions,
		TimerDurationSec: game.TimerDurationSec,
		ServerTime:       s.clock.Now(),
	}

	switch game.Status {
	case models.GameStatusWaiting:
		return a, nil

	case models.GameStatusEnded:
		a.Phase = state.PhaseResults
		a.QuestionNumber = game.QuestionNumber()
		a.CompletedAt = game.CompletedAt
		if len(game.FinalRankings) > 0 {
			var rankings []events.Ranking
			if err := json.Unmarshal(game.FinalRankings, &rankings); err != nil {
				return state.Authoritative{}, fmt.Errorf("failed to decode final rankings: %w", err)
			}
			a.Rankings = rankings
		}
		return a, nil
	}

	q, err := s.repo.GetQuestionAt(ctx, game.QuestionSetID, game.CurrentQuestionIndex)
	if err != nil {
		return state.Authoritative{}, fmt.Errorf("failed to get current question: %w", err)
	}

	a.QuestionNumber = game.QuestionNumber()
	a.Question = &state.QuestionView{
		ID:      q.ID.String(),
		Number:  game.QuestionNumber(),
		Text:    q.Text,
		Options: q.Options,
	}
	a.PausedAt = game.PausedAt
	a.PausedTotalMs = game.QuestionPausedMs
	if game.PhaseStartedAt != nil {
		a.TimerStartedAt = *game.PhaseStartedAt
	}

	switch game.QuestionPhase {
	case models.QuestionPhaseReveal:
		a.Phase = state.PhaseReveal
		a.Reveal = RevealFor(q)
	case models.QuestionPhaseLeaderboard:
		a.Phase = state.PhaseLeaderboard
		a.Reveal = RevealFor(q)
		players, err := s.repo.ListPlayers(ctx, gameID)
		if err != nil {
			return state.Authoritative{}, fmt.Errorf("failed to list players: %w", err)
		}
		a.Rankings = reconciler.RankPlayers(players)
	default:
		a.Phase = state.PhaseQuestion
	}
	return a, nil
}

// RevealFor builds the reveal view of a question
func RevealFor(q *models.Question) *state.RevealView {
	return &state.RevealView{
		CorrectAnswer:  q.CorrectOption,
		AnswerContent:  q.OptionText(q.CorrectOption),
		ShowSource:     q.VerseReference != nil,
		VerseReference: q.VerseReference,
		VerseContent:   q.VerseContent,
	}
}
