// Package repository is the row store for games, questions, players and answers.
// Postgres is the production store; Memory backs tests and single-process dev runs.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrRoomCodeTaken  = errors.New("room code already in use")
	ErrGameNotWaiting = errors.New("game is not waiting for players")
)

// Store is everything the game services need from the row store. Conditional writes
// report whether they applied; false means the row was not in the expected state.
type Store interface {
	CreateQuestionSet(ctx context.Context, set models.QuestionSet, questions []models.Question) error
	ListQuestions(ctx context.Context, setID uuid.UUID) ([]models.Question, error)
	GetQuestionAt(ctx context.Context, setID uuid.UUID, index int) (*models.Question, error)

	CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetGameByRoomCode(ctx context.Context, code string) (*models.Game, error)
	ListActiveGames(ctx context.Context) ([]models.Game, error)
	StartGame(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	TransitionPhase(ctx context.Context, t PhaseTransition) (bool, error)
	AdvanceQuestion(ctx context.Context, id uuid.UUID, fromIndex int, at time.Time) (bool, error)
	EndGame(ctx context.Context, req EndGameRequest) (bool, error)
	SetPaused(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SetResumed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	CreatePlayer(ctx context.Context, req CreatePlayerRequest) (*models.Player, error)
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error)
	CountActivePlayers(ctx context.Context, gameID uuid.UUID) (int, error)
	MarkPlayerLeft(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	SubmitAnswer(ctx context.Context, a models.Answer) (bool, error)
	ListAnswers(ctx context.Context, gameID, questionID uuid.UUID) ([]models.Answer, error)
	SaveQuestionScores(ctx context.Context, gameID uuid.UUID, scores []models.QuestionScore) error
}

type CreateGameRequest struct {
	ID               uuid.UUID `json:"id"`
	RoomCode         string    `json:"room_code"`
	QuestionSetID    uuid.UUID `json:"question_set_id"`
	TotalQuestions   int       `json:"total_questions"`
	TimerDurationSec int       `json:"timer_duration_sec"`
	CreatedAt        time.Time `json:"created_at"`
}

type CreatePlayerRequest struct {
	ID       uuid.UUID `json:"id"`
	GameID   uuid.UUID `json:"game_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// PhaseTransition moves an active game between sub-states of one question. It only applies
// while the game is still at QuestionIndex in phase From and not paused.
type PhaseTransition struct {
	GameID        uuid.UUID            `json:"game_id"`
	QuestionIndex int                  `json:"question_index"`
	From          models.QuestionPhase `json:"from"`
	To            models.QuestionPhase `json:"to"`
	At            time.Time            `json:"at"`
}

// EndGameRequest closes an active game
type EndGameRequest struct {
	GameID        uuid.UUID       `json:"game_id"`
	CompletedAt   time.Time       `json:"completed_at"`
	FinalRankings json.RawMessage `json:"final_rankings"`
}
