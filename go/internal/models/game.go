package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GameStatus defines the coarse lifecycle of a game.
type GameStatus string

const (
	GameStatusWaiting GameStatus = "waiting"
	GameStatusActive  GameStatus = "active"
	GameStatusEnded   GameStatus = "ended"
)

// QuestionPhase is the sub-state of an active game.
type QuestionPhase string

const (
	QuestionPhaseQuestion    QuestionPhase = "question"
	QuestionPhaseReveal      QuestionPhase = "reveal"
	QuestionPhaseLeaderboard QuestionPhase = "leaderboard"
)

// Order gives phases a total order within one question.
func (p QuestionPhase) Order() int {
	switch p {
	case QuestionPhaseQuestion:
		return 1
	case QuestionPhaseReveal:
		return 2
	case QuestionPhaseLeaderboard:
		return 3
	default:
		return 0
	}
}

// Game represents one quiz session.
type Game struct {
	ID                   uuid.UUID     `json:"id"`
	RoomCode             string        `json:"room_code"`
	QuestionSetID        uuid.UUID     `json:"question_set_id"`
	TotalQuestions       int           `json:"total_questions"`
	TimerDurationSec     int           `json:"timer_duration_sec"`
	Status               GameStatus    `json:"status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	QuestionPhase        QuestionPhase `json:"question_phase"`
	PhaseStartedAt       *time.Time    `json:"phase_started_at,omitempty"`
	StartedAt            *time.Time    `json:"started_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	PausedAt             *time.Time    `json:"paused_at,omitempty"`
	// PausedTotalMs is accumulated over the whole game.
	PausedTotalMs int64 `json:"paused_total_ms"`
	// QuestionPausedMs is accumulated for the current phase only and reset on every phase change.
	QuestionPausedMs int64 `json:"question_paused_ms"`
	// FinalRankings is written once when the game ends.
	FinalRankings json.RawMessage `json:"final_rankings,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TimerDuration returns the per-question answer window.
func (g *Game) TimerDuration() time.Duration {
	return time.Duration(g.TimerDurationSec) * time.Second
}

// TimerDurationMs returns the answer window in milliseconds.
func (g *Game) TimerDurationMs() int {
	return g.TimerDurationSec * 1000
}

// QuestionNumber is the 1-based number of the current question.
func (g *Game) QuestionNumber() int {
	return g.CurrentQuestionIndex + 1
}

// IsPaused reports whether the pause overlay is active.
func (g *Game) IsPaused() bool {
	return g.PausedAt != nil
}
