package models

import (
	"time"

	"github.com/google/uuid"
)

// Answer is one player's raw response to one question. Correctness is derived at scoring time.
type Answer struct {
	PlayerID       uuid.UUID `json:"player_id"`
	GameID         uuid.UUID `json:"game_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption *string   `json:"selected_option,omitempty"`
	ResponseTimeMs int       `json:"response_time_ms"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// QuestionScore is the scored result of one player on one question.
// Player totals are always the sum of these rows.
type QuestionScore struct {
	PlayerID       uuid.UUID `json:"player_id"`
	GameID         uuid.UUID `json:"game_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	Correct        bool      `json:"correct"`
	Points         int       `json:"points"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ScoredAt       time.Time `json:"scored_at"`
}
