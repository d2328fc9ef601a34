package models

import (
	"time"

	"github.com/google/uuid"
)

// Player represents one participant in a game
type Player struct {
	ID                       uuid.UUID  `json:"id"`
	GameID                   uuid.UUID  `json:"game_id"`
	Name                     string     `json:"name"`
	JoinedAt                 time.Time  `json:"joined_at"`
	LeftAt                   *time.Time `json:"left_at,omitempty"`
	TotalScore               int        `json:"total_score"`
	CumulativeResponseTimeMs int64      `json:"cumulative_response_time_ms"`
}
