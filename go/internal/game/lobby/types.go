package lobby

import (
	"github.com/google/uuid"
)

// CreateGameRequest is what a host sends to open a new room
type CreateGameRequest struct {
	QuestionSetID    uuid.UUID `json:"question_set_id"`
	TimerDurationSec int       `json:"timer_duration_sec"`
}

// JoinGameRequest is what a player sends from the join screen
type JoinGameRequest struct {
	RoomCode   string `json:"room_code"`
	PlayerName string `json:"player_name"`
}

// SubmitAnswerRequest carries one player's answer. A nil option records that the player
// saw the question but did not pick anything.
type SubmitAnswerRequest struct {
	GameID         uuid.UUID `json:"game_id"`
	PlayerID       uuid.UUID `json:"player_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption *string   `json:"selected_option"`
	ResponseTimeMs int       `json:"response_time_ms"`
}
