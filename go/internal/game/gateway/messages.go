package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/internal/game/state"
)

// MessageType is the kind of frame pushed to websocket clients
type MessageType string

const (
	MessageTypeState        MessageType = "state"
	MessageTypePlayerJoined MessageType = "player_joined"
	MessageTypePlayerLeft   MessageType = "player_left"
)

// Message is one frame pushed to a websocket client
type Message struct {
	Type      MessageType     `json:"type"`
	GameID    string          `json:"game_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// StatePayload is the body of a state frame. Clients render remaining time from the
// server start timestamp, RemainingMs is only a hint.
type StatePayload struct {
	Snapshot    state.Snapshot `json:"snapshot"`
	RemainingMs int64          `json:"remaining_ms"`
	ServerTime  time.Time      `json:"server_time"`
}

// ClientMessage is what a websocket client may send
type ClientMessage struct {
	Type string `json:"type"`
}

const clientMessageResync = "resync"

func NewMessage(t MessageType, gameID uuid.UUID, data any, at time.Time) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", t, err)
	}
	return &Message{Type: t, GameID: gameID.String(), Timestamp: at, Data: raw}, nil
}
