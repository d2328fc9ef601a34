package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of game event
type EventType string

const (
	EventTypePlayerJoined     EventType = "player_joined"
	EventTypePlayerLeft       EventType = "player_left"
	EventTypeGameStart        EventType = "game_start"
	EventTypeQuestionAdvance  EventType = "question_advance"
	EventTypeAnswerReveal     EventType = "answer_reveal"
	EventTypeLeaderboardReady EventType = "leaderboard_ready"
	EventTypeGameEnd          EventType = "game_end"
	EventTypeGamePause        EventType = "game_pause"
	EventTypeGameResume       EventType = "game_resume"
	EventTypeTimerExpired     EventType = "timer_expired"
	EventTypeScoresUpdated    EventType = "scores_updated"
)

// Envelope is the bus wire format for every game event
type Envelope struct {
	ID      string          `json:"id"`
	Type    EventType       `json:"type"`
	GameID  string          `json:"gameId"`
	SentAt  time.Time       `json:"sentAt"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope
func NewEnvelope(gameID uuid.UUID, eventType EventType, payload any, sentAt time.Time) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:      uuid.New().String(),
		Type:    eventType,
		GameID:  gameID.String(),
		SentAt:  sentAt,
		Payload: data,
	}, nil
}

// ParsePayload decodes an envelope payload into its typed struct
func ParsePayload(env *Envelope) (any, error) {
	switch env.Type {
	case EventTypePlayerJoined, EventTypePlayerLeft:
		return decode[PlayerPayload](env)
	case EventTypeGameStart:
		return decode[GameStartPayload](env)
	case EventTypeQuestionAdvance:
		return decode[QuestionAdvancePayload](env)
	case EventTypeAnswerReveal:
		return decode[AnswerRevealPayload](env)
	case EventTypeLeaderboardReady:
		return decode[LeaderboardReadyPayload](env)
	case EventTypeGameEnd:
		return decode[GameEndPayload](env)
	case EventTypeGamePause:
		return decode[GamePausePayload](env)
	case EventTypeGameResume:
		return decode[GameResumePayload](env)
	case EventTypeTimerExpired:
		return decode[TimerExpiredPayload](env)
	case EventTypeScoresUpdated:
		return decode[ScoresUpdatedPayload](env)
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
}

func decode[T any](env *Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal %s payload: %w", env.Type, err)
	}
	return payload, nil
}
