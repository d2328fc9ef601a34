package events

import (
	"time"
)

// Event payload types shared by the orchestrator, the lobby app and every device.
// Keys are camelCase because browsers read the same payloads.

// GameStartPayload is the payload for a game_start event
type GameStartPayload struct {
	QuestionID     string    `json:"questionId"`
	QuestionText   string    `json:"questionText"`
	Options        [4]string `json:"options"`
	QuestionNumber int       `json:"questionNumber"`
	TimerDuration  int       `json:"timerDuration"` // seconds
	StartedAt      time.Time `json:"startedAt"`
	TotalQuestions int       `json:"totalQuestions"`
}

// QuestionAdvancePayload is the payload for a question_advance event
type QuestionAdvancePayload struct {
	QuestionIndex      int       `json:"questionIndex"`
	QuestionNumber     int       `json:"questionNumber"`
	QuestionID         string    `json:"questionId"`
	QuestionText       string    `json:"questionText"`
	Options            [4]string `json:"options"`
	CorrectAnswer      string    `json:"correctAnswer"`
	ScriptureReference *string   `json:"scriptureReference,omitempty"`
	TimerDuration      int       `json:"timerDuration"`
	StartedAt          time.Time `json:"startedAt"`
	TotalQuestions     int       `json:"totalQuestions"`
}

// AnswerRevealPayload is the payload for an answer_reveal event
type AnswerRevealPayload struct {
	QuestionID     string  `json:"questionId"`
	QuestionNumber int     `json:"questionNumber"`
	CorrectAnswer  string  `json:"correctAnswer"`
	AnswerContent  string  `json:"answerContent"`
	ShowSource     bool    `json:"showSource"`
	VerseReference *string `json:"verseReference,omitempty"`
	VerseContent   *string `json:"verseContent,omitempty"`
}

// Ranking is one leaderboard row
type Ranking struct {
	PlayerID                 string `json:"playerId"`
	PlayerName               string `json:"playerName"`
	TotalScore               int    `json:"totalScore"`
	CumulativeResponseTimeMs int64  `json:"cumulativeResponseTimeMs"`
	Rank                     int    `json:"rank"`
}

// LeaderboardReadyPayload is the payload for a leaderboard_ready event
type LeaderboardReadyPayload struct {
	QuestionID     string    `json:"questionId"`
	QuestionNumber int       `json:"questionNumber"`
	Rankings       []Ranking `json:"rankings"`
}

// GameEndPayload is the payload for a game_end event
type GameEndPayload struct {
	CompletedAt time.Time `json:"completedAt"`
	Rankings    []Ranking `json:"rankings,omitempty"`
}

// GamePausePayload is the payload for a game_pause event
type GamePausePayload struct {
	PausedAt time.Time `json:"pausedAt"`
}

// GameResumePayload is the payload for a game_resume event
type GameResumePayload struct {
	ResumedAt time.Time `json:"resumedAt"`
}

// PlayerPayload is the payload for player_joined and player_left events
type PlayerPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName,omitempty"`
}

// TimerExpiredPayload is published by the host when the answer window closes
type TimerExpiredPayload struct {
	QuestionID     string    `json:"questionId"`
	QuestionNumber int       `json:"questionNumber"`
	ExpiredAt      time.Time `json:"expiredAt"`
}

// ScoresUpdatedPayload is published once a question has been scored
type ScoresUpdatedPayload struct {
	QuestionID     string `json:"questionId"`
	QuestionNumber int    `json:"questionNumber"`
}
