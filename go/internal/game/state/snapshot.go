package state

import (
	"math"
	"time"

	"github.com/mcdev12/triviacast/go/internal/game/events"
)

// Phase is what a device is currently showing
type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhaseQuestion    Phase = "question"
	PhaseReveal      Phase = "reveal"
	PhaseLeaderboard Phase = "leaderboard"
	PhaseResults     Phase = "results"
)

func (p Phase) order() int {
	switch p {
	case PhaseQuestion:
		return 1
	case PhaseReveal:
		return 2
	case PhaseLeaderboard:
		return 3
	default:
		return 0
	}
}

// IsActive reports whether the phase is one of the in-game sub-states
func (p Phase) IsActive() bool {
	return p == PhaseQuestion || p == PhaseReveal || p == PhaseLeaderboard
}

// QuestionView is the question payload a device renders
type QuestionView struct {
	ID                 string    `json:"id"`
	Number             int       `json:"number"`
	Text               string    `json:"text"`
	Options            [4]string `json:"options"`
	CorrectAnswer      string    `json:"correct_answer,omitempty"`
	ScriptureReference *string   `json:"scripture_reference,omitempty"`
}

// RevealView is the correct-answer payload shown during reveal
type RevealView struct {
	CorrectAnswer  string  `json:"correct_answer"`
	AnswerContent  string  `json:"answer_content"`
	ShowSource     bool    `json:"show_source"`
	VerseReference *string `json:"verse_reference,omitempty"`
	VerseContent   *string `json:"verse_content,omitempty"`
}

// Snapshot is the device-local game state. It is never persisted.
type Snapshot struct {
	Phase            Phase            `json:"phase"`
	Question         *QuestionView    `json:"question,omitempty"`
	QuestionNumber   int              `json:"question_number"`
	TotalQuestions   int              `json:"total_questions"`
	TimerStartedAt   time.Time        `json:"timer_started_at"`
	TimerDurationSec int              `json:"timer_duration_sec"`
	Paused           bool             `json:"paused"`
	PausedAt         *time.Time       `json:"paused_at,omitempty"`
	PausedTotalMs    int64            `json:"paused_total_ms"`
	Reveal           *RevealView      `json:"reveal,omitempty"`
	Rankings         []events.Ranking `json:"rankings,omitempty"`
	PreviousRanks    map[string]int   `json:"previous_ranks,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Version          uint64           `json:"version"`
}

// Authoritative is a view of a game rebuilt from the row store. Devices install it
// through the fallback convergence path when they miss broadcasts.
type Authoritative struct {
	GameID           string           `json:"game_id"`
	Phase            Phase            `json:"phase"`
	Question         *QuestionView    `json:"question,omitempty"`
	QuestionNumber   int              `json:"question_number"`
	TotalQuestions   int              `json:"total_questions"`
	TimerStartedAt   time.Time        `json:"timer_started_at"`
	TimerDurationSec int              `json:"timer_duration_sec"`
	PausedAt         *time.Time       `json:"paused_at,omitempty"`
	PausedTotalMs    int64            `json:"paused_total_ms"`
	Reveal           *RevealView      `json:"reveal,omitempty"`
	Rankings         []events.Ranking `json:"rankings,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	ServerTime       time.Time        `json:"server_time"`
}

// progress orders states across questions: results beat everything, waiting is zero.
func progress(phase Phase, number int) (int, int) {
	switch phase {
	case PhaseResults:
		return math.MaxInt, 0
	case PhaseWaiting:
		return 0, 0
	default:
		return number, phase.order()
	}
}

func less(aNum, aPhase, bNum, bPhase int) bool {
	if aNum != bNum {
		return aNum < bNum
	}
	return aPhase < bPhase
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Rankings != nil {
		out.Rankings = append([]events.Ranking(nil), s.Rankings...)
	}
	if s.PreviousRanks != nil {
		out.PreviousRanks = make(map[string]int, len(s.PreviousRanks))
		for k, v := range s.PreviousRanks {
			out.PreviousRanks[k] = v
		}
	}
	return out
}

func rankMap(rankings []events.Ranking) map[string]int {
	if len(rankings) == 0 {
		return nil
	}
	m := make(map[string]int, len(rankings))
	for _, r := range rankings {
		m[r.PlayerID] = r.Rank
	}
	return m
}
