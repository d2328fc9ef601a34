// Package state holds the per-device game snapshot. Every mutation goes through an explicit
// setter, and every setter runs the stale-event guard: events tagged with a question number
// behind the installed one are ignored instead of trusting arrival order.
package state

import (
	"slices"
	"sync"
	"time"

	"github.com/mcdev12/triviacast/go/internal/game/events"
)

// Outcome reports what a setter did with an event
type Outcome int

const (
	// Applied means the snapshot changed
	Applied Outcome = iota
	// Stale means the event was behind (or equal to) the installed state and was ignored
	Stale
	// Ahead means the event belongs to a question this device has not installed yet
	Ahead
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Ahead:
		return "ahead"
	default:
		return "unknown"
	}
}

// Store is one device's game snapshot
type Store struct {
	mu        sync.Mutex
	snap      Snapshot
	listeners []func(Snapshot)
}

// NewStore returns a store in the waiting phase
func NewStore() *Store {
	return &Store{snap: Snapshot{Phase: PhaseWaiting}}
}

// Snapshot returns a copy of the current snapshot
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// OnChange registers fn to run after every applied change. fn runs outside the store lock.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reset returns to the initial empty snapshot
func (s *Store) Reset() {
	s.mu.Lock()
	s.snap = Snapshot{Phase: PhaseWaiting, Version: s.snap.Version}
	s.commit()
}

// ApplyGameStart installs question 1 and starts its timer
func (s *Store) ApplyGameStart(p events.GameStartPayload) Outcome {
	s.mu.Lock()
	if s.snap.Phase == PhaseResults || (s.snap.Phase != PhaseWaiting && p.QuestionNumber <= s.snap.QuestionNumber) {
		s.mu.Unlock()
		return Stale
	}

	s.snap = Snapshot{
		Phase: PhaseQuestion,
		Question: &QuestionView{
			ID:      p.QuestionID,
			Number:  p.QuestionNumber,
			Text:    p.QuestionText,
			Options: p.Options,
		},
		QuestionNumber:   p.QuestionNumber,
		TotalQuestions:   p.TotalQuestions,
		TimerStartedAt:   p.StartedAt,
		TimerDurationSec: p.TimerDuration,
		Version:          s.snap.Version,
	}
	s.commit()
	return Applied
}

// ApplyQuestionAdvance installs the next question and resets timer, pause and reveal state
func (s *Store) ApplyQuestionAdvance(p events.QuestionAdvancePayload) Outcome {
	s.mu.Lock()
	if s.snap.Phase == PhaseResults || p.QuestionNumber <= s.snap.QuestionNumber {
		s.mu.Unlock()
		return Stale
	}

	s.snap.Phase = PhaseQuestion
	s.snap.Question = &QuestionView{
		ID:                 p.QuestionID,
		Number:             p.QuestionNumber,
		Text:               p.QuestionText,
		Options:            p.Options,
		CorrectAnswer:      p.CorrectAnswer,
		ScriptureReference: p.ScriptureReference,
	}
	s.snap.QuestionNumber = p.QuestionNumber
	s.snap.TotalQuestions = p.TotalQuestions
	s.snap.TimerStartedAt = p.StartedAt
	s.snap.TimerDurationSec = p.TimerDuration
	s.snap.Paused = false
	s.snap.PausedAt = nil
	s.snap.PausedTotalMs = 0
	s.snap.Reveal = nil
	s.commit()
	return Applied
}

// ApplyReveal attaches the correct answer for the installed question
func (s *Store) ApplyReveal(p events.AnswerRevealPayload) Outcome {
	s.mu.Lock()
	if out := s.guard(p.QuestionNumber); out != Applied {
		s.mu.Unlock()
		return out
	}
	if s.snap.Phase != PhaseQuestion {
		s.mu.Unlock()
		return Stale
	}

	s.snap.Phase = PhaseReveal
	s.snap.Reveal = &RevealView{
		CorrectAnswer:  p.CorrectAnswer,
		AnswerContent:  p.AnswerContent,
		ShowSource:     p.ShowSource,
		VerseReference: p.VerseReference,
		VerseContent:   p.VerseContent,
	}
	s.commit()
	return Applied
}

// ApplyLeaderboardReady installs rankings for the installed question. A missed reveal
// does not block it.
func (s *Store) ApplyLeaderboardReady(p events.LeaderboardReadyPayload) Outcome {
	s.mu.Lock()
	if out := s.guard(p.QuestionNumber); out != Applied {
		s.mu.Unlock()
		return out
	}
	if s.snap.Phase != PhaseQuestion && s.snap.Phase != PhaseReveal {
		s.mu.Unlock()
		return Stale
	}

	s.snap.Phase = PhaseLeaderboard
	s.snap.PreviousRanks = rankMap(s.snap.Rankings)
	s.snap.Rankings = append([]events.Ranking(nil), p.Rankings...)
	s.commit()
	return Applied
}

// ApplyGameEnd moves to the results screen
func (s *Store) ApplyGameEnd(p events.GameEndPayload) Outcome {
	s.mu.Lock()
	if s.snap.Phase == PhaseResults {
		s.mu.Unlock()
		return Stale
	}

	completedAt := p.CompletedAt
	s.snap.Phase = PhaseResults
	s.snap.CompletedAt = &completedAt
	s.snap.Paused = false
	s.snap.PausedAt = nil
	if len(p.Rankings) > 0 {
		s.snap.PreviousRanks = rankMap(s.snap.Rankings)
		s.snap.Rankings = append([]events.Ranking(nil), p.Rankings...)
	}
	s.commit()
	return Applied
}

// ApplyPause freezes the timer
func (s *Store) ApplyPause(at time.Time) Outcome {
	s.mu.Lock()
	if !s.snap.Phase.IsActive() || s.snap.Paused {
		s.mu.Unlock()
		return Stale
	}

	pausedAt := at
	s.snap.Paused = true
	s.snap.PausedAt = &pausedAt
	s.commit()
	return Applied
}

// ApplyResume unfreezes the timer and accumulates the pause length
func (s *Store) ApplyResume(at time.Time) Outcome {
	s.mu.Lock()
	if !s.snap.Paused {
		s.mu.Unlock()
		return Stale
	}

	if s.snap.PausedAt != nil {
		if d := at.Sub(*s.snap.PausedAt); d > 0 {
			s.snap.PausedTotalMs += d.Milliseconds()
		}
	}
	s.snap.Paused = false
	s.snap.PausedAt = nil
	s.commit()
	return Applied
}

// ApplyAuthoritative installs a row-store view if it is ahead of the snapshot, or carries
// a different pause state for the same position. It never moves the snapshot backwards.
func (s *Store) ApplyAuthoritative(a Authoritative) Outcome {
	s.mu.Lock()

	curNum, curPhase := progress(s.snap.Phase, s.snap.QuestionNumber)
	tgtNum, tgtPhase := progress(a.Phase, a.QuestionNumber)

	if less(tgtNum, tgtPhase, curNum, curPhase) {
		s.mu.Unlock()
		return Stale
	}

	if tgtNum == curNum && tgtPhase == curPhase {
		paused := a.PausedAt != nil
		if paused == s.snap.Paused && a.PausedTotalMs == s.snap.PausedTotalMs {
			s.mu.Unlock()
			return Stale
		}
		s.snap.Paused = paused
		s.snap.PausedAt = a.PausedAt
		s.snap.PausedTotalMs = a.PausedTotalMs
		s.commit()
		return Applied
	}

	next := Snapshot{
		Phase:            a.Phase,
		Question:         a.Question,
		QuestionNumber:   a.QuestionNumber,
		TotalQuestions:   a.TotalQuestions,
		TimerStartedAt:   a.TimerStartedAt,
		TimerDurationSec: a.TimerDurationSec,
		Paused:           a.PausedAt != nil,
		PausedAt:         a.PausedAt,
		PausedTotalMs:    a.PausedTotalMs,
		Reveal:           a.Reveal,
		Rankings:         s.snap.Rankings,
		PreviousRanks:    s.snap.PreviousRanks,
		CompletedAt:      a.CompletedAt,
		Version:          s.snap.Version,
	}
	if len(a.Rankings) > 0 {
		next.PreviousRanks = rankMap(s.snap.Rankings)
		next.Rankings = append([]events.Ranking(nil), a.Rankings...)
	}
	s.snap = next
	s.commit()
	return Applied
}

// Remaining is the answer time left at now, derived from the server start timestamp.
func (s *Store) Remaining(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remaining(s.snap, now)
}

func remaining(snap Snapshot, now time.Time) time.Duration {
	if snap.Phase != PhaseQuestion || snap.TimerStartedAt.IsZero() {
		return 0
	}

	duration := time.Duration(snap.TimerDurationSec) * time.Second
	elapsed := now.Sub(snap.TimerStartedAt) - time.Duration(snap.PausedTotalMs)*time.Millisecond
	if snap.Paused && snap.PausedAt != nil {
		elapsed -= now.Sub(*snap.PausedAt)
	}

	left := duration - elapsed
	if left < 0 {
		return 0
	}
	if left > duration {
		return duration
	}
	return left
}

// guard compares an event's question number with the installed one. Caller holds mu.
func (s *Store) guard(questionNumber int) Outcome {
	if s.snap.Phase == PhaseResults || questionNumber < s.snap.QuestionNumber {
		return Stale
	}
	if questionNumber > s.snap.QuestionNumber {
		return Ahead
	}
	return Applied
}

// commit bumps the version, releases mu and notifies listeners. Caller holds mu.
func (s *Store) commit() {
	s.snap.Version++
	snap := s.snap.clone()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
