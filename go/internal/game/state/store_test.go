package state

import (
	"testing"
	"time"

	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 10, 19, 0, 0, 0, time.UTC)

func started(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.Equal(t, Applied, s.ApplyGameStart(events.GameStartPayload{
		QuestionID:     "q1",
		QuestionText:   "First?",
		Options:        [4]string{"a", "b", "c", "d"},
		QuestionNumber: 1,
		TimerDuration:  15,
		StartedAt:      t0,
		TotalQuestions: 6,
	}))
	return s
}

func advance(number int, at time.Time) events.QuestionAdvancePayload {
	return events.QuestionAdvancePayload{
		QuestionIndex:  number - 1,
		QuestionNumber: number,
		QuestionID:     "q" + string(rune('0'+number)),
		TimerDuration:  15,
		StartedAt:      at,
		TotalQuestions: 6,
	}
}

func TestGameStartInstallsFirstQuestion(t *testing.T) {
	s := started(t)
	snap := s.Snapshot()

	assert.Equal(t, PhaseQuestion, snap.Phase)
	assert.Equal(t, 1, snap.QuestionNumber)
	assert.Equal(t, 6, snap.TotalQuestions)
	require.NotNil(t, snap.Question)
	assert.Equal(t, "q1", snap.Question.ID)

	assert.Equal(t, Stale, s.ApplyGameStart(events.GameStartPayload{QuestionNumber: 1}), "duplicate start")
}

func TestStaleQuestionAdvanceIsIgnored(t *testing.T) {
	s := started(t)

	require.Equal(t, Applied, s.ApplyQuestionAdvance(advance(5, t0.Add(time.Minute))))
	assert.Equal(t, Stale, s.ApplyQuestionAdvance(advance(3, t0.Add(30*time.Second))))

	snap := s.Snapshot()
	assert.Equal(t, 5, snap.QuestionNumber)
	assert.Equal(t, "q5", snap.Question.ID)
}

func TestRevealGuard(t *testing.T) {
	s := started(t)
	require.Equal(t, Applied, s.ApplyQuestionAdvance(advance(2, t0.Add(time.Minute))))

	assert.Equal(t, Stale, s.ApplyReveal(events.AnswerRevealPayload{QuestionNumber: 1, CorrectAnswer: "A"}))
	assert.Equal(t, Ahead, s.ApplyReveal(events.AnswerRevealPayload{QuestionNumber: 3, CorrectAnswer: "C"}))
	assert.Equal(t, PhaseQuestion, s.Snapshot().Phase)

	require.Equal(t, Applied, s.ApplyReveal(events.AnswerRevealPayload{QuestionNumber: 2, CorrectAnswer: "B", AnswerContent: "Moses"}))
	snap := s.Snapshot()
	assert.Equal(t, PhaseReveal, snap.Phase)
	require.NotNil(t, snap.Reveal)
	assert.Equal(t, "B", snap.Reveal.CorrectAnswer)

	assert.Equal(t, Stale, s.ApplyReveal(events.AnswerRevealPayload{QuestionNumber: 2, CorrectAnswer: "B"}), "duplicate reveal")
}

func TestLeaderboardNeverRegressesToReveal(t *testing.T) {
	s := started(t)
	require.Equal(t, Applied, s.ApplyLeaderboardReady(events.LeaderboardReadyPayload{
		QuestionNumber: 1,
		Rankings:       []events.Ranking{{PlayerID: "p1", Rank: 1}},
	}), "missed reveal does not block the leaderboard")

	assert.Equal(t, Stale, s.ApplyReveal(events.AnswerRevealPayload{QuestionNumber: 1}))
	assert.Equal(t, PhaseLeaderboard, s.Snapshot().Phase)
}

func TestPreviousRanksCarryAcrossLeaderboards(t *testing.T) {
	s := started(t)
	require.Equal(t, Applied, s.ApplyLeaderboardReady(events.LeaderboardReadyPayload{
		QuestionNumber: 1,
		Rankings: []events.Ranking{
			{PlayerID: "p1", Rank: 1},
			{PlayerID: "p2", Rank: 2},
		},
	}))
	require.Equal(t, Applied, s.ApplyQuestionAdvance(advance(2, t0.Add(time.Minute))))
	require.Equal(t, Applied, s.ApplyLeaderboardReady(events.LeaderboardReadyPayload{
		QuestionNumber: 2,
		Rankings: []events.Ranking{
			{PlayerID: "p2", Rank: 1},
			{PlayerID: "p1", Rank: 2},
		},
	}))

	snap := s.Snapshot()
	assert.Equal(t, map[string]int{"p1": 1, "p2": 2}, snap.PreviousRanks)
	assert.Equal(t, "p2", snap.Rankings[0].PlayerID)
}

func TestPauseResumeAccumulates(t *testing.T) {
	s := started(t)

	require.Equal(t, Applied, s.ApplyPause(t0.Add(2*time.Second)))
	assert.Equal(t, Stale, s.ApplyPause(t0.Add(3*time.Second)), "already paused")
	assert.Equal(t, 13*time.Second, s.Remaining(t0.Add(10*time.Second)), "timer frozen while paused")

	require.Equal(t, Applied, s.ApplyResume(t0.Add(6*time.Second)))
	assert.Equal(t, Stale, s.ApplyResume(t0.Add(7*time.Second)), "not paused")

	require.Equal(t, Applied, s.ApplyPause(t0.Add(8*time.Second)))
	require.Equal(t, Applied, s.ApplyResume(t0.Add(9*time.Second)))

	snap := s.Snapshot()
	assert.Equal(t, int64(5000), snap.PausedTotalMs)
	assert.Equal(t, 5*time.Second, s.Remaining(t0.Add(15*time.Second)))

	require.Equal(t, Applied, s.ApplyQuestionAdvance(advance(2, t0.Add(time.Minute))))
	assert.Zero(t, s.Snapshot().PausedTotalMs, "advance resets pause bookkeeping")
}

func TestPauseOutsideActiveIsIgnored(t *testing.T) {
	s := NewStore()
	assert.Equal(t, Stale, s.ApplyPause(t0))
	assert.Zero(t, s.Remaining(t0))
}

func TestGameEndIsTerminal(t *testing.T) {
	s := started(t)
	require.Equal(t, Applied, s.ApplyGameEnd(events.GameEndPayload{CompletedAt: t0.Add(time.Hour)}))

	assert.Equal(t, Stale, s.ApplyGameEnd(events.GameEndPayload{}))
	assert.Equal(t, Stale, s.ApplyQuestionAdvance(advance(6, t0)))
	assert.Equal(t, Stale, s.ApplyAuthoritative(Authoritative{Phase: PhaseQuestion, QuestionNumber: 6}))

	snap := s.Snapshot()
	assert.Equal(t, PhaseResults, snap.Phase)
	require.NotNil(t, snap.CompletedAt)
}

func TestApplyAuthoritative(t *testing.T) {
	s := started(t)

	assert.Equal(t, Stale, s.ApplyAuthoritative(Authoritative{Phase: PhaseWaiting}))
	assert.Equal(t, Stale, s.ApplyAuthoritative(Authoritative{Phase: PhaseQuestion, QuestionNumber: 1}))

	pausedAt := t0.Add(4 * time.Second)
	require.Equal(t, Applied, s.ApplyAuthoritative(Authoritative{Phase: PhaseQuestion, QuestionNumber: 1, PausedAt: &pausedAt}))
	assert.True(t, s.Snapshot().Paused)

	require.Equal(t, Applied, s.ApplyAuthoritative(Authoritative{
		Phase:          PhaseLeaderboard,
		QuestionNumber: 2,
		TotalQuestions: 6,
		Question:       &QuestionView{ID: "q2", Number: 2},
		Reveal:         &RevealView{CorrectAnswer: "D"},
		Rankings:       []events.Ranking{{PlayerID: "p1", Rank: 1}},
	}))
	snap := s.Snapshot()
	assert.Equal(t, PhaseLeaderboard, snap.Phase)
	assert.Equal(t, 2, snap.QuestionNumber)
	assert.False(t, snap.Paused)
	require.Len(t, snap.Rankings, 1)

	assert.Equal(t, Stale, s.ApplyAuthoritative(Authoritative{Phase: PhaseReveal, QuestionNumber: 2}))
}

func TestOnChangeAndReset(t *testing.T) {
	s := NewStore()
	var phases []Phase
	s.OnChange(func(snap Snapshot) { phases = append(phases, snap.Phase) })

	s.ApplyGameStart(events.GameStartPayload{QuestionNumber: 1, StartedAt: t0, TimerDuration: 15})
	s.ApplyGameStart(events.GameStartPayload{QuestionNumber: 1, StartedAt: t0, TimerDuration: 15})
	s.Reset()

	assert.Equal(t, []Phase{PhaseQuestion, PhaseWaiting}, phases)
	assert.Equal(t, uint64(2), s.Snapshot().Version)
}

func TestListenersAddedDuringNotifyWaitForNextChange(t *testing.T) {
	s := NewStore()
	var first, second, late []uint64
	s.OnChange(func(snap Snapshot) {
		first = append(first, snap.Version)
		if len(first) == 1 {
			s.OnChange(func(snap Snapshot) { late = append(late, snap.Version) })
		}
	})
	s.OnChange(func(snap Snapshot) { second = append(second, snap.Version) })

	s.ApplyGameStart(events.GameStartPayload{QuestionNumber: 1, StartedAt: t0, TimerDuration: 15})
	s.ApplyPause(t0.Add(time.Second))

	assert.Equal(t, []uint64{1, 2}, first)
	assert.Equal(t, []uint64{1, 2}, second)
	assert.Equal(t, []uint64{2}, late)
}
