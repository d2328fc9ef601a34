package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/rs/zerolog/log"
)

// timerKind names the phase a timer closes
type timerKind string

const (
	timerQuestion    timerKind = "question"
	timerReveal      timerKind = "reveal"
	timerLeaderboard timerKind = "leaderboard"
)

// timerFire is one unit of work for the worker pool. generation ties it to the timer
// that produced it; a fire whose generation is no longer current is stale.
type timerFire struct {
	gameID        uuid.UUID
	kind          timerKind
	questionIndex int
	generation    uint64
}

type gameTimer struct {
	timer    clockwork.Timer
	fire     timerFire
	deadline time.Time
	stop     chan struct{}
}

// kindFor maps a persisted phase to the timer that ends it
func kindFor(phase models.QuestionPhase) timerKind {
	switch phase {
	case models.QuestionPhaseReveal:
		return timerReveal
	case models.QuestionPhaseLeaderboard:
		return timerLeaderboard
	default:
		return timerQuestion
	}
}

// phaseDuration is how long a phase lasts before its timer fires
func (o *Orchestrator) phaseDuration(game *models.Game) time.Duration {
	switch game.QuestionPhase {
	case models.QuestionPhaseReveal:
		return o.cfg.RevealDwell
	case models.QuestionPhaseLeaderboard:
		return o.cfg.LeaderboardDwell
	default:
		return game.TimerDuration()
	}
}

// schedule arms the one timer of a game, replacing whatever was armed before
func (o *Orchestrator) schedule(gameID uuid.UUID, kind timerKind, questionIndex int, d time.Duration) {
	if d < 0 {
		d = 0
	}

	gt := &gameTimer{
		timer:    o.clock.NewTimer(d),
		deadline: o.clock.Now().Add(d),
		stop:     make(chan struct{}),
	}
	gt.fire = timerFire{
		gameID:        gameID,
		kind:          kind,
		questionIndex: questionIndex,
		generation:    o.replaceTimer(gameID, gt),
	}

	go func(t *gameTimer) {
		select {
		case <-t.timer.Chan():
			o.removeTimer(t)
			o.enqueue(t.fire)
		case <-t.stop:
		case <-o.stopCh:
		}
	}(gt)

	log.Debug().
		Str("game_id", gameID.String()).
		Str("timer", string(kind)).
		Int("question_index", questionIndex).
		Time("deadline", gt.deadline).
		Dur("duration", d).
		Msg("scheduled phase timer")
}

// armFromRow re-arms the timer of an active, unpaused game from its persisted phase start
func (o *Orchestrator) armFromRow(game *models.Game) {
	if game.Status != models.GameStatusActive || game.IsPaused() {
		return
	}

	d := o.phaseDuration(game)
	if game.PhaseStartedAt != nil {
		elapsed := o.clock.Since(*game.PhaseStartedAt) - time.Duration(game.QuestionPausedMs)*time.Millisecond
		d -= elapsed
	}
	o.schedule(game.ID, kindFor(game.QuestionPhase), game.CurrentQuestionIndex, d)
}

func (o *Orchestrator) enqueue(f timerFire) {
	select {
	case o.workCh <- f:
		log.Debug().Str("game_id", f.gameID.String()).Str("timer", string(f.kind)).Msg("timer fired - enqueued for processing")
	case <-o.stopCh:
	}
}

// replaceTimer atomically swaps in a game's timer and returns its generation
func (o *Orchestrator) replaceTimer(gameID uuid.UUID, gt *gameTimer) uint64 {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existing, ok := o.activeTimers[gameID]; ok {
		stopTimer(existing)
		log.Debug().Str("game_id", gameID.String()).Msg("replaced existing timer")
	}

	o.generations[gameID]++
	o.activeTimers[gameID] = gt
	return o.generations[gameID]
}

// cancelTimer stops a game's timer and invalidates any fire already queued
func (o *Orchestrator) cancelTimer(gameID uuid.UUID) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	o.generations[gameID]++
	if existing, ok := o.activeTimers[gameID]; ok {
		stopTimer(existing)
		delete(o.activeTimers, gameID)
		log.Debug().Str("game_id", gameID.String()).Msg("cancelled existing timer")
	}
}

// suspendTimer cancels a game's timer and reports what it had left
func (o *Orchestrator) suspendTimer(gameID uuid.UUID) *pausedTimer {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	o.generations[gameID]++
	existing, ok := o.activeTimers[gameID]
	if !ok {
		return nil
	}
	stopTimer(existing)
	delete(o.activeTimers, gameID)

	left := existing.deadline.Sub(o.clock.Now())
	if left < 0 {
		left = 0
	}
	return &pausedTimer{
		kind:          existing.fire.kind,
		questionIndex: existing.fire.questionIndex,
		remaining:     left,
	}
}

// removeTimer drops a fired timer unless it was already replaced
func (o *Orchestrator) removeTimer(gt *gameTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	if o.activeTimers[gt.fire.gameID] == gt {
		delete(o.activeTimers, gt.fire.gameID)
	}
}

// isCurrent reports whether no transition has touched the game's timer since f was armed
func (o *Orchestrator) isCurrent(f timerFire) bool {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	return o.generations[f.gameID] == f.generation
}

func (o *Orchestrator) cancelAllTimers() {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	for gameID, gt := range o.activeTimers {
		stopTimer(gt)
		o.generations[gameID]++
		log.Debug().Str("game_id", gameID.String()).Msg("cancelled timer on shutdown")
	}
	o.activeTimers = make(map[uuid.UUID]*gameTimer)
}

// stopTimer stops the clock timer, drains its channel and releases the waiting goroutine
func stopTimer(gt *gameTimer) {
	stopAndDrainTimer(gt.timer)
	select {
	case <-gt.stop:
	default:
		close(gt.stop)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent goroutine leaks.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
