package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Run recovers active games from the row store, then processes phase timers on a worker
// pool until ctx is cancelled. Timers and host sessions are torn down on return.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.cfg.NumWorkers).
		Msg("game orchestrator started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.cfg.NumWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	if err := o.recoverGames(ctx); err != nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("failed to recover active games")
	}

	<-ctx.Done()
	log.Info().Str("instance", o.instanceID).Msg("orchestrator shutdown requested")

	o.cancelAllTimers()
	close(o.stopCh)
	cancelWorkers()
	wg.Wait()
	log.Info().Str("instance", o.instanceID).Msg("all workers shut down")

	o.Close()
	return nil
}

// Close stops every timer and closes every host session
func (o *Orchestrator) Close() {
	o.cancel()
	o.cancelAllTimers()

	o.sessionsMu.Lock()
	ids := make([]uuid.UUID, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.sessionsMu.Unlock()

	for _, id := range ids {
		o.closeSession(id)
	}
}

// recoverGames reattaches to every active game and re-arms its timer from the phase start
func (o *Orchestrator) recoverGames(ctx context.Context) error {
	games, err := o.repo.ListActiveGames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active games: %w", err)
	}

	for i := range games {
		game := &games[i]
		if _, err := o.session(ctx, game.ID); err != nil {
			log.Error().Err(err).Str("game_id", game.ID.String()).Msg("failed to reopen host session")
			continue
		}
		o.armFromRow(game)

		log.Info().
			Str("game_id", game.ID.String()).
			Str("phase", string(game.QuestionPhase)).
			Int("question_number", game.QuestionNumber()).
			Bool("paused", game.IsPaused()).
			Msg("recovered active game")
	}
	return nil
}

// worker processes timer fires from the work channel
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Debug().
		Str("instance", o.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case f := <-o.workCh:
			o.inFlightMu.Lock()
			if o.inFlight[f] {
				o.inFlightMu.Unlock()
				log.Debug().Str("game_id", f.gameID.String()).Str("instance", o.instanceID).Msg("skipping timer already in flight")
				continue
			}
			o.inFlight[f] = true
			o.inFlightMu.Unlock()

			if err := o.handleFire(ctx, f); err != nil {
				log.Error().
					Err(err).
					Str("game_id", f.gameID.String()).
					Str("timer", string(f.kind)).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("phase transition failed")
			}

			o.inFlightMu.Lock()
			delete(o.inFlight, f)
			o.inFlightMu.Unlock()
		}
	}
}

// handleFire runs the transition a timer stands for. A retryable failure re-arms the
// same timer after the retry delay.
func (o *Orchestrator) handleFire(ctx context.Context, f timerFire) error {
	stale := !o.isCurrent(f)
	o.metrics.RecordTimerFired(string(f.kind), stale)
	if stale {
		log.Debug().
			Str("game_id", f.gameID.String()).
			Str("timer", string(f.kind)).
			Msg("stale timer fire ignored")
		return nil
	}

	var err error
	switch f.kind {
	case timerQuestion:
		err = o.RevealAnswer(ctx, f.gameID, f.questionIndex+1, TriggerTimer)
	case timerReveal:
		err = o.showLeaderboard(ctx, f.gameID, f.questionIndex)
	case timerLeaderboard:
		err = o.advance(ctx, f.gameID, f.questionIndex)
	}

	if err != nil && isRetryable(err) && o.isCurrent(f) {
		o.schedule(f.gameID, f.kind, f.questionIndex, o.cfg.RetryDelay)
	}
	return err
}
