// Package orchestrator is the host-authoritative game state machine. Every transition is a
// conditional write to the row store, then a local echo into the host's store, then a
// broadcast on the room channel. Timers drive the phases forward.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/device"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/mcdev12/triviacast/go/internal/game/state"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Trigger says why a question is being revealed
type Trigger string

const (
	TriggerTimer Trigger = "timer"
	TriggerSkip  Trigger = "skip"
)

// Config holds the orchestrator's timings
type Config struct {
	// RevealDwell covers the loading beat plus the time the answer stays on screen
	RevealDwell      time.Duration `yaml:"reveal_dwell"`
	LeaderboardDwell time.Duration `yaml:"leaderboard_dwell"`
	// RetryDelay re-arms a phase timer whose transition failed
	RetryDelay       time.Duration `yaml:"retry_delay"`
	HostPollInterval time.Duration `yaml:"host_poll_interval"`
	NumWorkers       int           `yaml:"num_workers"`
}

func DefaultConfig() Config {
	return Config{
		RevealDwell:      7 * time.Second,
		LeaderboardDwell: 10 * time.Second,
		RetryDelay:       2 * time.Second,
		HostPollInterval: device.DefaultPollInterval,
		NumWorkers:       4,
	}
}

// Repository defines what the orchestrator needs from the row store
type Repository interface {
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetQuestionAt(ctx context.Context, setID uuid.UUID, index int) (*models.Question, error)
	ListActiveGames(ctx context.Context) ([]models.Game, error)
	CountActivePlayers(ctx context.Context, gameID uuid.UUID) (int, error)
	StartGame(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	TransitionPhase(ctx context.Context, t repository.PhaseTransition) (bool, error)
	AdvanceQuestion(ctx context.Context, id uuid.UUID, fromIndex int, at time.Time) (bool, error)
	EndGame(ctx context.Context, req repository.EndGameRequest) (bool, error)
	SetPaused(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SetResumed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// Scorer scores a finished question and ranks the players
type Scorer interface {
	ScoreQuestion(ctx context.Context, gameID, questionID uuid.UUID) error
	Rankings(ctx context.Context, gameID uuid.UUID) ([]events.Ranking, error)
}

type Orchestrator struct {
	repo       Repository
	scorer     Scorer
	transport  channel.Transport
	source     device.StateSource
	clock      clockwork.Clock
	cfg        Config
	metrics    MetricsCollector
	instanceID string

	// host sessions live as long as the orchestrator, not the request that opened them
	baseCtx context.Context
	cancel  context.CancelFunc

	sessions   map[uuid.UUID]*session
	sessionsMu sync.Mutex

	activeTimers   map[uuid.UUID]*gameTimer
	generations    map[uuid.UUID]uint64
	activeTimersMu sync.Mutex

	workCh chan timerFire
	stopCh chan struct{}

	inFlight   map[timerFire]bool
	inFlightMu sync.Mutex
}

// session is the host's attachment to one game
type session struct {
	host *device.Device

	// mu serializes transitions for the game
	mu           sync.Mutex
	pendingScore map[int]uuid.UUID
	paused       *pausedTimer
}

// pausedTimer is what was left of the phase timer when the host paused
type pausedTimer struct {
	kind          timerKind
	questionIndex int
	remaining     time.Duration
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

func WithMetrics(m MetricsCollector) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an orchestrator. source rebuilds host state when the host device falls behind.
func New(repo Repository, scorer Scorer, transport channel.Transport, source device.StateSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:         repo,
		scorer:       scorer,
		transport:    transport,
		source:       source,
		clock:        clockwork.NewRealClock(),
		cfg:          DefaultConfig(),
		metrics:      &NoOpMetricsCollector{},
		instanceID:   uuid.New().String()[:8],
		sessions:     make(map[uuid.UUID]*session),
		activeTimers: make(map[uuid.UUID]*gameTimer),
		generations:  make(map[uuid.UUID]uint64),
		stopCh:       make(chan struct{}),
		inFlight:     make(map[timerFire]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.NumWorkers <= 0 {
		o.cfg.NumWorkers = 1
	}
	o.workCh = make(chan timerFire, o.cfg.NumWorkers*2)
	o.baseCtx, o.cancel = context.WithCancel(context.Background())
	return o
}

// OpenSession attaches the host to a game: a host device subscribed to the room channel
// with its own store. Opening an open session is a no-op, and so is opening an ended game,
// which is served from the row store.
func (o *Orchestrator) OpenSession(ctx context.Context, gameID uuid.UUID) error {
	_, err := o.session(ctx, gameID)
	if errors.Is(err, errGameEnded) {
		return nil
	}
	return err
}

// session returns the game's host session, opening one for a game that has not ended.
// The device is dialed outside sessionsMu; a racing opener keeps the first session.
func (o *Orchestrator) session(ctx context.Context, gameID uuid.UUID) (*session, error) {
	o.sessionsMu.Lock()
	s, ok := o.sessions[gameID]
	o.sessionsMu.Unlock()
	if ok {
		return s, nil
	}

	game, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, readFailed("get game", err)
	}
	if game.Status == models.GameStatusEnded {
		return nil, errGameEnded
	}

	host := device.New(o.transport, gameID, o.source,
		device.WithClock(o.clock),
		device.WithName("host"),
		device.WithPollInterval(o.cfg.HostPollInterval),
	)
	if err := host.Start(o.baseCtx); err != nil {
		return nil, fmt.Errorf("failed to start host device: %w", err)
	}

	o.sessionsMu.Lock()
	existing, ok := o.sessions[gameID]
	shutdown := o.baseCtx.Err() != nil
	if !ok && !shutdown {
		s = &session{host: host, pendingScore: make(map[int]uuid.UUID)}
		o.sessions[gameID] = s
	}
	o.sessionsMu.Unlock()

	if ok || shutdown {
		if err := host.Close(); err != nil {
			log.Warn().Err(err).Str("game_id", gameID.String()).Msg("failed to close spare host device")
		}
		if shutdown {
			return nil, ErrShuttingDown
		}
		return existing, nil
	}

	log.Info().
		Str("game_id", gameID.String()).
		Str("instance", o.instanceID).
		Msg("host session opened")
	return s, nil
}

func (o *Orchestrator) closeSession(gameID uuid.UUID) {
	o.sessionsMu.Lock()
	s, ok := o.sessions[gameID]
	delete(o.sessions, gameID)
	o.sessionsMu.Unlock()

	if ok {
		if err := s.host.Close(); err != nil {
			log.Warn().Err(err).Str("game_id", gameID.String()).Msg("failed to close host device")
		}
	}
}

// HostState returns the host's snapshot of a game. Games without a live session (ended,
// or owned by another instance) are rebuilt from the row store.
func (o *Orchestrator) HostState(ctx context.Context, gameID uuid.UUID) (state.Snapshot, error) {
	o.sessionsMu.Lock()
	s, ok := o.sessions[gameID]
	o.sessionsMu.Unlock()
	if ok {
		return s.host.Store().Snapshot(), nil
	}

	a, err := o.source.Authoritative(ctx, gameID)
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("failed to load game state: %w", err)
	}
	store := state.NewStore()
	store.ApplyAuthoritative(a)
	return store.Snapshot(), nil
}

// Remaining is the answer time the host shows for a game
func (o *Orchestrator) Remaining(gameID uuid.UUID) time.Duration {
	o.sessionsMu.Lock()
	s, ok := o.sessions[gameID]
	o.sessionsMu.Unlock()
	if !ok {
		return 0
	}
	return s.host.Store().Remaining(o.clock.Now())
}

// StartGame moves a waiting game with at least one player to question 1
func (o *Orchestrator) StartGame(ctx context.Context, gameID uuid.UUID) error {
	s, err := o.session(ctx, gameID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return readFailed("get game", err)
	}
	if game.Status != models.GameStatusWaiting {
		return fmt.Errorf("start game in status %s: %w", game.Status, ErrInvalidPhase)
	}

	players, err := o.repo.CountActivePlayers(ctx, gameID)
	if err != nil {
		return retryable("count players", err)
	}
	if players == 0 {
		return ErrNoPlayers
	}

	q, err := o.repo.GetQuestionAt(ctx, game.QuestionSetID, 0)
	if err != nil {
		return readFailed("get first question", err)
	}

	now := o.clock.Now()
	ok, err := o.repo.StartGame(ctx, gameID, now)
	if err != nil {
		o.metrics.RecordTransition(string(models.QuestionPhaseQuestion), false, o.clock.Since(now))
		return retryable("start game", err)
	}
	if !ok {
		return fmt.Errorf("start game: %w", ErrInvalidPhase)
	}
	o.metrics.RecordTransition(string(models.QuestionPhaseQuestion), true, o.clock.Since(now))

	payload := events.GameStartPayload{
		QuestionID:     q.ID.String(),
		QuestionText:   q.Text,
		Options:        q.Options,
		QuestionNumber: 1,
		TimerDuration:  game.TimerDurationSec,
		StartedAt:      now,
		TotalQuestions: game.TotalQuestions,
	}
	s.host.Store().ApplyGameStart(payload)
	o.publish(ctx, s, gameID, events.EventTypeGameStart, payload)

	o.schedule(gameID, timerQuestion, 0, game.TimerDuration())

	log.Info().
		Str("game_id", gameID.String()).
		Int("players", players).
		Int("total_questions", game.TotalQuestions).
		Msg("game started")
	return nil
}

// SkipQuestion reveals the current question before its timer runs out
func (o *Orchestrator) SkipQuestion(ctx context.Context, gameID uuid.UUID) error {
	game, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return readFailed("get game", err)
	}
	if game.Status != models.GameStatusActive {
		return fmt.Errorf("skip question in status %s: %w", game.Status, ErrInvalidPhase)
	}
	return o.RevealAnswer(ctx, gameID, game.QuestionNumber(), TriggerSkip)
}

// RevealAnswer closes question questionNumber: it persists the reveal phase, scores the
// question and broadcasts the answer. A trigger for a question that is already past its
// question phase is a no-op.
func (o *Orchestrator) RevealAnswer(ctx context.Context, gameID uuid.UUID, questionNumber int, trigger Trigger) error {
	s, err := o.session(ctx, gameID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return readFailed("get game", err)
	}
	index := questionNumber - 1
	if game.Status != models.GameStatusActive || game.CurrentQuestionIndex != index || game.QuestionPhase != models.QuestionPhaseQuestion {
		log.Debug().
			Str("game_id", gameID.String()).
			Int("question_number", questionNumber).
			Str("trigger", string(trigger)).
			Msg("question already revealed, ignoring trigger")
		return nil
	}
	if game.IsPaused() {
		return ErrGamePaused
	}

	q, err := o.repo.GetQuestionAt(ctx, game.QuestionSetID, index)
	if err != nil {
		return readFailed("get question", err)
	}

	now := o.clock.Now()
	ok, err := o.repo.TransitionPhase(ctx, repository.PhaseTransition{
		GameID:        gameID,
		QuestionIndex: index,
		From:          models.QuestionPhaseQuestion,
		To:            models.QuestionPhaseReveal,
		At:            now,
	})
	if err != nil {
		o.metrics.RecordTransition(string(models.QuestionPhaseReveal), false, o.clock.Since(now))
		return retryable("reveal answer", err)
	}
	if !ok {
		return nil
	}
	o.metrics.RecordTransition(string(models.QuestionPhaseReveal), true, o.clock.Since(now))
	o.cancelTimer(gameID)

	if trigger == TriggerTimer {
		o.publish(ctx, s, gameID, events.EventTypeTimerExpired, events.TimerExpiredPayload{
			QuestionID:     q.ID.String(),
			QuestionNumber: questionNumber,
			ExpiredAt:      now,
		})
	}

	o.score(ctx, s, gameID, index, q.ID)

	reveal := device.RevealFor(q)
	payload := events.AnswerRevealPayload{
		QuestionID:     q.ID.String(),
		QuestionNumber: questionNumber,
		CorrectAnswer:  reveal.CorrectAnswer,
		AnswerContent:  reveal.AnswerContent,
		ShowSource:     reveal.ShowSource,
		VerseReference: reveal.VerseReference,
		VerseContent:   reveal.VerseContent,
	}
	s.host.Store().ApplyReveal(payload)
	o.publish(ctx, s, gameID, events.EventTypeAnswerReveal, payload)

	o.schedule(gameID, timerReveal, index, o.cfg.RevealDwell)

	log.Info().
		Str("game_id", gameID.String()).
		Int("question_number", questionNumber).
		Str("trigger", string(trigger)).
		Msg("answer revealed")
	return nil
}

// score runs the reconciler for one question. A failure is remembered and retried at
// the leaderboard boundary.
func (o *Orchestrator) score(ctx context.Context, s *session, gameID uuid.UUID, index int, questionID uuid.UUID) {
	began := o.clock.Now()
	err := o.scorer.ScoreQuestion(ctx, gameID, questionID)
	o.metrics.RecordScoring(err == nil, o.clock.Since(began))
	if err != nil {
		s.pendingScore[index] = questionID
		log.Error().
			Err(err).
			Str("game_id", gameID.String()).
			Str("question_id", questionID.String()).
			Msg("scoring failed, will retry before leaderboard")
		return
	}

	delete(s.pendingScore, index)
	o.publish(ctx, s, gameID, events.EventTypeScoresUpdated, events.ScoresUpdatedPayload{
		QuestionID:     questionID.String(),
		QuestionNumber: index + 1,
	})
}

// showLeaderboard runs after the reveal dwell of question index
func (o *Orchestrator) showLeaderboard(ctx context.Context, gameID uuid.UUID, index int) error {
	s, err := o.session(ctx, gameID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return readFailed("get game", err)
	}
	if game.Status != models.GameStatusActive || game.CurrentQuestionIndex != index || game.QuestionPhase != models.QuestionPhaseReveal {
		return nil
	}
	if game.IsPaused() {
		return ErrGamePaused
	}

	for idx, questionID := range s.pendingScore {
		o.score(ctx, s, gameID, idx, questionID)
	}

	rankings, err := o.scorer.Rankings(ctx, gameID)
	if err != nil {
		return retryable("load rankings", err)
	}

	q, err := o.repo.GetQuestionAt(ctx, game.QuestionSetID, index)
	if err != nil {
		return readFailed("get question", err)
	}

	now := o.clock.Now()
	ok, err := o.repo.TransitionPhase(ctx, repository.PhaseTransition{
		GameID:        gameID,
		QuestionIndex: index,
		From:          models.QuestionPhaseReveal,
		To:            models.QuestionPhaseLeaderboard,
		At:            now,
	})
	if err != nil {
		o.metrics.RecordTransition(string(models.QuestionPhaseLeaderboard), false, o.clock.Since(now))
		return retryable("show leaderboard", err)
	}
	if !ok {
		return nil
	}
	o.metrics.RecordTransition(string(models.QuestionPhaseLeaderboard), true, o.clock.Since(now))

	payload := events.LeaderboardReadyPayload{
		QuestionID:     q.ID.String(),
		QuestionNumber: index + 1,
		Rankings:       rankings,
	}
	s.host.Store().ApplyLeaderboardReady(payload)
	o.publish(ctx, s, gameID, events.EventTypeLeaderboardReady, payload)

	o.schedule(gameID, timerLeaderboard, index, o.cfg.LeaderboardDwell)
	return nil
}

// advance runs after the leaderboard dwell: the next question, or the end of the game
func (o *Orchestrator) advance(ctx context.Context, gameID uuid.UUID, index int) error {
	s, err := o.session(ctx, gameID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return readFailed("get game", err)
	}
	if game.Status != models.GameStatusActive || game.CurrentQuestionIndex != index || game.QuestionPhase != models.QuestionPhaseLeaderboard {
		return nil
	}
	if game.IsPaused() {
		return ErrGamePaused
	}

	if index+1 >= game.TotalQuestions {
		return o.endGame(ctx, s, game)
	}

	next, err := o.repo.GetQuestionAt(ctx, game.QuestionSetID, index+1)
	if err != nil {
		return readFailed("get next question", err)
	}

	now := o.clock.Now()
	ok, err := o.repo.AdvanceQuestion(ctx, gameID, index, now)
	if err != nil {
		o.metrics.RecordTransition(string(models.QuestionPhaseQuestion), false, o.clock.Since(now))
		return retryable("advance question", err)
	}
	if !ok {
		return nil
	}
	o.metrics.RecordTransition(string(models.QuestionPhaseQuestion), true, o.clock.Since(now))

	payload := events.QuestionAdvancePayload{
		QuestionIndex:      index + 1,
		QuestionNumber:     index + 2,
		QuestionID:         next.ID.String(),
		QuestionText:       next.Text,
		Options:            next.Options,
		CorrectAnswer:      next.CorrectOption,
		ScriptureReference: next.VerseReference,
		TimerDuration:      game.TimerDurationSec,
		StartedAt:          now,
		TotalQuestions:     game.TotalQuestions,
	}
	s.host.Store().ApplyQuestionAdvance(payload)
	o.publish(ctx, s, gameID, events.EventTypeQuestionAdvance, payload)

	o.schedule(gameID, timerQuestion, index+1, game.TimerDuration())

	log.Info().
		Str("game_id", gameID.String()).
		Int("question_number", index+2).
		Msg("advanced to next question")
	return nil
}

// endGame closes the game with its final rankings. Caller holds s.mu.
func (o *Orchestrator) endGame(ctx context.Context, s *session, game *models.Game) error {
	rankings, err := o.scorer.Rankings(ctx, game.ID)
	if err != nil {
		return retryable("load final rankings", err)
	}
	final, err := json.Marshal(rankings)
	if err != nil {
		return fmt.Errorf("failed to marshal final rankings: %w", err)
	}

	now := o.clock.Now()
	ok, err := o.repo.EndGame(ctx, repository.EndGameRequest{
		GameID:        game.ID,
		CompletedAt:   now,
		FinalRankings: final,
	})
	if err != nil {
		o.metrics.RecordTransition(string(models.GameStatusEnded), false, o.clock.Since(now))
		return retryable("end game", err)
	}
	if !ok {
		return nil
	}
	o.metrics.RecordTransition(string(models.GameStatusEnded), true, o.clock.Since(now))
	o.cancelTimer(game.ID)

	payload := events.GameEndPayload{CompletedAt: now, Rankings: rankings}
	s.host.Store().ApplyGameEnd(payload)
	o.publish(ctx, s, game.ID, events.EventTypeGameEnd, payload)

	log.Info().
		Str("game_id", game.ID.String()).
		Int("players", len(rankings)).
		Msg("game ended")

	// closeSession takes sessionsMu, never s.mu, so it is safe while s.mu is held
	go o.closeSession(game.ID)
	return nil
}

// PauseGame freezes the current phase and its timer
func (o *Orchestrator) PauseGame(ctx context.Context, gameID uuid.UUID) error {
	s, err := o.session(ctx, gameID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return readFailed("get game", err)
	}
	if game.Status != models.GameStatusActive {
		return fmt.Errorf("pause game in status %s: %w", game.Status, ErrInvalidPhase)
	}
	if game.IsPaused() {
		return nil
	}

	now := o.clock.Now()
	ok, err := o.repo.SetPaused(ctx, gameID, now)
	if err != nil {
		return retryable("pause game", err)
	}
	if !ok {
		return fmt.Errorf("pause game: %w", ErrInvalidPhase)
	}

	s.paused = o.suspendTimer(gameID)

	s.host.Store().ApplyPause(now)
	o.publish(ctx, s, gameID, events.EventTypeGamePause, events.GamePausePayload{PausedAt: now})

	log.Info().Str("game_id", gameID.String()).Msg("game paused")
	return nil
}

// ResumeGame lifts the pause and re-arms the phase timer with the time that was left
func (o *Orchestrator) ResumeGame(ctx context.Context, gameID uuid.UUID) error {
	s, err := o.session(ctx, gameID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := o.repo.GetGame(ctx, gameID)
	if err != nil {
		return readFailed("get game", err)
	}
	if game.Status != models.GameStatusActive {
		return fmt.Errorf("resume game in status %s: %w", game.Status, ErrInvalidPhase)
	}
	if !game.IsPaused() {
		return nil
	}

	now := o.clock.Now()
	ok, err := o.repo.SetResumed(ctx, gameID, now)
	if err != nil {
		return retryable("resume game", err)
	}
	if !ok {
		return fmt.Errorf("resume game: %w", ErrInvalidPhase)
	}

	s.host.Store().ApplyResume(now)
	o.publish(ctx, s, gameID, events.EventTypeGameResume, events.GameResumePayload{ResumedAt: now})

	p := s.paused
	s.paused = nil
	if p != nil && p.questionIndex == game.CurrentQuestionIndex && p.kind == kindFor(game.QuestionPhase) {
		o.schedule(gameID, p.kind, p.questionIndex, p.remaining)
	} else if resumed, err := o.repo.GetGame(ctx, gameID); err == nil {
		o.armFromRow(resumed)
	} else {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to reload game to re-arm timer")
	}

	log.Info().Str("game_id", gameID.String()).Msg("game resumed")
	return nil
}

// publish broadcasts after a durable write. A failure is only logged; devices converge
// through their fallback path.
func (o *Orchestrator) publish(ctx context.Context, s *session, gameID uuid.UUID, eventType events.EventType, payload any) {
	err := s.host.Publish(ctx, eventType, payload)
	o.metrics.RecordPublishAttempt(string(eventType), err == nil)
	if err != nil {
		log.Warn().
			Err(err).
			Str("game_id", gameID.String()).
			Str("event_type", string(eventType)).
			Msg("publish failed after write, devices will converge from the row store")
	}
}

// isRetryable reports whether a failed transition should be tried again later
func isRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
