// Package lobby handles the player-facing writes: creating rooms, joining, leaving and
// answering. Game progress itself belongs to the orchestrator.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/events"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/mcdev12/triviacast/go/internal/scoring"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimerDurationSec = 15
	MinTimerDurationSec     = 5
	MaxTimerDurationSec     = 120
)

var playerNamePattern = regexp.MustCompile(`^[A-Za-z0-9 ]{2,30}$`)

// Repository defines what the lobby needs from the row store
type Repository interface {
	ListQuestions(ctx context.Context, setID uuid.UUID) ([]models.Question, error)
	GetQuestionAt(ctx context.Context, setID uuid.UUID, index int) (*models.Question, error)
	CreateGame(ctx context.Context, req repository.CreateGameRequest) (*models.Game, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetGameByRoomCode(ctx context.Context, code string) (*models.Game, error)
	CreatePlayer(ctx context.Context, req repository.CreatePlayerRequest) (*models.Player, error)
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error)
	MarkPlayerLeft(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SubmitAnswer(ctx context.Context, a models.Answer) (bool, error)
}

// App handles lobby business logic
type App struct {
	repo    Repository
	pub     *channel.Publisher
	clock   clockwork.Clock
	newCode func() (string, error)
}

// NewApp creates a new lobby App. Player events go out on one publish-only connection
// that never shares a subscriber's connection.
func NewApp(repo Repository, transport channel.Transport, clock clockwork.Clock) *App {
	return &App{
		repo:    repo,
		pub:     channel.NewPublisher(transport, clock),
		clock:   clock,
		newCode: GenerateRoomCode,
	}
}

// Close releases the lobby's bus connection
func (a *App) Close() error {
	return a.pub.Close()
}

// CreateGame validates the request and opens a waiting room with a fresh code
func (a *App) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	if req.TimerDurationSec == 0 {
		req.TimerDurationSec = DefaultTimerDurationSec
	}
	if req.TimerDurationSec < MinTimerDurationSec || req.TimerDurationSec > MaxTimerDurationSec {
		return nil, ErrInvalidTimer
	}

	questions, err := a.repo.ListQuestions(ctx, req.QuestionSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question set: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrEmptyQuestionSet
	}

	for attempt := 0; attempt < maxRoomCodeTries; attempt++ {
		code, err := a.newCode()
		if err != nil {
			return nil, err
		}
		game, err := a.repo.CreateGame(ctx, repository.CreateGameRequest{
			ID:               uuid.New(),
			RoomCode:         code,
			QuestionSetID:    req.QuestionSetID,
			TotalQuestions:   len(questions),
			TimerDurationSec: req.TimerDurationSec,
			CreatedAt:        a.clock.Now(),
		})
		if errors.Is(err, repository.ErrRoomCodeTaken) {
			log.Debug().Str("room_code", code).Int("attempt", attempt+1).Msg("room code collision")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create game: %w", err)
		}

		log.Info().
			Str("game_id", game.ID.String()).
			Str("room_code", game.RoomCode).
			Int("questions", game.TotalQuestions).
			Msg("created game")
		return game, nil
	}
	return nil, ErrRoomCodeExhausted
}

// GetGameByRoomCode looks up a room from user input
func (a *App) GetGameByRoomCode(ctx context.Context, code string) (*models.Game, error) {
	code, err := NormalizeRoomCode(code)
	if err != nil {
		return nil, err
	}
	game, err := a.repo.GetGameByRoomCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to find room %s: %w", code, err)
	}
	return game, nil
}

// JoinGame adds a player to a waiting room and announces them
func (a *App) JoinGame(ctx context.Context, req JoinGameRequest) (*models.Player, *models.Game, error) {
	name := strings.TrimSpace(req.PlayerName)
	if !playerNamePattern.MatchString(name) {
		return nil, nil, ErrInvalidPlayerName
	}

	game, err := a.GetGameByRoomCode(ctx, req.RoomCode)
	if err != nil {
		return nil, nil, err
	}
	if game.Status != models.GameStatusWaiting {
		return nil, nil, ErrGameNotJoinable
	}

	player, err := a.repo.CreatePlayer(ctx, repository.CreatePlayerRequest{
		ID:       uuid.New(),
		GameID:   game.ID,
		Name:     name,
		JoinedAt: a.clock.Now(),
	})
	if errors.Is(err, repository.ErrGameNotWaiting) {
		return nil, nil, ErrGameNotJoinable
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to add player: %w", err)
	}

	a.announce(ctx, game.ID, events.EventTypePlayerJoined, events.PlayerPayload{
		PlayerID:   player.ID.String(),
		PlayerName: player.Name,
	})

	log.Info().
		Str("game_id", game.ID.String()).
		Str("player_id", player.ID.String()).
		Str("player_name", player.Name).
		Msg("player joined")
	return player, game, nil
}

// LeaveGame marks a player as gone. Their scores stay in the rankings.
func (a *App) LeaveGame(ctx context.Context, gameID, playerID uuid.UUID) error {
	player, err := a.repo.GetPlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to get player: %w", err)
	}
	if player.GameID != gameID {
		return ErrPlayerNotInGame
	}

	ok, err := a.repo.MarkPlayerLeft(ctx, playerID, a.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to leave game: %w", err)
	}
	if !ok {
		return ErrPlayerAlreadyLeft
	}

	a.announce(ctx, gameID, events.EventTypePlayerLeft, events.PlayerPayload{
		PlayerID:   player.ID.String(),
		PlayerName: player.Name,
	})
	return nil
}

// ListPlayers returns everyone who joined the game, including players who left
func (a *App) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error) {
	players, err := a.repo.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

// SubmitAnswer records or overwrites a player's answer to the current question. Once the
// question leaves the question phase the answer is locked.
func (a *App) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*models.Answer, error) {
	if req.SelectedOption != nil && !models.IsValidOption(*req.SelectedOption) {
		return nil, ErrInvalidOption
	}

	game, err := a.repo.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	if err := answerWindowError(game); err != nil {
		return nil, err
	}

	player, err := a.repo.GetPlayer(ctx, req.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if player.GameID != game.ID {
		return nil, ErrPlayerNotInGame
	}
	if player.LeftAt != nil {
		return nil, ErrPlayerAlreadyLeft
	}

	current, err := a.repo.GetQuestionAt(ctx, game.QuestionSetID, game.CurrentQuestionIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get current question: %w", err)
	}
	if current.ID != req.QuestionID {
		return nil, ErrAnswerLocked
	}

	answer := models.Answer{
		PlayerID:       player.ID,
		GameID:         game.ID,
		QuestionID:     current.ID,
		SelectedOption: req.SelectedOption,
		ResponseTimeMs: scoring.ClampResponseTime(req.ResponseTimeMs, game.TimerDurationMs()),
		SubmittedAt:    a.clock.Now(),
	}

	ok, err := a.repo.SubmitAnswer(ctx, answer)
	if err != nil {
		return nil, fmt.Errorf("failed to submit answer: %w", err)
	}
	if !ok {
		// the window closed between the read and the write
		if latest, err := a.repo.GetGame(ctx, game.ID); err == nil && latest.IsPaused() {
			return nil, ErrGamePaused
		}
		return nil, ErrAnswerLocked
	}

	log.Debug().
		Str("game_id", game.ID.String()).
		Str("player_id", player.ID.String()).
		Int("question_number", game.QuestionNumber()).
		Int("response_time_ms", answer.ResponseTimeMs).
		Msg("answer recorded")
	return &answer, nil
}

func answerWindowError(game *models.Game) error {
	if game.Status != models.GameStatusActive {
		return ErrAnswerLocked
	}
	if game.IsPaused() {
		return ErrGamePaused
	}
	if game.QuestionPhase != models.QuestionPhaseQuestion {
		return ErrAnswerLocked
	}
	return nil
}

// announce publishes a player event. Failures are logged; devices catch up by resync.
func (a *App) announce(ctx context.Context, gameID uuid.UUID, eventType events.EventType, payload events.PlayerPayload) {
	if err := a.pub.Publish(ctx, gameID, eventType, payload); err != nil {
		log.Warn().
			Err(err).
			Str("game_id", gameID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to publish player event")
	}
}
