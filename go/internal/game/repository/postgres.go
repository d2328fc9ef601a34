package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/mcdev12/triviacast/go/internal/sqlutil"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Postgres is the row store backed by database/sql and lib/pq
type Postgres struct {
	db      *sql.DB
	queries *queries
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:      db,
		queries: newQueries(db),
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func txQueries(tx *sql.Tx) *queries {
	return newQueries(tx)
}

// mapErr translates driver errors into repository sentinels
func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "games_live_room_code_idx" {
		return ErrRoomCodeTaken
	}
	return err
}

// CreateQuestionSet inserts a set and all of its questions in one transaction
func (p *Postgres) CreateQuestionSet(ctx context.Context, set models.QuestionSet, questions []models.Question) error {
	return sqlutil.Run(ctx, p.db, txQueries, func(q *queries) error {
		if err := q.insertQuestionSet(ctx, set); err != nil {
			return fmt.Errorf("failed to create question set: %w", err)
		}
		for _, question := range questions {
			if err := q.insertQuestion(ctx, question); err != nil {
				return fmt.Errorf("failed to create question %d: %w", question.OrderIndex, err)
			}
		}
		return nil
	})
}

func (p *Postgres) ListQuestions(ctx context.Context, setID uuid.UUID) ([]models.Question, error) {
	questions, err := p.queries.listQuestions(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

// GetQuestionAt returns the question at a 0-based position within its set
func (p *Postgres) GetQuestionAt(ctx context.Context, setID uuid.UUID, index int) (*models.Question, error) {
	question, err := p.queries.getQuestionAt(ctx, setID, index)
	if err != nil {
		return nil, fmt.Errorf("failed to get question %d: %w", index, mapErr(err))
	}
	return question, nil
}

func (p *Postgres) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	game, err := p.queries.insertGame(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", mapErr(err))
	}
	return game, nil
}

func (p *Postgres) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	game, err := p.queries.getGame(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", mapErr(err))
	}
	return game, nil
}

func (p *Postgres) GetGameByRoomCode(ctx context.Context, code string) (*models.Game, error) {
	game, err := p.queries.getGameByRoomCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by room code: %w", mapErr(err))
	}
	return game, nil
}

func (p *Postgres) ListActiveGames(ctx context.Context) ([]models.Game, error) {
	games, err := p.queries.listActiveGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active games: %w", err)
	}
	return games, nil
}

func (p *Postgres) StartGame(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ok, err := p.queries.startGame(ctx, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to start game: %w", err)
	}
	return ok, nil
}

func (p *Postgres) TransitionPhase(ctx context.Context, t PhaseTransition) (bool, error) {
	ok, err := p.queries.transitionPhase(ctx, t)
	if err != nil {
		return false, fmt.Errorf("failed to move game to %s: %w", t.To, err)
	}
	return ok, nil
}

func (p *Postgres) AdvanceQuestion(ctx context.Context, id uuid.UUID, fromIndex int, at time.Time) (bool, error) {
	ok, err := p.queries.advanceQuestion(ctx, id, fromIndex, at)
	if err != nil {
		return false, fmt.Errorf("failed to advance question: %w", err)
	}
	return ok, nil
}

func (p *Postgres) EndGame(ctx context.Context, req EndGameRequest) (bool, error) {
	ok, err := p.queries.endGame(ctx, req)
	if err != nil {
		return false, fmt.Errorf("failed to end game: %w", err)
	}
	return ok, nil
}

func (p *Postgres) SetPaused(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ok, err := p.queries.setPaused(ctx, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to pause game: %w", err)
	}
	return ok, nil
}

func (p *Postgres) SetResumed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ok, err := p.queries.setResumed(ctx, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to resume game: %w", err)
	}
	return ok, nil
}

// CreatePlayer inserts a player only while the game is waiting. The status check is part
// of the insert, so a start racing the join cannot admit a late player.
func (p *Postgres) CreatePlayer(ctx context.Context, req CreatePlayerRequest) (*models.Player, error) {
	player, err := p.queries.insertPlayer(ctx, req)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := p.queries.getGame(ctx, req.GameID); err != nil {
			return nil, fmt.Errorf("failed to create player: %w", mapErr(err))
		}
		return nil, fmt.Errorf("failed to create player: %w", ErrGameNotWaiting)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", mapErr(err))
	}
	return player, nil
}

func (p *Postgres) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	player, err := p.queries.getPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", mapErr(err))
	}
	return player, nil
}

func (p *Postgres) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error) {
	players, err := p.queries.listPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

func (p *Postgres) CountActivePlayers(ctx context.Context, gameID uuid.UUID) (int, error) {
	n, err := p.queries.countActivePlayers(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return n, nil
}

func (p *Postgres) MarkPlayerLeft(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ok, err := p.queries.markPlayerLeft(ctx, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark player left: %w", err)
	}
	return ok, nil
}

// SubmitAnswer upserts an answer while its question is open. false means the answer
// window has closed (question revealed, moved on or paused).
func (p *Postgres) SubmitAnswer(ctx context.Context, a models.Answer) (bool, error) {
	ok, err := p.queries.upsertOpenAnswer(ctx, a)
	if err != nil {
		return false, fmt.Errorf("failed to save answer: %w", err)
	}
	return ok, nil
}

func (p *Postgres) ListAnswers(ctx context.Context, gameID, questionID uuid.UUID) ([]models.Answer, error) {
	answers, err := p.queries.listAnswers(ctx, gameID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}

// SaveQuestionScores upserts one score row per player and recomputes every total from
// those rows, so saving the same question twice leaves totals unchanged.
func (p *Postgres) SaveQuestionScores(ctx context.Context, gameID uuid.UUID, scores []models.QuestionScore) error {
	return sqlutil.Run(ctx, p.db, txQueries, func(q *queries) error {
		for _, s := range scores {
			if err := q.upsertQuestionScore(ctx, s); err != nil {
				return fmt.Errorf("failed to save score for player %s: %w", s.PlayerID, err)
			}
		}
		if err := q.recomputeTotals(ctx, gameID); err != nil {
			return fmt.Errorf("failed to recompute totals: %w", err)
		}
		return nil
	})
}
