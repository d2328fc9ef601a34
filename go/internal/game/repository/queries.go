package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/mcdev12/triviacast/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type queries struct {
	db DBTX
}

func newQueries(db DBTX) *queries {
	return &queries{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const gameColumns = `id, room_code, question_set_id, total_questions, timer_duration_sec, status,
	current_question_index, question_phase, phase_started_at, started_at, completed_at, paused_at,
	paused_total_ms, question_paused_ms, final_rankings, created_at, updated_at`

const questionColumns = `id, question_set_id, order_index, text, option_a, option_b, option_c, option_d,
	correct_option, verse_reference, verse_content`

const playerColumns = `id, game_id, name, joined_at, left_at, total_score, cumulative_response_time_ms`

const answerColumns = `player_id, game_id, question_id, selected_option, response_time_ms, submitted_at`

func scanGame(row rowScanner) (*models.Game, error) {
	var (
		g                                                models.Game
		status, phase                                    string
		phaseStartedAt, startedAt, completedAt, pausedAt sql.NullTime
		rankings                                         pqtype.NullRawMessage
	)
	err := row.Scan(
		&g.ID, &g.RoomCode, &g.QuestionSetID, &g.TotalQuestions, &g.TimerDurationSec, &status,
		&g.CurrentQuestionIndex, &phase, &phaseStartedAt, &startedAt, &completedAt, &pausedAt,
		&g.PausedTotalMs, &g.QuestionPausedMs, &rankings, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Status = models.GameStatus(status)
	g.QuestionPhase = models.QuestionPhase(phase)
	g.PhaseStartedAt = sqlutil.FromSqlTime(phaseStartedAt)
	g.StartedAt = sqlutil.FromSqlTime(startedAt)
	g.CompletedAt = sqlutil.FromSqlTime(completedAt)
	g.PausedAt = sqlutil.FromSqlTime(pausedAt)
	g.FinalRankings = sqlutil.FromNullRawMessage(rankings)
	return &g, nil
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	var (
		q                   models.Question
		verseRef, verseText sql.NullString
	)
	err := row.Scan(
		&q.ID, &q.QuestionSetID, &q.OrderIndex, &q.Text,
		&q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
		&q.CorrectOption, &verseRef, &verseText,
	)
	if err != nil {
		return nil, err
	}
	q.VerseReference = sqlutil.FromSqlStringPtr(verseRef)
	q.VerseContent = sqlutil.FromSqlStringPtr(verseText)
	return &q, nil
}

func scanPlayer(row rowScanner) (*models.Player, error) {
	var (
		p      models.Player
		leftAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.GameID, &p.Name, &p.JoinedAt, &leftAt, &p.TotalScore, &p.CumulativeResponseTimeMs)
	if err != nil {
		return nil, err
	}
	p.LeftAt = sqlutil.FromSqlTime(leftAt)
	return &p, nil
}

func scanAnswer(row rowScanner) (*models.Answer, error) {
	var (
		a        models.Answer
		selected sql.NullString
	)
	err := row.Scan(&a.PlayerID, &a.GameID, &a.QuestionID, &selected, &a.ResponseTimeMs, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}
	a.SelectedOption = sqlutil.FromSqlStringPtr(selected)
	return &a, nil
}

// affected turns a conditional UPDATE into an applied flag
func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *queries) insertQuestionSet(ctx context.Context, set models.QuestionSet) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO question_sets (id, title, created_at) VALUES ($1, $2, $3)`,
		set.ID, set.Title, set.CreatedAt)
	return err
}

func (q *queries) insertQuestion(ctx context.Context, question models.Question) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		question.ID, question.QuestionSetID, question.OrderIndex, question.Text,
		question.Options[0], question.Options[1], question.Options[2], question.Options[3],
		question.CorrectOption,
		sqlutil.ToSqlString(question.VerseReference), sqlutil.ToSqlString(question.VerseContent))
	return err
}

func (q *queries) listQuestions(ctx context.Context, setID uuid.UUID) ([]models.Question, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE question_set_id = $1 ORDER BY order_index`, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		question, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *question)
	}
	return out, rows.Err()
}

func (q *queries) getQuestionAt(ctx context.Context, setID uuid.UUID, index int) (*models.Question, error) {
	return scanQuestion(q.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE question_set_id = $1 ORDER BY order_index OFFSET $2 LIMIT 1`,
		setID, index))
}

func (q *queries) insertGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	return scanGame(q.db.QueryRowContext(ctx,
		`INSERT INTO games (id, room_code, question_set_id, total_questions, timer_duration_sec, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+gameColumns,
		req.ID, req.RoomCode, req.QuestionSetID, req.TotalQuestions, req.TimerDurationSec, req.CreatedAt))
}

func (q *queries) getGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return scanGame(q.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
}

// getGameByRoomCode prefers the live game holding a code over ended ones
func (q *queries) getGameByRoomCode(ctx context.Context, code string) (*models.Game, error) {
	return scanGame(q.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE room_code = $1
		ORDER BY (status <> 'ended') DESC, created_at DESC LIMIT 1`, code))
}

func (q *queries) listActiveGames(ctx context.Context) ([]models.Game, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = 'active' ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (q *queries) startGame(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return affected(q.db.ExecContext(ctx,
		`UPDATE games SET status = 'active', current_question_index = 0, question_phase = 'question',
			started_at = $2, phase_started_at = $2, question_paused_ms = 0, updated_at = $2
		WHERE id = $1 AND status = 'waiting'`, id, at))
}

func (q *queries) transitionPhase(ctx context.Context, t PhaseTransition) (bool, error) {
	return affected(q.db.ExecContext(ctx,
		`UPDATE games SET question_phase = $4, phase_started_at = $5, question_paused_ms = 0, updated_at = $5
		WHERE id = $1 AND status = 'active' AND current_question_index = $2 AND question_phase = $3
			AND paused_at IS NULL`,
		t.GameID, t.QuestionIndex, string(t.From), string(t.To), t.At))
}

func (q *queries) advanceQuestion(ctx context.Context, id uuid.UUID, fromIndex int, at time.Time) (bool, error) {
	return affected(q.db.ExecContext(ctx,
		`UPDATE games SET current_question_index = $2 + 1, question_phase = 'question',
			phase_started_at = $3, question_paused_ms = 0, updated_at = $3
		WHERE id = $1 AND status = 'active' AND current_question_index = $2
			AND question_phase = 'leaderboard' AND paused_at IS NULL AND $2 + 1 < total_questions`,
		id, fromIndex, at))
}

func (q *queries) endGame(ctx context.Context, req EndGameRequest) (bool, error) {
	return affected(q.db.ExecContext(ctx,
		`UPDATE games SET status = 'ended', completed_at = $2, final_rankings = $3, paused_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'active'`,
		req.GameID, req.CompletedAt, sqlutil.ToNullRawMessage(req.FinalRankings)))
}

func (q *queries) setPaused(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return affected(q.db.ExecContext(ctx,
		`UPDATE games SET paused_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active' AND paused_at IS NULL`, id, at))
}

func (q *queries) setResumed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return affected(q.db.ExecContext(ctx,
		`UPDATE games SET
			paused_total_ms = paused_total_ms + GREATEST(0, (EXTRACT(EPOCH FROM ($2::timestamptz - paused_at)) * 1000)::bigint),
			question_paused_ms = question_paused_ms + GREATEST(0, (EXTRACT(EPOCH FROM ($2::timestamptz - paused_at)) * 1000)::bigint),
			paused_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'active' AND paused_at IS NOT NULL`, id, at))
}

func (q *queries) insertPlayer(ctx context.Context, req CreatePlayerRequest) (*models.Player, error) {
	return scanPlayer(q.db.QueryRowContext(ctx,
		`INSERT INTO players (id, game_id, name, joined_at)
		SELECT $1::uuid, g.id, $3::text, $4::timestamptz FROM games g
		WHERE g.id = $2 AND g.status = 'waiting'
		RETURNING `+playerColumns,
		req.ID, req.GameID, req.Name, req.JoinedAt))
}

func (q *queries) getPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	return scanPlayer(q.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
}

func (q *queries) listPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE game_id = $1 ORDER BY joined_at, id`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (q *queries) countActivePlayers(ctx context.Context, gameID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT count(*) FROM players WHERE game_id = $1 AND left_at IS NULL`, gameID).Scan(&n)
	return n, err
}

func (q *queries) markPlayerLeft(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return affected(q.db.ExecContext(ctx,
		`UPDATE players SET left_at = $2 WHERE id = $1 AND left_at IS NULL`, id, at))
}

// upsertOpenAnswer writes an answer only while its question is the one being asked
func (q *queries) upsertOpenAnswer(ctx context.Context, a models.Answer) (bool, error) {
	return affected(q.db.ExecContext(ctx,
		`INSERT INTO answers (`+answerColumns+`)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::char(1), $5::int, $6::timestamptz
		FROM games g
		JOIN questions q ON q.question_set_id = g.question_set_id AND q.id = $3
		WHERE g.id = $2 AND g.status = 'active' AND g.question_phase = 'question' AND g.paused_at IS NULL
			AND q.order_index = (
				SELECT order_index FROM questions WHERE question_set_id = g.question_set_id
				ORDER BY order_index OFFSET g.current_question_index LIMIT 1
			)
		ON CONFLICT (player_id, question_id) DO UPDATE SET
			selected_option = EXCLUDED.selected_option,
			response_time_ms = EXCLUDED.response_time_ms,
			submitted_at = EXCLUDED.submitted_at`,
		a.PlayerID, a.GameID, a.QuestionID, sqlutil.ToSqlString(a.SelectedOption), a.ResponseTimeMs, a.SubmittedAt))
}

func (q *queries) listAnswers(ctx context.Context, gameID, questionID uuid.UUID) ([]models.Answer, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE game_id = $1 AND question_id = $2`, gameID, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (q *queries) upsertQuestionScore(ctx context.Context, s models.QuestionScore) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO question_scores (player_id, game_id, question_id, correct, points, response_time_ms, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (player_id, question_id) DO UPDATE SET
			correct = EXCLUDED.correct,
			points = EXCLUDED.points,
			response_time_ms = EXCLUDED.response_time_ms,
			scored_at = EXCLUDED.scored_at`,
		s.PlayerID, s.GameID, s.QuestionID, s.Correct, s.Points, s.ResponseTimeMs, s.ScoredAt)
	return err
}

// recomputeTotals rebuilds every player's totals from their question scores
func (q *queries) recomputeTotals(ctx context.Context, gameID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE players p SET
			total_score = COALESCE((SELECT SUM(s.points) FROM question_scores s WHERE s.player_id = p.id), 0),
			cumulative_response_time_ms = COALESCE((SELECT SUM(s.response_time_ms) FROM question_scores s WHERE s.player_id = p.id), 0)
		WHERE p.game_id = $1`, gameID)
	return err
}
