package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/internal/models"
)

type answerKey struct {
	playerID   uuid.UUID
	questionID uuid.UUID
}

// Memory is an in-process Store with the same conditional-write semantics as Postgres
type Memory struct {
	mu        sync.Mutex
	sets      map[uuid.UUID]models.QuestionSet
	questions map[uuid.UUID][]models.Question
	games     map[uuid.UUID]*models.Game
	players   map[uuid.UUID]*models.Player
	answers   map[answerKey]models.Answer
	scores    map[answerKey]models.QuestionScore

	// failWrites makes every mutating call fail, used to exercise retry paths
	failWrites error
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		sets:      make(map[uuid.UUID]models.QuestionSet),
		questions: make(map[uuid.UUID][]models.Question),
		games:     make(map[uuid.UUID]*models.Game),
		players:   make(map[uuid.UUID]*models.Player),
		answers:   make(map[answerKey]models.Answer),
		scores:    make(map[answerKey]models.QuestionScore),
	}
}

// FailWrites makes mutating calls return err until called again with nil
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = err
}

func (m *Memory) writable() error {
	if m.failWrites != nil {
		return m.failWrites
	}
	return nil
}

func (m *Memory) CreateQuestionSet(ctx context.Context, set models.QuestionSet, questions []models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writable(); err != nil {
		return err
	}
	if _, ok := m.sets[set.ID]; ok {
		return errors.New("failed to create question set: duplicate id")
	}
	m.sets[set.ID] = set
	qs := append([]models.Question(nil), questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderIndex < qs[j].OrderIndex })
	m.questions[set.ID] = qs
	return nil
}

func (m *Memory) ListQuestions(ctx context.Context, setID uuid.UUID) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Question(nil), m.questions[setID]...), nil
}

func (m *Memory) GetQuestionAt(ctx context.Context, setID uuid.UUID, index int) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.questionAt(setID, index)
}

func (m *Memory) questionAt(setID uuid.UUID, index int) (*models.Question, error) {
	qs := m.questions[setID]
	if index < 0 || index >= len(qs) {
		return nil, ErrNotFound
	}
	q := qs[index]
	return &q, nil
}

func (m *Memory) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writable(); err != nil {
		return nil, err
	}
	for _, g := range m.games {
		if g.RoomCode == req.RoomCode && g.Status != models.GameStatusEnded {
			return nil, ErrRoomCodeTaken
		}
	}
	g := &models.Game{
		ID:               req.ID,
		RoomCode:         req.RoomCode,
		QuestionSetID:    req.QuestionSetID,
		TotalQuestions:   req.TotalQuestions,
		TimerDurationSec: req.TimerDurationSec,
		Status:           models.GameStatusWaiting,
		QuestionPhase:    models.QuestionPhaseQuestion,
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.CreatedAt,
	}
	m.games[g.ID] = g
	out := *g
	return &out, nil
}

func (m *Memory) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *g
	return &out, nil
}

func (m *Memory) GetGameByRoomCode(ctx context.Context, code string) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.Game
	for _, g := range m.games {
		if g.RoomCode != code {
			continue
		}
		if found == nil || (found.Status == models.GameStatusEnded && g.Status != models.GameStatusEnded) ||
			(found.Status == g.Status && g.CreatedAt.After(found.CreatedAt)) {
			found = g
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	out := *found
	return &out, nil
}

func (m *Memory) ListActiveGames(ctx context.Context) ([]models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Game
	for _, g := range m.games {
		if g.Status == models.GameStatusActive {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(*out[j].StartedAt) })
	return out, nil
}

// update applies fn to a game under the lock when cond holds
func (m *Memory) update(id uuid.UUID, cond func(*models.Game) bool, fn func(*models.Game)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writable(); err != nil {
		return false, err
	}
	g, ok := m.games[id]
	if !ok || !cond(g) {
		return false, nil
	}
	fn(g)
	return true, nil
}

func (m *Memory) StartGame(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return m.update(id,
		func(g *models.Game) bool { return g.Status == models.GameStatusWaiting },
		func(g *models.Game) {
			g.Status = models.GameStatusActive
			g.CurrentQuestionIndex = 0
			g.QuestionPhase = models.QuestionPhaseQuestion
			g.StartedAt = &at
			g.PhaseStartedAt = &at
			g.QuestionPausedMs = 0
			g.UpdatedAt = at
		})
}

func (m *Memory) TransitionPhase(ctx context.Context, t PhaseTransition) (bool, error) {
	return m.update(t.GameID,
		func(g *models.Game) bool {
			return g.Status == models.GameStatusActive && g.CurrentQuestionIndex == t.QuestionIndex &&
				g.QuestionPhase == t.From && g.PausedAt == nil
		},
		func(g *models.Game) {
			at := t.At
			g.QuestionPhase = t.To
			g.PhaseStartedAt = &at
			g.QuestionPausedMs = 0
			g.UpdatedAt = at
		})
}

func (m *Memory) AdvanceQuestion(ctx context.Context, id uuid.UUID, fromIndex int, at time.Time) (bool, error) {
	return m.update(id,
		func(g *models.Game) bool {
			return g.Status == models.GameStatusActive && g.CurrentQuestionIndex == fromIndex &&
				g.QuestionPhase == models.QuestionPhaseLeaderboard && g.PausedAt == nil &&
				fromIndex+1 < g.TotalQuestions
		},
		func(g *models.Game) {
			g.CurrentQuestionIndex = fromIndex + 1
			g.QuestionPhase = models.QuestionPhaseQuestion
			g.PhaseStartedAt = &at
			g.QuestionPausedMs = 0
			g.UpdatedAt = at
		})
}

func (m *Memory) EndGame(ctx context.Context, req EndGameRequest) (bool, error) {
	return m.update(req.GameID,
		func(g *models.Game) bool { return g.Status == models.GameStatusActive },
		func(g *models.Game) {
			at := req.CompletedAt
			g.Status = models.GameStatusEnded
			g.CompletedAt = &at
			g.FinalRankings = append([]byte(nil), req.FinalRankings...)
			g.PausedAt = nil
			g.UpdatedAt = at
		})
}

func (m *Memory) SetPaused(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return m.update(id,
		func(g *models.Game) bool { return g.Status == models.GameStatusActive && g.PausedAt == nil },
		func(g *models.Game) {
			g.PausedAt = &at
			g.UpdatedAt = at
		})
}

func (m *Memory) SetResumed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return m.update(id,
		func(g *models.Game) bool { return g.Status == models.GameStatusActive && g.PausedAt != nil },
		func(g *models.Game) {
			d := at.Sub(*g.PausedAt).Milliseconds()
			if d < 0 {
				d = 0
			}
			g.PausedTotalMs += d
			g.QuestionPausedMs += d
			g.PausedAt = nil
			g.UpdatedAt = at
		})
}

func (m *Memory) CreatePlayer(ctx context.Context, req CreatePlayerRequest) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writable(); err != nil {
		return nil, err
	}
	g, ok := m.games[req.GameID]
	if !ok {
		return nil, ErrNotFound
	}
	if g.Status != models.GameStatusWaiting {
		return nil, ErrGameNotWaiting
	}
	p := &models.Player{
		ID:       req.ID,
		GameID:   req.GameID,
		Name:     req.Name,
		JoinedAt: req.JoinedAt,
	}
	m.players[p.ID] = p
	out := *p
	return &out, nil
}

func (m *Memory) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *Memory) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Player
	for _, p := range m.players {
		if p.GameID == gameID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *Memory) CountActivePlayers(ctx context.Context, gameID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.players {
		if p.GameID == gameID && p.LeftAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *Memory) MarkPlayerLeft(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writable(); err != nil {
		return false, err
	}
	p, ok := m.players[id]
	if !ok || p.LeftAt != nil {
		return false, nil
	}
	p.LeftAt = &at
	return true, nil
}

func (m *Memory) SubmitAnswer(ctx context.Context, a models.Answer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writable(); err != nil {
		return false, err
	}
	g, ok := m.games[a.GameID]
	if !ok || g.Status != models.GameStatusActive || g.QuestionPhase != models.QuestionPhaseQuestion || g.PausedAt != nil {
		return false, nil
	}
	current, err := m.questionAt(g.QuestionSetID, g.CurrentQuestionIndex)
	if err != nil || current.ID != a.QuestionID {
		return false, nil
	}
	m.answers[answerKey{playerID: a.PlayerID, questionID: a.QuestionID}] = a
	return true, nil
}

func (m *Memory) ListAnswers(ctx context.Context, gameID, questionID uuid.UUID) ([]models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Answer
	for k, a := range m.answers {
		if k.questionID == questionID && a.GameID == gameID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) SaveQuestionScores(ctx context.Context, gameID uuid.UUID, scores []models.QuestionScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writable(); err != nil {
		return err
	}
	for _, s := range scores {
		m.scores[answerKey{playerID: s.PlayerID, questionID: s.QuestionID}] = s
	}
	for _, p := range m.players {
		if p.GameID != gameID {
			continue
		}
		p.TotalScore = 0
		p.CumulativeResponseTimeMs = 0
		for k, s := range m.scores {
			if k.playerID == p.ID {
				p.TotalScore += s.Points
				p.CumulativeResponseTimeMs += int64(s.ResponseTimeMs)
			}
		}
	}
	return nil
}
