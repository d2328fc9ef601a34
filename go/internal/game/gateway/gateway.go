// Package gateway is the player-facing HTTP surface: lobby routes, the fallback state
// endpoint, join QR codes and a websocket fan-out fed by one mirror device per game.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/device"
	"github.com/mcdev12/triviacast/go/internal/game/lobby"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/mcdev12/triviacast/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// LobbyApp defines what the gateway needs from the lobby
type LobbyApp interface {
	CreateGame(ctx context.Context, req lobby.CreateGameRequest) (*models.Game, error)
	GetGameByRoomCode(ctx context.Context, code string) (*models.Game, error)
	JoinGame(ctx context.Context, req lobby.JoinGameRequest) (*models.Player, *models.Game, error)
	LeaveGame(ctx context.Context, gameID, playerID uuid.UUID) error
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]models.Player, error)
	SubmitAnswer(ctx context.Context, req lobby.SubmitAnswerRequest) (*models.Answer, error)
}

// Config holds gateway settings
type Config struct {
	// PublicURL is the base of join links. Empty means derive it from the request.
	PublicURL   string
	AnswerRate  rate.Limit
	AnswerBurst int
	QRSize      int
	Connection  ConnectionConfig
	MirrorOpts  []device.Option
}

func DefaultConfig() Config {
	return Config{
		AnswerRate:  rate.Limit(2),
		AnswerBurst: 4,
		QRSize:      320,
		Connection:  DefaultConnectionConfig(),
	}
}

type Gateway struct {
	lobby   LobbyApp
	source  device.StateSource
	conns   *ConnectionManager
	mirrors *Mirrors
	limiter *playerLimiter
	cfg     Config
}

func New(app LobbyApp, source device.StateSource, transport channel.Transport, clock clockwork.Clock, cfg Config) *Gateway {
	conns := NewConnectionManager(cfg.Connection)
	g := &Gateway{
		lobby:   app,
		source:  source,
		conns:   conns,
		mirrors: NewMirrors(transport, source, conns, clock, cfg.MirrorOpts...),
		limiter: newPlayerLimiter(cfg.AnswerRate, cfg.AnswerBurst),
		cfg:     cfg,
	}
	conns.onEmpty = g.mirrors.Release
	conns.onClientMessage = g.handleClientMessage
	return g
}

// Run processes websocket broadcasts until ctx is done, then stops every mirror
func (g *Gateway) Run(ctx context.Context) error {
	g.conns.Start(ctx)
	g.mirrors.CloseAll()
	return nil
}

// Nudge makes a watched game resync; wired to row store change notifications
func (g *Gateway) Nudge(gameID uuid.UUID) {
	g.mirrors.Nudge(gameID)
}

func (g *Gateway) Stats() Stats {
	return g.conns.GetConnectionStats()
}

// Routes mounts the gateway on a chi router
func (g *Gateway) Routes(r chi.Router) {
	r.Route("/api/games", func(r chi.Router) {
		r.Post("/", g.handleCreateGame)
		r.Get("/code/{code}", g.handleGetGameByCode)
		r.Get("/code/{code}/qr.png", g.handleJoinQR)
		r.Post("/code/{code}/players", g.handleJoinGame)
		r.Get("/{gameID}/players", g.handleListPlayers)
		r.Post("/{gameID}/players/{playerID}/leave", g.handleLeaveGame)
		r.Post("/{gameID}/answers", g.handleSubmitAnswer)
		r.Get("/{gameID}/state", g.handleGetState)
	})
	r.Get("/ws/games/{gameID}", g.handleWebSocket)
	r.Get("/ws/stats", g.handleConnectionStats)
}

// Handler returns a standalone router with the gateway routes
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	g.Routes(r)
	return r
}

type joinGameBody struct {
	PlayerName string `json:"player_name"`
}

// JoinGameResponse is returned to a player who joined
type JoinGameResponse struct {
	Player *models.Player `json:"player"`
	Game   *models.Game   `json:"game"`
}

type submitAnswerBody struct {
	PlayerID       uuid.UUID `json:"player_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption *string   `json:"selected_option"`
	ResponseTimeMs int       `json:"response_time_ms"`
}

func (g *Gateway) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req lobby.CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	game, err := g.lobby.CreateGame(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

func (g *Gateway) handleGetGameByCode(w http.ResponseWriter, r *http.Request) {
	game, err := g.lobby.GetGameByRoomCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (g *Gateway) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var body joinGameBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	player, game, err := g.lobby.JoinGame(r.Context(), lobby.JoinGameRequest{
		RoomCode:   chi.URLParam(r, "code"),
		PlayerName: body.PlayerName,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, JoinGameResponse{Player: player, Game: game})
}

func (g *Gateway) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	gameID, ok := uuidParam(w, r, "gameID")
	if !ok {
		return
	}
	players, err := g.lobby.ListPlayers(r.Context(), gameID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if players == nil {
		players = []models.Player{}
	}
	writeJSON(w, http.StatusOK, players)
}

func (g *Gateway) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := uuidParam(w, r, "gameID")
	if !ok {
		return
	}
	playerID, ok := uuidParam(w, r, "playerID")
	if !ok {
		return
	}

	if err := g.lobby.LeaveGame(r.Context(), gameID, playerID); err != nil {
		writeAppError(w, err)
		return
	}
	g.limiter.Forget(playerID)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	gameID, ok := uuidParam(w, r, "gameID")
	if !ok {
		return
	}
	var body submitAnswerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.PlayerID == uuid.Nil || body.QuestionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "player_id and question_id are required")
		return
	}

	if !g.limiter.Allow(body.PlayerID) {
		writeError(w, http.StatusTooManyRequests, "too many answers, slow down")
		return
	}

	answer, err := g.lobby.SubmitAnswer(r.Context(), lobby.SubmitAnswerRequest{
		GameID:         gameID,
		PlayerID:       body.PlayerID,
		QuestionID:     body.QuestionID,
		SelectedOption: body.SelectedOption,
		ResponseTimeMs: body.ResponseTimeMs,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, answer)
}

// handleGetState serves the fallback convergence view rebuilt from the row store
func (g *Gateway) handleGetState(w http.ResponseWriter, r *http.Request) {
	gameID, ok := uuidParam(w, r, "gameID")
	if !ok {
		return
	}

	a, err := g.source.Authoritative(r.Context(), gameID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameID, ok := uuidParam(w, r, "gameID")
	if !ok {
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = "anonymous"
	}

	mirror, err := g.mirrors.Acquire(r.Context(), gameID)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to start mirror")
		writeError(w, http.StatusServiceUnavailable, "game state unavailable")
		return
	}

	conn, err := g.conns.UpgradeConnection(w, r, playerID, gameID)
	if err != nil {
		log.Error().
			Err(err).
			Str("game_id", gameID.String()).
			Str("player_id", playerID).
			Msg("failed to upgrade websocket connection")
		if g.conns.ConnectionCount(gameID) == 0 {
			g.mirrors.Release(gameID)
		}
		return
	}

	g.sendState(conn, mirror)
}

// handleClientMessage answers a client's resync request with the mirror's current state
func (g *Gateway) handleClientMessage(c *Connection, msg ClientMessage) {
	if msg.Type != clientMessageResync {
		return
	}
	mirror, err := g.mirrors.Acquire(context.Background(), c.GameID)
	if err != nil {
		log.Warn().Err(err).Str("game_id", c.GameID.String()).Msg("resync requested without mirror")
		return
	}
	g.sendState(c, mirror)
}

func (g *Gateway) sendState(c *Connection, mirror *device.Device) {
	msg, err := g.mirrors.StateMessage(c.GameID, mirror)
	if err != nil {
		log.Error().Err(err).Str("game_id", c.GameID.String()).Msg("failed to build state message")
		return
	}
	g.conns.SendTo(c, msg)
}

func (g *Gateway) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.conns.GetConnectionStats())
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// statusFor maps lobby and store errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, lobby.ErrInvalidRoomCode),
		errors.Is(err, lobby.ErrInvalidPlayerName),
		errors.Is(err, lobby.ErrInvalidTimer),
		errors.Is(err, lobby.ErrInvalidOption),
		errors.Is(err, lobby.ErrEmptyQuestionSet):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lobby.ErrPlayerNotInGame):
		return http.StatusForbidden
	case errors.Is(err, lobby.ErrGameNotJoinable),
		errors.Is(err, lobby.ErrAnswerLocked),
		errors.Is(err, lobby.ErrGamePaused),
		errors.Is(err, lobby.ErrPlayerAlreadyLeft):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrRoomCodeExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeAppError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
