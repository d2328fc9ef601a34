package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/mcdev12/triviacast/go/internal/game/state"
)

// HostServiceName is the fully-qualified name of the host control service
const HostServiceName = "triviacast.host.v1.HostService"

const (
	HostServiceOpenGameProcedure     = "/" + HostServiceName + "/OpenGame"
	HostServiceStartGameProcedure    = "/" + HostServiceName + "/StartGame"
	HostServiceSkipQuestionProcedure = "/" + HostServiceName + "/SkipQuestion"
	HostServicePauseGameProcedure    = "/" + HostServiceName + "/PauseGame"
	HostServiceResumeGameProcedure   = "/" + HostServiceName + "/ResumeGame"
	HostServiceGetHostStateProcedure = "/" + HostServiceName + "/GetHostState"
)

// GameRequest addresses one game
type GameRequest struct {
	GameID string `json:"game_id"`
}

// HostStateResponse is the host's view of a game
type HostStateResponse struct {
	GameID      string         `json:"game_id"`
	State       state.Snapshot `json:"state"`
	RemainingMs int64          `json:"remaining_ms"`
	ServerTime  time.Time      `json:"server_time"`
}

// Ack answers the control calls that return nothing
type Ack struct{}

// jsonCodec carries plain Go structs over Connect; the host API has no protobuf schema
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Service implements the HostService Connect API
type Service struct {
	orch *Orchestrator
}

func NewService(orch *Orchestrator) *Service {
	return &Service{orch: orch}
}

// Handler mounts every HostService procedure. The returned path is the service prefix.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(HostServiceOpenGameProcedure, connect.NewUnaryHandler(HostServiceOpenGameProcedure, s.OpenGame, opts...))
	mux.Handle(HostServiceStartGameProcedure, connect.NewUnaryHandler(HostServiceStartGameProcedure, s.StartGame, opts...))
	mux.Handle(HostServiceSkipQuestionProcedure, connect.NewUnaryHandler(HostServiceSkipQuestionProcedure, s.SkipQuestion, opts...))
	mux.Handle(HostServicePauseGameProcedure, connect.NewUnaryHandler(HostServicePauseGameProcedure, s.PauseGame, opts...))
	mux.Handle(HostServiceResumeGameProcedure, connect.NewUnaryHandler(HostServiceResumeGameProcedure, s.ResumeGame, opts...))
	mux.Handle(HostServiceGetHostStateProcedure, connect.NewUnaryHandler(HostServiceGetHostStateProcedure, s.GetHostState, opts...))
	return "/" + HostServiceName + "/", mux
}

// OpenGame attaches the host to a game and returns its current state
func (s *Service) OpenGame(ctx context.Context, req *connect.Request[GameRequest]) (*connect.Response[HostStateResponse], error) {
	gameID, err := parseGameID(req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.orch.OpenSession(ctx, gameID); err != nil {
		return nil, toConnectError(err)
	}
	return s.hostState(ctx, gameID)
}

func (s *Service) StartGame(ctx context.Context, req *connect.Request[GameRequest]) (*connect.Response[Ack], error) {
	return s.control(ctx, req.Msg, s.orch.StartGame)
}

func (s *Service) SkipQuestion(ctx context.Context, req *connect.Request[GameRequest]) (*connect.Response[Ack], error) {
	return s.control(ctx, req.Msg, s.orch.SkipQuestion)
}

func (s *Service) PauseGame(ctx context.Context, req *connect.Request[GameRequest]) (*connect.Response[Ack], error) {
	return s.control(ctx, req.Msg, s.orch.PauseGame)
}

func (s *Service) ResumeGame(ctx context.Context, req *connect.Request[GameRequest]) (*connect.Response[Ack], error) {
	return s.control(ctx, req.Msg, s.orch.ResumeGame)
}

func (s *Service) GetHostState(ctx context.Context, req *connect.Request[GameRequest]) (*connect.Response[HostStateResponse], error) {
	gameID, err := parseGameID(req.Msg)
	if err != nil {
		return nil, err
	}
	return s.hostState(ctx, gameID)
}

func (s *Service) control(ctx context.Context, msg *GameRequest, fn func(context.Context, uuid.UUID) error) (*connect.Response[Ack], error) {
	gameID, err := parseGameID(msg)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, gameID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Ack{}), nil
}

func (s *Service) hostState(ctx context.Context, gameID uuid.UUID) (*connect.Response[HostStateResponse], error) {
	snap, err := s.orch.HostState(ctx, gameID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&HostStateResponse{
		GameID:      gameID.String(),
		State:       snap,
		RemainingMs: s.orch.Remaining(gameID).Milliseconds(),
		ServerTime:  s.orch.clock.Now(),
	}), nil
}

func parseGameID(msg *GameRequest) (uuid.UUID, error) {
	id, err := uuid.Parse(msg.GameID)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid game ID: %w", err))
	}
	return id, nil
}

// toConnectError maps orchestrator errors onto Connect codes
func toConnectError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrNoPlayers), errors.Is(err, ErrInvalidPhase), errors.Is(err, ErrGamePaused):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrShuttingDown):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// HostClient calls HostService over Connect with the JSON codec
type HostClient struct {
	openGame     *connect.Client[GameRequest, HostStateResponse]
	startGame    *connect.Client[GameRequest, Ack]
	skipQuestion *connect.Client[GameRequest, Ack]
	pauseGame    *connect.Client[GameRequest, Ack]
	resumeGame   *connect.Client[GameRequest, Ack]
	getHostState *connect.Client[GameRequest, HostStateResponse]
}

func NewHostClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *HostClient {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &HostClient{
		openGame:     connect.NewClient[GameRequest, HostStateResponse](httpClient, baseURL+HostServiceOpenGameProcedure, opts...),
		startGame:    connect.NewClient[GameRequest, Ack](httpClient, baseURL+HostServiceStartGameProcedure, opts...),
		skipQuestion: connect.NewClient[GameRequest, Ack](httpClient, baseURL+HostServiceSkipQuestionProcedure, opts...),
		pauseGame:    connect.NewClient[GameRequest, Ack](httpClient, baseURL+HostServicePauseGameProcedure, opts...),
		resumeGame:   connect.NewClient[GameRequest, Ack](httpClient, baseURL+HostServiceResumeGameProcedure, opts...),
		getHostState: connect.NewClient[GameRequest, HostStateResponse](httpClient, baseURL+HostServiceGetHostStateProcedure, opts...),
	}
}

func (c *HostClient) OpenGame(ctx context.Context, gameID uuid.UUID) (*HostStateResponse, error) {
	res, err := c.openGame.CallUnary(ctx, connect.NewRequest(&GameRequest{GameID: gameID.String()}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *HostClient) StartGame(ctx context.Context, gameID uuid.UUID) error {
	_, err := c.startGame.CallUnary(ctx, connect.NewRequest(&GameRequest{GameID: gameID.String()}))
	return err
}

func (c *HostClient) SkipQuestion(ctx context.Context, gameID uuid.UUID) error {
	_, err := c.skipQuestion.CallUnary(ctx, connect.NewRequest(&GameRequest{GameID: gameID.String()}))
	return err
}

func (c *HostClient) PauseGame(ctx context.Context, gameID uuid.UUID) error {
	_, err := c.pauseGame.CallUnary(ctx, connect.NewRequest(&GameRequest{GameID: gameID.String()}))
	return err
}

func (c *HostClient) ResumeGame(ctx context.Context, gameID uuid.UUID) error {
	_, err := c.resumeGame.CallUnary(ctx, connect.NewRequest(&GameRequest{GameID: gameID.String()}))
	return err
}

func (c *HostClient) GetHostState(ctx context.Context, gameID uuid.UUID) (*HostStateResponse, error) {
	res, err := c.getHostState.CallUnary(ctx, connect.NewRequest(&GameRequest{GameID: gameID.String()}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
