package device

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/triviacast/go/clients"
	"github.com/mcdev12/triviacast/go/internal/game/state"
)

// StateSource rebuilds a game's state from the row store
type StateSource interface {
	Authoritative(ctx context.Context, gameID uuid.UUID) (state.Authoritative, error)
}

// StateSourceFunc adapts a function to StateSource
type StateSourceFunc func(ctx context.Context, gameID uuid.UUID) (state.Authoritative, error)

func (f StateSourceFunc) Authoritative(ctx context.Context, gameID uuid.UUID) (state.Authoritative, error) {
	return f(ctx, gameID)
}

// HTTPStateSource reads the gateway's state endpoint. Remote devices use it as their
// fallback when they cannot reach the row store directly.
type HTTPStateSource struct {
	client *clients.BaseClient
}

func NewHTTPStateSource(baseURL string) *HTTPStateSource {
	return &HTTPStateSource{client: clients.NewBaseClient(baseURL)}
}

// Client exposes the underlying client for header and timeout tweaks
func (s *HTTPStateSource) Client() *clients.BaseClient {
	return s.client
}

func (s *HTTPStateSource) Authoritative(ctx context.Context, gameID uuid.UUID) (state.Authoritative, error) {
	body, err := s.client.Get(ctx, "/api/games/"+gameID.String()+"/state")
	if err != nil {
		return state.Authoritative{}, fmt.Errorf("failed to fetch game state: %w", err)
	}

	var a state.Authoritative
	if err := json.Unmarshal(body, &a); err != nil {
		return state.Authoritative{}, fmt.Errorf("failed to decode game state: %w", err)
	}
	return a, nil
}
