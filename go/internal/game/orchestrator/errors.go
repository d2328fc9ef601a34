package orchestrator

import (
	"errors"
	"fmt"

	"github.com/mcdev12/triviacast/go/internal/game/repository"
)

var (
	ErrNoPlayers    = errors.New("game has no players")
	ErrInvalidPhase = errors.New("game is not in a phase that allows this")
	ErrGamePaused   = errors.New("game is paused")
	ErrUnavailable  = errors.New("row store unavailable, retry")
	ErrShuttingDown = errors.New("orchestrator shutting down")

	errGameEnded = fmt.Errorf("game has ended: %w", ErrInvalidPhase)
)

// retryable marks a failed store call; nothing was published for it
func retryable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrUnavailable, err)
}

// readFailed wraps a failed store read. A missing row is final, anything else is retried.
func readFailed(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return retryable(op, err)
}
