package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name the progress trigger notifies on
	PingInterval  time.Duration // Keepalive for the listener connection
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: "game_progress",
		PingInterval:  90 * time.Second,
		MinReconnect:  10 * time.Second,
		MaxReconnect:  time.Minute,
	}
}

// ProgressListener turns row-store progress notifications into per-game nudges. It is a
// second path to devices that missed a broadcast; the bus stays the primary one.
type ProgressListener struct {
	listener *pq.Listener
	cfg      ListenerConfig
	onChange func(gameID uuid.UUID)
}

func NewProgressListener(cfg ListenerConfig, onChange func(gameID uuid.UUID)) (*ProgressListener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("progress listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for game progress")

	return &ProgressListener{
		listener: l,
		cfg:      cfg,
		onChange: onChange,
	}, nil
}

// Start blocks until ctx is done
func (l *ProgressListener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("progress listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; notifications may have been lost
				continue
			}
			gameID, err := uuid.Parse(note.Extra)
			if err != nil {
				log.Error().Err(err).Str("extra", note.Extra).Msg("invalid game id in notification")
				continue
			}
			l.onChange(gameID)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping progress listener")
			}
		}
	}
}
