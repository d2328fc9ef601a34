package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/device"
	"github.com/mcdev12/triviacast/go/internal/game/gateway"
	"github.com/mcdev12/triviacast/go/internal/game/lobby"
	"github.com/mcdev12/triviacast/go/internal/game/orchestrator"
	"github.com/mcdev12/triviacast/go/internal/game/reconciler"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/nats-io/nats.go"
)

type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Host         *orchestrator.Service
	Lobby        *lobby.App
	Gateway      *gateway.Gateway
	Metrics      *orchestrator.CountingMetrics
	Transport    channel.Transport
}

func setupTransport(cfg *Config) (channel.Transport, error) {
	switch cfg.BusDriver {
	case busDriverRedis:
		t, err := channel.NewRedisTransport(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis transport: %w", err)
		}
		return t, nil
	default:
		natsCfg := channel.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		if natsCfg.URL == "" {
			natsCfg.URL = nats.DefaultURL
		}
		return channel.NewNATSTransport(natsCfg), nil
	}
}

func setupServices(cfg *Config, repo *repository.Postgres, transport channel.Transport, timings orchestrator.Config) *Services {
	// Wire up dependency injection chain
	// Row store → Reconciler / Lobby app → Orchestrator / Gateway → Service layer
	clock := clockwork.NewRealClock()
	source := device.NewRepositorySource(repo, clock)
	metrics := orchestrator.NewCountingMetrics()

	// Host side
	scorer := reconciler.New(repo, clock)
	orch := orchestrator.New(repo, scorer, transport, source,
		orchestrator.WithClock(clock),
		orchestrator.WithConfig(timings),
		orchestrator.WithMetrics(metrics),
	)

	// Player side
	lobbyApp := lobby.NewApp(repo, transport, clock)
	gwCfg := gateway.DefaultConfig()
	gwCfg.PublicURL = cfg.PublicURL
	gw := gateway.New(lobbyApp, source, transport, clock, gwCfg)

	return &Services{
		Orchestrator: orch,
		Host:         orchestrator.NewService(orch),
		Lobby:        lobbyApp,
		Gateway:      gw,
		Metrics:      metrics,
		Transport:    transport,
	}
}
