package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/triviacast/go/internal/game/repository"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(parseLogLevel(cfg.LogLevel))

	timings, err := loadTimings(cfg.TimingsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load game timings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repo, err := setupDatabase(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer db.Close()

	transport, err := setupTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup bus transport")
	}

	services := setupServices(cfg, repo, transport, timings)
	health := NewHealthChecker(db, transport, services.Gateway, services.Metrics)
	server := setupServer(cfg, services, health)

	log.Info().
		Str("port", cfg.Port).
		Str("bus_driver", cfg.BusDriver).
		Str("database", cfg.DB.Database).
		Dur("reveal_dwell", timings.RevealDwell).
		Dur("leaderboard_dwell", timings.LeaderboardDwell).
		Msg("starting triviacast server")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return services.Orchestrator.Run(gctx)
	})

	g.Go(func() error {
		return services.Gateway.Run(gctx)
	})

	g.Go(func() error {
		listenerCfg := repository.DefaultListenerConfig()
		listenerCfg.DatabaseURL = cfg.DB.DSN()
		listenerCfg.NotifyChannel = cfg.NotifyChannel
		listener, err := repository.NewProgressListener(listenerCfg, services.Gateway.Nudge)
		if err != nil {
			// devices still converge by polling
			log.Error().Err(err).Msg("failed to start progress listener")
			return nil
		}
		health.SetListening(true)
		defer health.SetListening(false)
		return listener.Start(gctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if cerr := services.Lobby.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("failed to close lobby publisher")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
