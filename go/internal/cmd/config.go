package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mcdev12/triviacast/go/internal/dbconfig"
	"github.com/mcdev12/triviacast/go/internal/game/orchestrator"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	busDriverNATS  = "nats"
	busDriverRedis = "redis"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	PublicURL       string        `env:"PUBLIC_URL"`
	BusDriver       string        `env:"BUS_DRIVER" envDefault:"nats"`
	NATSURL         string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	RedisURL        string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	TimingsFile     string        `env:"TIMINGS_FILE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	NotifyChannel   string        `env:"NOTIFY_CHANNEL" envDefault:"game_progress"`

	DB dbconfig.Config
}

// Timings is the optional YAML file overriding game pacing
type Timings struct {
	Game orchestrator.Config `yaml:"game"`
}

func loadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.BusDriver {
	case busDriverNATS, busDriverRedis:
	default:
		return nil, fmt.Errorf("unknown BUS_DRIVER %q", cfg.BusDriver)
	}
	return &cfg, nil
}

// loadTimings starts from the defaults and overlays the file when one is configured
func loadTimings(path string) (orchestrator.Config, error) {
	timings := Timings{Game: orchestrator.DefaultConfig()}
	if path == "" {
		return timings.Game, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return orchestrator.Config{}, fmt.Errorf("failed to read timings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &timings); err != nil {
		return orchestrator.Config{}, fmt.Errorf("failed to parse timings file: %w", err)
	}
	return timings.Game, nil
}

func parseLogLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
