package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mcdev12/triviacast/go/internal/game/channel"
	"github.com/mcdev12/triviacast/go/internal/game/gateway"
	"github.com/mcdev12/triviacast/go/internal/game/orchestrator"
	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool
	DatabaseConnected bool
	BusConnected      bool
	ListenerActive    bool
	Connections       int
	LastTransition    time.Time
	Errors            []string
}

// HealthChecker reports on the server's dependencies
type HealthChecker struct {
	db        *sql.DB
	transport channel.Transport
	gw        *gateway.Gateway
	metrics   *orchestrator.CountingMetrics
	listening atomic.Bool
}

func NewHealthChecker(db *sql.DB, transport channel.Transport, gw *gateway.Gateway, metrics *orchestrator.CountingMetrics) *HealthChecker {
	return &HealthChecker{
		db:        db,
		transport: transport,
		gw:        gw,
		metrics:   metrics,
	}
}

// SetListening records whether the progress listener is running
func (h *HealthChecker) SetListening(active bool) {
	h.listening.Store(active)
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	// a throwaway connection proves the bus accepts new channels
	conn, err := h.transport.Dial(ctx, func(channel.Status) {})
	if err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("bus dial failed: %v", err))
	} else {
		status.BusConnected = true
		_ = conn.Close()
	}

	// the listener is a fallback path, losing it degrades but does not fail the server
	status.ListenerActive = h.listening.Load()
	if !status.ListenerActive {
		status.Errors = append(status.Errors, "progress listener not active")
	}

	status.Connections = h.gw.Stats().TotalConnections
	status.LastTransition = h.metrics.Snapshot().LastTransition
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	response := map[string]interface{}{
		"healthy":            status.Healthy,
		"database_connected": status.DatabaseConnected,
		"bus_connected":      status.BusConnected,
		"listener_active":    status.ListenerActive,
		"connections":        status.Connections,
		"last_transition":    status.LastTransition,
		"errors":             status.Errors,
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

// MetricsHandler exports orchestrator counters in Prometheus text format
func (h *HealthChecker) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	snap := h.metrics.Snapshot()
	stats := h.gw.Stats()

	var b strings.Builder
	writeCounter := func(name, help string, labels map[string]int, label string) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s{%s=%q} %d\n", name, label, k, labels[k])
		}
		b.WriteString("\n")
	}

	writeCounter("triviacast_transitions_total", "Phase transitions written by the host", snap.Transitions, "phase")
	writeCounter("triviacast_events_published_total", "Events published on the bus", snap.Published, "type")

	fmt.Fprintf(&b, `# HELP triviacast_failed_writes_total Transitions whose row store write failed
# TYPE triviacast_failed_writes_total counter
triviacast_failed_writes_total %d

# HELP triviacast_failed_publishes_total Events that failed to publish after a write
# TYPE triviacast_failed_publishes_total counter
triviacast_failed_publishes_total %d

# HELP triviacast_questions_scored_total Questions scored by the reconciler
# TYPE triviacast_questions_scored_total counter
triviacast_questions_scored_total %d

# HELP triviacast_scoring_failures_total Scoring attempts that failed
# TYPE triviacast_scoring_failures_total counter
triviacast_scoring_failures_total %d

# HELP triviacast_timers_fired_total Phase timers that fired
# TYPE triviacast_timers_fired_total counter
triviacast_timers_fired_total %d

# HELP triviacast_stale_timers_fired_total Phase timers that fired after being superseded
# TYPE triviacast_stale_timers_fired_total counter
triviacast_stale_timers_fired_total %d

# HELP triviacast_websocket_connections Open player websocket connections
# TYPE triviacast_websocket_connections gauge
triviacast_websocket_connections %d

# HELP triviacast_watched_games Games with at least one websocket connection
# TYPE triviacast_watched_games gauge
triviacast_watched_games %d
`,
		snap.FailedWrites,
		snap.FailedPublishes,
		snap.Scored,
		snap.FailedScoring,
		snap.TimersFired,
		snap.StaleTimersFired,
		stats.TotalConnections,
		stats.ActiveGames,
	)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(b.String()))
}
