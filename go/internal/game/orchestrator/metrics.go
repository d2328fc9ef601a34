package orchestrator

import (
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting orchestrator metrics
type MetricsCollector interface {
	RecordTransition(phase string, success bool, duration time.Duration)
	RecordPublishAttempt(eventType string, success bool)
	RecordScoring(success bool, duration time.Duration)
	RecordTimerFired(kind string, stale bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordTransition(phase string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, success bool)                {}
func (n *NoOpMetricsCollector) RecordScoring(success bool, duration time.Duration)                 {}
func (n *NoOpMetricsCollector) RecordTimerFired(kind string, stale bool)                           {}

// CountingMetrics keeps plain counters, enough for the health endpoint and tests
type CountingMetrics struct {
	mu               sync.Mutex
	Transitions      map[string]int
	FailedWrites     int
	Published        map[string]int
	FailedPublishes  int
	Scored           int
	FailedScoring    int
	TimersFired      int
	StaleTimersFired int
	LastTransition   time.Time
}

func NewCountingMetrics() *CountingMetrics {
	return &CountingMetrics{
		Transitions: make(map[string]int),
		Published:   make(map[string]int),
	}
}

func (m *CountingMetrics) RecordTransition(phase string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !success {
		m.FailedWrites++
		return
	}
	m.Transitions[phase]++
	m.LastTransition = time.Now()
}

func (m *CountingMetrics) RecordPublishAttempt(eventType string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !success {
		m.FailedPublishes++
		return
	}
	m.Published[eventType]++
}

func (m *CountingMetrics) RecordScoring(success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.Scored++
	} else {
		m.FailedScoring++
	}
}

func (m *CountingMetrics) RecordTimerFired(kind string, stale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TimersFired++
	if stale {
		m.StaleTimersFired++
	}
}

// Snapshot copies the counters
func (m *CountingMetrics) Snapshot() CountingMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := CountingMetricsSnapshot{
		Transitions:      make(map[string]int, len(m.Transitions)),
		FailedWrites:     m.FailedWrites,
		Published:        make(map[string]int, len(m.Published)),
		FailedPublishes:  m.FailedPublishes,
		Scored:           m.Scored,
		FailedScoring:    m.FailedScoring,
		TimersFired:      m.TimersFired,
		StaleTimersFired: m.StaleTimersFired,
		LastTransition:   m.LastTransition,
	}
	for k, v := range m.Transitions {
		s.Transitions[k] = v
	}
	for k, v := range m.Published {
		s.Published[k] = v
	}
	return s
}

type CountingMetricsSnapshot struct {
	Transitions      map[string]int `json:"transitions"`
	FailedWrites     int            `json:"failed_writes"`
	Published        map[string]int `json:"published"`
	FailedPublishes  int            `json:"failed_publishes"`
	Scored           int            `json:"scored"`
	FailedScoring    int            `json:"failed_scoring"`
	TimersFired      int            `json:"timers_fired"`
	StaleTimersFired int            `json:"stale_timers_fired"`
	LastTransition   time.Time      `json:"last_transition"`
}
