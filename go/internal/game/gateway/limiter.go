package gateway

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// playerLimiter keeps one token bucket per player
type playerLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

func newPlayerLimiter(limit rate.Limit, burst int) *playerLimiter {
	return &playerLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (l *playerLimiter) Allow(playerID uuid.UUID) bool {
	l.mu.Lock()
	lim, ok := l.limiters[playerID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[playerID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Forget drops the buckets of players who left
func (l *playerLimiter) Forget(playerID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, playerID)
}
