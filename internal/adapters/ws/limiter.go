package ws

import (
	"sync"
	"time"

	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// rateLimiter is a sliding-window counter per socket, used to keep chat
// and typing floods off the rooms.
type rateLimiter struct {
	mu       sync.Mutex
	history  map[domain.SocketID][]time.Time
	limit    int
	interval time.Duration
}

func newRateLimiter(limit int, interval time.Duration) *rateLimiter {
	return &rateLimiter{
		history:  make(map[domain.SocketID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *rateLimiter) Allow(sid domain.SocketID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[sid] = fresh
	return true
}

// Forget drops a socket's window, typically on disconnect.
func (rl *rateLimiter) Forget(sid domain.SocketID) {
	rl.mu.Lock()
	delete(rl.history, sid)
	rl.mu.Unlock()
}
