package hub

import (
	"sync"
	"time"
)

// RateLimiter is a per-user sliding window over message timestamps. Entries
// older than the window are pruned lazily on each check, so capacity frees up
// exactly as accepted sends age out.
type RateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	windows map[int][]time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		max:     max,
		window:  window,
		windows: make(map[int][]time.Time),
	}
}

// Allow reports whether the user may send at `now`. A denied call records
// nothing, so hammering while limited does not extend the lockout.
func (rl *RateLimiter) Allow(userID int, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	window := rl.windows[userID]

	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.max {
		rl.windows[userID] = kept
		return false
	}

	rl.windows[userID] = append(kept, now)
	return true
}

// Forget drops a user's window. Presence cleanup must call this on
// disconnect or the window leaks across reconnects.
func (rl *RateLimiter) Forget(userID int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, userID)
}
