package realtime

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RateLimiter is a sliding-window counter keyed by user identity: a call is
// allowed while fewer than maxCalls timestamps fall inside the trailing
// window. Entries older than the window are lazily evicted on each check.
// Slight over/under-admission at window boundaries under contention is
// acceptable; exactness is not a goal.
type RateLimiter struct {
	clock    clockwork.Clock
	window   time.Duration
	maxCalls int

	mu      sync.RWMutex
	windows map[string]*callWindow
}

// callWindow holds one key's timestamps behind its own lock, so connections
// of the same user contend only with each other.
type callWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

// NewRateLimiter creates a limiter admitting maxCalls per trailing window.
func NewRateLimiter(maxCalls int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		clock:    clock,
		window:   window,
		maxCalls: maxCalls,
		windows:  make(map[string]*callWindow),
	}
}

func (rl *RateLimiter) windowFor(key string) *callWindow {
	rl.mu.RLock()
	w, ok := rl.windows[key]
	rl.mu.RUnlock()
	if ok {
		return w
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if w, ok = rl.windows[key]; ok {
		return w
	}
	w = &callWindow{}
	rl.windows[key] = w
	return w
}

// IsAllowed purges expired timestamps for key, then admits and records the
// call iff the remaining count is below the budget. A rejected call mutates
// nothing.
func (rl *RateLimiter) IsAllowed(key string) bool {
	w := rl.windowFor(key)
	now := rl.clock.Now()
	cutoff := now.Add(-rl.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stamps = trimExpired(w.stamps, cutoff)
	if len(w.stamps) >= rl.maxCalls {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// ResetTimeUntil returns when the oldest entry in key's window expires, for
// client back-off hints. ok is false if the window is empty.
func (rl *RateLimiter) ResetTimeUntil(key string) (reset time.Time, ok bool) {
	rl.mu.RLock()
	w, exists := rl.windows[key]
	rl.mu.RUnlock()
	if !exists {
		return time.Time{}, false
	}

	cutoff := rl.clock.Now().Add(-rl.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stamps = trimExpired(w.stamps, cutoff)
	if len(w.stamps) == 0 {
		return time.Time{}, false
	}
	return w.stamps[0].Add(rl.window), true
}

// Purge drops keys whose windows are fully expired. Called by the reaper on
// its sweep tick so disconnected users don't accumulate state.
func (rl *RateLimiter) Purge() {
	cutoff := rl.clock.Now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, w := range rl.windows {
		w.mu.Lock()
		w.stamps = trimExpired(w.stamps, cutoff)
		empty := len(w.stamps) == 0
		w.mu.Unlock()
		if empty {
			delete(rl.windows, key)
		}
	}
}

// trimExpired drops timestamps at or before cutoff. Stamps are appended in
// order, so the first retained index is a prefix scan.
func trimExpired(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
