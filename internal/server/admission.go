package server

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const admissionCleanupInterval = 5 * time.Minute

// admissionLimiter bounds the rate of new connection attempts per remote IP
// using a token bucket. It guards the upgrade endpoint against single-source
// reconnect storms; the per-user message rate limiter is separate and lives
// in the realtime package.
type admissionLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*admissionEntry
	rate      rate.Limit
	burst     int
	clock     clockwork.Clock
	cleanupAt time.Time
}

type admissionEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newAdmissionLimiter(attemptsPerSecond float64, burst int, clock clockwork.Clock) *admissionLimiter {
	return &admissionLimiter{
		limiters:  make(map[string]*admissionEntry),
		rate:      rate.Limit(attemptsPerSecond),
		burst:     burst,
		clock:     clock,
		cleanupAt: clock.Now().Add(admissionCleanupInterval),
	}
}

// allow checks whether a new connection attempt from ip may proceed.
func (l *admissionLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(admissionCleanupInterval)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &admissionEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// cleanup removes limiters idle for two cleanup intervals. Caller holds mu.
func (l *admissionLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * admissionCleanupInterval)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}
