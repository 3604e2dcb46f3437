package realtime

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BudgetWithinWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(100, 60*time.Second, clock)

	for i := 0; i < 100; i++ {
		require.True(t, rl.IsAllowed("alice"), "call %d should be allowed", i+1)
	}
	assert.False(t, rl.IsAllowed("alice"), "101st call should be rejected")

	// Past the window from the first call, the budget frees up again.
	clock.Advance(61 * time.Second)
	assert.True(t, rl.IsAllowed("alice"))
}

func TestRateLimiter_RejectionDoesNotMutate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(2, 60*time.Second, clock)

	require.True(t, rl.IsAllowed("alice"))
	require.True(t, rl.IsAllowed("alice"))

	assert.False(t, rl.IsAllowed("alice"))
	assert.False(t, rl.IsAllowed("alice"))

	// Rejected calls must not have appended timestamps.
	w := rl.windowFor("alice")
	w.mu.Lock()
	stamps := len(w.stamps)
	w.mu.Unlock()
	assert.Equal(t, 2, stamps)
}

func TestRateLimiter_SlidingEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(2, 60*time.Second, clock)

	require.True(t, rl.IsAllowed("alice"))
	clock.Advance(30 * time.Second)
	require.True(t, rl.IsAllowed("alice"))
	assert.False(t, rl.IsAllowed("alice"))

	// The first entry expires at +60s; the second is still in the window.
	clock.Advance(31 * time.Second)
	assert.True(t, rl.IsAllowed("alice"))
	assert.False(t, rl.IsAllowed("alice"))
}

func TestRateLimiter_ResetTimeUntil(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(10, 60*time.Second, clock)

	_, ok := rl.ResetTimeUntil("alice")
	assert.False(t, ok, "empty window has no reset time")

	start := clock.Now()
	require.True(t, rl.IsAllowed("alice"))

	reset, ok := rl.ResetTimeUntil("alice")
	require.True(t, ok)
	assert.Equal(t, start.Add(60*time.Second), reset)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(1, 60*time.Second, clock)

	require.True(t, rl.IsAllowed("alice"))
	assert.False(t, rl.IsAllowed("alice"))
	assert.True(t, rl.IsAllowed("bob"))
}

func TestRateLimiter_PurgeDropsExpiredKeys(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(10, 60*time.Second, clock)

	require.True(t, rl.IsAllowed("alice"))
	clock.Advance(61 * time.Second)
	rl.Purge()

	rl.mu.RLock()
	_, exists := rl.windows["alice"]
	rl.mu.RUnlock()
	assert.False(t, exists)
}
