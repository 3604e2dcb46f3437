package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxConnections:        10,
		MaxConnectionsPerUser: 3,
		RateLimitMaxCalls:     100,
		RateLimitWindow:       60 * time.Second,
		MaxMessageSize:        64 * 1024,
		HeartbeatTimeout:      60 * time.Second,
		ReaperInterval:        30 * time.Second,
		ErrorThreshold:        25,
	}
}

type fakeRelay struct {
	mu    sync.Mutex
	calls [][2]string
}

func (r *fakeRelay) CancelUpload(uploadID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]string{uploadID, userID})
	return nil
}

func (r *fakeRelay) cancellations() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]string(nil), r.calls...)
}

type harness struct {
	manager *Manager
	clock   *clockwork.FakeClock
	relay   *fakeRelay
}

func newHarness(t *testing.T, limits Limits) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	relay := &fakeRelay{}
	m := NewManager(limits, relay, clock)
	t.Cleanup(m.Shutdown)
	return &harness{manager: m, clock: clock, relay: relay}
}

// connect opens a fake connection for userID and discards the greeting so
// test assertions only see handler output.
func (h *harness) connect(t *testing.T, userID string) (*Conn, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	conn, err := h.manager.Connect(transport, Principal{
		UserID:    userID,
		IsActive:  true,
		ExpiresAt: h.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	transport.clearWrites()
	return conn, transport
}

// setLastHeartbeat backdates a record's heartbeat for staleness tests.
func setLastHeartbeat(conn *Conn, at time.Time) {
	conn.mu.Lock()
	conn.lastHeartbeat = at
	conn.mu.Unlock()
}
