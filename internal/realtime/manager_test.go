package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ConnectGreetsWithEstablished(t *testing.T) {
	h := newHarness(t, testLimits())

	transport := newFakeTransport()
	conn, err := h.manager.Connect(transport, Principal{UserID: "alice", IsActive: true})
	require.NoError(t, err)

	env := transport.lastSent(t)
	assert.Equal(t, TypeConnectionEstablished, env.Type)
	assert.Equal(t, conn.ID(), env.Data["connection_id"])
	assert.Len(t, env.Data["features"], len(EventCategories))

	limits, ok := env.Data["limits"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), limits["max_connections_per_user"])
	assert.Equal(t, float64(100), limits["rate_limit_max_calls"])
	assert.Equal(t, float64(64*1024), limits["max_message_size"])
}

func TestManager_ConnectRejectsInactivePrincipal(t *testing.T) {
	h := newHarness(t, testLimits())

	_, err := h.manager.Connect(newFakeTransport(), Principal{UserID: "alice", IsActive: false})
	assert.ErrorIs(t, err, ErrPrincipalInactive)
	assert.Equal(t, 0, h.manager.registry.Len())
}

func TestManager_ConnectRejectsExpiredPrincipal(t *testing.T) {
	h := newHarness(t, testLimits())

	_, err := h.manager.Connect(newFakeTransport(), Principal{
		UserID:    "alice",
		IsActive:  true,
		ExpiresAt: h.clock.Now().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, ErrPrincipalExpired)
}

func TestManager_ConnectAcceptsZeroExpiry(t *testing.T) {
	h := newHarness(t, testLimits())

	// A zero ExpiresAt means the session never expires.
	_, err := h.manager.Connect(newFakeTransport(), Principal{UserID: "alice", IsActive: true})
	assert.NoError(t, err)
}

func TestManager_ConnectRejectsAtGlobalCapacity(t *testing.T) {
	limits := testLimits()
	limits.MaxConnections = 2
	h := newHarness(t, limits)

	h.connect(t, "alice")
	h.connect(t, "bob")

	_, err := h.manager.Connect(newFakeTransport(), Principal{UserID: "carol", IsActive: true})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, h.manager.registry.Len())
}

func TestManager_ConnectEvictsOldestAtPerUserCap(t *testing.T) {
	limits := testLimits()
	limits.MaxConnectionsPerUser = 2
	h := newHarness(t, limits)

	oldest, oldestTransport := h.connect(t, "alice")
	h.clock.Advance(time.Second)
	h.connect(t, "alice")
	h.clock.Advance(time.Second)
	newest, _ := h.connect(t, "alice")

	_, found := h.manager.registry.Get(oldest.ID())
	assert.False(t, found, "oldest connection gives way to the newest")
	assert.True(t, oldestTransport.isClosed())
	assert.Equal(t, ClosePolicyViolation, oldestTransport.closeCode)

	_, found = h.manager.registry.Get(newest.ID())
	assert.True(t, found)
	assert.Equal(t, 2, h.manager.registry.Len())
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, testLimits())
	conn, transport := h.connect(t, "alice")

	h.manager.Disconnect(conn.ID(), "client_disconnect")
	assert.True(t, transport.isClosed())
	assert.Equal(t, CloseNormal, transport.closeCode)

	assert.NotPanics(t, func() {
		h.manager.Disconnect(conn.ID(), "client_disconnect")
		h.manager.Disconnect("never-existed", "client_disconnect")
	})
}

func TestManager_OversizedInboundFrameReportsError(t *testing.T) {
	h := newHarness(t, testLimits())
	conn, transport := h.connect(t, "alice")

	raw := frameOfSize(t, 64*1024+1)
	h.manager.HandleInboundMessage(conn.ID(), raw)

	env := transport.lastSent(t)
	assert.Equal(t, TypeError, env.Type)
	assert.Equal(t, CodeMessageTooLarge, env.Data["code"])

	// The connection stays open; only the frame is rejected.
	_, found := h.manager.registry.Get(conn.ID())
	assert.True(t, found)
}

func TestManager_MalformedInboundFrameReportsError(t *testing.T) {
	h := newHarness(t, testLimits())
	conn, transport := h.connect(t, "alice")

	h.manager.HandleInboundMessage(conn.ID(), []byte(`{"type":`))

	env := transport.lastSent(t)
	assert.Equal(t, TypeError, env.Type)
	assert.Equal(t, CodeInvalidMessageFormat, env.Data["code"])

	info, _ := h.manager.ConnInfo(conn.ID())
	assert.Equal(t, uint64(1), info.ErrorCount)
}

func TestManager_ReadLoopPumpsUntilTransportFails(t *testing.T) {
	h := newHarness(t, testLimits())
	conn, transport := h.connect(t, "alice")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.manager.ReadLoop(conn)
	}()

	transport.push([]byte(`{"type":"ping","id":"rl-1"}`))
	require.Eventually(t, func() bool {
		for _, env := range transport.sent(t) {
			if env.Type == TypePong {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	transport.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read loop did not exit after transport close")
	}

	_, found := h.manager.registry.Get(conn.ID())
	assert.False(t, found, "a failed read disconnects the connection")
}

func TestManager_ReaperStartsLazily(t *testing.T) {
	h := newHarness(t, testLimits())

	assert.False(t, h.manager.reaper.Running(), "no background work before the first connection")
	h.connect(t, "alice")
	assert.True(t, h.manager.reaper.Running())
}

func TestManager_ShutdownClosesEverything(t *testing.T) {
	h := newHarness(t, testLimits())
	_, t1 := h.connect(t, "alice")
	_, t2 := h.connect(t, "bob")

	h.manager.Shutdown()

	assert.True(t, t1.isClosed())
	assert.True(t, t2.isClosed())
	assert.Equal(t, CloseGoingAway, t1.closeCode)
	assert.Equal(t, 0, h.manager.registry.Len())
	assert.False(t, h.manager.reaper.Running())
	assert.False(t, h.manager.Accepting())

	_, err := h.manager.Connect(newFakeTransport(), Principal{UserID: "carol", IsActive: true})
	assert.ErrorIs(t, err, ErrShuttingDown)

	assert.NotPanics(t, h.manager.Shutdown)
}

func TestManager_StatsReflectConnections(t *testing.T) {
	h := newHarness(t, testLimits())
	h.connect(t, "alice")
	h.connect(t, "alice")
	h.connect(t, "bob")

	stats := h.manager.Stats()
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 2, stats.PerUser["alice"])
}

func TestManager_ConnInfoSnapshot(t *testing.T) {
	h := newHarness(t, testLimits())
	conn, _ := h.connect(t, "alice")
	conn.subscribe([]string{"upload.progress"})

	info, found := h.manager.ConnInfo(conn.ID())
	require.True(t, found)
	assert.Equal(t, conn.ID(), info.ID)
	assert.Equal(t, "alice", info.UserID)
	assert.Equal(t, []string{"upload.progress"}, info.Subscriptions)

	_, found = h.manager.ConnInfo("never-existed")
	assert.False(t, found)
}

func TestManager_FrameAtSizeCapIsProcessed(t *testing.T) {
	h := newHarness(t, testLimits())
	conn, transport := h.connect(t, "alice")

	// Exactly at the cap goes through to the router.
	h.manager.HandleInboundMessage(conn.ID(), frameOfSize(t, 64*1024))

	env := transport.lastSent(t)
	assert.Equal(t, TypePong, env.Type)
}
