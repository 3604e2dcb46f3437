package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/metrics"
)

// Limits are the backpressure knobs of the connection manager.
type Limits struct {
	MaxConnections        int
	MaxConnectionsPerUser int
	RateLimitMaxCalls     int
	RateLimitWindow       time.Duration
	MaxMessageSize        int
	HeartbeatTimeout      time.Duration
	ReaperInterval        time.Duration
	ErrorThreshold        uint64
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxConnections:        1000,
		MaxConnectionsPerUser: 3,
		RateLimitMaxCalls:     100,
		RateLimitWindow:       60 * time.Second,
		MaxMessageSize:        64 * 1024,
		HeartbeatTimeout:      60 * time.Second,
		ReaperInterval:        30 * time.Second,
		ErrorThreshold:        25,
	}
}

// Manager composes the registry, rate limiter, validator, router,
// broadcaster, and reaper into the connection manager facade. Producers
// elsewhere in the system (upload pipeline, review service) call its send
// methods from their own goroutines.
type Manager struct {
	limits      Limits
	clock       clockwork.Clock
	registry    *Registry
	limiter     *RateLimiter
	validator   *Validator
	router      *Router
	broadcaster *Broadcaster
	reaper      *Reaper

	mu     sync.Mutex
	closed bool
}

// NewManager wires the connection manager. relay may be nil when no upload
// pipeline is attached.
func NewManager(limits Limits, relay CancelRelay, clock clockwork.Clock) *Manager {
	m := &Manager{
		limits:    limits,
		clock:     clock,
		registry:  NewRegistry(limits.MaxConnections, limits.MaxConnectionsPerUser),
		limiter:   NewRateLimiter(limits.RateLimitMaxCalls, limits.RateLimitWindow, clock),
		validator: NewValidator(limits.MaxMessageSize),
	}
	m.broadcaster = NewBroadcaster(m.registry, clock, limits.MaxMessageSize, m.Disconnect)
	m.router = NewRouter(m.registry, m.limiter, m.broadcaster, relay, clock, limits.ErrorThreshold, m.Disconnect)
	m.reaper = NewReaper(m.registry, m.limiter, clock, limits.ReaperInterval, limits.HeartbeatTimeout, m.Disconnect)
	return m
}

// connection.established payload.
type establishedData struct {
	ConnectionID string   `json:"connection_id"`
	Features     []string `json:"features"`
	Limits       struct {
		MaxConnectionsPerUser int `json:"max_connections_per_user"`
		RateLimitMaxCalls     int `json:"rate_limit_max_calls"`
		RateLimitWindowSecs   int `json:"rate_limit_window_seconds"`
		MaxMessageSize        int `json:"max_message_size"`
		HeartbeatTimeoutSecs  int `json:"heartbeat_timeout_seconds"`
	} `json:"limits"`
}

// Connect accepts an authenticated transport. It re-checks the principal's
// activity and expiry, enforces capacity (evicting the user's oldest
// connection at the per-user cap), starts the reaper lazily, and greets the
// client with a connection.established envelope.
//
// The caller owns running ReadLoop for the returned connection.
func (m *Manager) Connect(transport Transport, p Principal) (*Conn, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	now := m.clock.Now()
	if !p.IsActive {
		metrics.ConnectsRejectedTotal.WithLabelValues("inactive").Inc()
		return nil, ErrPrincipalInactive
	}
	if !p.ExpiresAt.IsZero() && !p.ExpiresAt.After(now) {
		metrics.ConnectsRejectedTotal.WithLabelValues("expired").Inc()
		return nil, ErrPrincipalExpired
	}

	conn := newConn(uuid.NewString(), p.UserID, transport, now)
	evicted, err := m.registry.Add(conn)
	if evicted != nil {
		m.closeTransport(evicted, ClosePolicyViolation, "replaced by newer connection")
		metrics.ActiveConnections.Dec()
		metrics.DisconnectsTotal.WithLabelValues("evicted").Inc()
		slog.Info("evicted oldest connection at per-user cap",
			"connection_id", evicted.id, "user_id", evicted.userID)
	}
	if err != nil {
		metrics.ConnectsRejectedTotal.WithLabelValues("capacity").Inc()
		return nil, err
	}

	// First real traffic is what spawns background work.
	m.reaper.Start()

	metrics.ActiveConnections.Inc()
	metrics.ConnectsTotal.Inc()
	slog.Info("connection established", "connection_id", conn.id, "user_id", conn.userID)

	greeting := establishedData{
		ConnectionID: conn.id,
		Features:     CategoryNames(),
	}
	greeting.Limits.MaxConnectionsPerUser = m.limits.MaxConnectionsPerUser
	greeting.Limits.RateLimitMaxCalls = m.limits.RateLimitMaxCalls
	greeting.Limits.RateLimitWindowSecs = int(m.limits.RateLimitWindow.Seconds())
	greeting.Limits.MaxMessageSize = m.limits.MaxMessageSize
	greeting.Limits.HeartbeatTimeoutSecs = int(m.limits.HeartbeatTimeout.Seconds())
	m.broadcaster.SendToConnection(conn.id, Outbound{Type: TypeConnectionEstablished, Data: greeting})

	return conn, nil
}

// ReadLoop pumps inbound frames until the transport fails or the connection
// is closed, then disconnects. Runs on the caller's goroutine, one per
// connection.
func (m *Manager) ReadLoop(conn *Conn) {
	for {
		raw, err := conn.transport.ReadMessage()
		if err != nil {
			m.Disconnect(conn.id, "read_error")
			return
		}
		m.HandleInboundMessage(conn.id, raw)
	}
}

// HandleInboundMessage validates one raw frame and routes it. Validation
// failures are reported to the client on the still-open connection.
func (m *Manager) HandleInboundMessage(connID string, raw []byte) {
	env, err := m.validator.Parse(raw)
	if err != nil {
		m.reportValidationError(connID, err)
		return
	}
	m.router.Dispatch(connID, env)
}

func (m *Manager) reportValidationError(connID string, err error) {
	conn, found := m.registry.Get(connID)
	if !found {
		return
	}

	code := CodeInvalidMessageFormat
	if errors.Is(err, ErrMessageTooLarge) {
		code = CodeMessageTooLarge
	}
	metrics.ProtocolErrorsTotal.WithLabelValues(code).Inc()
	slog.Debug("rejecting malformed frame",
		"connection_id", connID, "code", code, "error", err)
	m.broadcaster.SendToConnection(connID, ErrorEnvelope(code, err.Error()))
	m.router.recordError(conn)
}

// Disconnect removes the connection from the registry and closes its
// transport. Disconnecting an absent or already-closed id is a no-op.
func (m *Manager) Disconnect(id, reason string) {
	conn, found := m.registry.Remove(id)
	if !found {
		return
	}

	m.closeTransport(conn, closeCodeFor(reason), reason)
	metrics.ActiveConnections.Dec()
	metrics.DisconnectsTotal.WithLabelValues(reason).Inc()
	slog.Info("connection closed",
		"connection_id", conn.id, "user_id", conn.userID, "reason", reason)
}

func closeCodeFor(reason string) int {
	switch reason {
	case "timeout", "error_threshold":
		return ClosePolicyViolation
	case "shutdown":
		return CloseGoingAway
	default:
		return CloseNormal
	}
}

// closeTransport sends a best-effort close frame, then closes. The record is
// already out of the registry at this point, so nothing can send to it again.
func (m *Manager) closeTransport(conn *Conn, code int, reason string) {
	_ = conn.transport.WriteClose(code, reason)
	_ = conn.transport.Close()
}

// SendToUser delivers an event to every connection of a user.
func (m *Manager) SendToUser(userID string, out Outbound) int {
	return m.broadcaster.SendToUser(userID, out)
}

// BroadcastAll delivers an event to every live connection.
func (m *Manager) BroadcastAll(out Outbound) int {
	return m.broadcaster.BroadcastAll(out)
}

// BroadcastToSubscribers delivers an event to every subscriber of a
// category.
func (m *Manager) BroadcastToSubscribers(category string, out Outbound) int {
	return m.broadcaster.BroadcastToSubscribers(category, out)
}

// Stats returns aggregate connection counts.
func (m *Manager) Stats() Stats {
	return m.registry.Stats()
}

// ConnInfo returns a snapshot of one connection for the admin surface.
func (m *Manager) ConnInfo(id string) (ConnInfo, bool) {
	conn, found := m.registry.Get(id)
	if !found {
		return ConnInfo{}, false
	}
	return conn.Info(), true
}

// Accepting reports whether the manager still accepts connections; the
// readiness probe uses it.
func (m *Manager) Accepting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Shutdown refuses further connects, stops the reaper, and closes every
// connection with a going-away frame. Idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.reaper.Stop()

	conns := m.registry.Shutdown()
	for _, conn := range conns {
		m.closeTransport(conn, CloseGoingAway, "server shutting down")
		metrics.ActiveConnections.Dec()
		metrics.DisconnectsTotal.WithLabelValues("shutdown").Inc()
	}
	slog.Info("connection manager shut down", "closed_connections", len(conns))
}
