package realtime

import (
	"net/http"
	"sync"
	"time"
)

// Transport is the bidirectional byte stream underlying a connection. The
// owning connection record holds the only reference; it is closed exactly
// once, by whichever code path first decides the connection is done.
//
// Implementations apply read/write deadlines per call and must tolerate
// Close being called concurrently with a blocked ReadMessage.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	WriteClose(code int, reason string) error
	Close() error
}

// WebSocket close codes used when terminating connections. Mirrored here so
// the core does not depend on a specific websocket library.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseTryAgainLater   = 1013
)

// Principal is the already-verified identity handed over by the
// authentication collaborator. The manager re-checks IsActive and ExpiresAt
// at connect time; it never decodes tokens itself.
type Principal struct {
	UserID    string
	IsActive  bool
	ExpiresAt time.Time
}

// Authenticator resolves an upgrade request to a verified principal.
// Implementations live at the HTTP boundary.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// CancelRelay forwards upload cancellation intents to the upload pipeline.
// The router validates and relays; cancellation semantics belong to the
// pipeline.
type CancelRelay interface {
	CancelUpload(uploadID, userID string) error
}

// Conn is the per-connection record: identity, transport handle,
// subscriptions, and activity counters. id and userID are immutable;
// everything else is guarded by mu because broadcasts touch records from
// goroutines other than the owning read loop.
type Conn struct {
	id        string
	userID    string
	transport Transport

	mu            sync.Mutex
	subscriptions map[string]struct{}
	connectedAt   time.Time
	lastActivity  time.Time
	lastHeartbeat time.Time
	messageCount  uint64
	errorCount    uint64
}

func newConn(id, userID string, transport Transport, now time.Time) *Conn {
	return &Conn{
		id:            id,
		userID:        userID,
		transport:     transport,
		subscriptions: make(map[string]struct{}),
		connectedAt:   now,
		lastActivity:  now,
		lastHeartbeat: now,
	}
}

// ID returns the connection id assigned at accept time.
func (c *Conn) ID() string { return c.id }

// UserID returns the owning principal's identity.
func (c *Conn) UserID() string { return c.userID }

// ConnectedAt returns the accept timestamp.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// touch records activity on a successful send or receive.
func (c *Conn) touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

// touchHeartbeat records a ping/heartbeat receipt.
func (c *Conn) touchHeartbeat(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.lastHeartbeat = now
	c.mu.Unlock()
}

// LastHeartbeat returns the most recent ping/heartbeat receipt time.
func (c *Conn) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

func (c *Conn) incrMessageCount() {
	c.mu.Lock()
	c.messageCount++
	c.mu.Unlock()
}

// incrErrorCount bumps the error counter and returns the new value so the
// router can enforce its disconnect threshold.
func (c *Conn) incrErrorCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
	return c.errorCount
}

// subscribe adds valid categories to the subscription set and partitions the
// requested names into accepted and rejected. Rejected names are never
// silently dropped; the router reports them back to the caller.
func (c *Conn) subscribe(events []string) (valid, invalid []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range events {
		if ValidCategory(name) {
			c.subscriptions[name] = struct{}{}
			valid = append(valid, name)
		} else {
			invalid = append(invalid, name)
		}
	}
	return valid, invalid
}

// unsubscribe removes categories from the subscription set. Removing an
// absent entry is a no-op.
func (c *Conn) unsubscribe(events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range events {
		delete(c.subscriptions, name)
	}
}

// subscribedTo reports whether the connection wants the given category.
func (c *Conn) subscribedTo(category string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[category]
	return ok
}

// ConnInfo is a point-in-time copy of a record's observable state, used by
// the admin surface and the reaper so nothing iterates live state.
type ConnInfo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastActivity  time.Time `json:"last_activity"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	MessageCount  uint64    `json:"message_count"`
	ErrorCount    uint64    `json:"error_count"`
	Subscriptions []string  `json:"subscriptions"`
}

// Info snapshots the record.
func (c *Conn) Info() ConnInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := make([]string, 0, len(c.subscriptions))
	for name := range c.subscriptions {
		subs = append(subs, name)
	}
	return ConnInfo{
		ID:            c.id,
		UserID:        c.userID,
		ConnectedAt:   c.connectedAt,
		LastActivity:  c.lastActivity,
		LastHeartbeat: c.lastHeartbeat,
		MessageCount:  c.messageCount,
		ErrorCount:    c.errorCount,
		Subscriptions: subs,
	}
}
