package realtime

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry owns the set of live connection records, indexed by connection id
// and by user id. Both indexes are mutated under a single mutex so they can
// never disagree; reads for broadcast and reaping take snapshot copies so no
// network I/O ever runs while the lock is held.
type Registry struct {
	mu         sync.Mutex
	byID       map[string]*Conn
	byUser     map[string]map[string]*Conn
	maxTotal   int
	maxPerUser int
}

// NewRegistry creates a registry enforcing the given caps.
func NewRegistry(maxTotal, maxPerUser int) *Registry {
	return &Registry{
		byID:       make(map[string]*Conn),
		byUser:     make(map[string]map[string]*Conn),
		maxTotal:   maxTotal,
		maxPerUser: maxPerUser,
	}
}

// Add inserts a new record. If the global cap is reached it fails with
// ErrCapacityExceeded. If the owning user is at the per-user cap, the oldest
// of that user's connections (by connect time) is evicted and returned so
// the caller can close its transport outside the lock. New activity wins
// over old idle sessions.
func (r *Registry) Add(conn *Conn) (evicted *Conn, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userConns := r.byUser[conn.userID]
	if len(userConns) >= r.maxPerUser {
		evicted = oldestOf(userConns)
		r.removeLocked(evicted)
	}

	if len(r.byID) >= r.maxTotal {
		// A per-user eviction above can only have freed a slot, so this is
		// the genuine global cap.
		return evicted, fmt.Errorf("%w: %d connections", ErrCapacityExceeded, len(r.byID))
	}

	r.byID[conn.id] = conn
	if r.byUser[conn.userID] == nil {
		r.byUser[conn.userID] = make(map[string]*Conn)
	}
	r.byUser[conn.userID][conn.id] = conn
	return evicted, nil
}

func oldestOf(conns map[string]*Conn) *Conn {
	var oldest *Conn
	for _, c := range conns {
		if oldest == nil || c.connectedAt.Before(oldest.connectedAt) {
			oldest = c
		}
	}
	return oldest
}

// removeLocked removes conn from both indexes. Caller holds the mutex.
func (r *Registry) removeLocked(conn *Conn) {
	delete(r.byID, conn.id)
	if userConns, ok := r.byUser[conn.userID]; ok {
		delete(userConns, conn.id)
		if len(userConns) == 0 {
			delete(r.byUser, conn.userID)
		}
	}
}

// Remove atomically removes the record with the given id from both indexes.
// Removing an absent id is a no-op, so double-disconnects never error.
func (r *Registry) Remove(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	r.removeLocked(conn)
	return conn, true
}

// Get returns the record for the given connection id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.byID[id]
	return conn, ok
}

// GetByUser returns a snapshot copy of the user's connection ids.
func (r *Registry) GetByUser(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	userConns := r.byUser[userID]
	ids := make([]string, 0, len(userConns))
	for id := range userConns {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns a point-in-time copy of all live records. Used by the
// broadcaster and the reaper so blocking I/O happens off-lock.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*Conn, 0, len(r.byID))
	for _, conn := range r.byID {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Stats is the aggregate view exposed on the admin surface.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	TotalUsers       int            `json:"total_users"`
	PerUser          map[string]int `json:"per_user"`
	AveragePerUser   float64        `json:"average_per_user"`
}

// Stats returns aggregate connection counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	perUser := make(map[string]int, len(r.byUser))
	for userID, conns := range r.byUser {
		perUser[userID] = len(conns)
	}

	s := Stats{
		TotalConnections: len(r.byID),
		TotalUsers:       len(r.byUser),
		PerUser:          perUser,
	}
	if s.TotalUsers > 0 {
		s.AveragePerUser = float64(s.TotalConnections) / float64(s.TotalUsers)
	}
	return s
}

// Shutdown empties the registry and returns the records that were live, for
// the manager to close during process shutdown.
func (r *Registry) Shutdown() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*Conn, 0, len(r.byID))
	for _, conn := range r.byID {
		conns = append(conns, conn)
	}
	r.byID = make(map[string]*Conn)
	r.byUser = make(map[string]map[string]*Conn)
	slog.Debug("registry cleared", "connections", len(conns))
	return conns
}
