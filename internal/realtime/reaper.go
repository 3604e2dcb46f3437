package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/metrics"
)

// Reaper is the background sweep that evicts connections whose heartbeat has
// expired. Start is idempotent so the manager can invoke it lazily on every
// accepted connection, and one failed sweep never kills future sweeps.
type Reaper struct {
	registry *Registry
	limiter  *RateLimiter
	clock    clockwork.Clock
	interval time.Duration
	timeout  time.Duration

	// disconnect closes the transport and removes the record; wired to
	// Manager.Disconnect.
	disconnect func(id, reason string)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReaper creates a reaper that evicts connections idle past timeout,
// sweeping every interval.
func NewReaper(registry *Registry, limiter *RateLimiter, clock clockwork.Clock, interval, timeout time.Duration, disconnect func(id, reason string)) *Reaper {
	return &Reaper{
		registry:   registry,
		limiter:    limiter,
		clock:      clock,
		interval:   interval,
		timeout:    timeout,
		disconnect: disconnect,
	}
}

// Start launches the sweep loop. Calling Start on a running reaper is a
// no-op, so shutdown ordering stays deterministic.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.run(r.stopCh, r.doneCh)
	slog.Info("stale connection reaper started", "interval", r.interval, "timeout", r.timeout)
}

// Stop terminates the sweep loop and waits for it to exit. Stopping a
// stopped reaper is a no-op.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	slog.Info("stale connection reaper stopped")
}

// Running reports whether the sweep loop is active.
func (r *Reaper) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reaper) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			r.sweep()
		}
	}
}

// sweep walks a registry snapshot and disconnects expired connections. A
// panic inside one sweep is caught and logged; the loop continues on the
// next tick.
func (r *Reaper) sweep() {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("reaper sweep panicked", "panic", rec)
		}
	}()

	now := r.clock.Now()
	for _, conn := range r.registry.Snapshot() {
		idle := now.Sub(conn.LastHeartbeat())
		if idle <= r.timeout {
			continue
		}
		slog.Info("reaping stale connection",
			"connection_id", conn.ID(), "user_id", conn.UserID(), "idle", idle)
		metrics.ReaperEvictionsTotal.Inc()
		r.disconnect(conn.ID(), "timeout")
	}

	r.limiter.Purge()
	metrics.ReaperSweepsTotal.Inc()
}
