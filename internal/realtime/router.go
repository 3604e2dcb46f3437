package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/metrics"
)

// knownTypes is the fixed set of client-originated message types.
var knownTypes = map[string]struct{}{
	TypePing:         {},
	TypeSubscribe:    {},
	TypeUnsubscribe:  {},
	TypeHeartbeat:    {},
	TypeUploadCancel: {},
}

// Router dispatches validated inbound envelopes to the type-specific
// handlers. A handler failure is reported to the one offending client and
// counted on its record; it never crashes the read loop or touches other
// connections.
type Router struct {
	registry *Registry
	limiter  *RateLimiter
	sender   *Broadcaster
	relay    CancelRelay
	clock    clockwork.Clock

	// errorThreshold is the operational knob from the error-handling
	// design: a connection whose errorCount crosses it is disconnected.
	// Zero disables the check.
	errorThreshold uint64
	disconnect     func(id, reason string)
}

// NewRouter creates a router. disconnect is invoked when a connection's
// error count crosses the threshold; relay may be nil when no upload
// pipeline is attached.
func NewRouter(registry *Registry, limiter *RateLimiter, sender *Broadcaster, relay CancelRelay, clock clockwork.Clock, errorThreshold uint64, disconnect func(id, reason string)) *Router {
	return &Router{
		registry:       registry,
		limiter:        limiter,
		sender:         sender,
		relay:          relay,
		clock:          clock,
		errorThreshold: errorThreshold,
		disconnect:     disconnect,
	}
}

// Dispatch routes one validated envelope for the given connection.
func (rt *Router) Dispatch(connID string, env Envelope) {
	conn, found := rt.registry.Get(connID)
	if !found {
		// Raced a concurrent disconnect; the message dies with the
		// connection.
		slog.Debug("dropping message for unknown connection", "connection_id", connID, "type", env.Type)
		return
	}

	if !rt.limiter.IsAllowed(conn.userID) {
		metrics.RateLimitRejectionsTotal.Inc()
		errOut := ErrorEnvelope(CodeRateLimitExceeded, "message rate limit exceeded")
		if reset, ok := rt.limiter.ResetTimeUntil(conn.userID); ok {
			data := errOut.Data.(errorData)
			data.ResetAt = reset.UTC().Format(time.RFC3339)
			errOut.Data = data
		}
		rt.sender.SendToConnection(connID, errOut)
		return
	}

	conn.touch(rt.clock.Now())
	conn.incrMessageCount()
	metrics.MessagesReceivedTotal.WithLabelValues(env.Type).Inc()

	if _, ok := knownTypes[env.Type]; !ok {
		rt.clientError(conn, CodeInvalidMessageType, "unknown message type: "+env.Type)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("message handler panicked",
				"connection_id", conn.id, "type", env.Type, "panic", r)
			rt.recordError(conn)
		}
	}()

	switch env.Type {
	case TypePing:
		rt.handlePing(conn, env)
	case TypeHeartbeat:
		conn.touchHeartbeat(rt.clock.Now())
	case TypeSubscribe:
		rt.handleSubscribe(conn, env)
	case TypeUnsubscribe:
		rt.handleUnsubscribe(conn, env)
	case TypeUploadCancel:
		rt.handleUploadCancel(conn, env)
	}
}

func (rt *Router) handlePing(conn *Conn, env Envelope) {
	conn.touchHeartbeat(rt.clock.Now())

	data := map[string]string{}
	if env.ID != "" {
		data["correlation_id"] = env.ID
	}
	rt.sender.SendToConnection(conn.id, Outbound{Type: TypePong, Data: data})
}

type subscribeRequest struct {
	Events []string `json:"events"`
}

type subscriptionAck struct {
	ValidEvents   []string `json:"valid_events"`
	InvalidEvents []string `json:"invalid_events"`
}

func (rt *Router) handleSubscribe(conn *Conn, env Envelope) {
	var req subscribeRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		rt.clientError(conn, CodeInvalidMessageFormat, "subscribe data must contain an events list")
		return
	}

	valid, invalid := conn.subscribe(req.Events)
	if valid == nil {
		valid = []string{}
	}
	if invalid == nil {
		invalid = []string{}
	}
	ack := subscriptionAck{
		ValidEvents:   valid,
		InvalidEvents: invalid,
	}
	if len(invalid) > 0 {
		slog.Debug("rejected unknown event categories",
			"connection_id", conn.id, "invalid_events", invalid)
	}
	rt.sender.SendToConnection(conn.id, Outbound{Type: TypeSubscriptionAck, Data: ack})
}

func (rt *Router) handleUnsubscribe(conn *Conn, env Envelope) {
	var req subscribeRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		rt.clientError(conn, CodeInvalidMessageFormat, "unsubscribe data must contain an events list")
		return
	}
	conn.unsubscribe(req.Events)
}

type uploadCancelRequest struct {
	UploadID string `json:"upload_id"`
}

func (rt *Router) handleUploadCancel(conn *Conn, env Envelope) {
	var req uploadCancelRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || req.UploadID == "" {
		slog.Warn("dropping upload.cancel without upload_id",
			"connection_id", conn.id, "user_id", conn.userID)
		return
	}

	if rt.relay == nil {
		slog.Warn("no upload pipeline attached, dropping cancellation",
			"upload_id", req.UploadID, "user_id", conn.userID)
		return
	}

	// Best-effort relay; cancellation semantics belong to the pipeline.
	if err := rt.relay.CancelUpload(req.UploadID, conn.userID); err != nil {
		slog.Warn("upload cancellation relay failed",
			"upload_id", req.UploadID, "user_id", conn.userID, "error", err)
	}
}

// clientError reports a protocol error to the offending client and counts it
// on the record.
func (rt *Router) clientError(conn *Conn, code, message string) {
	metrics.ProtocolErrorsTotal.WithLabelValues(code).Inc()
	rt.sender.SendToConnection(conn.id, ErrorEnvelope(code, message))
	rt.recordError(conn)
}

// recordError bumps the record's error counter and disconnects the
// connection once it crosses the threshold.
func (rt *Router) recordError(conn *Conn) {
	count := conn.incrErrorCount()
	if rt.errorThreshold > 0 && count >= rt.errorThreshold && rt.disconnect != nil {
		slog.Warn("disconnecting connection over error threshold",
			"connection_id", conn.id, "user_id", conn.userID, "error_count", count)
		rt.disconnect(conn.id, "error_threshold")
	}
}
