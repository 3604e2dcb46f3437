package realtime

import (
	"encoding/json"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/metrics"
)

// Broadcaster fans server-originated events out to one connection, all
// connections of a user, every connection, or every subscriber of an event
// category. Recipients are resolved via registry snapshots, so transport
// writes never run under the registry lock, and a failure to one recipient
// never blocks or fails delivery to the rest.
type Broadcaster struct {
	registry *Registry
	clock    clockwork.Clock
	maxSize  int

	// onDead is invoked when a write fails and the connection should be
	// torn down. Wired to Manager.Disconnect.
	onDead func(id, reason string)
}

// NewBroadcaster creates a broadcaster over the given registry. Outbound
// envelopes are held to the same size cap as inbound frames.
func NewBroadcaster(registry *Registry, clock clockwork.Clock, maxSize int, onDead func(id, reason string)) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		clock:    clock,
		maxSize:  maxSize,
		onDead:   onDead,
	}
}

// marshal stamps and serializes an envelope, refusing payloads over the
// size cap.
func (b *Broadcaster) marshal(out Outbound) ([]byte, bool) {
	out.stamp(b.clock.Now())
	data, err := json.Marshal(out)
	if err != nil {
		slog.Error("failed to marshal outbound envelope", "type", out.Type, "error", err)
		return nil, false
	}
	if len(data) > b.maxSize {
		slog.Warn("refusing oversized outbound envelope", "type", out.Type, "size", len(data), "max", b.maxSize)
		return nil, false
	}
	return data, true
}

// sendRaw writes a serialized envelope to one record. A write failure marks
// the connection dead: it is removed from the registry and its transport
// closed via onDead.
func (b *Broadcaster) sendRaw(conn *Conn, data []byte) bool {
	if err := conn.transport.WriteMessage(data); err != nil {
		slog.Warn("write failed, dropping connection",
			"connection_id", conn.id, "user_id", conn.userID, "error", err)
		metrics.DeliveryFailuresTotal.Inc()
		if b.onDead != nil {
			b.onDead(conn.id, "write_failure")
		}
		return false
	}
	conn.touch(b.clock.Now())
	metrics.MessagesDeliveredTotal.Inc()
	return true
}

// SendToConnection delivers an envelope to a single connection. Sends to a
// removed id are a no-op, not an error.
func (b *Broadcaster) SendToConnection(id string, out Outbound) bool {
	data, ok := b.marshal(out)
	if !ok {
		return false
	}
	conn, found := b.registry.Get(id)
	if !found {
		return false
	}
	return b.sendRaw(conn, data)
}

// SendToUser delivers an envelope to every connection of a user and returns
// the number of successful deliveries.
func (b *Broadcaster) SendToUser(userID string, out Outbound) int {
	data, ok := b.marshal(out)
	if !ok {
		return 0
	}

	count := 0
	for _, id := range b.registry.GetByUser(userID) {
		conn, found := b.registry.Get(id)
		if !found {
			continue
		}
		if b.sendRaw(conn, data) {
			count++
		}
	}
	return count
}

// BroadcastAll delivers an envelope to every live connection and returns the
// number of successful deliveries.
func (b *Broadcaster) BroadcastAll(out Outbound) int {
	data, ok := b.marshal(out)
	if !ok {
		return 0
	}

	count := 0
	for _, conn := range b.registry.Snapshot() {
		if b.sendRaw(conn, data) {
			count++
		}
	}
	return count
}

// BroadcastToSubscribers delivers an envelope to every connection subscribed
// to the given event category and returns the number of successful
// deliveries.
func (b *Broadcaster) BroadcastToSubscribers(category string, out Outbound) int {
	data, ok := b.marshal(out)
	if !ok {
		return 0
	}

	count := 0
	for _, conn := range b.registry.Snapshot() {
		if !conn.subscribedTo(category) {
			continue
		}
		if b.sendRaw(conn, data) {
			count++
		}
	}
	return count
}
