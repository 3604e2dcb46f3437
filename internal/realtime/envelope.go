package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Client → server message types.
const (
	TypePing         = "ping"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeHeartbeat    = "heartbeat"
	TypeUploadCancel = "upload.cancel"
)

// Server → client message types.
const (
	TypeConnectionEstablished = "connection.established"
	TypePong                  = "pong"
	TypeSubscriptionAck       = "subscription.acknowledged"
	TypeError                 = "error"
)

// Error codes carried in data.code on type=error envelopes.
const (
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeInvalidMessageType      = "INVALID_MESSAGE_TYPE"
	CodeInvalidMessageFormat    = "INVALID_MESSAGE_FORMAT"
	CodeMessageTooLarge         = "MESSAGE_TOO_LARGE"
	CodeConnectionLimitExceeded = "CONNECTION_LIMIT_EXCEEDED"
)

// EventCategories is the static catalogue of subscribable event categories.
// Subscribe requests are filtered against this set; unknown names are
// rejected but reported back to the caller.
var EventCategories = map[string]struct{}{
	"upload.progress":     {},
	"upload.completed":    {},
	"upload.error":        {},
	"upload.cancelled":    {},
	"review.updated":      {},
	"review.created":      {},
	"review.deleted":      {},
	"system.notification": {},
	"system.maintenance":  {},
	"user.status_changed": {},
	"file.processing":     {},
	"file.ready":          {},
}

// ValidCategory reports whether name is a known event category.
func ValidCategory(name string) bool {
	_, ok := EventCategories[name]
	return ok
}

// CategoryNames returns the catalogue as a slice, for the
// connection.established feature list.
func CategoryNames() []string {
	names := make([]string, 0, len(EventCategories))
	for name := range EventCategories {
		names = append(names, name)
	}
	return names
}

// Envelope is the inbound wire format. Data stays raw; the router decodes it
// per message type so that a malformed envelope and a malformed payload are
// distinguishable to the client.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	ID        string          `json:"id,omitempty"`
}

// Outbound is the server → client wire format. Timestamp and ID are stamped
// at send time if unset.
type Outbound struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
}

func (o *Outbound) stamp(now time.Time) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Timestamp == "" {
		o.Timestamp = now.UTC().Format(time.RFC3339)
	}
}

// errorData is the payload of type=error envelopes.
type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	ResetAt string `json:"reset_at,omitempty"`
}

// ErrorEnvelope builds an error envelope with the given code.
func ErrorEnvelope(code, message string) Outbound {
	return Outbound{Type: TypeError, Data: errorData{Code: code, Message: message}}
}
