// Package metrics defines the Prometheus metrics for the notification
// channel, exposed on /metrics by the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection lifecycle metrics
var (
	// ActiveConnections tracks currently open WebSocket connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifyhub_active_connections",
			Help: "Number of currently open WebSocket connections",
		},
	)

	// ConnectsTotal tracks accepted connections
	ConnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyhub_connects_total",
			Help: "Total accepted WebSocket connections",
		},
	)

	// ConnectsRejectedTotal tracks refused connection attempts by reason
	ConnectsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyhub_connects_rejected_total",
			Help: "Total refused connection attempts by reason",
		},
		[]string{"reason"},
	)

	// DisconnectsTotal tracks closed connections by reason
	DisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyhub_disconnects_total",
			Help: "Total closed WebSocket connections by reason",
		},
		[]string{"reason"},
	)
)

// Message flow metrics
var (
	// MessagesReceivedTotal tracks inbound client messages by type
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyhub_messages_received_total",
			Help: "Total inbound client messages by message type",
		},
		[]string{"type"},
	)

	// MessagesDeliveredTotal tracks successful outbound deliveries
	MessagesDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyhub_messages_delivered_total",
			Help: "Total outbound messages delivered to clients",
		},
	)

	// DeliveryFailuresTotal tracks outbound sends that failed at the transport
	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyhub_delivery_failures_total",
			Help: "Total outbound sends that failed at the transport",
		},
	)

	// RateLimitRejectionsTotal tracks inbound messages dropped by rate limiting
	RateLimitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyhub_rate_limit_rejections_total",
			Help: "Total inbound messages dropped by the per-user rate limiter",
		},
	)

	// ProtocolErrorsTotal tracks malformed or unknown inbound messages by code
	ProtocolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyhub_protocol_errors_total",
			Help: "Total protocol errors reported to clients by error code",
		},
		[]string{"code"},
	)
)

// Background work metrics
var (
	// ReaperEvictionsTotal tracks connections evicted for heartbeat expiry
	ReaperEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyhub_reaper_evictions_total",
			Help: "Total connections evicted by the stale-connection reaper",
		},
	)

	// ReaperSweepsTotal tracks completed reaper sweeps
	ReaperSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyhub_reaper_sweeps_total",
			Help: "Total completed stale-connection sweeps",
		},
	)
)
