// Package server implements the HTTP surface using the Echo framework.
//
// Routes: /ws (WebSocket upgrade), /api (admin: stats, connection info,
// forced broadcast), /health (probes), /metrics (Prometheus). Handlers are
// split by concern: handlers_ws.go, handlers_admin.go, handlers_health.go.
package server
