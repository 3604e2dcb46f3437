package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// WebSocket upgrade (authentication happens in the handler; admission
	// limits apply before the upgrade)
	s.echo.GET("/ws", s.handleWebSocket)

	// Admin API: bearer token + request rate limiting. The privilege check
	// lives here, at the caller's boundary, not in the manager.
	api := s.echo.Group("/api", s.requireAdminToken, newAPIRateLimiter(10, 20))
	api.GET("/stats", s.handleStats)
	api.GET("/connections/:id", s.handleConnectionInfo)
	api.POST("/broadcast", s.handleForceBroadcast)
}
