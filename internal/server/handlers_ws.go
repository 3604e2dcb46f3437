package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/metrics"
	"github.com/filip-herceg/ReViewPoint-sub000/internal/realtime"
)

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newCheckOrigin(s.config.AllowedOrigins, s.config.AppEnv == "development"),
	}
}

// handleWebSocket admits, authenticates, upgrades, and hands the connection
// to the manager. The handler goroutine becomes the connection's read loop.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if !s.admission.allow(ip) {
		metrics.ConnectsRejectedTotal.WithLabelValues("admission").Inc()
		return c.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "too many connection attempts",
		})
	}

	principal, err := s.auth.Authenticate(c.Request())
	if err != nil {
		metrics.ConnectsRejectedTotal.WithLabelValues("unauthenticated").Inc()
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}

	upgrader := s.upgrader()
	wsConn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Debug("websocket upgrade failed", "remote_addr", ip, "error", err)
		return nil
	}

	transport := newWSTransport(wsConn, s.clock, s.config.ReadTimeout, s.config.WriteTimeout)

	conn, err := s.manager.Connect(transport, principal)
	if err != nil {
		s.refuseUpgraded(transport, err)
		return nil
	}

	s.manager.ReadLoop(conn)
	return nil
}

// refuseUpgraded closes an already-upgraded connection with the policy code
// matching the connect failure.
func (s *Server) refuseUpgraded(transport realtime.Transport, err error) {
	code := realtime.ClosePolicyViolation
	reason := "connection refused"

	switch {
	case errors.Is(err, realtime.ErrCapacityExceeded):
		code = realtime.CloseTryAgainLater
		reason = realtime.CodeConnectionLimitExceeded
	case errors.Is(err, realtime.ErrPrincipalInactive):
		reason = "account is not active"
	case errors.Is(err, realtime.ErrPrincipalExpired):
		reason = "credentials expired"
	case errors.Is(err, realtime.ErrShuttingDown):
		code = realtime.CloseGoingAway
		reason = "server shutting down"
	}

	slog.Info("refusing websocket connection", "reason", reason, "error", err)
	_ = transport.WriteClose(code, reason)
	_ = transport.Close()
}
