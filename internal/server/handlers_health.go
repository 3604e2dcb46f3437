package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Since(s.startTime).Seconds()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": uptime,
		"build":  version.Get(),
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	if !s.manager.Accepting() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "shutting down",
		})
	}

	stats := s.manager.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ready",
		"connections": stats.TotalConnections,
	})
}
