package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/realtime"
)

// requireAdminToken guards the admin API with a constant-time bearer token
// check. With no token configured the API is disabled outright.
func (s *Server) requireAdminToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.AdminToken == "" {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "admin api disabled"})
		}

		auth := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin token"})
		}
		return next(c)
	}
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.Stats())
}

func (s *Server) handleConnectionInfo(c echo.Context) error {
	info, found := s.manager.ConnInfo(c.Param("id"))
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "connection not found"})
	}
	return c.JSON(http.StatusOK, info)
}

// forceBroadcastRequest selects delivery scope: "all", "user" (requires
// user_id), or "category" (requires category).
type forceBroadcastRequest struct {
	Scope    string         `json:"scope"`
	UserID   string         `json:"user_id,omitempty"`
	Category string         `json:"category,omitempty"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
}

func (s *Server) handleForceBroadcast(c echo.Context) error {
	var req forceBroadcastRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type is required"})
	}

	out := realtime.Outbound{Type: req.Type, Data: req.Data}

	var delivered int
	switch req.Scope {
	case "all":
		delivered = s.manager.BroadcastAll(out)
	case "user":
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required for scope=user"})
		}
		delivered = s.manager.SendToUser(req.UserID, out)
	case "category":
		if !realtime.ValidCategory(req.Category) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown event category"})
		}
		delivered = s.manager.BroadcastToSubscribers(req.Category, out)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "scope must be all, user, or category"})
	}

	return c.JSON(http.StatusOK, map[string]int{"delivered": delivered})
}
