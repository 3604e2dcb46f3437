package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/config"
	"github.com/filip-herceg/ReViewPoint-sub000/internal/realtime"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	manager   *realtime.Manager
	auth      realtime.Authenticator
	admission *admissionLimiter
	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, manager *realtime.Manager, auth realtime.Authenticator, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		config:    cfg,
		manager:   manager,
		auth:      auth,
		admission: newAdmissionLimiter(cfg.AdmissionRate, cfg.AdmissionBurst, clock),
		clock:     clock,
		startTime: clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("server starting", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
