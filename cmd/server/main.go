package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/filip-herceg/ReViewPoint-sub000/internal/config"
	"github.com/filip-herceg/ReViewPoint-sub000/internal/logging"
	"github.com/filip-herceg/ReViewPoint-sub000/internal/realtime"
	"github.com/filip-herceg/ReViewPoint-sub000/internal/server"
	"github.com/filip-herceg/ReViewPoint-sub000/internal/version"
)

// logRelay stands in for the upload pipeline until one is attached; it
// records cancellation intents so they are visible in operation.
type logRelay struct{}

func (logRelay) CancelUpload(uploadID, userID string) error {
	slog.Info("upload cancellation requested", "upload_id", uploadID, "user_id", userID)
	return nil
}

func setupConfig() *config.Config {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(srv *server.Server, manager *realtime.Manager) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, cleaning up")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		manager.Shutdown()
		close(done)
	}()

	return done
}

func main() {
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	slog.Info("application starting",
		"env", cfg.AppEnv, "port", cfg.Port,
		"version", build.Version, "commit", build.Commit)

	clock := clockwork.NewRealClock()

	limits := realtime.Limits{
		MaxConnections:        cfg.MaxConnections,
		MaxConnectionsPerUser: cfg.MaxConnectionsPerUser,
		RateLimitMaxCalls:     cfg.RateLimitMaxCalls,
		RateLimitWindow:       cfg.RateLimitWindow,
		MaxMessageSize:        cfg.MaxMessageSize,
		HeartbeatTimeout:      cfg.HeartbeatTimeout,
		ReaperInterval:        cfg.ReaperInterval,
		ErrorThreshold:        uint64(cfg.ErrorThreshold),
	}
	manager := realtime.NewManager(limits, logRelay{}, clock)

	srv := server.NewServer(cfg, manager, server.GatewayAuthenticator{}, clock)
	done := runGracefulShutdown(srv, manager)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done
}
