// Package config loads the server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string

	// AdminToken guards the administrative API. Empty disables it.
	AdminToken string

	// AllowedOrigins is the extra Origin allow-list for the WebSocket
	// upgrade; same-host is always allowed, localhost in development.
	AllowedOrigins []string

	// Connection manager limits.
	MaxConnections        int
	MaxConnectionsPerUser int
	RateLimitMaxCalls     int
	RateLimitWindow       time.Duration
	MaxMessageSize        int
	HeartbeatTimeout      time.Duration
	ReaperInterval        time.Duration
	ErrorThreshold        int

	// Transport deadlines.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Per-IP admission control on the upgrade endpoint.
	AdmissionRate  float64
	AdmissionBurst int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
		AdminToken:            getEnv("ADMIN_TOKEN", ""),
		AllowedOrigins:        splitList(getEnv("ALLOWED_ORIGINS", "")),
		MaxConnections:        1000,
		MaxConnectionsPerUser: 3,
		RateLimitMaxCalls:     100,
		RateLimitWindow:       60 * time.Second,
		MaxMessageSize:        64 * 1024,
		HeartbeatTimeout:      60 * time.Second,
		ReaperInterval:        30 * time.Second,
		ErrorThreshold:        25,
		ReadTimeout:           60 * time.Second,
		WriteTimeout:          5 * time.Second,
		AdmissionRate:         5,
		AdmissionBurst:        10,
	}

	var err error
	if cfg.MaxConnections, err = getEnvInt("WS_MAX_CONNECTIONS", cfg.MaxConnections); err != nil {
		return nil, err
	}
	if cfg.MaxConnectionsPerUser, err = getEnvInt("WS_MAX_CONNECTIONS_PER_USER", cfg.MaxConnectionsPerUser); err != nil {
		return nil, err
	}
	if cfg.RateLimitMaxCalls, err = getEnvInt("WS_RATE_LIMIT_MAX_CALLS", cfg.RateLimitMaxCalls); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getEnvDuration("WS_RATE_LIMIT_WINDOW", cfg.RateLimitWindow); err != nil {
		return nil, err
	}
	if cfg.MaxMessageSize, err = getEnvInt("WS_MAX_MESSAGE_SIZE", cfg.MaxMessageSize); err != nil {
		return nil, err
	}
	if cfg.HeartbeatTimeout, err = getEnvDuration("WS_HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout); err != nil {
		return nil, err
	}
	if cfg.ReaperInterval, err = getEnvDuration("WS_REAPER_INTERVAL", cfg.ReaperInterval); err != nil {
		return nil, err
	}
	if cfg.ErrorThreshold, err = getEnvInt("WS_ERROR_THRESHOLD", cfg.ErrorThreshold); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout, err = getEnvDuration("WS_READ_TIMEOUT", cfg.ReadTimeout); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getEnvDuration("WS_WRITE_TIMEOUT", cfg.WriteTimeout); err != nil {
		return nil, err
	}
	if cfg.AdmissionBurst, err = getEnvInt("WS_ADMISSION_BURST", cfg.AdmissionBurst); err != nil {
		return nil, err
	}
	if rate := getEnv("WS_ADMISSION_RATE", ""); rate != "" {
		cfg.AdmissionRate, err = strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, fmt.Errorf("WS_ADMISSION_RATE must be a number: %w", err)
		}
	}

	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("WS_MAX_CONNECTIONS must be positive")
	}
	if cfg.MaxConnectionsPerUser <= 0 {
		return nil, fmt.Errorf("WS_MAX_CONNECTIONS_PER_USER must be positive")
	}
	if cfg.MaxConnectionsPerUser > cfg.MaxConnections {
		return nil, fmt.Errorf("WS_MAX_CONNECTIONS_PER_USER cannot exceed WS_MAX_CONNECTIONS")
	}
	if cfg.MaxMessageSize <= 0 {
		return nil, fmt.Errorf("WS_MAX_MESSAGE_SIZE must be positive")
	}
	if cfg.AppEnv == "production" && cfg.AdminToken == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN is required in production")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
