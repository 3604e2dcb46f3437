package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1000, cfg.MaxConnections)
	assert.Equal(t, 3, cfg.MaxConnectionsPerUser)
	assert.Equal(t, 100, cfg.RateLimitMaxCalls)
	assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 64*1024, cfg.MaxMessageSize)
	assert.Equal(t, 60*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReaperInterval)
	assert.Equal(t, 25, cfg.ErrorThreshold)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WS_MAX_CONNECTIONS", "50")
	t.Setenv("WS_MAX_CONNECTIONS_PER_USER", "2")
	t.Setenv("WS_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.MaxConnections)
	assert.Equal(t, 2, cfg.MaxConnectionsPerUser)
	assert.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, []string{"https://app.example.com", "https://staging.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric cap", "WS_MAX_CONNECTIONS", "many"},
		{"zero cap", "WS_MAX_CONNECTIONS", "0"},
		{"malformed duration", "WS_HEARTBEAT_TIMEOUT", "soon"},
		{"non-numeric admission rate", "WS_ADMISSION_RATE", "fast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_PerUserCapCannotExceedGlobal(t *testing.T) {
	t.Setenv("WS_MAX_CONNECTIONS", "2")
	t.Setenv("WS_MAX_CONNECTIONS_PER_USER", "5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProductionRequiresAdminToken(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "ADMIN_TOKEN")

	t.Setenv("ADMIN_TOKEN", "super-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "super-secret", cfg.AdminToken)
}
