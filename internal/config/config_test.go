package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Zero(t, cfg.RoomTTL)
	assert.Equal(t, 5*time.Minute, cfg.JanitorInterval)
	assert.Empty(t, cfg.Generation.APIKey)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 5, cfg.Generation.Burst)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STORE", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/2")
	t.Setenv("ROOM_TTL", "6h")
	t.Setenv("GENERATION_API_KEY", "sk-test")
	t.Setenv("GENERATION_BASE_URL", "http://llm.local/v1")
	t.Setenv("GENERATION_TIMEOUT", "5s")
	t.Setenv("GENERATION_RATE", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, 6*time.Hour, cfg.RoomTTL)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
	assert.Equal(t, "http://llm.local/v1", cfg.Generation.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Generation.Timeout)
	assert.InDelta(t, 2.0, cfg.Generation.Rate, 1e-9)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown store", "STORE", "postgres"},
		{"negative ttl", "ROOM_TTL", "-1h"},
		{"bad duration", "JANITOR_INTERVAL", "soon"},
		{"negative retries", "GENERATION_RETRIES", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
