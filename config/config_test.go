package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LIVE_HEARTBEAT_INTERVAL", "")
	t.Setenv("LIVE_SAMPLE_INTERVAL", "")
	t.Setenv("LIVE_CHAT_TIMEOUT_MINUTES", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Live.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.Live.SampleInterval)
	assert.Equal(t, 5, cfg.Live.DefaultTimeoutMinutes)
	assert.Equal(t, 12, cfg.Live.HistoryPageSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LIVE_SAMPLE_INTERVAL", "30s")
	t.Setenv("LIVE_HEARTBEAT_INTERVAL", "not-a-duration")
	t.Setenv("WEBRTC_ICE_URLS", "stun:a.example:3478, turn:b.example:3478 ,")
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Live.SampleInterval)
	assert.Equal(t, time.Second, cfg.Live.HeartbeatInterval)
	assert.Equal(t, []string{"stun:a.example:3478", "turn:b.example:3478"}, cfg.WebRTC.ICEUrls)
	assert.Equal(t, "memory", cfg.Server.Backend)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "live", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/live?sslmode=disable", c.DSN())

	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("LIVE_CHAT_TIMEOUT_MINUTES", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRedis(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("REDIS_POOL_SIZE", "32")
	t.Setenv("REDIS_DB", "nope")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, 32, cfg.Redis.PoolSize)
	assert.Equal(t, 0, cfg.Redis.DB)
}
