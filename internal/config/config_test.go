package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, 10*time.Minute, cfg.CodeTTL)
	require.Equal(t, "order-locations", cfg.KafkaTopic)
	require.Equal(t, "info", cfg.LogLevel)
	require.Empty(t, cfg.KafkaBrokers)
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092 ,")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ESTIMATE_DEFAULT_SPEED_MPS", "4.5")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, time.Hour, cfg.TokenTTL)
	require.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.RunMigrations)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 4.5, cfg.DefaultSpeedMps)
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Setenv("ESTIMATE_DEFAULT_SPEED_MPS", "fast")

	_, err := LoadServerConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "JWT_SECRET")
	require.Contains(t, err.Error(), "HTTP_READ_TIMEOUT")
	require.Contains(t, err.Error(), "ESTIMATE_DEFAULT_SPEED_MPS")
}
