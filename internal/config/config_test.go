package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "UTC", cfg.Scan.Timezone)
	assert.Equal(t, uint64(3), cfg.Scan.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Scan.RetryInterval)
	assert.Equal(t, 100, cfg.Scan.BulkMaxItems)
	assert.False(t, cfg.Scan.DuplicateConflict)
	assert.Equal(t, 5*time.Minute, cfg.Scan.ClockSkew)
	assert.Equal(t, 7*24*time.Hour, cfg.Scan.MaxOfflineAge)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Database.MaxLifetime)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCAN_TIMEZONE", "America/Guayaquil")
	t.Setenv("SCAN_DUPLICATE_CONFLICT", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PUBLIC_BASE_URL", "https://bus.example.com/")
	t.Setenv("SCAN_MAX_OFFLINE_AGE", "0")

	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, "America/Guayaquil", cfg.Scan.Timezone)
	assert.True(t, cfg.Scan.DuplicateConflict)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://bus.example.com", cfg.Server.PublicBaseURL)
	assert.Zero(t, cfg.Scan.MaxOfflineAge)
}

func TestInvalidTimezone(t *testing.T) {
	t.Setenv("SCAN_TIMEZONE", "Mars/Olympus")

	_, err := FromViper(newViper())
	assert.Error(t, err)
}
