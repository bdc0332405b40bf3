package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 20*time.Second, cfg.CheckIn.Cooldown)
	assert.Equal(t, 2*time.Second, cfg.CheckIn.ResultDisplay)
	assert.Equal(t, 100*time.Millisecond, cfg.CheckIn.RecheckDelay)
	assert.Equal(t, time.Second, cfg.Display.PollInterval)
	assert.Equal(t, "redis", cfg.Display.PushTransport)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Database.UniqueAttendance)
	assert.Equal(t, 5*time.Second, cfg.CheckIn.ClaimTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHECKIN_COOLDOWN", "5s")
	t.Setenv("DISPLAY_POLL_INTERVAL", "250ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("DB_UNIQUE_ATTENDANCE", "false")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.CheckIn.Cooldown)
	assert.Equal(t, 250*time.Millisecond, cfg.Display.PollInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.False(t, cfg.Database.UniqueAttendance)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("CHECKIN_COOLDOWN", "soon")
	t.Setenv("BADGE_QR_SIZE", "big")

	cfg := Load()

	assert.Equal(t, 20*time.Second, cfg.CheckIn.Cooldown)
	assert.Equal(t, 256, cfg.Badge.Size)
}
