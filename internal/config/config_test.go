package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "")
	t.Setenv("QUOTE_VALIDITY_DAYS", "")
	t.Setenv("PICKUP_SURCHARGE_PRIORITY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.App.Timezone)
	assert.Equal(t, 30, cfg.Quote.ValidityDays)
	assert.Equal(t, "500", cfg.Quote.SurchargePriority.String())
	assert.Equal(t, 30*time.Second, cfg.Notification.HeartbeatInterval())
	assert.False(t, cfg.Redis.PubSubEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Asia/Dhaka")
	t.Setenv("QUOTE_VALIDITY_DAYS", "14")
	t.Setenv("PICKUP_SURCHARGE_EMERGENCY", "1250.50")
	t.Setenv("REDIS_PUBSUB_ENABLED", "true")
	t.Setenv("NOTIFY_SSE_HEARTBEAT_SECONDS", "5")

	cfg, err := Load()
	if err != nil && cfg == nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	assert.Equal(t, 14, cfg.Quote.ValidityDays)
	assert.Equal(t, "1250.5", cfg.Quote.SurchargeEmergency.String())
	assert.True(t, cfg.Redis.PubSubEnabled)
	assert.Equal(t, 5*time.Second, cfg.Notification.HeartbeatInterval())
	assert.Equal(t, "Asia/Dhaka", cfg.App.Location().String())
}

func TestLoadRejectsBadSurcharge(t *testing.T) {
	t.Setenv("PICKUP_SURCHARGE_REGULAR", "abc")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("PICKUP_SURCHARGE_REGULAR", "-5")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	require.Error(t, err)
}
