package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "123456:test-token"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, filepath.Join("data", "merged_village_temperature_data.csv"), cfg.CatalogPath)
	assert.Equal(t, filepath.Join("data", "subscribers.json"), cfg.SubscriptionsPath)
	assert.Equal(t, filepath.Join("data", "pending_alerts.json"), cfg.AlertsPath)
	assert.Equal(t, 720*time.Hour, cfg.FireRetention)
	assert.False(t, cfg.TelegramEnabled)
	assert.InDelta(t, 25, cfg.TelegramRatePerSec, 0.001)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
	assert.Equal(t, 10*time.Second, cfg.SendTimeout)
	assert.Equal(t, 8, cfg.DispatchConcurrency)
	assert.Equal(t, 5, cfg.MaxDeliveryAttempts)
	assert.InDelta(t, 40, cfg.HotThresholdC, 0.001)
	assert.InDelta(t, 5, cfg.ColdThresholdC, 0.001)
	assert.Equal(t, 12*time.Hour, cfg.AlertCooldown)
	assert.InDelta(t, 0.5, cfg.FireMaxDistance, 0.001)
	assert.Equal(t, "@every 1h", cfg.WeatherSchedule)
	assert.Equal(t, "0 6 * * *", cfg.FireSchedule)
	assert.Equal(t, 10*time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, 500, cfg.WeatherCacheSize)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, "alert-events", cfg.KafkaAlertTopic)
	assert.Empty(t, cfg.DashboardOrigins)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DATA_DIR", "/var/lib/alerts")
	t.Setenv("ALERTS_PATH", "/tmp/alerts.json")
	t.Setenv("TELEGRAM_BOT_TOKEN", testBotToken)
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("DISPATCH_CONCURRENCY", "2")
	t.Setenv("HOT_THRESHOLD_C", "42.5")
	t.Setenv("COLD_THRESHOLD_C", "-2")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("DASHBOARD_ALLOWED_ORIGINS", "https://ops.example.org, ,http://localhost:5000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, filepath.Join("/var/lib/alerts", "subscribers.json"), cfg.SubscriptionsPath)
	assert.Equal(t, "/tmp/alerts.json", cfg.AlertsPath)
	assert.True(t, cfg.TelegramEnabled)
	assert.Equal(t, testBotToken, cfg.TelegramToken)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval)
	assert.Equal(t, 2, cfg.DispatchConcurrency)
	assert.InDelta(t, 42.5, cfg.HotThresholdC, 0.001)
	assert.InDelta(t, -2, cfg.ColdThresholdC, 0.001)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://ops.example.org", "http://localhost:5000"}, cfg.DashboardOrigins)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SWEEP_INTERVAL", "soon"},
		{"SEND_TIMEOUT", "-1s"},
		{"DISPATCH_CONCURRENCY", "eight"},
		{"DISPATCH_CONCURRENCY", "0"},
		{"MAX_DELIVERY_ATTEMPTS", "0"},
		{"HOT_THRESHOLD_C", "hot"},
		{"FIRE_MAX_DISTANCE_DEG", "0"},
		{"WEATHER_CACHE_SIZE", "-5"},
		{"TELEGRAM_RATE_PER_SEC", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_ColdMustBeBelowHot(t *testing.T) {
	t.Setenv("HOT_THRESHOLD_C", "10")
	t.Setenv("COLD_THRESHOLD_C", "10")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COLD_THRESHOLD_C")
}
