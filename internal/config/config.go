package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Reference data and durable state.
	CatalogPath       string
	DataDir           string
	SubscriptionsPath string
	AlertsPath        string
	FiresPath         string
	FireRetention     time.Duration

	// Telegram transport. The bot is disabled when no token is set.
	TelegramToken       string
	TelegramEnabled     bool
	TelegramAPIURL      string
	TelegramRatePerSec  float64
	TelegramPollTimeout time.Duration

	// Delivery engine.
	SweepInterval       time.Duration
	SendTimeout         time.Duration
	DispatchConcurrency int
	MaxDeliveryAttempts int

	// Threshold evaluator.
	HotThresholdC   float64
	ColdThresholdC  float64
	AlertCooldown   time.Duration
	FireMaxDistance float64
	WeatherSchedule string
	FireSchedule    string

	// Feeds.
	OpenMeteoURL     string
	WeatherTimeout   time.Duration
	WeatherCacheTTL  time.Duration
	WeatherCacheSize int
	FIRMSBaseURL     string
	FIRMSTimeout     time.Duration

	// Dashboard API rate limit per client IP and CORS origins.
	DashboardRatePerSec float64
	DashboardBurst      int
	DashboardOrigins    []string

	// Optional alert event stream.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaAlertTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := parser{}
	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "data")
	token := os.Getenv("TELEGRAM_BOT_TOKEN")

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CatalogPath:       sharedcfg.EnvOrDefault("CATALOG_PATH", filepath.Join(dataDir, "merged_village_temperature_data.csv")),
		DataDir:           dataDir,
		SubscriptionsPath: sharedcfg.EnvOrDefault("SUBSCRIPTIONS_PATH", filepath.Join(dataDir, "subscribers.json")),
		AlertsPath:        sharedcfg.EnvOrDefault("ALERTS_PATH", filepath.Join(dataDir, "pending_alerts.json")),
		FiresPath:         sharedcfg.EnvOrDefault("FIRES_PATH", filepath.Join(dataDir, "fire_history.json")),
		FireRetention:     p.duration("FIRE_RETENTION", "720h"),

		TelegramToken:       token,
		TelegramEnabled:     token != "",
		TelegramAPIURL:      sharedcfg.EnvOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramRatePerSec:  p.float("TELEGRAM_RATE_PER_SEC", 25),
		TelegramPollTimeout: p.duration("TELEGRAM_POLL_TIMEOUT", "30s"),

		SweepInterval:       p.duration("SWEEP_INTERVAL", "60s"),
		SendTimeout:         p.duration("SEND_TIMEOUT", "10s"),
		DispatchConcurrency: p.int("DISPATCH_CONCURRENCY", 8),
		MaxDeliveryAttempts: p.int("MAX_DELIVERY_ATTEMPTS", 5),

		HotThresholdC:   p.float("HOT_THRESHOLD_C", 40),
		ColdThresholdC:  p.float("COLD_THRESHOLD_C", 5),
		AlertCooldown:   p.duration("ALERT_COOLDOWN", "12h"),
		FireMaxDistance: p.float("FIRE_MAX_DISTANCE_DEG", 0.5),
		WeatherSchedule: sharedcfg.EnvOrDefault("WEATHER_SCHEDULE", "@every 1h"),
		FireSchedule:    sharedcfg.EnvOrDefault("FIRE_SCHEDULE", "0 6 * * *"),

		OpenMeteoURL:     sharedcfg.EnvOrDefault("OPEN_METEO_URL", "https://api.open-meteo.com/v1/forecast"),
		WeatherTimeout:   p.duration("WEATHER_TIMEOUT", "10s"),
		WeatherCacheTTL:  p.duration("WEATHER_CACHE_TTL", "10m"),
		WeatherCacheSize: p.int("WEATHER_CACHE_SIZE", 500),
		FIRMSBaseURL:     sharedcfg.EnvOrDefault("FIRMS_BASE_URL", "https://firms.modaps.eosdis.nasa.gov/data/active_fire/modis-c6.1/csv"),
		FIRMSTimeout:     p.duration("FIRMS_TIMEOUT", "30s"),

		DashboardRatePerSec: p.float("DASHBOARD_RATE_PER_SEC", 5),
		DashboardBurst:      p.int("DASHBOARD_BURST", 10),
		DashboardOrigins:    list(os.Getenv("DASHBOARD_ALLOWED_ORIGINS")),

		KafkaEnabled:    os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "alert-events"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.ColdThresholdC >= c.HotThresholdC:
		return errors.New("COLD_THRESHOLD_C must be below HOT_THRESHOLD_C")
	case c.FireMaxDistance <= 0:
		return errors.New("FIRE_MAX_DISTANCE_DEG must be positive")
	case c.DispatchConcurrency <= 0:
		return errors.New("DISPATCH_CONCURRENCY must be positive")
	case c.MaxDeliveryAttempts <= 0:
		return errors.New("MAX_DELIVERY_ATTEMPTS must be positive")
	case c.TelegramRatePerSec <= 0:
		return errors.New("TELEGRAM_RATE_PER_SEC must be positive")
	case c.WeatherCacheSize <= 0:
		return errors.New("WEATHER_CACHE_SIZE must be positive")
	case c.KafkaEnabled && len(c.KafkaBrokers) == 0:
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	case c.KafkaEnabled && c.KafkaAlertTopic == "":
		return errors.New("KAFKA_ALERT_TOPIC is required when Kafka is enabled")
	}
	return nil
}

// parser collects the first parse failure so Load can report it once.
type parser struct{ err error }

func (p *parser) duration(key, def string) time.Duration {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if (err != nil || d < 0) && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", key, s)
	}
	return d
}

func (p *parser) int(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", key, s)
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", key, s)
	}
	return f
}

// list splits a comma-separated value, dropping blanks.
func list(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
