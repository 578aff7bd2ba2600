package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string `validate:"required,numeric"`

	DatabaseDriver string `validate:"oneof=sqlite postgres memory"`
	DatabaseURL    string `validate:"required_unless=DatabaseDriver memory"`

	// CollectionInterval is slept between collection cycles.
	CollectionInterval time.Duration `validate:"gte=1m"`
	CollectOnStart     bool
	CollectConcurrency int           `validate:"gte=0"`
	CollectMaxRetries  int           `validate:"gte=0,lte=10"`
	CollectRetryBase   time.Duration `validate:"gt=0"`
	CollectRetryMax    time.Duration `validate:"gtefield=CollectRetryBase"`

	HTTPTimeout      time.Duration `validate:"gt=0"`
	ForecastBaseURL  string        `validate:"omitempty,url"`
	GeocodingBaseURL string        `validate:"omitempty,url"`
	ForecastDays     int           `validate:"gte=1,lte=16"`

	// Outbound throttling shared by forecast and geocoding calls.
	UpstreamRateLimit float64 `validate:"gt=0"`
	UpstreamRateBurst int     `validate:"gte=1"`

	PlaceCacheTTL        time.Duration `validate:"gte=0"`
	RedisURL             string        `validate:"omitempty,url"`
	Geocoder             string        `validate:"oneof=openmeteo google"`
	GoogleGeocoderAPIKey string        `validate:"required_if=Geocoder google"`

	// RetentionDays of 0 keeps data forever.
	RetentionDays int    `validate:"gte=0"`
	PruneCron     string `validate:"required"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults. A .env
// file in the working directory is applied first when present; the returned
// note is non-empty when it could not be read.
func Load() (*AppConfig, string, error) {
	var note string
	if err := godotenv.Load(); err != nil {
		note = fmt.Sprintf("no .env file found or error loading it: %v", err)
	}

	cfg, err := FromEnv()
	return cfg, note, err
}

// FromEnv builds and validates the configuration from the process environment.
func FromEnv() (*AppConfig, error) {
	var err error
	cfg := &AppConfig{
		Port:                 getenvDefault("PORT", "8080"),
		DatabaseDriver:       strings.ToLower(getenvDefault("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:          getenvDefault("DATABASE_URL", "file:homenet.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),
		ForecastBaseURL:      os.Getenv("FORECAST_BASE_URL"),
		GeocodingBaseURL:     os.Getenv("GEOCODING_BASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		Geocoder:             strings.ToLower(getenvDefault("GEOCODER", "openmeteo")),
		GoogleGeocoderAPIKey: os.Getenv("GOOGLE_GEOCODER_API_KEY"),
		PruneCron:            getenvDefault("PRUNE_CRON", "0 3 * * *"),
		LogLevel:             strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getenvDefault("LOG_FORMAT", "json")),
	}

	minutes, err := getenvInt("COLLECTION_INTERVAL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.CollectionInterval = time.Duration(minutes) * time.Minute

	if cfg.CollectOnStart, err = getenvBool("COLLECT_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.CollectConcurrency, err = getenvInt("COLLECT_CONCURRENCY", 0); err != nil {
		return nil, err
	}
	if cfg.CollectMaxRetries, err = getenvInt("COLLECT_MAX_RETRIES", 0); err != nil {
		return nil, err
	}
	if cfg.CollectRetryBase, err = getenvDuration("COLLECT_RETRY_INITIAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.CollectRetryMax, err = getenvDuration("COLLECT_RETRY_MAX", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ForecastDays, err = getenvInt("FORECAST_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.UpstreamRateLimit, err = getenvFloat("UPSTREAM_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.UpstreamRateBurst, err = getenvInt("UPSTREAM_RATE_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.PlaceCacheTTL, err = getenvDuration("PLACE_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = getenvInt("RETENTION_DAYS", 90); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
