package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.DatabaseDriver != "sqlite" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CollectionInterval != 30*time.Minute || !cfg.CollectOnStart {
		t.Fatalf("unexpected collection defaults: %v %v", cfg.CollectionInterval, cfg.CollectOnStart)
	}
	if cfg.HTTPTimeout != 30*time.Second || cfg.ForecastDays != 7 || cfg.RetentionDays != 90 {
		t.Fatalf("unexpected upstream defaults: %+v", cfg)
	}
	if cfg.Geocoder != "openmeteo" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "Memory")
	t.Setenv("COLLECTION_INTERVAL_MINUTES", "5")
	t.Setenv("COLLECT_ON_START", "false")
	t.Setenv("COLLECT_MAX_RETRIES", "3")
	t.Setenv("UPSTREAM_RATE_LIMIT", "2.5")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" || cfg.DatabaseDriver != "memory" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.CollectionInterval != 5*time.Minute || cfg.CollectOnStart || cfg.CollectMaxRetries != 3 {
		t.Fatalf("unexpected collection overrides: %+v", cfg)
	}
	if cfg.UpstreamRateLimit != 2.5 || cfg.RedisURL == "" {
		t.Fatalf("unexpected upstream overrides: %+v", cfg)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad number":       {"FORECAST_DAYS": "seven"},
		"bad duration":     {"HTTP_TIMEOUT": "soon"},
		"bad driver":       {"DATABASE_DRIVER": "oracle"},
		"forecast range":   {"FORECAST_DAYS": "30"},
		"google no key":    {"GEOCODER": "google"},
		"retry ordering":   {"COLLECT_RETRY_INITIAL": "10s", "COLLECT_RETRY_MAX": "1s"},
		"interval too low": {"COLLECTION_INTERVAL_MINUTES": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFromEnvWrapsParseErrors(t *testing.T) {
	t.Setenv("RETENTION_DAYS", "ninety")
	_, err := FromEnv()
	if err == nil || !strings.Contains(err.Error(), "RETENTION_DAYS") {
		t.Fatalf("expected error naming the key, got %v", err)
	}
}
