package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/i474232898/homenet-weather/internal/alerts"
	"github.com/i474232898/homenet-weather/internal/analytics"
	httpapi "github.com/i474232898/homenet-weather/internal/api/http"
	"github.com/i474232898/homenet-weather/internal/config"
	"github.com/i474232898/homenet-weather/internal/scheduler"
	"github.com/i474232898/homenet-weather/internal/store"
	"github.com/i474232898/homenet-weather/internal/weather"
	"github.com/i474232898/homenet-weather/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, note, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	if note != "" {
		logger.Info(note)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer st.Close()

	// Shared client and throttle for outbound calls.
	httpCfg := providers.HTTPClientConfig{
		Client:  &http.Client{Timeout: cfg.HTTPTimeout},
		Timeout: cfg.HTTPTimeout,
		Limiter: rate.NewLimiter(rate.Limit(cfg.UpstreamRateLimit), cfg.UpstreamRateBurst),
	}
	forecastClient := providers.NewOpenMeteoProvider(httpCfg, cfg.ForecastBaseURL, cfg.ForecastDays)

	var places weather.PlaceSearcher = providers.NewOpenMeteoGeocoder(httpCfg, cfg.GeocodingBaseURL)
	if cfg.Geocoder == "google" {
		places = providers.NewGoogleGeocoder(cfg.GoogleGeocoderAPIKey)
	}
	if cfg.PlaceCacheTTL > 0 {
		var cache providers.PlaceCache = providers.NewMemoryPlaceCache(cfg.PlaceCacheTTL)
		if cfg.RedisURL != "" {
			rc, err := providers.NewRedisPlaceCache(ctx, cfg.RedisURL, cfg.PlaceCacheTTL, logger)
			if err != nil {
				logger.Warn("redis unavailable, using in-process place cache", zap.Error(err))
			} else {
				defer rc.Close()
				cache = rc
			}
		}
		places = providers.NewCachedPlaceSearcher(places, cache)
	}

	// Core service orchestrating the forecast client, place search and store.
	service := weather.NewService(st, forecastClient, places, logger.Named("service"))
	analyticsEngine := analytics.NewEngine(st, logger.Named("analytics"))
	alertsEngine := alerts.NewEngine(st, alerts.DefaultRules(analyticsEngine), logger.Named("alerts"))

	sched := scheduler.New(service, st, st, scheduler.Options{
		Interval:     cfg.CollectionInterval,
		Concurrency:  cfg.CollectConcurrency,
		FetchTimeout: 2 * cfg.HTTPTimeout,
		Retry: scheduler.BackoffConfig{
			MaxRetries:      cfg.CollectMaxRetries,
			InitialInterval: cfg.CollectRetryBase,
			MaxInterval:     cfg.CollectRetryMax,
		},
		RetentionDays:   cfg.RetentionDays,
		PruneCron:       cfg.PruneCron,
		DelayFirstCycle: !cfg.CollectOnStart,
	}, logger.Named("scheduler"))
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	app := httpapi.NewApp(httpapi.Deps{
		Service:   service,
		Analytics: analyticsEngine,
		Alerts:    alertsEngine,
		Collector: sched,
		Logger:    logger.Named("http"),
	})

	go func() {
		logger.Info("listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
