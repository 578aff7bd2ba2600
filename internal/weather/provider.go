package weather

import (
	"context"
	"time"
)

// ForecastClient fetches current, hourly and daily weather for a coordinate pair.
type ForecastClient interface {
	FetchWeather(ctx context.Context, lat, lon float64) (Forecast, error)
}

// PlaceSearcher resolves a free-text place name to candidate coordinates.
type PlaceSearcher interface {
	SearchPlaces(ctx context.Context, query string) ([]PlaceMatch, error)
}

// LocationStore manages saved locations.
type LocationStore interface {
	// GetOrCreateLocation is idempotent by (userID, name).
	GetOrCreateLocation(ctx context.Context, name string, lat, lon float64, userID int64) (int64, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	ListLocations(ctx context.Context, userID int64) ([]Location, error)
	// DistinctLocations returns every saved location, newest first.
	DistinctLocations(ctx context.Context) ([]Location, error)
	// DeleteLocation removes an owned location together with its samples and daily rows.
	DeleteLocation(ctx context.Context, id, userID int64) error
}

// SampleWriter persists collected data. Sub-daily samples are appended without
// deduplication; daily aggregates are upserted on (location, date).
type SampleWriter interface {
	AppendCurrentSample(ctx context.Context, locationID int64, s Sample) error
	AppendHourlySamples(ctx context.Context, locationID int64, samples []Sample) error
	UpsertDaily(ctx context.Context, locationID int64, d DailyAggregate) error
}

// SampleReader is the read side consumed by the analytics and alert engines.
type SampleReader interface {
	// RecentSamples returns samples in [since, until], newest first, at most limit.
	RecentSamples(ctx context.Context, locationID int64, since, until time.Time, limit int) ([]Sample, error)
	// ForecastSamples returns samples in [from, from+horizon], oldest first, at most limit.
	ForecastSamples(ctx context.Context, locationID int64, from time.Time, horizon time.Duration, limit int) ([]Sample, error)
	// SamplesSince returns every sample at or after since, oldest first.
	SamplesSince(ctx context.Context, locationID int64, since time.Time) ([]Sample, error)
	// LatestSamples returns the newest samples regardless of window.
	LatestSamples(ctx context.Context, locationID int64, limit int) ([]Sample, error)
	DailyForecast(ctx context.Context, locationID int64) ([]DailyAggregate, error)
}

// Store is the full contract the SQL and in-memory stores satisfy.
type Store interface {
	LocationStore
	SampleWriter
	SampleReader
	// PruneBefore deletes samples older than cutoff and daily rows dated before it.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
