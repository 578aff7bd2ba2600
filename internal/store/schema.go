package store

import (
	"context"
	"strings"

	"github.com/i474232898/homenet-weather/internal/weather"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS weather_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		location_id INTEGER NOT NULL REFERENCES user_locations(id) ON DELETE CASCADE,
		ts INTEGER NOT NULL,
		temperature REAL,
		apparent_temperature REAL,
		humidity REAL,
		precipitation REAL,
		precipitation_probability REAL,
		wind_speed REAL,
		wind_direction REAL,
		cloud_cover REAL,
		uv_index REAL,
		weather_code INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_weather_data_location_ts ON weather_data (location_id, ts)`,
	`CREATE TABLE IF NOT EXISTS daily_weather (
		location_id INTEGER NOT NULL REFERENCES user_locations(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		temp_max REAL,
		temp_min REAL,
		precipitation_sum REAL,
		precipitation_probability_max REAL,
		wind_speed_max REAL,
		uv_index_max REAL,
		PRIMARY KEY (location_id, date)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_locations (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		created_at BIGINT NOT NULL,
		UNIQUE (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS weather_data (
		id BIGSERIAL PRIMARY KEY,
		location_id BIGINT NOT NULL REFERENCES user_locations(id) ON DELETE CASCADE,
		ts BIGINT NOT NULL,
		temperature DOUBLE PRECISION,
		apparent_temperature DOUBLE PRECISION,
		humidity DOUBLE PRECISION,
		precipitation DOUBLE PRECISION,
		precipitation_probability DOUBLE PRECISION,
		wind_speed DOUBLE PRECISION,
		wind_direction DOUBLE PRECISION,
		cloud_cover DOUBLE PRECISION,
		uv_index DOUBLE PRECISION,
		weather_code INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_weather_data_location_ts ON weather_data (location_id, ts)`,
	`CREATE TABLE IF NOT EXISTS daily_weather (
		location_id BIGINT NOT NULL REFERENCES user_locations(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		temp_max DOUBLE PRECISION,
		temp_min DOUBLE PRECISION,
		precipitation_sum DOUBLE PRECISION,
		precipitation_probability_max DOUBLE PRECISION,
		wind_speed_max DOUBLE PRECISION,
		uv_index_max DOUBLE PRECISION,
		PRIMARY KEY (location_id, date)
	)`,
}

// Open returns the store selected by driver: "memory", "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (weather.Store, error) {
	if strings.EqualFold(driver, "memory") {
		return NewMemoryStore(), nil
	}
	return OpenSQL(ctx, driver, dsn)
}
