package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/i474232898/homenet-weather/internal/weather"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore implements weather.Store on database/sql. Timestamps are stored as
// unix seconds (UTC); daily dates as "YYYY-MM-DD" text.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// OpenSQL opens and migrates a store. driver is "sqlite" or "postgres".
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var d dialect
	var driverName string
	switch strings.ToLower(driver) {
	case "sqlite":
		d, driverName = dialectSQLite, "sqlite"
		if dsn == "" {
			return nil, fmt.Errorf("database path required for SQLite")
		}
		dsn = withBusyTimeout(dsn)
	case "postgres", "postgresql":
		d, driverName = dialectPostgres, "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s. Supported: sqlite, postgres, memory", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	if d == dialectSQLite {
		// SQLite has a single writer. One pooled connection queues concurrent
		// collection writes in database/sql instead of failing with SQLITE_BUSY,
		// and keeps ":memory:" databases shared.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := NewSQLStore(db, d == dialectPostgres)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteBusyTimeout is how long a writer waits on a lock held by another
// process before failing.
const sqliteBusyTimeout = "_pragma=busy_timeout(5000)"

// withBusyTimeout appends a busy_timeout pragma unless dsn already sets one.
func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + sqliteBusyTimeout
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(db *sql.DB, postgres bool) *SQLStore {
	d := dialectSQLite
	if postgres {
		d = dialectPostgres
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the schema if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.dialect == dialectPostgres {
		stmts = postgresSchema
	} else {
		if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites '?' placeholders to '$n' for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) GetOrCreateLocation(ctx context.Context, name string, lat, lon float64, userID int64) (int64, error) {
	if err := weather.ValidateCoordinates(lat, lon); err != nil {
		return 0, err
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO user_locations (user_id, name, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO NOTHING
	`), userID, name, lat, lon, s.now().UnixNano())
	if err != nil {
		return 0, weather.StoreErr("create location", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id FROM user_locations WHERE user_id = ? AND name = ?
	`), userID, name).Scan(&id)
	if err != nil {
		return 0, weather.StoreErr("lookup location", err)
	}
	return id, nil
}

const locationColumns = `id, user_id, name, latitude, longitude, created_at`

func scanLocation(row interface{ Scan(...any) error }) (weather.Location, error) {
	var loc weather.Location
	var created int64
	if err := row.Scan(&loc.ID, &loc.UserID, &loc.Name, &loc.Latitude, &loc.Longitude, &created); err != nil {
		return weather.Location{}, err
	}
	loc.CreatedAt = time.Unix(0, created).UTC()
	return loc, nil
}

func (s *SQLStore) GetLocation(ctx context.Context, id int64) (weather.Location, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+locationColumns+` FROM user_locations WHERE id = ?`), id)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Location{}, fmt.Errorf("location %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return weather.Location{}, weather.StoreErr("get location", err)
	}
	return loc, nil
}

func (s *SQLStore) ListLocations(ctx context.Context, userID int64) ([]weather.Location, error) {
	return s.queryLocations(ctx, "list locations", `
		SELECT `+locationColumns+` FROM user_locations
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
}

func (s *SQLStore) DistinctLocations(ctx context.Context) ([]weather.Location, error) {
	return s.queryLocations(ctx, "distinct locations", `
		SELECT DISTINCT `+locationColumns+` FROM user_locations
		ORDER BY created_at DESC, id DESC
	`)
}

func (s *SQLStore) queryLocations(ctx context.Context, op, query string, args ...any) ([]weather.Location, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, weather.StoreErr(op, err)
	}
	defer rows.Close()

	var out []weather.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, weather.StoreErr(op, err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, weather.StoreErr(op, err)
	}
	return out, nil
}

// DeleteLocation removes child rows explicitly so the cascade does not depend
// on the connection having foreign keys enabled.
func (s *SQLStore) DeleteLocation(ctx context.Context, id, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return weather.StoreErr("delete location", err)
	}
	defer tx.Rollback()

	var owned int64
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM user_locations WHERE id = ? AND user_id = ?`), id, userID).Scan(&owned)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("location %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return weather.StoreErr("delete location", err)
	}

	for _, stmt := range []string{
		`DELETE FROM weather_data WHERE location_id = ?`,
		`DELETE FROM daily_weather WHERE location_id = ?`,
		`DELETE FROM user_locations WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(stmt), id); err != nil {
			return weather.StoreErr("delete location", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return weather.StoreErr("delete location", err)
	}
	return nil
}

const sampleColumns = `location_id, ts, temperature, apparent_temperature, humidity, precipitation,
	precipitation_probability, wind_speed, wind_direction, cloud_cover, uv_index, weather_code`

const insertSample = `INSERT INTO weather_data (` + sampleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func sampleArgs(locationID int64, smp weather.Sample) []any {
	return []any{
		locationID,
		smp.Timestamp.UTC().Unix(),
		nullFloat(smp.Temperature),
		nullFloat(smp.ApparentTemperature),
		nullFloat(smp.Humidity),
		nullFloat(smp.Precipitation),
		nullFloat(smp.PrecipitationProbability),
		nullFloat(smp.WindSpeed),
		nullFloat(smp.WindDirection),
		nullFloat(smp.CloudCover),
		nullFloat(smp.UVIndex),
		nullInt(smp.WeatherCode),
	}
}

func (s *SQLStore) AppendCurrentSample(ctx context.Context, locationID int64, smp weather.Sample) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(insertSample), sampleArgs(locationID, smp)...); err != nil {
		return weather.StoreErr("append current sample", err)
	}
	return nil
}

// AppendHourlySamples inserts every sample in one transaction. No deduplication.
func (s *SQLStore) AppendHourlySamples(ctx context.Context, locationID int64, samples []weather.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return weather.StoreErr("append hourly samples", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertSample))
	if err != nil {
		return weather.StoreErr("append hourly samples", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		if _, err := stmt.ExecContext(ctx, sampleArgs(locationID, smp)...); err != nil {
			return weather.StoreErr("append hourly samples", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return weather.StoreErr("append hourly samples", err)
	}
	return nil
}

func (s *SQLStore) UpsertDaily(ctx context.Context, locationID int64, d weather.DailyAggregate) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO daily_weather
		(location_id, date, temp_max, temp_min, precipitation_sum,
		 precipitation_probability_max, wind_speed_max, uv_index_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id, date) DO UPDATE SET
		temp_max = excluded.temp_max,
		temp_min = excluded.temp_min,
		precipitation_sum = excluded.precipitation_sum,
		precipitation_probability_max = excluded.precipitation_probability_max,
		wind_speed_max = excluded.wind_speed_max,
		uv_index_max = excluded.uv_index_max
	`),
		locationID, d.Date,
		nullFloat(d.TempMax), nullFloat(d.TempMin), nullFloat(d.PrecipitationSum),
		nullFloat(d.PrecipitationProbabilityMax), nullFloat(d.WindSpeedMax), nullFloat(d.UVIndexMax),
	)
	if err != nil {
		return weather.StoreErr("upsert daily", err)
	}
	return nil
}

func (s *SQLStore) RecentSamples(ctx context.Context, locationID int64, since, until time.Time, limit int) ([]weather.Sample, error) {
	return s.querySamples(ctx, "recent samples", `
		SELECT `+sampleColumns+` FROM weather_data
		WHERE location_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, locationID, since.UTC().Unix(), until.UTC().Unix(), sqlLimit(limit))
}

func (s *SQLStore) ForecastSamples(ctx context.Context, locationID int64, from time.Time, horizon time.Duration, limit int) ([]weather.Sample, error) {
	return s.querySamples(ctx, "forecast samples", `
		SELECT `+sampleColumns+` FROM weather_data
		WHERE location_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
		LIMIT ?
	`, locationID, from.UTC().Unix(), from.Add(horizon).UTC().Unix(), sqlLimit(limit))
}

func (s *SQLStore) SamplesSince(ctx context.Context, locationID int64, since time.Time) ([]weather.Sample, error) {
	return s.querySamples(ctx, "samples since", `
		SELECT `+sampleColumns+` FROM weather_data
		WHERE location_id = ? AND ts >= ?
		ORDER BY ts ASC, id ASC
	`, locationID, since.UTC().Unix())
}

func (s *SQLStore) LatestSamples(ctx context.Context, locationID int64, limit int) ([]weather.Sample, error) {
	return s.querySamples(ctx, "latest samples", `
		SELECT `+sampleColumns+` FROM weather_data
		WHERE location_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, locationID, sqlLimit(limit))
}

func (s *SQLStore) querySamples(ctx context.Context, op, query string, args ...any) ([]weather.Sample, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, weather.StoreErr(op, err)
	}
	defer rows.Close()

	var out []weather.Sample
	for rows.Next() {
		var (
			smp                                     weather.Sample
			ts                                      int64
			temp, apparent, hum, precip, precipProb sql.NullFloat64
			wind, windDir, cloud, uv                sql.NullFloat64
			code                                    sql.NullInt64
		)
		if err := rows.Scan(&smp.LocationID, &ts, &temp, &apparent, &hum, &precip,
			&precipProb, &wind, &windDir, &cloud, &uv, &code); err != nil {
			return nil, weather.StoreErr(op, err)
		}
		smp.Timestamp = time.Unix(ts, 0).UTC()
		smp.Temperature = floatPtr(temp)
		smp.ApparentTemperature = floatPtr(apparent)
		smp.Humidity = floatPtr(hum)
		smp.Precipitation = floatPtr(precip)
		smp.PrecipitationProbability = floatPtr(precipProb)
		smp.WindSpeed = floatPtr(wind)
		smp.WindDirection = floatPtr(windDir)
		smp.CloudCover = floatPtr(cloud)
		smp.UVIndex = floatPtr(uv)
		if code.Valid {
			c := int(code.Int64)
			smp.WeatherCode = &c
		}
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, weather.StoreErr(op, err)
	}
	return out, nil
}

func (s *SQLStore) DailyForecast(ctx context.Context, locationID int64) ([]weather.DailyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT location_id, date, temp_max, temp_min, precipitation_sum,
		       precipitation_probability_max, wind_speed_max, uv_index_max
		FROM daily_weather
		WHERE location_id = ?
		ORDER BY date ASC
	`), locationID)
	if err != nil {
		return nil, weather.StoreErr("daily forecast", err)
	}
	defer rows.Close()

	var out []weather.DailyAggregate
	for rows.Next() {
		var d weather.DailyAggregate
		var tmax, tmin, psum, pprob, wind, uv sql.NullFloat64
		if err := rows.Scan(&d.LocationID, &d.Date, &tmax, &tmin, &psum, &pprob, &wind, &uv); err != nil {
			return nil, weather.StoreErr("daily forecast", err)
		}
		d.TempMax, d.TempMin = floatPtr(tmax), floatPtr(tmin)
		d.PrecipitationSum, d.PrecipitationProbabilityMax = floatPtr(psum), floatPtr(pprob)
		d.WindSpeedMax, d.UVIndexMax = floatPtr(wind), floatPtr(uv)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, weather.StoreErr("daily forecast", err)
	}
	return out, nil
}

func (s *SQLStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM weather_data WHERE ts < ?`), cutoff.UTC().Unix())
	if err != nil {
		return 0, weather.StoreErr("prune samples", err)
	}
	samples, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, s.rebind(`DELETE FROM daily_weather WHERE date < ?`), cutoff.UTC().Format("2006-01-02"))
	if err != nil {
		return samples, weather.StoreErr("prune daily", err)
	}
	days, _ := res.RowsAffected()
	return samples + days, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// sqlLimit maps "no limit" to a value both dialects accept.
func sqlLimit(limit int) int64 {
	if limit <= 0 {
		return 1<<62 - 1
	}
	return int64(limit)
}

var _ weather.Store = (*SQLStore)(nil)
