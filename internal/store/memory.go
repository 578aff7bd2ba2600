package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/homenet-weather/internal/weather"
)

// ErrNotFound is returned when no data is available for a given location.
var ErrNotFound = weather.ErrNotFound

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Samples are kept in insertion order per location.
type MemoryStore struct {
	mu sync.RWMutex

	nextID    int64
	locations map[int64]weather.Location
	samples   map[int64][]weather.Sample
	daily     map[int64]map[string]weather.DailyAggregate

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations: make(map[int64]weather.Location),
		samples:   make(map[int64][]weather.Sample),
		daily:     make(map[int64]map[string]weather.DailyAggregate),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetOrCreateLocation(_ context.Context, name string, lat, lon float64, userID int64) (int64, error) {
	if err := weather.ValidateCoordinates(lat, lon); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, loc := range s.locations {
		if loc.UserID == userID && loc.Name == name {
			return id, nil
		}
	}

	s.nextID++
	s.locations[s.nextID] = weather.Location{
		ID:        s.nextID,
		UserID:    userID,
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
		CreatedAt: s.now(),
	}
	return s.nextID, nil
}

func (s *MemoryStore) GetLocation(_ context.Context, id int64) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return weather.Location{}, fmt.Errorf("location %d: %w", id, ErrNotFound)
	}
	return loc, nil
}

func (s *MemoryStore) ListLocations(_ context.Context, userID int64) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.Location
	for _, loc := range s.locations {
		if loc.UserID == userID {
			out = append(out, loc)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) DistinctLocations(_ context.Context) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		out = append(out, loc)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) DeleteLocation(_ context.Context, id, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.locations[id]
	if !ok || loc.UserID != userID {
		return fmt.Errorf("location %d: %w", id, ErrNotFound)
	}
	delete(s.locations, id)
	delete(s.samples, id)
	delete(s.daily, id)
	return nil
}

func (s *MemoryStore) AppendCurrentSample(ctx context.Context, locationID int64, sample weather.Sample) error {
	return s.AppendHourlySamples(ctx, locationID, []weather.Sample{sample})
}

// AppendHourlySamples appends without deduplication; re-polling the same hour
// yields a second sample.
func (s *MemoryStore) AppendHourlySamples(_ context.Context, locationID int64, samples []weather.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[locationID]; !ok {
		return weather.StoreErr("append samples", fmt.Errorf("location %d: %w", locationID, ErrNotFound))
	}
	for _, sample := range samples {
		sample.LocationID = locationID
		sample.Timestamp = sample.Timestamp.UTC()
		s.samples[locationID] = append(s.samples[locationID], sample)
	}
	return nil
}

func (s *MemoryStore) UpsertDaily(_ context.Context, locationID int64, d weather.DailyAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[locationID]; !ok {
		return weather.StoreErr("upsert daily", fmt.Errorf("location %d: %w", locationID, ErrNotFound))
	}
	days, ok := s.daily[locationID]
	if !ok {
		days = make(map[string]weather.DailyAggregate)
		s.daily[locationID] = days
	}
	d.LocationID = locationID
	days[d.Date] = d
	return nil
}

func (s *MemoryStore) RecentSamples(_ context.Context, locationID int64, since, until time.Time, limit int) ([]weather.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.samples[locationID]
	var out []weather.Sample
	// Walk backwards so that duplicate timestamps surface latest insert first.
	for i := len(history) - 1; i >= 0; i-- {
		ts := history[i].Timestamp
		if !ts.Before(since) && !ts.After(until) {
			out = append(out, history[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, limit), nil
}

func (s *MemoryStore) ForecastSamples(_ context.Context, locationID int64, from time.Time, horizon time.Duration, limit int) ([]weather.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	to := from.Add(horizon)
	var out []weather.Sample
	for _, sample := range s.samples[locationID] {
		if !sample.Timestamp.Before(from) && !sample.Timestamp.After(to) {
			out = append(out, sample)
		}
	}
	sortOldestFirst(out)
	return truncate(out, limit), nil
}

func (s *MemoryStore) SamplesSince(_ context.Context, locationID int64, since time.Time) ([]weather.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.Sample
	for _, sample := range s.samples[locationID] {
		if !sample.Timestamp.Before(since) {
			out = append(out, sample)
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *MemoryStore) LatestSamples(_ context.Context, locationID int64, limit int) ([]weather.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.samples[locationID]
	out := make([]weather.Sample, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, limit), nil
}

func (s *MemoryStore) DailyForecast(_ context.Context, locationID int64) ([]weather.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.DailyAggregate, 0, len(s.daily[locationID]))
	for _, d := range s.daily[locationID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// PruneBefore enforces retention by age.
func (s *MemoryStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, history := range s.samples {
		kept := history[:0]
		for _, sample := range history {
			if sample.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, sample)
		}
		s.samples[id] = kept
	}

	day := cutoff.UTC().Format("2006-01-02")
	for _, days := range s.daily {
		for date := range days {
			if date < day {
				delete(days, date)
				removed++
			}
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortNewestFirst(locs []weather.Location) {
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].CreatedAt.Equal(locs[j].CreatedAt) {
			return locs[i].ID > locs[j].ID
		}
		return locs[i].CreatedAt.After(locs[j].CreatedAt)
	})
}

func sortOldestFirst(samples []weather.Sample) {
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
}

func truncate(samples []weather.Sample, limit int) []weather.Sample {
	if limit > 0 && len(samples) > limit {
		return samples[:limit]
	}
	return samples
}

var _ weather.Store = (*MemoryStore)(nil)
