package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Service orchestrates the forecast client, place search and the store.
type Service struct {
	store  Store
	client ForecastClient
	places PlaceSearcher
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(store Store, client ForecastClient, places PlaceSearcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		client: client,
		places: places,
		logger: logger,
	}
}

// FetchAndStore fetches weather for loc and persists it under loc.ID: the
// current reading and hourly series are appended, daily aggregates are
// upserted. It is the single primitive shared by the scheduler and on-demand
// collection. It never creates a location; a location deleted since it was
// listed yields ErrNotFound.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	if s.client == nil {
		return fmt.Errorf("no forecast client configured")
	}
	if _, err := s.store.GetLocation(ctx, loc.ID); err != nil {
		return err
	}

	fc, err := s.client.FetchWeather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return err
	}

	id := loc.ID

	if fc.Current != nil {
		if err := s.store.AppendCurrentSample(ctx, id, *fc.Current); err != nil {
			return err
		}
	}
	if len(fc.Hourly) > 0 {
		if err := s.store.AppendHourlySamples(ctx, id, fc.Hourly); err != nil {
			return err
		}
	}
	for _, d := range fc.Daily {
		if err := s.store.UpsertDaily(ctx, id, d); err != nil {
			return err
		}
	}

	s.logger.Debug("stored weather",
		zap.Int64("location_id", id),
		zap.String("location", loc.Name),
		zap.Int("hourly", len(fc.Hourly)),
		zap.Int("daily", len(fc.Daily)),
	)
	return nil
}

// AddLocation saves a location for userID and immediately collects weather for
// it. A failed collection does not undo the location; collected reports the outcome.
func (s *Service) AddLocation(ctx context.Context, userID int64, name string, lat, lon float64) (loc Location, collected bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Location{}, false, fmt.Errorf("%w: location name is required", ErrInvalidQuery)
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return Location{}, false, err
	}

	id, err := s.store.GetOrCreateLocation(ctx, name, lat, lon, userID)
	if err != nil {
		return Location{}, false, err
	}
	loc, err = s.store.GetLocation(ctx, id)
	if err != nil {
		return Location{}, false, err
	}

	if err := s.FetchAndStore(ctx, loc); err != nil {
		s.logger.Warn("initial collection failed",
			zap.Int64("location_id", loc.ID),
			zap.String("location", loc.Name),
			zap.Error(err),
		)
		return loc, false, nil
	}
	return loc, true, nil
}

// OwnedLocation returns the location if it belongs to userID, ErrNotFound otherwise.
func (s *Service) OwnedLocation(ctx context.Context, id, userID int64) (Location, error) {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if loc.UserID != userID {
		return Location{}, fmt.Errorf("location %d: %w", id, ErrNotFound)
	}
	return loc, nil
}

// ListLocations delegates to the underlying store.
func (s *Service) ListLocations(ctx context.Context, userID int64) ([]Location, error) {
	return s.store.ListLocations(ctx, userID)
}

// DeleteLocation delegates to the underlying store.
func (s *Service) DeleteLocation(ctx context.Context, id, userID int64) error {
	return s.store.DeleteLocation(ctx, id, userID)
}

// SearchPlaces validates the query and delegates to the configured searcher.
func (s *Service) SearchPlaces(ctx context.Context, query string) ([]PlaceMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query cannot be empty", ErrInvalidQuery)
	}
	if s.places == nil {
		return nil, errors.New("no place searcher configured")
	}
	// Callers may pass strings backed by reused request buffers; matches and
	// cache keys derived from the query must own their memory.
	return s.places.SearchPlaces(ctx, strings.Clone(query))
}

// LiveWeather fetches the forecast for a location without storing it.
func (s *Service) LiveWeather(ctx context.Context, loc Location) (Forecast, error) {
	return s.client.FetchWeather(ctx, loc.Latitude, loc.Longitude)
}

// LatestSamples delegates to the underlying store.
func (s *Service) LatestSamples(ctx context.Context, locationID int64, limit int) ([]Sample, error) {
	return s.store.LatestSamples(ctx, locationID, limit)
}

// DailyForecast delegates to the underlying store.
func (s *Service) DailyForecast(ctx context.Context, locationID int64) ([]DailyAggregate, error) {
	return s.store.DailyForecast(ctx, locationID)
}
