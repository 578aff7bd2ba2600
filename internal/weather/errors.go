package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCoordinate is returned for latitude outside [-90,90] or longitude outside [-180,180].
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrInvalidQuery is returned for an empty place search.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUpstreamTimeout is returned when an upstream call exceeds its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamUnavailable is returned for transport errors and non-2xx upstream responses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStore wraps failures of the backing store.
	ErrStore = errors.New("store error")
	// ErrNotFound is returned when a location (or data for it) does not exist.
	ErrNotFound = errors.New("not found")
)

// UpstreamError carries the details of a failed upstream call.
// Err is ErrUpstreamTimeout or ErrUpstreamUnavailable.
type UpstreamError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Err, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StoreErr wraps err with ErrStore, keeping ErrNotFound recognisable.
func StoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

// ValidateCoordinates reports ErrInvalidCoordinate for out-of-range values.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lat != lat {
		return fmt.Errorf("%w: latitude %v must be between -90 and 90", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 || lon != lon {
		return fmt.Errorf("%w: longitude %v must be between -180 and 180", ErrInvalidCoordinate, lon)
	}
	return nil
}
