package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/homenet-weather/internal/weather"
)

// MaxPlaceMatches caps the number of search results returned.
const MaxPlaceMatches = 10

// OpenMeteoGeocoder implements weather.PlaceSearcher against the Open-Meteo geocoding API.
type OpenMeteoGeocoder struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoGeocoder(cfg HTTPClientConfig, baseURL string) *OpenMeteoGeocoder {
	if baseURL == "" {
		baseURL = DefaultGeocodingURL
	}
	return &OpenMeteoGeocoder{
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newBreaker("openmeteo-geocoding"),
	}
}

// SearchPlaces returns up to MaxPlaceMatches places matching query.
func (g *OpenMeteoGeocoder) SearchPlaces(ctx context.Context, query string) ([]weather.PlaceMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query cannot be empty", weather.ErrInvalidQuery)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("name", query)
		values.Set("count", fmt.Sprint(MaxPlaceMatches))
		values.Set("language", "en")
		values.Set("format", "json")
		return http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequest(ctx, "geocoding", g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Admin1    string  `json:"admin1"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, upstreamFailure("geocoding", resp.StatusCode, err)
	}

	matches := make([]weather.PlaceMatch, 0, len(payload.Results))
	for _, r := range payload.Results {
		if len(matches) == MaxPlaceMatches {
			break
		}
		matches = append(matches, newPlaceMatch(r.Name, r.Admin1, r.Country, r.Latitude, r.Longitude))
	}
	return matches, nil
}

// GoogleGeocoder resolves place names through the Google Geocoding API.
// It yields at most one match per query.
type GoogleGeocoder struct{}

// NewGoogleGeocoder configures the geocoder package with apiKey.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{}
}

func (g *GoogleGeocoder) SearchPlaces(ctx context.Context, query string) ([]weather.PlaceMatch, error) {
	query = strings.Clone(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("%w: search query cannot be empty", weather.ErrInvalidQuery)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	type result struct {
		match weather.PlaceMatch
		err   error
	}
	// The geocoder package has no context support; bound it from the outside.
	done := make(chan result, 1)
	go func() {
		loc, err := geocoder.Geocoding(geocoder.Address{City: query})
		if err != nil {
			done <- result{err: err}
			return
		}
		match := newPlaceMatch(query, "", "", loc.Latitude, loc.Longitude)
		if addrs, err := geocoder.GeocodingReverse(loc); err == nil && len(addrs) > 0 {
			a := addrs[0]
			name := a.City
			if name == "" {
				name = query
			}
			match = newPlaceMatch(name, a.State, a.Country, loc.Latitude, loc.Longitude)
		}
		done <- result{match: match}
	}()

	select {
	case <-ctx.Done():
		return nil, upstreamFailure("geocoding", 0, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, upstreamFailure("geocoding", 0, r.err)
		}
		return []weather.PlaceMatch{r.match}, nil
	}
}

func newPlaceMatch(name, region, country string, lat, lon float64) weather.PlaceMatch {
	return weather.PlaceMatch{
		Name:        name,
		Country:     country,
		Region:      region,
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: fmt.Sprintf("%s, %s, %s", name, region, country),
	}
}
