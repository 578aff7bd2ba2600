package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/homenet-weather/internal/alerts"
	"github.com/i474232898/homenet-weather/internal/analytics"
	"github.com/i474232898/homenet-weather/internal/scheduler"
	"github.com/i474232898/homenet-weather/internal/store"
	"github.com/i474232898/homenet-weather/internal/weather"
)

type fakeClient struct {
	err error
}

func (f fakeClient) FetchWeather(_ context.Context, lat, lon float64) (weather.Forecast, error) {
	if err := weather.ValidateCoordinates(lat, lon); err != nil {
		return weather.Forecast{}, err
	}
	if f.err != nil {
		return weather.Forecast{}, f.err
	}
	now := time.Now().UTC().Truncate(time.Hour)
	fc := weather.Forecast{
		Latitude:  lat,
		Longitude: lon,
		Current:   &weather.Sample{Timestamp: now, Temperature: weather.Float(-2), Precipitation: weather.Float(0)},
	}
	for i := 1; i <= 24; i++ {
		fc.Hourly = append(fc.Hourly, weather.Sample{
			Timestamp:   now.Add(time.Duration(i) * time.Hour),
			Temperature: weather.Float(float64(i)),
		})
	}
	fc.Daily = []weather.DailyAggregate{{Date: now.Format("2006-01-02"), TempMax: weather.Float(24)}}
	return fc, nil
}

type fakePlaces struct{}

func (fakePlaces) SearchPlaces(_ context.Context, query string) ([]weather.PlaceMatch, error) {
	return []weather.PlaceMatch{{Name: query, Country: "Germany", Latitude: 52.52, Longitude: 13.41}}, nil
}

type testEnv struct {
	app   *fiber.App
	store *store.MemoryStore
}

func newTestEnv(t *testing.T, client weather.ForecastClient) testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	svc := weather.NewService(st, client, fakePlaces{}, nil)
	an := analytics.NewEngine(st, nil)
	deps := Deps{
		Service:   svc,
		Analytics: an,
		Alerts:    alerts.NewEngine(st, alerts.DefaultRules(an), nil),
		Collector: scheduler.New(svc, st, nil, scheduler.Options{}, nil),
	}
	return testEnv{app: NewApp(deps), store: st}
}

func (e testEnv) do(t *testing.T, method, path string, user int64, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user > 0 {
		req.Header.Set(UserHeader, fmt.Sprint(user))
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("invalid json %q: %v", raw, err)
		}
	}
	return resp, out
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, fakeClient{})

	resp, body := env.do(t, http.MethodGet, "/health", 0, "")
	expectStatus(t, resp, http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}

	resp, _ = env.do(t, http.MethodGet, "/metrics", 0, "")
	expectStatus(t, resp, http.StatusOK)
}

func TestRequiresUser(t *testing.T) {
	env := newTestEnv(t, fakeClient{})

	resp, body := env.do(t, http.MethodGet, "/api/v1/locations", 0, "")
	expectStatus(t, resp, http.StatusUnauthorized)
	if body["error"] != true {
		t.Fatalf("expected error body, got %v", body)
	}
}

func TestCreateLocationCollectsImmediately(t *testing.T) {
	env := newTestEnv(t, fakeClient{})

	resp, body := env.do(t, http.MethodPost, "/api/v1/locations", 1, `{"name":"Berlin","latitude":52.52,"longitude":13.41}`)
	expectStatus(t, resp, http.StatusCreated)
	if body["collected"] != true {
		t.Fatalf("expected collected=true, got %v", body)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/locations/1/samples?limit=5", 1, "")
	expectStatus(t, resp, http.StatusOK)
	if samples, _ := body["samples"].([]any); len(samples) != 5 {
		t.Fatalf("expected 5 samples, got %v", body["samples"])
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/locations/1/daily", 1, "")
	expectStatus(t, resp, http.StatusOK)
	if daily, _ := body["daily"].([]any); len(daily) != 1 {
		t.Fatalf("expected one daily row, got %v", body["daily"])
	}
}

func TestCreateLocationUpstreamFailureStillCreates(t *testing.T) {
	env := newTestEnv(t, fakeClient{err: &weather.UpstreamError{Op: "forecast", Err: weather.ErrUpstreamUnavailable}})

	resp, body := env.do(t, http.MethodPost, "/api/v1/locations", 1, `{"name":"Berlin","latitude":52.52,"longitude":13.41}`)
	expectStatus(t, resp, http.StatusCreated)
	if body["collected"] != false {
		t.Fatalf("expected collected=false, got %v", body)
	}
}

func TestCreateLocationValidation(t *testing.T) {
	env := newTestEnv(t, fakeClient{})

	for _, payload := range []string{
		`{"name":"North","latitude":91,"longitude":0}`,
		`{"name":"","latitude":10,"longitude":10}`,
		`{"name":"NoLon","latitude":10}`,
		`not json`,
	} {
		resp, _ := env.do(t, http.MethodPost, "/api/v1/locations", 1, payload)
		expectStatus(t, resp, http.StatusBadRequest)
	}
}

func TestLocationsAreScopedToOwner(t *testing.T) {
	env := newTestEnv(t, fakeClient{})
	env.do(t, http.MethodPost, "/api/v1/locations", 1, `{"name":"Home","latitude":10,"longitude":10}`)

	for _, path := range []string{
		"/api/v1/locations/1/alerts",
		"/api/v1/analytics/1/trends",
		"/api/v1/weather/1",
	} {
		resp, _ := env.do(t, http.MethodGet, path, 2, "")
		expectStatus(t, resp, http.StatusNotFound)
	}

	resp, _ := env.do(t, http.MethodDelete, "/api/v1/locations/1", 2, "")
	expectStatus(t, resp, http.StatusNotFound)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/locations/1", 1, "")
	expectStatus(t, resp, http.StatusNoContent)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/locations/1/alerts", 1, "")
	expectStatus(t, resp, http.StatusNotFound)
}

func TestAlertsEndpoints(t *testing.T) {
	env := newTestEnv(t, fakeClient{})
	env.do(t, http.MethodPost, "/api/v1/locations", 1, `{"name":"Home","latitude":10,"longitude":10}`)

	resp, body := env.do(t, http.MethodGet, "/api/v1/locations/1/alerts", 1, "")
	expectStatus(t, resp, http.StatusOK)
	list, _ := body["alerts"].([]any)
	if len(list) == 0 {
		t.Fatalf("expected alerts, got %v", body)
	}
	first, _ := list[0].(map[string]any)
	if first["title"] != "Freezing Temperature" || first["severity"] != "critical" {
		t.Fatalf("expected freezing alert first, got %v", first)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/locations/1/alerts/summary", 1, "")
	expectStatus(t, resp, http.StatusOK)
	bySeverity, _ := body["by_severity"].(map[string]any)
	if len(bySeverity) != 4 || bySeverity["critical"] != float64(1) {
		t.Fatalf("unexpected summary: %v", body)
	}
}

func TestAnalyticsParameterRanges(t *testing.T) {
	env := newTestEnv(t, fakeClient{})
	env.do(t, http.MethodPost, "/api/v1/locations", 1, `{"name":"Home","latitude":10,"longitude":10}`)

	cases := map[string]int{
		"/api/v1/analytics/1/trends?days=5":          http.StatusBadRequest,
		"/api/v1/analytics/1/trends?days=91":         http.StatusBadRequest,
		"/api/v1/analytics/1/trends?days=abc":        http.StatusBadRequest,
		"/api/v1/analytics/1/trends?metric=uv_index": http.StatusOK,
		"/api/v1/analytics/1/anomalies?days=7":       http.StatusOK,
		"/api/v1/analytics/1/historical?days=0":      http.StatusBadRequest,
		"/api/v1/analytics/1/historical?days=365":    http.StatusOK,
		"/api/v1/analytics/1/forecast?hours=169":     http.StatusBadRequest,
		"/api/v1/analytics/1/forecast":               http.StatusOK,
		"/api/v1/analytics/1/summary?days=6":         http.StatusBadRequest,
		"/api/v1/analytics/1/summary":                http.StatusOK,
		"/api/v1/analytics/x/summary":                http.StatusBadRequest,
	}
	for path, want := range cases {
		resp, _ := env.do(t, http.MethodGet, path, 1, "")
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
}

func TestTrendInsufficientData(t *testing.T) {
	env := newTestEnv(t, fakeClient{})
	env.do(t, http.MethodPost, "/api/v1/locations", 1, `{"name":"Home","latitude":10,"longitude":10}`)

	resp, body := env.do(t, http.MethodGet, "/api/v1/analytics/1/trends?metric=humidity", 1, "")
	expectStatus(t, resp, http.StatusOK)
	if body["trend"] != "insufficient_data" || body["direction"] != "stable" {
		t.Fatalf("unexpected trend: %v", body)
	}
}

func TestLiveWeatherUpstreamTimeout(t *testing.T) {
	env := newTestEnv(t, fakeClient{err: &weather.UpstreamError{Op: "forecast", Err: weather.ErrUpstreamTimeout}})
	env.do(t, http.MethodPost, "/api/v1/locations", 1, `{"name":"Home","latitude":10,"longitude":10}`)

	resp, body := env.do(t, http.MethodGet, "/api/v1/weather/1", 1, "")
	expectStatus(t, resp, http.StatusGatewayTimeout)
	if body["error"] != true {
		t.Fatalf("expected error body, got %v", body)
	}
}

func TestSearchPlaces(t *testing.T) {
	env := newTestEnv(t, fakeClient{})

	resp, _ := env.do(t, http.MethodGet, "/api/v1/places/search?q=%20%20", 1, "")
	expectStatus(t, resp, http.StatusBadRequest)

	resp, body := env.do(t, http.MethodGet, "/api/v1/places/search?q=Berlin", 1, "")
	expectStatus(t, resp, http.StatusOK)
	if results, _ := body["results"].([]any); len(results) != 1 {
		t.Fatalf("unexpected results: %v", body)
	}
}

func TestCollectEndpoint(t *testing.T) {
	env := newTestEnv(t, fakeClient{})
	env.do(t, http.MethodPost, "/api/v1/locations", 1, `{"name":"Home","latitude":10,"longitude":10}`)
	env.do(t, http.MethodPost, "/api/v1/locations", 2, `{"name":"Office","latitude":20,"longitude":20}`)

	resp, body := env.do(t, http.MethodPost, "/api/v1/collect", 1, "")
	expectStatus(t, resp, http.StatusOK)
	if body["succeeded"] != float64(2) || body["total"] != float64(2) || body["result"] != "2/2 succeeded" {
		t.Fatalf("unexpected collect result: %v", body)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", weather.ErrInvalidCoordinate), http.StatusBadRequest},
		{fmt.Errorf("x: %w", weather.ErrInvalidQuery), http.StatusBadRequest},
		{fmt.Errorf("x: %w", weather.ErrNotFound), http.StatusNotFound},
		{&weather.UpstreamError{Err: weather.ErrUpstreamUnavailable}, http.StatusBadGateway},
		{&weather.UpstreamError{Err: weather.ErrUpstreamTimeout}, http.StatusGatewayTimeout},
		{weather.StoreErr("op", fmt.Errorf("disk full")), http.StatusInternalServerError},
		{fiber.NewError(http.StatusTeapot, "tea"), http.StatusTeapot},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Fatalf("%v: expected %d, got %d", c.err, c.want, got)
		}
	}
}
