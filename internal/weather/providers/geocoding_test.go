package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/i474232898/homenet-weather/internal/weather"
)

func geocodingServer(t *testing.T, n int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if got := r.URL.Query().Get("name"); got != "Springfield" {
			t.Errorf("expected trimmed query, got %q", got)
		}
		results := make([]string, 0, n)
		for i := 0; i < n; i++ {
			results = append(results, fmt.Sprintf(
				`{"name":"Springfield","country":"United States","admin1":"State %d","latitude":%d.5,"longitude":-%d.25}`, i, 30+i, 80+i))
		}
		fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(results, ","))
	}))
}

func TestSearchPlacesEmptyQuery(t *testing.T) {
	g := NewOpenMeteoGeocoder(newTestConfig(time.Second), "http://127.0.0.1:0")
	for _, q := range []string{"", "   ", "\t\n"} {
		if _, err := g.SearchPlaces(context.Background(), q); !errors.Is(err, weather.ErrInvalidQuery) {
			t.Fatalf("query %q: expected ErrInvalidQuery, got %v", q, err)
		}
	}
}

func TestSearchPlacesCapsResults(t *testing.T) {
	var calls int32
	srv := geocodingServer(t, 12, &calls)
	defer srv.Close()

	g := NewOpenMeteoGeocoder(newTestConfig(time.Second), srv.URL)
	matches, err := g.SearchPlaces(context.Background(), "  Springfield ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != MaxPlaceMatches {
		t.Fatalf("expected %d matches, got %d", MaxPlaceMatches, len(matches))
	}
	first := matches[0]
	if first.Region != "State 0" || first.Latitude != 30.5 || first.Longitude != -80.25 {
		t.Fatalf("unexpected first match: %+v", first)
	}
	if first.DisplayName != "Springfield, State 0, United States" {
		t.Fatalf("unexpected display name: %q", first.DisplayName)
	}
}

func TestSearchPlacesNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"generationtime_ms":0.5}`)
	}))
	defer srv.Close()

	g := NewOpenMeteoGeocoder(newTestConfig(time.Second), srv.URL)
	matches, err := g.SearchPlaces(context.Background(), "Nowhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestCachedPlaceSearcher(t *testing.T) {
	var calls int32
	srv := geocodingServer(t, 2, &calls)
	defer srv.Close()

	searcher := NewCachedPlaceSearcher(
		NewOpenMeteoGeocoder(newTestConfig(time.Second), srv.URL),
		NewMemoryPlaceCache(time.Minute),
	)

	for i := 0; i < 3; i++ {
		matches, err := searcher.SearchPlaces(context.Background(), "Springfield")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(matches))
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single upstream call, got %d", got)
	}
}

type echoSearcher struct{}

func (echoSearcher) SearchPlaces(_ context.Context, query string) ([]weather.PlaceMatch, error) {
	return []weather.PlaceMatch{{Name: query}}, nil
}

func TestCachedPlaceSearcherOwnsQueryMemory(t *testing.T) {
	searcher := NewCachedPlaceSearcher(echoSearcher{}, NewMemoryPlaceCache(time.Minute))

	// A string aliasing a buffer that is overwritten afterwards, as fasthttp
	// does with request buffers between requests.
	buf := []byte("alpha")
	query := unsafe.String(&buf[0], len(buf))
	if _, err := searcher.SearchPlaces(context.Background(), query); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	copy(buf, "bravo")

	matches, err := searcher.SearchPlaces(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "alpha" {
		t.Fatalf("cached match was corrupted: %+v", matches)
	}
}
