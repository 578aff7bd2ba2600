package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/i474232898/homenet-weather/internal/store"
	"github.com/i474232898/homenet-weather/internal/weather"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, samples []weather.Sample) (*Engine, int64) {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	id, err := st.GetOrCreateLocation(ctx, "Home", 10, 10, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) > 0 {
		if err := st.AppendHourlySamples(ctx, id, samples); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	e := NewEngine(st, nil)
	e.now = func() time.Time { return testNow }
	return e, id
}

func hourly(start time.Time, temps ...float64) []weather.Sample {
	out := make([]weather.Sample, len(temps))
	for i, v := range temps {
		out[i] = weather.Sample{Timestamp: start.Add(time.Duration(i) * time.Hour), Temperature: weather.Float(v)}
	}
	return out
}

func TestTrendInsufficientData(t *testing.T) {
	for _, n := range []int{0, 1} {
		temps := make([]float64, n)
		e, id := newTestEngine(t, hourly(testNow.Add(-5*time.Hour), temps...))

		tr, err := e.Trend(context.Background(), id, weather.MetricTemperature, 30)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !tr.Insufficient() || tr.Direction != Stable || tr.Slope != 0 || tr.Confidence != 0 {
			t.Fatalf("%d samples: expected insufficient stable trend, got %+v", n, tr)
		}
	}
}

func TestTrendLinearSeries(t *testing.T) {
	temps := make([]float64, 48)
	for i := range temps {
		temps[i] = 5 + float64(i)
	}
	e, id := newTestEngine(t, hourly(testNow.Add(-47*time.Hour), temps...))

	tr, err := e.Trend(context.Background(), id, weather.MetricTemperature, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != Increasing {
		t.Fatalf("expected increasing, got %s", tr.Direction)
	}
	if math.Abs(tr.Slope-1) > 1e-9 || math.Abs(tr.SlopePerDay-24) > 1e-7 {
		t.Fatalf("expected slope 1/h, got %v (%v/day)", tr.Slope, tr.SlopePerDay)
	}
	if math.Abs(tr.Confidence-1) > 1e-9 {
		t.Fatalf("expected confidence ~1, got %v", tr.Confidence)
	}
	if tr.DataPoints != 48 || len(tr.Predictions) != 24 {
		t.Fatalf("unexpected sizes: %d points, %d predictions", tr.DataPoints, len(tr.Predictions))
	}
	if *tr.CurrentValue != 52 || math.Abs(*tr.Predicted24h-76) > 1e-7 {
		t.Fatalf("unexpected current/predicted: %v/%v", *tr.CurrentValue, *tr.Predicted24h)
	}
}

func TestTrendUnknownMetricFallsBackToTemperature(t *testing.T) {
	e, id := newTestEngine(t, hourly(testNow.Add(-3*time.Hour), 10, 8, 6))

	tr, err := e.Trend(context.Background(), id, "pressure", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Metric != weather.MetricTemperature || tr.Direction != Decreasing {
		t.Fatalf("unexpected trend: %+v", tr)
	}
}

func TestTrendConstantSeriesIsStable(t *testing.T) {
	e, id := newTestEngine(t, hourly(testNow.Add(-3*time.Hour), 20, 20, 20, 20))

	tr, err := e.Trend(context.Background(), id, weather.MetricTemperature, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Direction != Stable || tr.Confidence != 1 {
		t.Fatalf("expected stable perfect fit, got %+v", tr)
	}
}

func TestAnomaliesConstantSeries(t *testing.T) {
	temps := make([]float64, 30)
	for i := range temps {
		temps[i] = 0.1
	}
	e, id := newTestEngine(t, hourly(testNow.Add(-40*time.Hour), temps...))

	rep, err := e.Anomalies(context.Background(), id, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Total != 0 || len(rep.Anomalies) != 0 {
		t.Fatalf("expected no anomalies, got %+v", rep)
	}
}

func TestAnomaliesTruncatesInEncounterOrder(t *testing.T) {
	var temps []float64
	for i := 0; i < 200; i++ {
		temps = append(temps, 15)
	}
	// 12 outliers of increasing magnitude; the first ten in time order survive.
	for i := 0; i < 12; i++ {
		temps = append(temps, 40+float64(i))
	}
	e, id := newTestEngine(t, hourly(testNow.Add(-240*time.Hour), temps...))

	rep, err := e.Anomalies(context.Background(), id, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Total != 12 || len(rep.Anomalies) != 10 || rep.PeriodDays != 30 {
		t.Fatalf("unexpected report sizes: total=%d returned=%d", rep.Total, len(rep.Anomalies))
	}
	if rep.Anomalies[0].Value != 40 || rep.Anomalies[9].Value != 49 {
		t.Fatalf("expected encounter order, got %v..%v", rep.Anomalies[0].Value, rep.Anomalies[9].Value)
	}
	for _, a := range rep.Anomalies {
		if a.Severity != "high" || a.Deviation <= 3 {
			t.Fatalf("expected high severity beyond 3σ, got %+v", a)
		}
	}
}

func TestAnomaliesKeepsZeroReadings(t *testing.T) {
	temps := make([]float64, 40)
	for i := range temps {
		temps[i] = 20
	}
	temps[39] = 0
	e, id := newTestEngine(t, hourly(testNow.Add(-45*time.Hour), temps...))

	rep, err := e.Anomalies(context.Background(), id, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Total != 1 || rep.Anomalies[0].Value != 0 {
		t.Fatalf("expected the zero reading to be flagged, got %+v", rep)
	}
}

func TestHistoricalStatistics(t *testing.T) {
	samples := hourly(testNow.Add(-4*time.Hour), 10, 12, 14)
	samples[1].Humidity = weather.Float(50)
	e, id := newTestEngine(t, samples)

	rep, err := e.Historical(context.Background(), id, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.DataPoints != 3 || rep.PeriodDays != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	temp := rep.Statistics[weather.MetricTemperature]
	if *temp.Mean != 12 || *temp.Min != 10 || *temp.Max != 14 || *temp.Std != 2 {
		t.Fatalf("unexpected temperature stats: mean=%v min=%v max=%v std=%v", *temp.Mean, *temp.Min, *temp.Max, *temp.Std)
	}
	hum := rep.Statistics[weather.MetricHumidity]
	if *hum.Mean != 50 || hum.Std != nil {
		t.Fatalf("expected single-value humidity stats without std, got %+v", hum)
	}
	if wind := rep.Statistics[weather.MetricWindSpeed]; wind.Mean != nil {
		t.Fatal("expected nil stats for a metric with no data")
	}
}

func TestForecastOmitsMetricsWithoutData(t *testing.T) {
	e, id := newTestEngine(t, hourly(testNow.Add(-10*time.Hour), 10, 11, 12, 13))

	rep, err := e.Forecast(context.Background(), id, 24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.Forecasts) != 1 {
		t.Fatalf("expected only temperature, got %v", rep.Forecasts)
	}
	tf := rep.Forecasts[weather.MetricTemperature]
	if tf.Trend != Increasing || math.Abs(tf.Predicted-37) > 1e-7 {
		t.Fatalf("unexpected temperature forecast: %+v", tf)
	}
}

func TestSummaryWithoutData(t *testing.T) {
	e, id := newTestEngine(t, nil)
	if _, err := e.Summary(context.Background(), id, 30); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestSummaryTrends(t *testing.T) {
	e, id := newTestEngine(t, hourly(testNow.Add(-10*time.Hour), 10, 9, 8, 7))

	rep, err := e.Summary(context.Background(), id, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Period.DataPoints != 4 {
		t.Fatalf("unexpected data points: %d", rep.Period.DataPoints)
	}
	if tt := rep.Trends[weather.MetricTemperature]; tt.Direction != Decreasing || math.Abs(tt.ChangePerDay+24) > 1e-7 {
		t.Fatalf("unexpected temperature trend: %+v", tt)
	}
	if ht := rep.Trends[weather.MetricHumidity]; ht.Direction != Stable {
		t.Fatalf("expected stable humidity without data, got %+v", ht)
	}
}
