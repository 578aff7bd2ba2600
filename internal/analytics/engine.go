// Package analytics derives trends, anomalies and summary statistics from
// stored weather samples. Every call performs a single store read and then
// computes in memory; the Engine holds no mutable state.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/homenet-weather/internal/weather"
)

// Direction classifies the sign of a trend slope.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

const (
	// stableSlope is in metric units per hour and is not rescaled per metric.
	stableSlope = 0.01

	predictionSteps = 24
	maxAnomalies    = 10

	TrendInsufficientData = "insufficient_data"
)

// TrendMetrics are the metrics a trend can be computed for. Anything else
// falls back to temperature.
var TrendMetrics = []string{
	weather.MetricTemperature,
	weather.MetricHumidity,
	weather.MetricPrecipitation,
	weather.MetricWindSpeed,
	weather.MetricUVIndex,
}

// statMetrics are summarized by Historical.
var statMetrics = []string{
	weather.MetricTemperature,
	weather.MetricHumidity,
	weather.MetricPrecipitation,
	weather.MetricWindSpeed,
}

// TrendResult is a linear fit of one metric over a window. X is hours since
// the first sample, so Slope is units per hour.
type TrendResult struct {
	Metric       string    `json:"metric"`
	Trend        string    `json:"trend"`
	Direction    Direction `json:"direction"`
	Slope        float64   `json:"slope"`
	SlopePerDay  float64   `json:"slope_per_day"`
	Confidence   float64   `json:"confidence"`
	DataPoints   int       `json:"data_points"`
	Predictions  []float64 `json:"predictions,omitempty"`
	CurrentValue *float64  `json:"current_value,omitempty"`
	Predicted24h *float64  `json:"predicted_24h,omitempty"`
}

// Insufficient reports whether the window held fewer than two points.
func (t TrendResult) Insufficient() bool {
	return t.Trend == TrendInsufficientData
}

// Anomaly is a temperature reading more than two standard deviations from the window mean.
type Anomaly struct {
	Timestamp     time.Time  `json:"timestamp"`
	Metric        string     `json:"metric"`
	Value         float64    `json:"value"`
	Deviation     float64    `json:"deviation"`
	ExpectedRange [2]float64 `json:"expected_range"`
	Severity      string     `json:"severity"`
}

type AnomalyReport struct {
	Anomalies  []Anomaly `json:"anomalies"`
	Total      int       `json:"total"`
	PeriodDays int       `json:"period_days"`
}

type HistoricalReport struct {
	Data       []weather.Sample `json:"data"`
	Statistics map[string]Stats `json:"statistics"`
	DataPoints int              `json:"data_points"`
	PeriodDays int              `json:"period_days"`
}

type MetricForecast struct {
	Current    *float64  `json:"current"`
	Predicted  float64   `json:"predicted"`
	Trend      Direction `json:"trend"`
	Confidence float64   `json:"confidence"`
}

type ForecastReport struct {
	LocationID    int64                     `json:"location_id"`
	ForecastHours int                       `json:"forecast_hours"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	Forecasts     map[string]MetricForecast `json:"forecasts"`
}

type TrendSummary struct {
	Direction    Direction `json:"direction"`
	ChangePerDay float64   `json:"change_per_day"`
}

type SummaryReport struct {
	Period struct {
		Days       int `json:"days"`
		DataPoints int `json:"data_points"`
	} `json:"period"`
	Statistics  map[string]Stats        `json:"statistics"`
	Trends      map[string]TrendSummary `json:"trends"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Engine computes analytics over a SampleReader.
type Engine struct {
	samples weather.SampleReader
	logger  *zap.Logger
	now     func() time.Time
}

func NewEngine(samples weather.SampleReader, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		samples: samples,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) since(days int) time.Time {
	return e.now().Add(-time.Duration(days) * 24 * time.Hour)
}

// Trend fits metric over the last days. Fewer than two non-null points yield
// an insufficient_data result rather than an error.
func (e *Engine) Trend(ctx context.Context, locationID int64, metric string, days int) (TrendResult, error) {
	metric = normalizeMetric(metric)

	samples, err := e.samples.SamplesSince(ctx, locationID, e.since(days))
	if err != nil {
		return TrendResult{}, err
	}

	var ts []time.Time
	var ys []float64
	for _, s := range samples {
		if v, ok := s.Metric(metric); ok {
			ts = append(ts, s.Timestamp)
			ys = append(ys, v)
		}
	}

	res := trendFromPoints(metric, ts, ys)
	if res.Insufficient() {
		e.logger.Debug("insufficient data for trend",
			zap.Int64("location_id", locationID),
			zap.String("metric", metric),
			zap.Int("points", len(ys)),
		)
	}
	return res, nil
}

func trendFromPoints(metric string, ts []time.Time, ys []float64) TrendResult {
	if len(ys) < 2 {
		return TrendResult{
			Metric:     metric,
			Trend:      TrendInsufficientData,
			Direction:  Stable,
			DataPoints: len(ys),
		}
	}

	xs := make([]float64, len(ts))
	for i, t := range ts {
		xs[i] = t.Sub(ts[0]).Hours()
	}
	fit := fitLine(xs, ys)

	dir := Stable
	switch {
	case math.Abs(fit.slope) < stableSlope:
	case fit.slope > 0:
		dir = Increasing
	default:
		dir = Decreasing
	}

	last := xs[len(xs)-1]
	predictions := make([]float64, predictionSteps)
	for i := range predictions {
		predictions[i] = fit.at(last + float64(i+1))
	}
	current := ys[len(ys)-1]
	predicted := predictions[len(predictions)-1]

	return TrendResult{
		Metric:       metric,
		Trend:        string(dir),
		Direction:    dir,
		Slope:        fit.slope,
		SlopePerDay:  fit.slope * 24,
		Confidence:   fit.r2,
		DataPoints:   len(ys),
		Predictions:  predictions,
		CurrentValue: &current,
		Predicted24h: &predicted,
	}
}

// Anomalies flags temperature readings outside mean ± 2σ over the last days.
// The first ten in time order are returned; Total counts all of them.
func (e *Engine) Anomalies(ctx context.Context, locationID int64, days int) (AnomalyReport, error) {
	samples, err := e.samples.SamplesSince(ctx, locationID, e.since(days))
	if err != nil {
		return AnomalyReport{}, err
	}

	found := detectAnomalies(samples)
	report := AnomalyReport{
		Anomalies:  found,
		Total:      len(found),
		PeriodDays: days,
	}
	if len(found) > maxAnomalies {
		report.Anomalies = found[:maxAnomalies]
	}
	if report.Anomalies == nil {
		report.Anomalies = []Anomaly{}
	}
	return report, nil
}

func detectAnomalies(samples []weather.Sample) []Anomaly {
	var values []float64
	for _, s := range samples {
		if v, ok := s.Metric(weather.MetricTemperature); ok {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return nil
	}

	mean := meanOf(values)
	std, _ := sampleStd(values, mean)
	low, high := mean-2*std, mean+2*std

	var out []Anomaly
	for _, s := range samples {
		v, ok := s.Metric(weather.MetricTemperature)
		if !ok {
			continue
		}
		dev := math.Abs(v - mean)
		if dev <= 2*std {
			continue
		}
		severity := "medium"
		if dev > 3*std {
			severity = "high"
		}
		out = append(out, Anomaly{
			Timestamp:     s.Timestamp,
			Metric:        weather.MetricTemperature,
			Value:         v,
			Deviation:     dev / std,
			ExpectedRange: [2]float64{low, high},
			Severity:      severity,
		})
	}
	return out
}

// Historical returns every sample in the window, oldest first, plus statistics.
func (e *Engine) Historical(ctx context.Context, locationID int64, days int) (HistoricalReport, error) {
	samples, err := e.samples.SamplesSince(ctx, locationID, e.since(days))
	if err != nil {
		return HistoricalReport{}, err
	}
	if samples == nil {
		samples = []weather.Sample{}
	}
	return HistoricalReport{
		Data:       samples,
		Statistics: statistics(samples),
		DataPoints: len(samples),
		PeriodDays: days,
	}, nil
}

func statistics(samples []weather.Sample) map[string]Stats {
	out := make(map[string]Stats, len(statMetrics))
	for _, metric := range statMetrics {
		var values []float64
		for _, s := range samples {
			if v, ok := s.Metric(metric); ok {
				values = append(values, v)
			}
		}
		out[metric] = describe(values)
	}
	return out
}

// Forecast extrapolates the 7-day trend of each summarized metric. Metrics
// without enough data are omitted.
func (e *Engine) Forecast(ctx context.Context, locationID int64, hours int) (ForecastReport, error) {
	report := ForecastReport{
		LocationID:    locationID,
		ForecastHours: hours,
		GeneratedAt:   e.now(),
		Forecasts:     make(map[string]MetricForecast),
	}
	for _, metric := range statMetrics {
		tr, err := e.Trend(ctx, locationID, metric, 7)
		if err != nil {
			return ForecastReport{}, err
		}
		if tr.Predicted24h == nil {
			continue
		}
		report.Forecasts[metric] = MetricForecast{
			Current:    tr.CurrentValue,
			Predicted:  *tr.Predicted24h,
			Trend:      tr.Direction,
			Confidence: tr.Confidence,
		}
	}
	return report, nil
}

// Summary combines Historical statistics with temperature and humidity trends.
// It returns weather.ErrNotFound when the window holds no samples.
func (e *Engine) Summary(ctx context.Context, locationID int64, days int) (SummaryReport, error) {
	hist, err := e.Historical(ctx, locationID, days)
	if err != nil {
		return SummaryReport{}, err
	}
	if hist.DataPoints == 0 {
		return SummaryReport{}, fmt.Errorf("no data available for location %d: %w", locationID, weather.ErrNotFound)
	}

	var report SummaryReport
	report.Period.Days = days
	report.Period.DataPoints = hist.DataPoints
	report.Statistics = hist.Statistics
	report.Trends = make(map[string]TrendSummary, 2)
	report.GeneratedAt = e.now()

	for _, metric := range []string{weather.MetricTemperature, weather.MetricHumidity} {
		tr, err := e.Trend(ctx, locationID, metric, days)
		if err != nil {
			return SummaryReport{}, err
		}
		report.Trends[metric] = TrendSummary{Direction: tr.Direction, ChangePerDay: tr.SlopePerDay}
	}
	return report, nil
}

func normalizeMetric(metric string) string {
	for _, m := range TrendMetrics {
		if m == metric {
			return m
		}
	}
	return weather.MetricTemperature
}
