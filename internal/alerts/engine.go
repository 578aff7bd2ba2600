package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/homenet-weather/internal/metrics"
	"github.com/i474232898/homenet-weather/internal/weather"
)

const (
	recentWindow   = 24 * time.Hour
	forecastWindow = 24 * time.Hour
	windowLimit    = 24
)

// Engine evaluates a fixed, ordered rule battery against stored samples.
type Engine struct {
	samples weather.SampleReader
	rules   []Rule
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine creates an Engine. A nil rules slice selects DefaultRules without
// an anomaly source.
func NewEngine(samples weather.SampleReader, rules []Rule, logger *zap.Logger) *Engine {
	if rules == nil {
		rules = DefaultRules(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		samples: samples,
		rules:   rules,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Active returns the current alerts for a location, most severe first. It
// returns an empty list when either the last 24h or the next 24h hold no samples.
func (e *Engine) Active(ctx context.Context, locationID int64) ([]Alert, error) {
	now := e.now()

	recent, err := e.samples.RecentSamples(ctx, locationID, now.Add(-recentWindow), now, windowLimit)
	if err != nil {
		return nil, err
	}
	forecast, err := e.samples.ForecastSamples(ctx, locationID, now, forecastWindow, windowLimit)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 || len(forecast) == 0 {
		return []Alert{}, nil
	}

	c := Conditions{
		LocationID: locationID,
		Now:        now,
		Current:    recent[0],
		Recent:     recent,
		Forecast:   forecast,
	}

	out := []Alert{}
	for _, rule := range e.rules {
		alerts, err := e.evaluate(ctx, rule, c)
		if err != nil {
			e.logger.Warn("alert rule failed",
				zap.String("rule", rule.Name()),
				zap.Int64("location_id", locationID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, alerts...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	for _, a := range out {
		metrics.AlertsGenerated.WithLabelValues(string(a.Severity)).Inc()
	}
	return out, nil
}

// evaluate runs one rule, converting a panic into an error so the remaining
// rules still run.
func (e *Engine) evaluate(ctx context.Context, rule Rule, c Conditions) (alerts []Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			alerts, err = nil, fmt.Errorf("rule %s panicked: %v", rule.Name(), r)
		}
	}()
	return rule.Evaluate(ctx, c)
}

// Summary recomputes the active alerts and aggregates them.
func (e *Engine) Summary(ctx context.Context, locationID int64) (Summary, error) {
	alerts, err := e.Active(ctx, locationID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(alerts), nil
}
