// Package alerts turns recent and near-future weather samples into a ranked
// list of human-readable alerts. Alerts are recomputed on every call and
// never persisted.
package alerts

import (
	"context"
	"time"

	"github.com/i474232898/homenet-weather/internal/weather"
)

type Severity string

const (
	SeverityCritical       Severity = "critical"
	SeverityWarning        Severity = "warning"
	SeverityInfo           Severity = "info"
	SeverityRecommendation Severity = "recommendation"
)

// Severities lists every severity in rank order.
var Severities = []Severity{SeverityCritical, SeverityWarning, SeverityInfo, SeverityRecommendation}

// Rank orders severities, most urgent first. Unknown values sort last.
func (s Severity) Rank() int {
	for i, sev := range Severities {
		if sev == s {
			return i
		}
	}
	return len(Severities)
}

type Alert struct {
	Type           string    `json:"type"`
	Severity       Severity  `json:"severity"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Recommendation string    `json:"recommendation"`
	Timestamp      time.Time `json:"timestamp"`
	Icon           string    `json:"icon"`
}

// Conditions is the input every rule sees. Recent is newest first and
// Current is Recent[0]; Forecast is oldest first.
type Conditions struct {
	LocationID int64
	Now        time.Time
	Current    weather.Sample
	Recent     []weather.Sample
	Forecast   []weather.Sample
}

// Rule evaluates one family of alerts. A rule may return any number of
// alerts; rules never see each other's output.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, c Conditions) ([]Alert, error)
}

// Summary aggregates active alerts by severity and by type.
type Summary struct {
	TotalAlerts int              `json:"total_alerts"`
	BySeverity  map[Severity]int `json:"by_severity"`
	ByType      map[string]int   `json:"by_type"`
	Alerts      []Alert          `json:"alerts"`
}

// Summarize counts alerts. Every severity key is present even when zero.
func Summarize(alerts []Alert) Summary {
	s := Summary{
		TotalAlerts: len(alerts),
		BySeverity:  make(map[Severity]int, len(Severities)),
		ByType:      make(map[string]int),
		Alerts:      alerts,
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, a := range alerts {
		s.BySeverity[a.Severity]++
		typ := a.Type
		if typ == "" {
			typ = "other"
		}
		s.ByType[typ]++
	}
	if s.Alerts == nil {
		s.Alerts = []Alert{}
	}
	return s
}
