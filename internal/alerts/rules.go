package alerts

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/i474232898/homenet-weather/internal/analytics"
	"github.com/i474232898/homenet-weather/internal/weather"
)

// Thresholds. Temperature in °C, precipitation in mm, wind in km/h, humidity in %.
const (
	rainPointMin     = 0.1
	heavyRainTotal   = 5.0
	lightRainTotal   = 0.5
	tempSwing        = 8.0
	freezingTemp     = 0.0
	extremeHeatTemp  = 35.0
	highHumidity     = 80.0
	greatScore       = 80
	highWindCurrent  = 50.0
	highWindForecast = 60.0

	precipHorizon  = 6
	tempHorizon    = 12
	comfortHorizon = 12
	windHorizon    = 6

	anomalyWindowDays = 7
)

// AnomalySource reports statistical anomalies for a location.
type AnomalySource interface {
	Anomalies(ctx context.Context, locationID int64, days int) (analytics.AnomalyReport, error)
}

// DefaultRules returns the rule battery in evaluation order.
func DefaultRules(anomalies AnomalySource) []Rule {
	return []Rule{
		ruleFunc{"precipitation", precipitationAlerts},
		ruleFunc{"temperature", temperatureAlerts},
		ruleFunc{"comfort", comfortAlerts},
		anomalyRule{source: anomalies},
		ruleFunc{"wind", windAlerts},
		ruleFunc{"uv", uvAlerts},
	}
}

type ruleFunc struct {
	name string
	fn   func(Conditions) []Alert
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) Evaluate(_ context.Context, c Conditions) ([]Alert, error) {
	return r.fn(c), nil
}

func head(samples []weather.Sample, n int) []weather.Sample {
	if len(samples) > n {
		return samples[:n]
	}
	return samples
}

func newAlert(c Conditions, typ string, sev Severity, title, message, recommendation, icon string) Alert {
	return Alert{
		Type:           typ,
		Severity:       sev,
		Title:          title,
		Message:        message,
		Recommendation: recommendation,
		Timestamp:      c.Now,
		Icon:           icon,
	}
}

func precipitationAlerts(c Conditions) []Alert {
	var out []Alert

	total, first := 0.0, -1
	for i, f := range head(c.Forecast, precipHorizon) {
		if f.Precipitation == nil || *f.Precipitation <= rainPointMin {
			continue
		}
		if first < 0 {
			first = i
		}
		total += *f.Precipitation
	}

	if first >= 0 {
		switch {
		case total > heavyRainTotal:
			out = append(out, newAlert(c, "precipitation", SeverityWarning,
				"Heavy Rain Expected",
				fmt.Sprintf("Heavy rain (%.1fmm) expected in %d hour(s)", total, first),
				"Consider postponing outdoor activities",
				"cloud-rain"))
		case total > lightRainTotal:
			out = append(out, newAlert(c, "precipitation", SeverityInfo,
				"Rain Expected",
				fmt.Sprintf("Rain (%.1fmm) expected in %d hour(s)", total, first),
				"Bring an umbrella if going out",
				"cloud-drizzle"))
		}
	}

	if p := c.Current.Precipitation; p != nil && *p > rainPointMin {
		out = append(out, newAlert(c, "precipitation", SeverityInfo,
			"Currently Raining",
			fmt.Sprintf("Active precipitation: %.1fmm/h", *p),
			"Take precautions if going outside",
			"cloud-rain"))
	}
	return out
}

func fahrenheitDelta(c float64) float64 { return c * 1.8 }
func fahrenheit(c float64) float64      { return c*1.8 + 32 }

func temperatureAlerts(c Conditions) []Alert {
	if c.Current.Temperature == nil {
		return nil
	}
	current := *c.Current.Temperature
	var out []Alert

	if len(c.Forecast) >= tempHorizon {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, f := range c.Forecast[:tempHorizon] {
			if f.Temperature == nil {
				continue
			}
			lo = math.Min(lo, *f.Temperature)
			hi = math.Max(hi, *f.Temperature)
		}
		if !math.IsInf(lo, 1) {
			if drop := current - lo; drop >= tempSwing {
				out = append(out, newAlert(c, "temperature", SeverityWarning,
					"Significant Temperature Drop",
					fmt.Sprintf("Temperature dropping %.1f°C (%.0f°F) in next 12 hours", drop, fahrenheitDelta(drop)),
					"Adjust home heating and dress warmly",
					"thermometer-snow"))
			}
			if rise := hi - current; rise >= tempSwing {
				out = append(out, newAlert(c, "temperature", SeverityInfo,
					"Temperature Rising",
					fmt.Sprintf("Temperature increasing %.1f°C (%.0f°F) today", rise, fahrenheitDelta(rise)),
					"Consider adjusting cooling systems",
					"thermometer-sun"))
			}
		}
	}

	switch {
	case current <= freezingTemp:
		out = append(out, newAlert(c, "temperature", SeverityCritical,
			"Freezing Temperature",
			fmt.Sprintf("Current temperature: %.1f°C (%.0f°F)", current, fahrenheit(current)),
			"Protect pipes and sensitive plants",
			"snowflake"))
	case current >= extremeHeatTemp:
		out = append(out, newAlert(c, "temperature", SeverityCritical,
			"Extreme Heat",
			fmt.Sprintf("Current temperature: %.1f°C (%.0f°F)", current, fahrenheit(current)),
			"Stay hydrated and avoid prolonged sun exposure",
			"sun"))
	}
	return out
}

// comfortScore rates a forecast point for outdoor activity. A missing metric
// contributes no adjustment.
func comfortScore(s weather.Sample) int {
	score := 100
	if t := s.Temperature; t != nil {
		switch {
		case *t >= 15 && *t <= 25:
			score += 20
		case *t < 10 || *t > 30:
			score -= 30
		}
	}
	if h := s.Humidity; h != nil {
		switch {
		case *h < 60:
			score += 10
		case *h > 80:
			score -= 20
		}
	}
	if p := s.Precipitation; p != nil {
		if *p < rainPointMin {
			score += 20
		} else {
			score -= 50
		}
	}
	if w := s.WindSpeed; w != nil {
		if *w < 20 {
			score += 10
		} else {
			score -= 15
		}
	}
	return score
}

func comfortAlerts(c Conditions) []Alert {
	var out []Alert
	cur := c.Current
	dry := cur.Precipitation != nil && *cur.Precipitation < rainPointMin

	bestIdx, bestScore := -1, 0
	for i, f := range head(c.Forecast, comfortHorizon) {
		if score := comfortScore(f); bestIdx < 0 || score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx >= 0 && bestScore >= greatScore && dry {
		at := c.Now.Add(time.Duration(bestIdx) * time.Hour)
		out = append(out, newAlert(c, "recommendation", SeverityRecommendation,
			"Great Weather Ahead",
			fmt.Sprintf("Excellent outdoor conditions around %s", at.Format("03 PM")),
			"Perfect time for outdoor activities",
			"sun"))
	}

	if cur.Temperature != nil && cur.Humidity != nil && cur.WindSpeed != nil && dry {
		t, h, w := *cur.Temperature, *cur.Humidity, *cur.WindSpeed
		if t >= 18 && t <= 24 && h < 70 && w < 25 {
			out = append(out, newAlert(c, "recommendation", SeverityRecommendation,
				"Ideal Weather Conditions",
				"Current conditions are excellent for outdoor activities",
				"Great time to be outside!",
				"cloud-sun"))
		}
	}

	if h := cur.Humidity; h != nil && *h > highHumidity {
		out = append(out, newAlert(c, "comfort", SeverityInfo,
			"High Humidity",
			fmt.Sprintf("Current humidity: %.0f%%", *h),
			"Use dehumidifier for indoor comfort",
			"droplet"))
	}
	return out
}

// anomalyRule raises a warning for anomalies within an hour of the current sample.
type anomalyRule struct {
	source AnomalySource
}

func (anomalyRule) Name() string { return "anomaly" }

func (r anomalyRule) Evaluate(ctx context.Context, c Conditions) ([]Alert, error) {
	if r.source == nil {
		return nil, nil
	}
	report, err := r.source.Anomalies(ctx, c.LocationID, anomalyWindowDays)
	if err != nil {
		return nil, err
	}

	var out []Alert
	for _, a := range report.Anomalies {
		diff := a.Timestamp.Sub(c.Current.Timestamp)
		if diff < 0 {
			diff = -diff
		}
		if diff > time.Hour {
			continue
		}
		out = append(out, newAlert(c, "anomaly", SeverityWarning,
			"Unusual Weather Pattern",
			fmt.Sprintf("Abnormal %s: %.1f (deviation: %.1fσ)", a.Metric, a.Value, a.Deviation),
			"Weather conditions differ from historical patterns",
			"alert-triangle"))
	}
	return out, nil
}

func windAlerts(c Conditions) []Alert {
	var out []Alert

	if w := c.Current.WindSpeed; w != nil && *w > highWindCurrent {
		out = append(out, newAlert(c, "wind", SeverityWarning,
			"High Wind Warning",
			fmt.Sprintf("Current wind speed: %.0f km/h (%.0f mph)", *w, *w*0.621),
			"Secure loose outdoor items",
			"wind"))
	}

	peak, seen := 0.0, false
	for _, f := range head(c.Forecast, windHorizon) {
		if f.WindSpeed == nil {
			continue
		}
		if !seen || *f.WindSpeed > peak {
			peak, seen = *f.WindSpeed, true
		}
	}
	if seen && peak > highWindForecast {
		out = append(out, newAlert(c, "wind", SeverityWarning,
			"Strong Winds Expected",
			fmt.Sprintf("Wind gusts up to %.0f km/h expected", peak),
			"Prepare for strong winds",
			"wind"))
	}
	return out
}

// uvAlerts is a placeholder slot. UV data is collected but no thresholds are
// defined yet, so it never fires.
func uvAlerts(Conditions) []Alert {
	return nil
}
