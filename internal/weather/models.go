package weather

import (
	"fmt"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionFog     Condition = "fog"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
)

// Metric names understood by Sample.Metric.
const (
	MetricTemperature              = "temperature"
	MetricApparentTemperature      = "apparent_temperature"
	MetricHumidity                 = "humidity"
	MetricPrecipitation            = "precipitation"
	MetricPrecipitationProbability = "precipitation_probability"
	MetricWindSpeed                = "wind_speed"
	MetricWindDirection            = "wind_direction"
	MetricCloudCover               = "cloud_cover"
	MetricUVIndex                  = "uv_index"
)

// Location is a saved place owned by exactly one user.
// Coordinates never change after creation.
type Location struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the canonical identity of a location within its owner's namespace.
func (l Location) Key() string {
	return fmt.Sprintf("%d:%s", l.UserID, l.Name)
}

// Sample is one timestamped reading for a location. Any metric may be nil
// when the upstream did not report it; zero is a valid reading.
type Sample struct {
	LocationID               int64     `json:"location_id"`
	Timestamp                time.Time `json:"timestamp"` // always UTC
	Temperature              *float64  `json:"temperature"`
	ApparentTemperature      *float64  `json:"apparent_temperature"`
	Humidity                 *float64  `json:"humidity"`
	Precipitation            *float64  `json:"precipitation"`
	PrecipitationProbability *float64  `json:"precipitation_probability"`
	WindSpeed                *float64  `json:"wind_speed"`
	WindDirection            *float64  `json:"wind_direction"`
	CloudCover               *float64  `json:"cloud_cover"`
	UVIndex                  *float64  `json:"uv_index"`
	WeatherCode              *int      `json:"weather_code"`
}

// Metric returns the named metric and whether it was reported.
func (s Sample) Metric(name string) (float64, bool) {
	var v *float64
	switch name {
	case MetricTemperature:
		v = s.Temperature
	case MetricApparentTemperature:
		v = s.ApparentTemperature
	case MetricHumidity:
		v = s.Humidity
	case MetricPrecipitation:
		v = s.Precipitation
	case MetricPrecipitationProbability:
		v = s.PrecipitationProbability
	case MetricWindSpeed:
		v = s.WindSpeed
	case MetricWindDirection:
		v = s.WindDirection
	case MetricCloudCover:
		v = s.CloudCover
	case MetricUVIndex:
		v = s.UVIndex
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Condition maps the WMO weather code to a Condition.
func (s Sample) Condition() Condition {
	if s.WeatherCode == nil {
		return ConditionUnknown
	}
	return ConditionFromCode(*s.WeatherCode)
}

// DailyAggregate is the per-day summary row for a location. The pair
// (LocationID, Date) is unique; Date is a local calendar day "2006-01-02".
type DailyAggregate struct {
	LocationID                  int64    `json:"location_id"`
	Date                        string   `json:"date"`
	TempMax                     *float64 `json:"temp_max"`
	TempMin                     *float64 `json:"temp_min"`
	PrecipitationSum            *float64 `json:"precipitation_sum"`
	PrecipitationProbabilityMax *float64 `json:"precipitation_probability_max"`
	WindSpeedMax                *float64 `json:"wind_speed_max"`
	UVIndexMax                  *float64 `json:"uv_index_max"`
}

// Forecast is the normalized result of one upstream forecast call.
// Hourly entries are ordered by Timestamp ascending.
type Forecast struct {
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	Timezone  string           `json:"timezone"`
	Current   *Sample          `json:"current,omitempty"`
	Hourly    []Sample         `json:"hourly"`
	Daily     []DailyAggregate `json:"daily"`
}

// PlaceMatch is one geocoding search result.
type PlaceMatch struct {
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	Region      string  `json:"admin1"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
}

// ConditionFromCode maps a WMO weather interpretation code (simplified).
func ConditionFromCode(code int) Condition {
	switch {
	case code == 0:
		return ConditionClear
	case code >= 1 && code <= 3:
		return ConditionCloudy
	case code == 45 || code == 48:
		return ConditionFog
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return ConditionSnow
	case code >= 95:
		return ConditionStorm
	default:
		return ConditionUnknown
	}
}

// Float returns a pointer to v. Handy for building samples.
func Float(v float64) *float64 { return &v }
