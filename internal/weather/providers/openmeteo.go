package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/homenet-weather/internal/weather"
)

const (
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

	openMeteoTimeLayout = "2006-01-02T15:04"

	currentFields = "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation," +
		"wind_speed_10m,wind_direction_10m,cloud_cover,weather_code"
	hourlyFields = "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation," +
		"precipitation_probability,wind_speed_10m,wind_direction_10m,cloud_cover,uv_index,weather_code"
	dailyFields = "temperature_2m_max,temperature_2m_min,precipitation_sum," +
		"precipitation_probability_max,wind_speed_10m_max,uv_index_max"
)

// OpenMeteoProvider implements weather.ForecastClient against the Open-Meteo forecast API.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	days    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewOpenMeteoProvider creates a forecast client. An empty baseURL selects the public endpoint.
func NewOpenMeteoProvider(cfg HTTPClientConfig, baseURL string, days int) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultForecastURL
	}
	if days <= 0 || days > 16 {
		days = 7
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		days:    days,
		httpCfg: cfg,
		circuit: newBreaker("openmeteo-forecast"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// FetchWeather returns current conditions plus hourly and daily series for the coordinate.
func (p *OpenMeteoProvider) FetchWeather(ctx context.Context, lat, lon float64) (weather.Forecast, error) {
	if err := weather.ValidateCoordinates(lat, lon); err != nil {
		return weather.Forecast{}, err
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
		values.Set("current", currentFields)
		values.Set("hourly", hourlyFields)
		values.Set("daily", dailyFields)
		values.Set("timezone", "auto")
		values.Set("forecast_days", strconv.Itoa(p.days))
		values.Set("temperature_unit", "celsius")
		values.Set("wind_speed_unit", "kmh")
		values.Set("precipitation_unit", "mm")

		u := p.baseURL + "?" + values.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequest(ctx, "forecast", p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.Forecast{}, err
	}
	defer resp.Body.Close()

	var payload openMeteoPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Forecast{}, upstreamFailure("forecast", resp.StatusCode, err)
	}

	return payload.normalize(lat, lon), nil
}

type openMeteoPayload struct {
	Timezone         string `json:"timezone"`
	UTCOffsetSeconds int    `json:"utc_offset_seconds"`

	Current *struct {
		Time                string   `json:"time"`
		Temperature2m       *float64 `json:"temperature_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		RelativeHumidity2m  *float64 `json:"relative_humidity_2m"`
		Precipitation       *float64 `json:"precipitation"`
		WindSpeed10m        *float64 `json:"wind_speed_10m"`
		WindDirection10m    *float64 `json:"wind_direction_10m"`
		CloudCover          *float64 `json:"cloud_cover"`
		WeatherCode         *int     `json:"weather_code"`
	} `json:"current"`

	Hourly struct {
		Time                     []string   `json:"time"`
		Temperature2m            []*float64 `json:"temperature_2m"`
		ApparentTemperature      []*float64 `json:"apparent_temperature"`
		RelativeHumidity2m       []*float64 `json:"relative_humidity_2m"`
		Precipitation            []*float64 `json:"precipitation"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		WindSpeed10m             []*float64 `json:"wind_speed_10m"`
		WindDirection10m         []*float64 `json:"wind_direction_10m"`
		CloudCover               []*float64 `json:"cloud_cover"`
		UVIndex                  []*float64 `json:"uv_index"`
		WeatherCode              []*int     `json:"weather_code"`
	} `json:"hourly"`

	Daily struct {
		Time                        []string   `json:"time"`
		Temperature2mMax            []*float64 `json:"temperature_2m_max"`
		Temperature2mMin            []*float64 `json:"temperature_2m_min"`
		PrecipitationSum            []*float64 `json:"precipitation_sum"`
		PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
		WindSpeed10mMax             []*float64 `json:"wind_speed_10m_max"`
		UVIndexMax                  []*float64 `json:"uv_index_max"`
	} `json:"daily"`
}

// normalize converts the column-oriented payload into explicit samples.
// Local times are interpreted with the reported UTC offset and stored as UTC.
func (p openMeteoPayload) normalize(lat, lon float64) weather.Forecast {
	zone := time.FixedZone(p.Timezone, p.UTCOffsetSeconds)
	parse := func(s string) (time.Time, bool) {
		ts, err := time.ParseInLocation(openMeteoTimeLayout, s, zone)
		if err != nil {
			return time.Time{}, false
		}
		return ts.UTC(), true
	}

	fc := weather.Forecast{
		Latitude:  lat,
		Longitude: lon,
		Timezone:  p.Timezone,
		Hourly:    make([]weather.Sample, 0, len(p.Hourly.Time)),
		Daily:     make([]weather.DailyAggregate, 0, len(p.Daily.Time)),
	}

	if c := p.Current; c != nil {
		if ts, ok := parse(c.Time); ok {
			fc.Current = &weather.Sample{
				Timestamp:           ts,
				Temperature:         c.Temperature2m,
				ApparentTemperature: c.ApparentTemperature,
				Humidity:            c.RelativeHumidity2m,
				Precipitation:       c.Precipitation,
				WindSpeed:           c.WindSpeed10m,
				WindDirection:       c.WindDirection10m,
				CloudCover:          c.CloudCover,
				WeatherCode:         c.WeatherCode,
			}
		}
	}

	h := p.Hourly
	for i, raw := range h.Time {
		ts, ok := parse(raw)
		if !ok {
			continue
		}
		fc.Hourly = append(fc.Hourly, weather.Sample{
			Timestamp:                ts,
			Temperature:              at(h.Temperature2m, i),
			ApparentTemperature:      at(h.ApparentTemperature, i),
			Humidity:                 at(h.RelativeHumidity2m, i),
			Precipitation:            at(h.Precipitation, i),
			PrecipitationProbability: at(h.PrecipitationProbability, i),
			WindSpeed:                at(h.WindSpeed10m, i),
			WindDirection:            at(h.WindDirection10m, i),
			CloudCover:               at(h.CloudCover, i),
			UVIndex:                  at(h.UVIndex, i),
			WeatherCode:              at(h.WeatherCode, i),
		})
	}

	d := p.Daily
	for i, date := range d.Time {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			continue
		}
		fc.Daily = append(fc.Daily, weather.DailyAggregate{
			Date:                        date,
			TempMax:                     at(d.Temperature2mMax, i),
			TempMin:                     at(d.Temperature2mMin, i),
			PrecipitationSum:            at(d.PrecipitationSum, i),
			PrecipitationProbabilityMax: at(d.PrecipitationProbabilityMax, i),
			WindSpeedMax:                at(d.WindSpeed10mMax, i),
			UVIndexMax:                  at(d.UVIndexMax, i),
		})
	}

	return fc
}

// at returns column[i], or nil when the column is shorter than the time axis.
func at[T any](column []*T, i int) *T {
	if i < len(column) {
		return column[i]
	}
	return nil
}
