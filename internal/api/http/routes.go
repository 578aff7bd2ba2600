package httpapi

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/homenet-weather/internal/alerts"
	"github.com/i474232898/homenet-weather/internal/analytics"
	"github.com/i474232898/homenet-weather/internal/scheduler"
	"github.com/i474232898/homenet-weather/internal/weather"
)

var validate = validator.New()

// CycleRunner triggers one synchronous collection cycle.
type CycleRunner interface {
	CollectOnce(ctx context.Context) (scheduler.CycleResult, error)
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Service   *weather.Service
	Analytics *analytics.Engine
	Alerts    *alerts.Engine
	Collector CycleRunner
	Logger    *zap.Logger
}

const defaultSampleLimit = 7 * 24

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	h := handlers{deps}
	v1 := app.Group("/api/v1", requireUser)

	v1.Get("/places/search", h.searchPlaces)

	v1.Get("/locations", h.listLocations)
	v1.Post("/locations", h.createLocation)
	v1.Delete("/locations/:id", h.deleteLocation)
	v1.Get("/locations/:id/samples", h.latestSamples)
	v1.Get("/locations/:id/daily", h.dailyForecast)
	v1.Get("/locations/:id/alerts", h.activeAlerts)
	v1.Get("/locations/:id/alerts/summary", h.alertSummary)

	v1.Get("/weather/:id", h.liveWeather)

	v1.Get("/analytics/:id/trends", h.trends)
	v1.Get("/analytics/:id/anomalies", h.anomalies)
	v1.Get("/analytics/:id/historical", h.historical)
	v1.Get("/analytics/:id/forecast", h.forecast)
	v1.Get("/analytics/:id/summary", h.summary)

	v1.Post("/collect", h.collect)
}

type handlers struct {
	Deps
}

// ownedLocation resolves the :id parameter to a location owned by the caller.
func (h handlers) ownedLocation(c *fiber.Ctx) (weather.Location, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return weather.Location{}, fiber.NewError(fiber.StatusBadRequest, "invalid location id")
	}
	return h.Service.OwnedLocation(c.UserContext(), id, userID(c))
}

func (h handlers) searchPlaces(c *fiber.Ctx) error {
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		q = c.Query("query")
	}
	matches, err := h.Service.SearchPlaces(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"query":   strings.TrimSpace(q),
		"results": matches,
	})
}

func (h handlers) listLocations(c *fiber.Ctx) error {
	locs, err := h.Service.ListLocations(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	if locs == nil {
		locs = []weather.Location{}
	}
	return c.JSON(locs)
}

// createLocationRequest is the body of POST /locations. Pointers distinguish
// a missing coordinate from zero.
type createLocationRequest struct {
	Name      string   `json:"name" validate:"required,max=100"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

func (h handlers) createLocation(c *fiber.Ctx) error {
	var req createLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	loc, collected, err := h.Service.AddLocation(c.UserContext(), userID(c), req.Name, *req.Latitude, *req.Longitude)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"location":  loc,
		"collected": collected,
	})
}

func (h handlers) deleteLocation(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid location id")
	}
	if err := h.Service.DeleteLocation(c.UserContext(), id, userID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type limitQuery struct {
	Limit int `query:"limit" validate:"gte=1,lte=2000"`
}

func (h handlers) latestSamples(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	q := limitQuery{Limit: defaultSampleLimit}
	if err := bindQuery(c, &q); err != nil {
		return err
	}

	samples, err := h.Service.LatestSamples(c.UserContext(), loc.ID, q.Limit)
	if err != nil {
		return err
	}
	if samples == nil {
		samples = []weather.Sample{}
	}
	return c.JSON(fiber.Map{
		"location": loc,
		"samples":  samples,
	})
}

func (h handlers) dailyForecast(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	days, err := h.Service.DailyForecast(c.UserContext(), loc.ID)
	if err != nil {
		return err
	}
	if days == nil {
		days = []weather.DailyAggregate{}
	}
	return c.JSON(fiber.Map{
		"location": loc,
		"daily":    days,
	})
}

func (h handlers) liveWeather(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	fc, err := h.Service.LiveWeather(c.UserContext(), loc)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"location": loc,
		"weather":  fc,
	})
}

func (h handlers) activeAlerts(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	list, err := h.Alerts.Active(c.UserContext(), loc.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"location_id": loc.ID,
		"alerts":      list,
		"count":       len(list),
	})
}

func (h handlers) alertSummary(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	summary, err := h.Alerts.Summary(c.UserContext(), loc.ID)
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

type trendQuery struct {
	Metric string `query:"metric"`
	Days   int    `query:"days" validate:"gte=7,lte=90"`
}

func (h handlers) trends(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	q := trendQuery{Metric: weather.MetricTemperature, Days: 30}
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	res, err := h.Analytics.Trend(c.UserContext(), loc.ID, q.Metric, q.Days)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type anomalyQuery struct {
	Days int `query:"days" validate:"gte=7,lte=90"`
}

func (h handlers) anomalies(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	q := anomalyQuery{Days: 30}
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	rep, err := h.Analytics.Anomalies(c.UserContext(), loc.ID, q.Days)
	if err != nil {
		return err
	}
	return c.JSON(rep)
}

type historicalQuery struct {
	Days int `query:"days" validate:"gte=1,lte=365"`
}

func (h handlers) historical(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	q := historicalQuery{Days: 30}
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	rep, err := h.Analytics.Historical(c.UserContext(), loc.ID, q.Days)
	if err != nil {
		return err
	}
	return c.JSON(rep)
}

type forecastQuery struct {
	Hours int `query:"hours" validate:"gte=1,lte=168"`
}

func (h handlers) forecast(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	q := forecastQuery{Hours: 24}
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	rep, err := h.Analytics.Forecast(c.UserContext(), loc.ID, q.Hours)
	if err != nil {
		return err
	}
	return c.JSON(rep)
}

type summaryQuery struct {
	Days int `query:"days" validate:"gte=7,lte=365"`
}

func (h handlers) summary(c *fiber.Ctx) error {
	loc, err := h.ownedLocation(c)
	if err != nil {
		return err
	}
	q := summaryQuery{Days: 30}
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	rep, err := h.Analytics.Summary(c.UserContext(), loc.ID, q.Days)
	if err != nil {
		return err
	}
	return c.JSON(rep)
}

func (h handlers) collect(c *fiber.Ctx) error {
	if h.Collector == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "collection is not configured")
	}
	res, err := h.Collector.CollectOnce(c.UserContext())
	if err != nil {
		return err
	}
	failed := res.Failures
	if failed == nil {
		failed = []scheduler.Failure{}
	}
	return c.JSON(fiber.Map{
		"cycle_id":  res.ID,
		"succeeded": res.Succeeded,
		"total":     res.Total,
		"failed":    failed,
		"result":    res.String(),
	})
}

// bindQuery parses query parameters over the defaults already set in dst and
// validates the result.
func bindQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}
