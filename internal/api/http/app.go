package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/i474232898/homenet-weather/internal/weather"
)

const (
	// UserHeader carries the verified user id set by the authentication layer.
	UserHeader = "X-User-ID"

	userKey = "userID"
)

// NewApp builds the Fiber application with middleware, health, metrics and
// the API routes.
func NewApp(deps Deps) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "homenet-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Synchronous collection and live fetches can take as long as the upstream timeout.
		WriteTimeout: 90 * time.Second,
		ErrorHandler: ErrorHandler(deps.Logger),
	})

	app.Use(recover.New())
	app.Use(requestLogger(deps.Logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "homenet-weather",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	RegisterRoutes(app, deps)
	return app
}

// ErrorHandler renders every error as {"error": true, "message": ...} with a
// status derived from the error chain.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		message := err.Error()
		if code >= fiber.StatusInternalServerError && code != fiber.StatusBadGateway && code != fiber.StatusGatewayTimeout {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			message = "internal server error"
		}
		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": message,
		})
	}
}

func statusFor(err error) int {
	var fe *fiber.Error
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ve):
		return fiber.StatusBadRequest
	case errors.Is(err, weather.ErrInvalidCoordinate), errors.Is(err, weather.ErrInvalidQuery):
		return fiber.StatusBadRequest
	case errors.Is(err, weather.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, weather.ErrUpstreamTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, weather.ErrUpstreamUnavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = statusFor(err)
		}
		logger.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
		return err
	}
}

// requireUser rejects requests without a valid user id header.
func requireUser(c *fiber.Ctx) error {
	raw := c.Get(UserHeader)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusUnauthorized, "missing or invalid user identity")
	}
	c.Locals(userKey, id)
	return c.Next()
}

func userID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(userKey).(int64)
	return id
}
