package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/homenet-weather/internal/metrics"
	"github.com/i474232898/homenet-weather/internal/weather"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 30 * time.Second

// HTTPClientConfig bundles the HTTP client and the shared resilience settings.
// Retries are deliberately absent: retry policy belongs to the caller.
type HTTPClientConfig struct {
	Client  *http.Client
	Timeout time.Duration
	Limiter *rate.Limiter
}

var errNoHTTPClient = errors.New("http client not configured")

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes a single GET through the rate limiter and circuit breaker.
// Failures are normalised to *weather.UpstreamError.
func doRequest(
	ctx context.Context,
	op string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	if cfg.Limiter != nil {
		if err := cfg.Limiter.Wait(ctx); err != nil {
			cancel()
			return nil, upstreamFailure(op, 0, err)
		}
	}

	req, err := buildRequest(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &weather.UpstreamError{
				Op:         op,
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(body)),
				Err:        weather.ErrUpstreamUnavailable,
			}
		}
		return resp, nil
	})
	if err != nil {
		cancel()
		metrics.UpstreamRequests.WithLabelValues(op, outcomeLabel(err)).Inc()
		var upErr *weather.UpstreamError
		if errors.As(err, &upErr) {
			return nil, upErr
		}
		return nil, upstreamFailure(op, 0, err)
	}

	resp, ok := result.(*http.Response)
	if !ok {
		cancel()
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	metrics.UpstreamRequests.WithLabelValues(op, "ok").Inc()

	// The deadline must outlive the body read; release it on Close.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func upstreamFailure(op string, status int, err error) *weather.UpstreamError {
	kind := weather.ErrUpstreamUnavailable
	if isTimeout(err) {
		kind = weather.ErrUpstreamTimeout
	}
	return &weather.UpstreamError{Op: op, StatusCode: status, Message: err.Error(), Err: kind}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case isTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
