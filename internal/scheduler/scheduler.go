package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/homenet-weather/internal/metrics"
	"github.com/i474232898/homenet-weather/internal/weather"
)

// Collector fetches and persists weather for one location.
type Collector interface {
	FetchAndStore(ctx context.Context, loc weather.Location) error
}

// LocationLister enumerates every saved location.
type LocationLister interface {
	DistinctLocations(ctx context.Context) ([]weather.Location, error)
}

// Pruner deletes data older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BackoffConfig controls exponential backoff between attempts for one location.
// MaxRetries 0 disables retries.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
	if b.MaxInterval > 0 && d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

type Options struct {
	// Interval is slept after every cycle; cadence is interval plus cycle duration.
	Interval time.Duration
	// Concurrency caps in-flight locations per cycle. 0 means one task per location.
	Concurrency int
	// FetchTimeout bounds one attempt of fetch plus store for a location.
	FetchTimeout  time.Duration
	Retry         BackoffConfig
	RetentionDays int
	PruneCron     string
	// DelayFirstCycle sleeps one interval before the first cycle.
	DelayFirstCycle bool
}

const (
	DefaultInterval     = 30 * time.Minute
	DefaultFetchTimeout = 60 * time.Second
	DefaultPruneCron    = "0 3 * * *"
)

// Failure records why one location failed in a cycle.
type Failure struct {
	LocationID int64  `json:"location_id"`
	Location   string `json:"location"`
	Error      string `json:"error"`
}

// CycleResult is the outcome of one collection cycle.
type CycleResult struct {
	ID        uuid.UUID     `json:"cycle_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failures  []Failure     `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

func (r CycleResult) String() string {
	return fmt.Sprintf("%d/%d succeeded", r.Succeeded, r.Total)
}

// Scheduler periodically collects weather for all saved locations and prunes
// old data on a cron schedule.
type Scheduler struct {
	collector Collector
	locations LocationLister
	pruner    Pruner
	opts      Options
	logger    *zap.Logger

	cron *gocron.Scheduler
	now  func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new Scheduler. pruner may be nil to disable retention.
func New(collector Collector, locations LocationLister, pruner Pruner, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.PruneCron == "" {
		opts.PruneCron = DefaultPruneCron
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		collector: collector,
		locations: locations,
		pruner:    pruner,
		opts:      opts,
		logger:    logger,
		cron:      gocron.NewScheduler(time.UTC),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CollectOnce runs a single collection cycle over every saved location.
// Per-location failures are recorded in the result, never returned; the error
// is non-nil only when the locations could not be listed.
func (s *Scheduler) CollectOnce(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	result := CycleResult{ID: uuid.New()}

	locs, err := s.locations.DistinctLocations(ctx)
	if err != nil {
		return result, fmt.Errorf("list locations: %w", err)
	}
	result.Total = len(locs)
	if len(locs) == 0 {
		s.logger.Info("no locations to collect", zap.String("cycle_id", result.ID.String()))
		return result, nil
	}

	succeeded := atomic.NewInt64(0)
	var mu sync.Mutex

	var g errgroup.Group
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for _, loc := range locs {
		loc := loc
		g.Go(func() error {
			if err := s.collectLocation(ctx, loc); err != nil {
				metrics.CollectionLocations.WithLabelValues("failure").Inc()
				s.logger.Warn("collection failed",
					zap.Int64("location_id", loc.ID),
					zap.String("location", loc.Name),
					zap.Error(err),
				)
				mu.Lock()
				result.Failures = append(result.Failures, Failure{
					LocationID: loc.ID,
					Location:   loc.Name,
					Error:      err.Error(),
				})
				mu.Unlock()
				// Siblings keep running.
				return nil
			}
			metrics.CollectionLocations.WithLabelValues("success").Inc()
			succeeded.Inc()
			return nil
		})
	}
	_ = g.Wait()

	result.Succeeded = int(succeeded.Load())
	result.Duration = time.Since(start)

	metrics.CollectionCycles.Inc()
	metrics.CollectionDuration.Observe(result.Duration.Seconds())
	s.logger.Info("collection cycle complete",
		zap.String("cycle_id", result.ID.String()),
		zap.String("result", result.String()),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("total", result.Total),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// collectLocation retries transient upstream failures with exponential backoff.
func (s *Scheduler) collectLocation(ctx context.Context, loc weather.Location) error {
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		err := s.collector.FetchAndStore(attemptCtx, loc)
		cancel()

		if err == nil || !retryable(err) || attempt >= s.opts.Retry.MaxRetries {
			return err
		}

		delay := s.opts.Retry.delay(attempt)
		s.logger.Debug("retrying collection",
			zap.Int64("location_id", loc.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, weather.ErrUpstreamTimeout) || errors.Is(err, weather.ErrUpstreamUnavailable)
}

// RunForever alternates collection cycles with a fixed sleep until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	if s.opts.DelayFirstCycle && !s.sleep(ctx) {
		return
	}
	for {
		if _, err := s.CollectOnce(ctx); err != nil {
			s.logger.Error("collection cycle failed", zap.Error(err))
		}
		if !s.sleep(ctx) {
			return
		}
	}
}

// sleep waits one interval and reports false if ctx ended first.
func (s *Scheduler) sleep(ctx context.Context) bool {
	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Prune deletes samples older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	if s.pruner == nil || s.opts.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.opts.RetentionDays)
	removed, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.PrunedRows.Add(float64(removed))
	s.logger.Info("pruned old weather data",
		zap.Int64("rows", removed),
		zap.Time("cutoff", cutoff),
	)
	return removed, nil
}

// Start launches the collection loop in the background and schedules the
// retention job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	if s.pruner != nil && s.opts.RetentionDays > 0 {
		_, err := s.cron.Cron(s.opts.PruneCron).SingletonMode().Do(func() {
			pruneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := s.Prune(pruneCtx); err != nil {
				s.logger.Error("prune failed", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("schedule prune job: %w", err)
		}
		s.cron.StartAsync()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.RunForever(runCtx)
	}()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("concurrency", s.opts.Concurrency),
		zap.Int("retention_days", s.opts.RetentionDays),
	)
	return nil
}

// Stop cancels the loop, waits for the in-flight cycle and stops the cron jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.cron.Stop()
}
