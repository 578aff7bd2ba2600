package providers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/i474232898/homenet-weather/internal/metrics"
	"github.com/i474232898/homenet-weather/internal/weather"
)

// PlaceCache memoizes place search results.
type PlaceCache interface {
	Get(ctx context.Context, key string) ([]weather.PlaceMatch, bool)
	Set(ctx context.Context, key string, matches []weather.PlaceMatch)
}

// MemoryPlaceCache keeps results in process.
type MemoryPlaceCache struct {
	cache *gocache.Cache
}

func NewMemoryPlaceCache(ttl time.Duration) *MemoryPlaceCache {
	return &MemoryPlaceCache{cache: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryPlaceCache) Get(_ context.Context, key string) ([]weather.PlaceMatch, bool) {
	v, found := m.cache.Get(key)
	if !found {
		return nil, false
	}
	matches, ok := v.([]weather.PlaceMatch)
	return matches, ok
}

func (m *MemoryPlaceCache) Set(_ context.Context, key string, matches []weather.PlaceMatch) {
	m.cache.Set(key, matches, gocache.DefaultExpiration)
}

// RedisPlaceCache shares results between instances. Redis errors degrade to misses.
type RedisPlaceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisPlaceCache connects using a redis:// URL and verifies the connection.
func NewRedisPlaceCache(ctx context.Context, rawURL string, ttl time.Duration, logger *zap.Logger) (*RedisPlaceCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 1 * time.Second
	opts.WriteTimeout = 1 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisPlaceCache{client: client, ttl: ttl, logger: logger}, nil
}

func (r *RedisPlaceCache) Get(ctx context.Context, key string) ([]weather.PlaceMatch, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("place cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var matches []weather.PlaceMatch
	if err := json.Unmarshal(raw, &matches); err != nil {
		return nil, false
	}
	return matches, true
}

func (r *RedisPlaceCache) Set(ctx context.Context, key string, matches []weather.PlaceMatch) {
	raw, err := json.Marshal(matches)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("place cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *RedisPlaceCache) Close() error {
	return r.client.Close()
}

// CachedPlaceSearcher consults cache before delegating to next.
type CachedPlaceSearcher struct {
	next  weather.PlaceSearcher
	cache PlaceCache
}

func NewCachedPlaceSearcher(next weather.PlaceSearcher, cache PlaceCache) *CachedPlaceSearcher {
	return &CachedPlaceSearcher{next: next, cache: cache}
}

func (c *CachedPlaceSearcher) SearchPlaces(ctx context.Context, query string) ([]weather.PlaceMatch, error) {
	key := "places:" + strings.ToLower(strings.TrimSpace(query))
	if matches, ok := c.cache.Get(ctx, key); ok {
		metrics.CacheLookups.WithLabelValues("places", "hit").Inc()
		return matches, nil
	}
	metrics.CacheLookups.WithLabelValues("places", "miss").Inc()

	// Cached matches outlive the request; detach the query from its buffer.
	matches, err := c.next.SearchPlaces(ctx, strings.Clone(query))
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, matches)
	return matches, nil
}
