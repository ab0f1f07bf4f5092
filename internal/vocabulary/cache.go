package vocabulary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/fictag/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultCacheKey is the key the vocabulary listing is cached under.
	DefaultCacheKey = "fictag:vocabulary"
	// DefaultCacheTTL bounds how stale a cached vocabulary may get.
	DefaultCacheTTL = 10 * time.Minute
)

// ErrCacheMiss is returned by a Cache when the key is not present.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the key/value store a CachedSource keeps the listing in.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis server at redisURL.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Client exposes the underlying client so it can be shared (rate limiting).
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Get returns the cached bytes or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

// Set stores value with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedSource serves the vocabulary from a cache and falls back to the
// wrapped source on a miss or cache failure.
type CachedSource struct {
	source Source
	cache  Cache
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSource wraps source with cache. A non-positive ttl uses DefaultCacheTTL.
func NewCachedSource(source Source, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{
		source: source,
		cache:  cache,
		key:    DefaultCacheKey,
		ttl:    ttl,
		logger: logger,
	}
}

// Load returns the cached listing when present, otherwise loads and caches it.
func (s *CachedSource) Load(ctx context.Context) ([]models.VocabularyEntry, error) {
	data, err := s.cache.Get(ctx, s.key)
	switch {
	case err == nil:
		var entries []models.VocabularyEntry
		if jsonErr := json.Unmarshal(data, &entries); jsonErr == nil {
			return entries, nil
		}
		s.logger.Warn("vocabulary_cache_corrupt", zap.String("key", s.key))
	case !errors.Is(err, ErrCacheMiss):
		s.logger.Warn("vocabulary_cache_get_failed", zap.Error(err))
	}

	entries, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(entries)
	if err != nil {
		return entries, nil
	}
	if err := s.cache.Set(ctx, s.key, encoded, s.ttl); err != nil {
		s.logger.Warn("vocabulary_cache_set_failed", zap.Error(err))
	}
	return entries, nil
}
