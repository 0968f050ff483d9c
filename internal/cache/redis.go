// Package cache keeps enrichment lookups in Redis so that repeated entity
// values do not hit the remote enrichment service again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/deidentifier/internal/logger"
)

// EnrichmentCache handles Redis-based caching of enrichment values
type EnrichmentCache struct {
	client *redis.Client
	config Config
	logger *logger.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewEnrichmentCache connects to Redis and verifies the connection.
func NewEnrichmentCache(config Config, log *logger.Logger) (*EnrichmentCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	c := NewEnrichmentCacheWithClient(redis.NewClient(opts), config, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.Info("Enrichment cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("default_ttl", config.DefaultTTL))

	return c, nil
}

// NewEnrichmentCacheWithClient wraps an existing client.
func NewEnrichmentCacheWithClient(client *redis.Client, config Config, log *logger.Logger) *EnrichmentCache {
	if log == nil {
		log = logger.Nop()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "deid:enrichment"
	}
	return &EnrichmentCache{
		client: client,
		config: config,
		logger: log.WithComponent("enrichment_cache"),
	}
}

// Get returns the cached enrichment of (entityType, text). Lookup errors are
// logged and reported as a miss.
func (c *EnrichmentCache) Get(ctx context.Context, entityType, text string) (string, bool) {
	key := c.Key(entityType, text)

	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		c.logger.Debug("Cache miss", zap.String("key", key))
		return "", false
	} else if err != nil {
		c.misses.Add(1)
		c.logger.Error("Cache lookup failed", zap.Error(err))
		return "", false
	}

	c.hits.Add(1)
	c.logger.Debug("Cache hit", zap.String("key", key))
	return value, true
}

// Set stores an enrichment value with the configured TTL.
func (c *EnrichmentCache) Set(ctx context.Context, entityType, text, value string) error {
	key := c.Key(entityType, text)
	if err := c.client.Set(ctx, key, value, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache enrichment", zap.Error(err))
		return fmt.Errorf("failed to cache enrichment: %w", err)
	}
	return nil
}

// Stats returns cache performance statistics
func (c *EnrichmentCache) Stats(ctx context.Context) (*Stats, error) {
	info, err := c.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

// Clear removes every cached enrichment under the key prefix.
func (c *EnrichmentCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *EnrichmentCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Key hashes the entity text so raw PII never appears in Redis key space.
func (c *EnrichmentCache) Key(entityType, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%s:%s", c.config.KeyPrefix, entityType, hex.EncodeToString(sum[:]))
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	if colon := strings.LastIndex(userPart, ":"); colon > strings.Index(userPart, "://") {
		userPart = userPart[:colon+1] + "***"
	}
	return userPart + url[at:]
}
