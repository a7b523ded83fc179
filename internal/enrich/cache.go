package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// PageCache stores fetched listing page bodies between runs.
type PageCache interface {
	Get(ctx context.Context, pageURL string) ([]byte, bool, error)
	Put(ctx context.Context, pageURL string, body []byte) error
	Close() error
}

// RedisCache is a PageCache backed by Redis string keys with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisCacheWithClient(client, ttl, logger), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "page_cache"),
	}
}

func pageKey(pageURL string) string {
	return "page:" + pageURL
}

// Get returns the cached body for pageURL, if any.
func (c *RedisCache) Get(ctx context.Context, pageURL string) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, pageKey(pageURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	c.logger.Debug("page cache hit", "url", pageURL, "size", len(body))
	return body, true, nil
}

// Put stores body under pageURL for the configured TTL.
func (c *RedisCache) Put(ctx context.Context, pageURL string, body []byte) error {
	return c.client.Set(ctx, pageKey(pageURL), body, c.ttl).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
