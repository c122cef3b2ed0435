// Package cache holds the provider access-token cache. Gateway tokens are
// short-lived, so they are stored with an expiry and re-acquired once stale.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKey = "coopbank:access_token"

// TokenCache stores a single provider access token with an expiry.
type TokenCache interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
}

// MemoryCache is the default single-process token cache.
type MemoryCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(_ context.Context) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expires) {
		return "", false, nil
	}
	return c.token, true, nil
}

func (c *MemoryCache) Set(_ context.Context, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expires = time.Now().Add(ttl)
	return nil
}

// RedisCache shares the token across replicas. Redis handles the expiry.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb}
}

func (c *RedisCache) Get(ctx context.Context) (string, bool, error) {
	token, err := c.client.Get(ctx, tokenKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET error: %w", err)
	}
	return token, true, nil
}

func (c *RedisCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, tokenKey, token, ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
