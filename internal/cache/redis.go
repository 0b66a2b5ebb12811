// Package cache holds the Redis-backed API key identity cache and the
// token-bucket rate limiter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options tunes the client. Zero fields keep the defaults.
type Options struct {
	IdentityTTL  time.Duration
	PoolSize     int
	MinIdleConns int
}

// Cache wraps a Redis client. The same client also carries the usage
// stream, see Client.
type Cache struct {
	client      *redis.Client
	identityTTL time.Duration
}

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL string, opts Options) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 10
	if opts.PoolSize > 0 {
		opt.PoolSize = opts.PoolSize
	}
	opt.MinIdleConns = 2
	if opts.MinIdleConns > 0 {
		opt.MinIdleConns = opts.MinIdleConns
	}
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewWithClient(client, opts.IdentityTTL), nil
}

// NewWithClient wraps an existing client. A non-positive identityTTL falls
// back to five minutes.
func NewWithClient(client *redis.Client, identityTTL time.Duration) *Cache {
	if identityTTL <= 0 {
		identityTTL = defaultIdentityTTL
	}
	return &Cache{client: client, identityTTL: identityTTL}
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying client for the usage stream publisher and
// worker.
func (c *Cache) Client() *redis.Client {
	return c.client
}
