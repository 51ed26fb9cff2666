// Package ratelimit provides an optional Redis-backed limiter on
// access-client START attempts per source IP, so a misbehaving or
// malicious client cannot hammer the relay with authentication attempts.
// It is ambient abuse protection, not a store of
// relay state: the relay's session state lives entirely in process
// memory (internal/wsrelay), and a disabled or unreachable Redis only
// degrades rate limiting, never relay function.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the limiter's Redis connection and window.
type Config struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool

	// Window is the fixed window, started by a key's first attempt, over
	// which Limit attempts are permitted per key.
	Window time.Duration
	Limit  int64
}

// Limiter enforces a fixed-window request count per key. A Limiter with
// Enabled=false always allows.
type Limiter struct {
	client *redis.Client
	window time.Duration
	limit  int64
}

// New connects to Redis and returns a Limiter, or a disabled Limiter if
// cfg.Enabled is false.
func New(cfg Config) (*Limiter, error) {
	if !cfg.Enabled {
		return &Limiter{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 30
	}

	return &Limiter{client: client, window: window, limit: limit}, nil
}

// Close releases the underlying Redis connection, if any.
func (l *Limiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

// Allow increments key's counter in the current window and reports
// whether the caller is still under the limit. A disabled or unreachable
// limiter always allows, so rate limiting failing open never blocks
// relay traffic.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.client == nil {
		return true
	}

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window)
	}
	return count <= l.limit
}

// StartKey namespaces a rate-limit key for access-client START attempts
// from a given source address.
func StartKey(sourceAddr string) string {
	return "http-network-relay:start:" + sourceAddr
}
