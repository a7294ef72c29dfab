package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching report payloads.
// Supports a local LRU (default) or Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `toml:"type"`

	// Local LRU cache settings
	LocalMaxSize int `toml:"localMaxSize"`
	LocalTTL     int `toml:"localTtl"` // seconds

	// Redis settings
	RedisAddr     string `toml:"redisAddr"`
	RedisPassword string `toml:"redisPassword"`
	RedisDB       int    `toml:"redisDb"`
}
