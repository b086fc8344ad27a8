// Package redis provides a Redis-backed storage.Storage for kiosk
// deployments where several portal processes share one sign-in.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebsalem/portal/storage"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis storage
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "ebsalem:storage:"
	KeyPrefix string
}

// Storage implements storage.Storage using plain Redis strings with native TTLs
type Storage struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a new Redis-backed storage
func New(config Config) (*Storage, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ebsalem:storage:"
	}

	return &Storage{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

var _ storage.Storage = (*Storage)(nil)

// Get retrieves the value for key
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key; Redis expires it after ttl
func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.keyPrefix + k
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (s *Storage) Close() error {
	return s.client.Close()
}
