package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Backend.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Backend is the key-value store beneath the cache. Keys passed in are
// already fully qualified.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Keys returns keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Size returns the total number of keys in the backend.
	Size(ctx context.Context) (int64, error)
	// MemoryUsage returns a human-readable memory figure.
	MemoryUsage(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	Close() error
}
