package cache

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Backend = (*RedisBackend)(nil)

// RedisBackend implements Backend on Redis.
type RedisBackend struct {
	client redis.UniversalClient
	owned  bool
}

// NewRedisBackend wraps an existing client. The caller owns the client
// lifecycle.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// OpenRedis creates a client for addr and returns a backend that closes
// it on Close.
func OpenRedis(addr, password string, db int) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &RedisBackend{client: client, owned: true}
}

// Client returns the underlying Redis client.
func (b *RedisBackend) Client() redis.UniversalClient { return b.client }

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return v, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return b.client.Del(ctx, keys...).Result()
}

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (b *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return b.client.Expire(ctx, key, ttl).Result()
}

// Keys walks the keyspace with SCAN rather than KEYS.
func (b *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (b *RedisBackend) Size(ctx context.Context) (int64, error) {
	return b.client.DBSize(ctx).Result()
}

// MemoryUsage returns used_memory_human from INFO memory.
func (b *RedisBackend) MemoryUsage(ctx context.Context) (string, error) {
	info, err := b.client.Info(ctx, "memory").Result()
	if err != nil {
		return "", err
	}
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, "used_memory_human:"); ok {
			return v, nil
		}
	}
	return "unknown", nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the client only when the backend created it.
func (b *RedisBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}
