package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	compute "github.com/zhengren252/ntn-sub004"
)

var _ compute.Cacher = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithService sets the first segment of every key.
func WithService(service string) Option {
	return func(s *Store) { s.service = service }
}

// WithTTL overrides the TTL of one category.
func WithTTL(cat Category, ttl time.Duration) Option {
	return func(s *Store) { s.ttls[cat] = ttl }
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage string  `json:"memory_usage"`
}

// Store is the tiered cache.
type Store struct {
	backend Backend
	service string
	ttls    map[Category]time.Duration
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		service: "compute",
		ttls:    DefaultTTLs(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the fully qualified key for (cat, key).
func (s *Store) Key(cat Category, key string) string {
	return s.service + ":" + string(cat) + ":" + key
}

// TTL returns the TTL applied to cat.
func (s *Store) TTL(cat Category) time.Duration {
	if ttl, ok := s.ttls[cat]; ok {
		return ttl
	}
	return fallbackTTL
}

// Set stores value under (cat, key) with the category TTL.
func (s *Store) Set(ctx context.Context, cat Category, key string, value any) bool {
	return s.SetWithTTL(ctx, cat, key, value, s.TTL(cat))
}

// SetWithTTL stores value with an explicit TTL.
func (s *Store) SetWithTTL(ctx context.Context, cat Category, key string, value any, ttl time.Duration) bool {
	data, enc, err := encode(value)
	if err != nil {
		s.logger.Warn("cache encode failed",
			slog.String("category", string(cat)),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := s.backend.Set(ctx, s.Key(cat, key), data, ttl); err != nil {
		s.backendError("set", cat, key, err)
		return false
	}
	s.logger.Debug("cache set",
		slog.String("category", string(cat)),
		slog.String("key", key),
		slog.String("encoding", string(enc)),
	)
	return true
}

// Get decodes the value under (cat, key) into dst and reports whether it
// was found. Expired, absent and undecodable entries are all misses.
func (s *Store) Get(ctx context.Context, cat Category, key string, dst any) bool {
	data, err := s.backend.Get(ctx, s.Key(cat, key))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.backendError("get", cat, key, err)
		}
		s.misses.Add(1)
		return false
	}
	if _, err := decode(data, dst); err != nil {
		s.logger.Warn("cache decode failed",
			slog.String("category", string(cat)),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		s.misses.Add(1)
		return false
	}
	s.hits.Add(1)
	return true
}

// Delete removes (cat, key) and reports whether it existed.
func (s *Store) Delete(ctx context.Context, cat Category, key string) bool {
	n, err := s.backend.Del(ctx, s.Key(cat, key))
	if err != nil {
		s.backendError("delete", cat, key, err)
		return false
	}
	return n > 0
}

// Exists reports whether (cat, key) is present.
func (s *Store) Exists(ctx context.Context, cat Category, key string) bool {
	ok, err := s.backend.Exists(ctx, s.Key(cat, key))
	if err != nil {
		s.backendError("exists", cat, key, err)
		return false
	}
	return ok
}

// Expire resets the TTL of (cat, key).
func (s *Store) Expire(ctx context.Context, cat Category, key string, ttl time.Duration) bool {
	ok, err := s.backend.Expire(ctx, s.Key(cat, key), ttl)
	if err != nil {
		s.backendError("expire", cat, key, err)
		return false
	}
	return ok
}

// ClearPattern deletes every key in cat matching the glob pattern and
// returns the number deleted.
func (s *Store) ClearPattern(ctx context.Context, cat Category, pattern string) int {
	keys, err := s.backend.Keys(ctx, s.Key(cat, pattern))
	if err != nil {
		s.backendError("clear_pattern", cat, pattern, err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	n, err := s.backend.Del(ctx, keys...)
	if err != nil {
		s.backendError("clear_pattern", cat, pattern, err)
		return 0
	}
	return int(n)
}

// Stats returns hit rate, key count and backend memory usage.
func (s *Store) Stats(ctx context.Context) Stats {
	st := Stats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		MemoryUsage: "unknown",
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	if n, err := s.backend.Size(ctx); err == nil {
		st.TotalKeys = n
	} else {
		s.backendError("stats", "", "", err)
	}
	if mem, err := s.backend.MemoryUsage(ctx); err == nil {
		st.MemoryUsage = mem
	}
	return st
}

// CacheMarketData stores market data for symbol.
func (s *Store) CacheMarketData(ctx context.Context, symbol string, data any) bool {
	return s.Set(ctx, CategoryMarketData, symbol, data)
}

// GetCachedMarketData loads market data for symbol into dst.
func (s *Store) GetCachedMarketData(ctx context.Context, symbol string, dst any) bool {
	return s.Get(ctx, CategoryMarketData, symbol, dst)
}

// CacheAnalysisResult stores an analysis result.
func (s *Store) CacheAnalysisResult(ctx context.Context, key string, result any) bool {
	return s.Set(ctx, CategoryAnalysis, key, result)
}

// GetCachedAnalysis loads an analysis result into dst.
func (s *Store) GetCachedAnalysis(ctx context.Context, key string, dst any) bool {
	return s.Get(ctx, CategoryAnalysis, key, dst)
}

// CacheResponse stores a final response by request id.
func (s *Store) CacheResponse(ctx context.Context, requestID string, resp any) bool {
	return s.Set(ctx, CategoryRequest, requestID, resp)
}

// GetCachedResponse loads a response by request id into dst.
func (s *Store) GetCachedResponse(ctx context.Context, requestID string, dst any) bool {
	return s.Get(ctx, CategoryRequest, requestID, dst)
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", compute.ErrCacheBackend, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

// KeyFor builds a stable key from parts, e.g. KeyFor("AAPL", "price").
func KeyFor(parts ...string) string { return strings.Join(parts, ":") }

func (s *Store) backendError(op string, cat Category, key string, err error) {
	s.logger.Warn("cache backend error",
		slog.String("op", op),
		slog.String("category", string(cat)),
		slog.String("key", key),
		slog.String("error", fmt.Errorf("%w: %w", compute.ErrCacheBackend, err).Error()),
	)
}
