package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"
)

var _ Backend = (*MemoryBackend)(nil)

type memEntry struct {
	value   []byte
	expires time.Time
}

// MemoryBackend is an in-process Backend for tests and single-node use.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
	down    bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (m *MemoryBackend) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetUnavailable makes every operation fail, simulating an unreachable
// backend.
func (m *MemoryBackend) SetUnavailable(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

var errUnavailable = fmt.Errorf("cache: memory backend unavailable")

// live returns the entry if present and unexpired. Caller holds mu.
func (m *MemoryBackend) live(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errUnavailable
	}
	e, ok := m.live(key)
	if !ok {
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errUnavailable
	}
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryBackend) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return 0, errUnavailable
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.live(k); ok {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return false, errUnavailable
	}
	_, ok := m.live(key)
	return ok, nil
}

func (m *MemoryBackend) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return false, errUnavailable
	}
	e, ok := m.live(key)
	if !ok {
		return false, nil
	}
	if ttl <= 0 {
		delete(m.entries, key)
		return true, nil
	}
	e.expires = m.now().Add(ttl)
	m.entries[key] = e
	return true, nil
}

func (m *MemoryBackend) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errUnavailable
	}
	var keys []string
	for k := range m.entries {
		if _, ok := m.live(k); !ok {
			continue
		}
		if matched, _ := path.Match(pattern, k); matched {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemoryBackend) Size(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return 0, errUnavailable
	}
	var n int64
	for k := range m.entries {
		if _, ok := m.live(k); ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) MemoryUsage(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return "", errUnavailable
	}
	var total int
	for k, e := range m.entries {
		total += len(k) + len(e.value)
	}
	return humanBytes(total), nil
}

func (m *MemoryBackend) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errUnavailable
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2fK", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
