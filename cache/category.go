package cache

import "time"

// Category is a cache namespace that fixes a default TTL.
type Category string

// Cache categories.
const (
	CategoryRequest    Category = "request"
	CategoryMarketData Category = "market_data"
	CategoryAnalysis   Category = "analysis"
	CategorySession    Category = "session"
)

// DefaultTTLs returns the default TTL for every category.
func DefaultTTLs() map[Category]time.Duration {
	return map[Category]time.Duration{
		CategoryRequest:    3600 * time.Second,
		CategoryMarketData: 300 * time.Second,
		CategoryAnalysis:   1800 * time.Second,
		CategorySession:    1800 * time.Second,
	}
}

// fallbackTTL applies to categories with no configured TTL.
const fallbackTTL = time.Hour
