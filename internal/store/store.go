// Package store defines storage interfaces for the metrics engine: the
// per-symbol daily cache and the archive of fetched daily bars.
package store

import (
	"context"
	"time"

	"perfmetrics/internal/domain"
)

// CacheStore persists one CacheEntry per symbol. Implementations must be
// safe for concurrent use.
type CacheStore interface {
	// Get returns the entry stored for symbol, or (nil, nil) when there is
	// none or it has expired.
	Get(ctx context.Context, symbol string) (*domain.CacheEntry, error)

	// Put replaces the entry for symbol. ttl is a hint for when the entry
	// may be discarded; freshness is still decided by the entry's date key.
	Put(ctx context.Context, symbol string, entry *domain.CacheEntry, ttl time.Duration) error
}

// Sweeper is implemented by cache stores that can drop expired entries.
type Sweeper interface {
	// DeleteExpired removes entries whose TTL has passed and returns how
	// many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// expiresAt converts a ttl hint into an absolute expiry. Non-positive ttls
// fall back to 24 hours.
func expiresAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return now.Add(ttl)
}
