package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"perfmetrics/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ CacheStore = (*SQLiteCache)(nil)
var _ Sweeper = (*SQLiteCache)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metrics_cache (
	symbol     TEXT PRIMARY KEY,
	date_key   TEXT NOT NULL,
	payload    BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_cache_expires ON metrics_cache(expires_at);
`

// SQLiteCache implements CacheStore backed by a SQLite database. Entries
// are stored as msgpack blobs with a unix expiry timestamp.
type SQLiteCache struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteCache opens (or creates) a SQLite database at dbPath, creates the
// cache table if needed and returns a ready-to-use SQLiteCache.
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; serialize access through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating metrics_cache schema: %w", err)
	}
	return &SQLiteCache{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

// Get returns the entry for symbol if present and not expired.
func (s *SQLiteCache) Get(ctx context.Context, symbol string) (*domain.CacheEntry, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM metrics_cache WHERE symbol = ? AND expires_at > ?`,
		symbol, s.now().Unix(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry for %s: %w", symbol, err)
	}
	return decodeEntry(payload)
}

// Put upserts the entry for symbol.
func (s *SQLiteCache) Put(ctx context.Context, symbol string, entry *domain.CacheEntry, ttl time.Duration) error {
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO metrics_cache (symbol, date_key, payload, expires_at) VALUES (?, ?, ?, ?)`,
		symbol, entry.Date, payload, expiresAt(s.now(), ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry for %s: %w", symbol, err)
	}
	return nil
}

// DeleteExpired removes all rows whose expiry has passed.
func (s *SQLiteCache) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM metrics_cache WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("deleting expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting expired cache entries: %w", err)
	}
	return n, nil
}
