package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"perfmetrics/internal/domain"
)

// Compile-time interface checks.
var _ CacheStore = (*PostgresCache)(nil)
var _ Sweeper = (*PostgresCache)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS metrics_cache (
	symbol     TEXT PRIMARY KEY,
	date_key   TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`

// PostgresCache implements CacheStore on a shared Postgres database, for
// deployments running several engine instances.
type PostgresCache struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a connection pool for dsn and verifies it with a
// ping.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return p, nil
}

// NewPostgresCache creates the cache table if needed and returns a
// PostgresCache using pool.
func NewPostgresCache(ctx context.Context, pool *pgxpool.Pool) (*PostgresCache, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("creating metrics_cache schema: %w", err)
	}
	return &PostgresCache{pool: pool}, nil
}

// Close releases the connection pool.
func (p *PostgresCache) Close() error {
	p.pool.Close()
	return nil
}

// Get returns the entry for symbol if present and not expired.
func (p *PostgresCache) Get(ctx context.Context, symbol string) (*domain.CacheEntry, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM metrics_cache WHERE symbol = $1 AND expires_at > NOW()`,
		symbol,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry for %s: %w", symbol, err)
	}
	return decodeEntry(payload)
}

// Put upserts the entry for symbol.
func (p *PostgresCache) Put(ctx context.Context, symbol string, entry *domain.CacheEntry, ttl time.Duration) error {
	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO metrics_cache (symbol, date_key, payload, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (symbol) DO UPDATE
		 SET date_key = EXCLUDED.date_key, payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		symbol, entry.Date, payload, expiresAt(time.Now(), ttl),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry for %s: %w", symbol, err)
	}
	return nil
}

// DeleteExpired removes all rows whose expiry has passed.
func (p *PostgresCache) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM metrics_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("deleting expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
