package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfmetrics/internal/domain"
)

func sampleEntry(symbol, date string) *domain.CacheEntry {
	ts := time.Date(2024, 6, 14, 20, 0, 0, 0, time.UTC)
	return &domain.CacheEntry{
		Date:   date,
		Symbol: symbol,
		Bars: []domain.Bar{
			{Symbol: symbol, Timestamp: ts.AddDate(0, 0, -1), Close: 100, High: 101},
			{Symbol: symbol, Timestamp: ts, Close: 102.5, High: 103, Low: 99.5, Volume: 1200},
		},
		Metrics: map[domain.WindowKey]domain.TickerWindowMetrics{
			domain.Window7D: {
				Symbol: symbol, Window: domain.Window7D, Bars: 2,
				StartPrice: 100, EndPrice: 102.5, ReturnPct: 2.5, ReturnAbs: 2.5,
				TopPrice: 103,
			},
		},
		SpotPrice:  102.5,
		DataSource: "alpaca",
		ComputedAt: ts,
	}
}

// cacheContract runs the behaviour every CacheStore must share.
func cacheContract(t *testing.T, cache CacheStore) {
	t.Helper()
	ctx := context.Background()

	got, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, got, "missing symbol must be a miss, not an error")

	want := sampleEntry("AAPL", "2024-06-14")
	require.NoError(t, cache.Put(ctx, "AAPL", want, time.Hour))

	got, err = cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Date, got.Date)
	assert.Equal(t, want.Symbol, got.Symbol)
	assert.Equal(t, want.SpotPrice, got.SpotPrice)
	assert.Equal(t, want.DataSource, got.DataSource)
	assert.True(t, want.ComputedAt.Equal(got.ComputedAt))
	assert.Equal(t, want.Metrics, got.Metrics)
	require.Len(t, got.Bars, 2)
	assert.Equal(t, 102.5, got.Bars[1].Close)
	assert.True(t, want.Bars[1].Timestamp.Equal(got.Bars[1].Timestamp))

	// Put replaces the whole entry.
	next := sampleEntry("AAPL", "2024-06-15")
	next.SpotPrice = 110
	require.NoError(t, cache.Put(ctx, "AAPL", next, time.Hour))
	got, err = cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024-06-15", got.Date)
	assert.Equal(t, 110.0, got.SpotPrice)
}

func TestMemoryCache(t *testing.T) {
	cacheContract(t, NewMemoryCache())
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(ctx, "MSFT", sampleEntry("MSFT", "2024-06-14"), time.Hour))
	require.NoError(t, cache.Put(ctx, "TSLA", sampleEntry("TSLA", "2024-06-14"), 3*time.Hour))

	now = now.Add(2 * time.Hour)
	got, err := cache.Get(ctx, "MSFT")
	require.NoError(t, err)
	assert.Nil(t, got, "expired entry must not be served")

	n, err := cache.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, cache.Len())

	got, err = cache.Get(ctx, "TSLA")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSQLiteCache(t *testing.T) {
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, cache.Close()) })

	cacheContract(t, cache)
}

func TestSQLiteCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	now := time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(ctx, "MSFT", sampleEntry("MSFT", "2024-06-14"), time.Hour))
	require.NoError(t, cache.Put(ctx, "TSLA", sampleEntry("TSLA", "2024-06-14"), 3*time.Hour))

	now = now.Add(2 * time.Hour)
	got, err := cache.Get(ctx, "MSFT")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := cache.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = cache.Get(ctx, "TSLA")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSQLiteCacheSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	cache, err := NewSQLiteCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put(ctx, "NVDA", sampleEntry("NVDA", "2024-06-14"), time.Hour))
	require.NoError(t, cache.Close())

	reopened, err := NewSQLiteCache(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.Get(ctx, "NVDA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024-06-14", got.Date)
}

func TestPostgresCache(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	cache, err := NewPostgresCache(ctx, pool)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM metrics_cache WHERE symbol = 'AAPL'`)
		cache.Close()
	})

	cacheContract(t, cache)

	_, err = cache.DeleteExpired(ctx)
	assert.NoError(t, err)
}
