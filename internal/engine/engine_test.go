package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfmetrics/internal/domain"
	"perfmetrics/internal/store"
	"perfmetrics/internal/util"
)

var testNow = time.Date(2024, 6, 14, 20, 0, 0, 0, time.UTC)

// series returns n daily bars ending one day before testNow, rising by step.
func series(symbol string, n int, start, step float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := start + float64(i)*step
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: testNow.AddDate(0, 0, -(n - i)),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
		}
	}
	return bars
}

type fakeProvider struct {
	mu       sync.Mutex
	bars     map[string][]domain.Bar
	barsErr  map[string]error
	spotErr  error
	lookback int
	calls    map[string]int
	onBars   func(ctx context.Context, symbol string)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bars:    make(map[string][]domain.Bar),
		barsErr: make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GetBars(ctx context.Context, symbol string, lookbackDays int) ([]domain.Bar, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.onBars != nil {
		f.onBars(ctx, symbol)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	f.lookback = lookbackDays
	if err := f.barsErr[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

func (f *fakeProvider) GetSpot(_ context.Context, symbol string) (domain.Spot, error) {
	if f.spotErr != nil {
		return domain.Spot{}, f.spotErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	bars := f.bars[symbol]
	if len(bars) == 0 {
		return domain.Spot{}, errors.New("no spot")
	}
	return domain.Spot{Price: bars[len(bars)-1].Close * 1.01, Source: "fake", Timestamp: testNow}, nil
}

func (f *fakeProvider) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

// brokenCache fails every operation.
type brokenCache struct{ puts atomic.Int32 }

func (b *brokenCache) Get(context.Context, string) (*domain.CacheEntry, error) {
	return nil, errors.New("cache offline")
}

func (b *brokenCache) Put(context.Context, string, *domain.CacheEntry, time.Duration) error {
	b.puts.Add(1)
	return errors.New("cache offline")
}

func newTestEngine(p *fakeProvider, cache store.CacheStore, opts Options, extra ...Option) *Engine {
	clock := util.NewClock(time.UTC).WithNow(func() time.Time { return testNow })
	extra = append([]Option{WithClock(clock)}, extra...)
	return New(p, cache, opts, util.DiscardLogger(), extra...)
}

func TestGetMetricsComputesAndCaches(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.bars["AAPL"] = series("AAPL", 100, 100, 1)
	cache := store.NewMemoryCache()
	e := newTestEngine(p, cache, DefaultOptions())

	entry, err := e.GetMetrics(ctx, " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", entry.Symbol)
	assert.Equal(t, "2024-06-14", entry.Date)
	assert.Equal(t, "fake", entry.DataSource)
	assert.InDelta(t, 199*1.01, entry.SpotPrice, 1e-9)
	assert.Len(t, entry.Metrics, 4)
	assert.Len(t, entry.Bars, 101, "stale last bar gets the spot appended")
	assert.Equal(t, MinLookbackDays, p.lookback)

	for _, w := range domain.AllWindows {
		m := entry.Metrics[w]
		assert.Equal(t, w, m.Window)
		assert.Greater(t, m.ReturnPct, 0.0)
		assert.Equal(t, 0.0, m.MaxDrawdownPct)
	}

	cached, err := cache.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Same(t, entry, cached)
}

func TestGetMetricsCacheHitSkipsProvider(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.bars["MSFT"] = series("MSFT", 60, 300, 0.5)
	e := newTestEngine(p, store.NewMemoryCache(), DefaultOptions())

	first, err := e.GetMetrics(ctx, "MSFT")
	require.NoError(t, err)
	second, err := e.GetMetrics(ctx, "msft")
	require.NoError(t, err)

	assert.Same(t, first, second, "fresh entry is returned unchanged")
	assert.Equal(t, 1, p.callCount("MSFT"))
}

func TestGetMetricsRecomputesStaleEntry(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.bars["TSLA"] = series("TSLA", 60, 200, -1)
	cache := store.NewMemoryCache()

	stale := &domain.CacheEntry{Date: "2024-06-13", Symbol: "TSLA", SpotPrice: 1}
	require.NoError(t, cache.Put(ctx, "TSLA", stale, 48*time.Hour))

	e := newTestEngine(p, cache, DefaultOptions())
	entry, err := e.GetMetrics(ctx, "TSLA")
	require.NoError(t, err)

	assert.Equal(t, "2024-06-14", entry.Date)
	assert.NotEqual(t, 1.0, entry.SpotPrice)
	assert.Equal(t, 1, p.callCount("TSLA"))
}

func TestGetMetricsNoData(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("symbol not found")
	p := newFakeProvider()
	p.barsErr["GONE"] = cause
	cache := store.NewMemoryCache()
	e := newTestEngine(p, cache, DefaultOptions())

	entry, err := e.GetMetrics(ctx, "GONE")
	assert.Nil(t, entry)
	require.ErrorIs(t, err, domain.ErrNoHistoricalData)
	assert.ErrorIs(t, err, cause)

	var nd *domain.NoDataError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, "GONE", nd.Symbol)

	// Empty series and a series with only unusable bars are no data too.
	_, err = e.GetMetrics(ctx, "EMPTY")
	assert.ErrorIs(t, err, domain.ErrNoHistoricalData)

	p.bars["JUNK"] = []domain.Bar{
		{Symbol: "JUNK", Close: 10},
		{Symbol: "JUNK", Timestamp: testNow.AddDate(0, 0, -2), Close: 0},
		{Symbol: "JUNK", Timestamp: testNow.AddDate(0, 0, -1), Close: math.NaN()},
		{Symbol: "JUNK", Timestamp: testNow.AddDate(0, 0, -1), Close: math.Inf(1)},
	}
	_, err = e.GetMetrics(ctx, "JUNK")
	assert.ErrorIs(t, err, domain.ErrNoHistoricalData)

	assert.Equal(t, 0, cache.Len(), "failures are never cached")
}

func TestGetMetricsInvalidSymbol(t *testing.T) {
	e := newTestEngine(newFakeProvider(), store.NewMemoryCache(), DefaultOptions())
	for _, sym := range []string{"", "   ", "AA PL", "A/B", "WAYTOOLONGSYMBOLNAME"} {
		_, err := e.GetMetrics(context.Background(), sym)
		assert.ErrorIs(t, err, domain.ErrInvalidSymbol, "symbol %q", sym)
	}
}

func TestGetMetricsSpotFailureUsesLastClose(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.spotErr = errors.New("quote feed down")
	p.bars["IBM"] = []domain.Bar{{Symbol: "IBM", Timestamp: testNow.AddDate(0, 0, -3), Close: 170}}
	cache := store.NewMemoryCache()
	e := newTestEngine(p, cache, DefaultOptions())

	entry, err := e.GetMetrics(ctx, "IBM")
	require.NoError(t, err)
	assert.Equal(t, SourceLastClose, entry.DataSource)
	assert.Equal(t, 170.0, entry.SpotPrice)
	assert.Len(t, entry.Bars, 1, "no folding without a live spot")
	assert.Empty(t, entry.Metrics, "every window is insufficient")

	cached, err := cache.Get(ctx, "IBM")
	require.NoError(t, err)
	assert.NotNil(t, cached, "an entry without metrics is still cached")
}

func TestGetMetricsSurvivesCacheFailures(t *testing.T) {
	p := newFakeProvider()
	p.bars["NVDA"] = series("NVDA", 30, 100, 2)
	cache := &brokenCache{}
	e := newTestEngine(p, cache, DefaultOptions())

	entry, err := e.GetMetrics(context.Background(), "NVDA")
	require.NoError(t, err, "cache errors must not fail the request")
	require.NotNil(t, entry)
	assert.Equal(t, int32(1), cache.puts.Load())
}

func TestNewRaisesLookback(t *testing.T) {
	opts := DefaultOptions()
	opts.LookbackDays = 30
	opts.BatchSize = 0
	e := newTestEngine(newFakeProvider(), store.NewMemoryCache(), opts)
	assert.Equal(t, MinLookbackDays, e.Options().LookbackDays)
	assert.Equal(t, DefaultBatchSize, e.Options().BatchSize)

	opts.LookbackDays = 400
	e = newTestEngine(newFakeProvider(), store.NewMemoryCache(), opts)
	assert.Equal(t, 400, e.Options().LookbackDays)
}

func TestGetMetricsArchivesBars(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.bars["AMD"] = series("AMD", 20, 150, 1)
	archive := store.NewParquetStore(t.TempDir())
	e := newTestEngine(p, store.NewMemoryCache(), DefaultOptions(), WithArchive(archive))

	_, err := e.GetMetrics(ctx, "AMD")
	require.NoError(t, err)

	got, err := archive.ReadBars(ctx, "AMD", store.DefaultMarket, testNow.AddDate(0, 0, -30), testNow)
	require.NoError(t, err)
	assert.Len(t, got, 20, "the fetched series is archived without the folded spot")
}

func TestFoldSpot(t *testing.T) {
	last := testNow.AddDate(0, 0, -1)
	bars := []domain.Bar{
		{Symbol: "X", Timestamp: last.AddDate(0, 0, -1), Close: 99, High: 100, Low: 98},
		{Symbol: "X", Timestamp: last, Close: 100, High: 101, Low: 99},
	}

	t.Run("stale bar appends", func(t *testing.T) {
		out := foldSpot(bars, domain.Spot{Price: 110}, testNow)
		require.Len(t, out, 3)
		got := out[2]
		assert.Equal(t, testNow, got.Timestamp)
		assert.Equal(t, 110.0, got.Close)
		assert.InDelta(t, 110*1.005, got.High, 1e-9)
		assert.InDelta(t, 110*0.995, got.Low, 1e-9)
		assert.Equal(t, 100.0, bars[1].Close, "input is not modified")
	})

	t.Run("session range is used when known", func(t *testing.T) {
		out := foldSpot(bars, domain.Spot{Price: 110, High: 112, Low: 105}, testNow)
		require.Len(t, out, 3)
		assert.Equal(t, 112.0, out[2].High)
		assert.Equal(t, 105.0, out[2].Low)
	})

	t.Run("recent bar updates in place", func(t *testing.T) {
		recent := append([]domain.Bar(nil), bars...)
		recent[1].Timestamp = testNow.Add(-30 * time.Minute)

		out := foldSpot(recent, domain.Spot{Price: 103}, testNow)
		require.Len(t, out, 2, "no duplicate day")
		assert.Equal(t, 103.0, out[1].Close)
		assert.Equal(t, 103.0, out[1].High)
		assert.Equal(t, 99.0, out[1].Low)

		out = foldSpot(recent, domain.Spot{Price: 97}, testNow)
		assert.Equal(t, 101.0, out[1].High)
		assert.Equal(t, 97.0, out[1].Low)
	})
}

func TestRefreshAllPartialFailure(t *testing.T) {
	p := newFakeProvider()
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	for _, s := range symbols {
		if s != "CCC" {
			p.bars[s] = series(s, 50, 20, 0.1)
		}
	}
	e := newTestEngine(p, store.NewMemoryCache(), DefaultOptions())

	res := e.RefreshAll(context.Background(), symbols)
	assert.Len(t, res.Results, 4)
	assert.Equal(t, []string{"CCC"}, res.Failures)
	assert.ErrorIs(t, res.Errors["CCC"], domain.ErrNoHistoricalData)
	assert.NotEmpty(t, res.RunID)
	for _, s := range []string{"AAA", "BBB", "DDD", "EEE"} {
		require.Contains(t, res.Results, s)
		assert.Equal(t, s, res.Results[s].Symbol)
	}
}

func TestRefreshAllNormalizesAndKeepsOrder(t *testing.T) {
	p := newFakeProvider()
	p.bars["AAA"] = series("AAA", 10, 20, 0.1)
	e := newTestEngine(p, store.NewMemoryCache(), DefaultOptions())

	res := e.RefreshAll(context.Background(), []string{"zzz", "aaa", " AAA", "", "yyy", "ZZZ"})
	assert.Len(t, res.Results, 1)
	assert.Equal(t, []string{"ZZZ", "", "YYY"}, res.Failures)
	assert.ErrorIs(t, res.Errors[""], domain.ErrInvalidSymbol)
	assert.Equal(t, 1, p.callCount("AAA"), "duplicates are computed once")
	assert.Equal(t, 1, p.callCount("ZZZ"))
}

func TestRefreshAllBoundsConcurrency(t *testing.T) {
	p := newFakeProvider()
	p.delay = 20 * time.Millisecond
	var symbols []string
	for _, s := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"} {
		symbols = append(symbols, s)
		p.bars[s] = series(s, 10, 10, 1)
	}
	opts := DefaultOptions()
	opts.BatchSize = 5
	e := newTestEngine(p, store.NewMemoryCache(), opts)

	res := e.RefreshAll(context.Background(), symbols)
	assert.Len(t, res.Results, 12)
	assert.Empty(t, res.Failures)
	assert.LessOrEqual(t, p.maxInFlight.Load(), int32(5))
	assert.Greater(t, p.maxInFlight.Load(), int32(1), "symbols within a batch run concurrently")
}

func TestRefreshAllRecoversPanics(t *testing.T) {
	p := newFakeProvider()
	p.bars["OK"] = series("OK", 10, 10, 1)
	p.onBars = func(_ context.Context, symbol string) {
		if symbol == "BOOM" {
			panic("provider bug")
		}
	}
	e := newTestEngine(p, store.NewMemoryCache(), DefaultOptions())

	res := e.RefreshAll(context.Background(), []string{"BOOM", "OK"})
	assert.Contains(t, res.Results, "OK")
	assert.Equal(t, []string{"BOOM"}, res.Failures)
	assert.ErrorContains(t, res.Errors["BOOM"], "panic")
}

func TestRefreshAllCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newFakeProvider()
	for _, s := range []string{"A", "B", "C", "D"} {
		p.bars[s] = series(s, 10, 10, 1)
	}
	p.onBars = func(context.Context, string) { cancel() }

	opts := DefaultOptions()
	opts.BatchSize = 2
	e := newTestEngine(p, store.NewMemoryCache(), opts)

	res := e.RefreshAll(ctx, []string{"A", "B", "C", "D"})
	assert.Len(t, res.Results, 2, "the running batch completes")
	assert.Equal(t, []string{"C", "D"}, res.Failures)
	assert.ErrorIs(t, res.Errors["C"], context.Canceled)
	assert.Equal(t, 0, p.callCount("C"))
}
