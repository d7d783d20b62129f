// Package engine serves per-symbol performance metrics. GetMetrics returns
// the day's cached entry or recomputes it from fresh provider data;
// RefreshAll recomputes many symbols in bounded concurrent batches.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"perfmetrics/internal/domain"
	"perfmetrics/internal/metrics"
	"perfmetrics/internal/provider"
	"perfmetrics/internal/store"
	"perfmetrics/internal/util"
)

const (
	// MinLookbackDays covers the 90-day window plus holidays and gaps.
	MinLookbackDays = 120

	// DefaultBatchSize is the number of symbols RefreshAll computes at once.
	DefaultBatchSize = 5

	// SourceLastClose labels entries whose spot is the last fetched close
	// because no provider could serve a live price.
	SourceLastClose = "last-close"

	maxSymbolLen = 15
)

// Options tunes the engine.
type Options struct {
	LookbackDays int
	FoldSpot     bool
	BatchSize    int
	Metrics      metrics.Options
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		LookbackDays: MinLookbackDays,
		FoldSpot:     true,
		BatchSize:    DefaultBatchSize,
		Metrics:      metrics.DefaultOptions(),
	}
}

// Option customizes an Engine beyond Options.
type Option func(*Engine)

// WithArchive makes the engine copy every fetched series into bars.
func WithArchive(bars store.BarStore) Option {
	return func(e *Engine) { e.archive = bars }
}

// WithClock overrides the clock used for date keys and spot folding.
func WithClock(c *util.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// Engine owns the daily cache and the provider.
type Engine struct {
	provider provider.Provider
	cache    store.CacheStore
	archive  store.BarStore
	clock    *util.Clock
	opts     Options
	log      *slog.Logger
}

// New creates an Engine. Options left at zero are filled from
// DefaultOptions; a lookback shorter than MinLookbackDays is raised to it.
func New(p provider.Provider, cache store.CacheStore, opts Options, log *slog.Logger, extra ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if opts.LookbackDays < MinLookbackDays {
		opts.LookbackDays = MinLookbackDays
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Metrics.TopPriceMode == "" {
		opts.Metrics.TopPriceMode = domain.TopPriceHigh
	}

	e := &Engine{
		provider: p,
		cache:    cache,
		clock:    util.NewClock(time.Local),
		opts:     opts,
		log:      log.With("component", "engine"),
	}
	for _, o := range extra {
		o(e)
	}
	return e
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// NormalizeSymbol trims and upper-cases symbol. Blank symbols and symbols
// with characters no exchange ticker uses are rejected.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" || len(s) > maxSymbolLen {
		return "", domain.ErrInvalidSymbol
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '^', r == '=':
		default:
			return "", domain.ErrInvalidSymbol
		}
	}
	return s, nil
}

// GetMetrics returns today's entry for symbol. A fresh cached entry is
// returned unchanged; otherwise the entry is recomputed from the provider
// and written back to the cache.
//
// Only missing bar history yields ErrNoHistoricalData. When no provider can
// serve a spot price the last close stands in, the entry's DataSource is
// SourceLastClose ("last-close") and the series is not folded.
func (e *Engine) GetMetrics(ctx context.Context, symbol string) (*domain.CacheEntry, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	today := e.clock.DateKey(now)

	cached, err := e.cache.Get(ctx, sym)
	if err != nil {
		e.log.Warn("cache read failed", "symbol", sym, "err", err)
	} else if cached.FreshFor(today) {
		return cached, nil
	}

	return e.compute(ctx, sym, now, today)
}

func (e *Engine) compute(ctx context.Context, sym string, now time.Time, today string) (*domain.CacheEntry, error) {
	fetched, err := e.provider.GetBars(ctx, sym, e.opts.LookbackDays)
	if err != nil {
		return nil, &domain.NoDataError{Symbol: sym, Cause: err}
	}

	bars := e.sanitize(sym, fetched)
	if len(bars) == 0 {
		return nil, &domain.NoDataError{Symbol: sym}
	}
	bars = metrics.SortBars(bars)
	e.archiveBars(ctx, sym, bars)

	spot, fold := e.fetchSpot(ctx, sym, bars[len(bars)-1])
	if fold && e.opts.FoldSpot {
		bars = foldSpot(bars, spot, now)
	}

	windows, errs := metrics.ComposeAll(sym, bars, e.opts.Metrics)
	for _, werr := range errs {
		e.log.Debug("window skipped", "symbol", sym, "err", werr)
	}

	entry := &domain.CacheEntry{
		Date:       today,
		Symbol:     sym,
		Bars:       bars,
		Metrics:    windows,
		SpotPrice:  spot.Price,
		DataSource: spot.Source,
		ComputedAt: now,
	}

	if err := e.cache.Put(ctx, sym, entry, e.clock.UntilNextDay(now)); err != nil {
		e.log.Warn("cache write failed", "symbol", sym, "err", err)
	}

	e.log.Debug("metrics computed",
		"symbol", sym,
		"bars", len(bars),
		"windows", len(windows),
		"source", spot.Source,
	)
	return entry, nil
}

// fetchSpot fetches the live price. When that fails the last close stands in and
// fold is false, since folding a close into itself changes nothing.
func (e *Engine) fetchSpot(ctx context.Context, sym string, last domain.Bar) (spot domain.Spot, fold bool) {
	s, err := e.provider.GetSpot(ctx, sym)
	if err == nil && !validPrice(s.Price) {
		err = errors.New("non-positive spot price")
	}
	if err != nil {
		e.log.Warn("spot unavailable, using last close", "symbol", sym, "err", err)
		return domain.Spot{
			Price:     last.Close,
			Source:    SourceLastClose,
			Timestamp: last.Timestamp,
		}, false
	}
	return s, true
}

// sanitize drops bars that cannot be used for computation.
func (e *Engine) sanitize(sym string, bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	dropped := 0
	for _, b := range bars {
		if b.Timestamp.IsZero() || !validPrice(b.Close) {
			dropped++
			continue
		}
		if b.Symbol == "" {
			b.Symbol = sym
		}
		out = append(out, b)
	}
	if dropped > 0 {
		e.log.Warn("dropped invalid bars", "symbol", sym, "dropped", dropped, "kept", len(out))
	}
	return out
}

func (e *Engine) archiveBars(ctx context.Context, sym string, bars []domain.Bar) {
	if e.archive == nil {
		return
	}
	if err := e.archive.WriteBars(ctx, bars); err != nil {
		e.log.Warn("archiving bars failed", "symbol", sym, "err", err)
	}
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
