// Package app wires configuration into a ready-to-use metrics engine. Both
// the server and the CLI build their engine through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"perfmetrics/internal/config"
	"perfmetrics/internal/domain"
	"perfmetrics/internal/engine"
	"perfmetrics/internal/metrics"
	"perfmetrics/internal/provider"
	"perfmetrics/internal/store"
	"perfmetrics/internal/util"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Engine  *engine.Engine
	Cache   store.CacheStore
	Archive *store.ParquetStore
	Clock   *util.Clock
	Log     *slog.Logger

	closers []func() error
}

// New builds the cache, the provider chain and the engine from cfg.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	clock, err := util.LoadClock(cfg.Metrics.Timezone)
	if err != nil {
		return nil, err
	}
	topPrice, err := domain.ParseTopPriceMode(cfg.Metrics.TopPriceMode)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Archive: store.NewParquetStore(cfg.Storage.DataDir),
		Clock:   clock,
		Log:     log,
	}

	cache, closeCache, err := OpenCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Cache = cache
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	chain, err := BuildProvider(cfg, a.Archive, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := engine.Options{
		LookbackDays: cfg.Metrics.LookbackDays,
		FoldSpot:     cfg.Metrics.FoldSpotEnabled(),
		BatchSize:    cfg.Refresh.BatchSize,
		Metrics: metrics.Options{
			TopPriceMode: topPrice,
			RiskFreeRate: cfg.Metrics.RiskFree(),
		},
	}
	a.Engine = engine.New(chain, cache, opts, log,
		engine.WithClock(clock),
		engine.WithArchive(a.Archive),
	)

	log.Info("engine ready",
		"cache", cfg.Cache.Backend,
		"providers", chain.Name(),
		"lookback_days", opts.LookbackDays,
		"timezone", clock.Location().String(),
	)
	return a, nil
}

// Sweeper returns the cache as a store.Sweeper, or nil when it is not one.
func (a *App) Sweeper() store.Sweeper {
	if sw, ok := a.Cache.(store.Sweeper); ok {
		return sw
	}
	return nil
}

// Close releases the cache connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenCache opens the cache backend selected by cfg.Cache.Backend. The
// returned close function is nil for the memory backend.
func OpenCache(ctx context.Context, cfg *config.Config) (store.CacheStore, func() error, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return store.NewMemoryCache(), nil, nil
	case "sqlite":
		path := cfg.Storage.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Storage.DataDir, "perfmetrics.db")
		}
		c, err := store.NewSQLiteCache(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite cache %s: %w", path, err)
		}
		return c, c.Close, nil
	case "postgres":
		pool, err := store.ConnectPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting postgres cache: %w", err)
		}
		c, err := store.NewPostgresCache(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// BuildProvider assembles the provider chain in cfg.Provider.Order. Alpaca
// is skipped when no credentials are configured.
func BuildProvider(cfg *config.Config, archive store.BarStore, log *slog.Logger) (*provider.Chain, error) {
	timeout := time.Duration(cfg.Provider.TimeoutSec) * time.Second

	var providers []provider.Provider
	for _, name := range cfg.Provider.Order {
		switch name {
		case provider.SourceAlpaca:
			if !cfg.Alpaca.Enabled() {
				log.Warn("alpaca credentials missing, provider disabled")
				continue
			}
			providers = append(providers, provider.NewAlpaca(provider.AlpacaOptions{
				APIKey:          cfg.Alpaca.APIKey,
				APISecret:       cfg.Alpaca.APISecret,
				DataURL:         cfg.Alpaca.DataURL,
				Feed:            cfg.Alpaca.Feed,
				Timeout:         timeout,
				RetryAttempts:   cfg.Provider.RetryAttempts,
				RateLimitPerMin: cfg.Provider.RateLimitPerMin,
			}, log))
		case provider.SourceYahoo:
			providers = append(providers, provider.NewYahoo(provider.YahooOptions{
				BaseURL:         cfg.Yahoo.BaseURL,
				ProxyURL:        cfg.Yahoo.ProxyURL,
				Timeout:         timeout,
				RetryAttempts:   cfg.Provider.RetryAttempts,
				RateLimitPerMin: cfg.Provider.RateLimitPerMin,
			}, log))
		case provider.SourceParquet:
			providers = append(providers, provider.NewParquet(archive, store.DefaultMarket))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, errors.New("no price providers enabled")
	}
	return provider.NewChain(log, providers...), nil
}
