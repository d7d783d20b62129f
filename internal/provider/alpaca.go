package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"perfmetrics/internal/domain"
	"perfmetrics/internal/util"
)

// alpacaClient is the subset of *marketdata.Client used here.
type alpacaClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

// AlpacaOptions configures an Alpaca provider.
type AlpacaOptions struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Feed            string
	Timeout         time.Duration
	RetryAttempts   int
	RateLimitPerMin int
}

// Alpaca serves daily bars and snapshots from the Alpaca market-data API.
type Alpaca struct {
	client   alpacaClient
	feed     marketdata.Feed
	attempts int
	backoff  time.Duration
	limiter  *util.RateLimiter
	now      func() time.Time
	log      *slog.Logger
}

var _ Provider = (*Alpaca)(nil)

// NewAlpaca creates an Alpaca provider from opts.
func NewAlpaca(opts AlpacaOptions, log *slog.Logger) *Alpaca {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientOpts := marketdata.ClientOpts{
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if opts.DataURL != "" {
		clientOpts.BaseURL = opts.DataURL
	}
	return newAlpaca(marketdata.NewClient(clientOpts), opts, log)
}

func newAlpaca(client alpacaClient, opts AlpacaOptions, log *slog.Logger) *Alpaca {
	if log == nil {
		log = slog.Default()
	}
	feed := opts.Feed
	if feed == "" {
		feed = "iex"
	}
	return &Alpaca{
		client:   client,
		feed:     marketdata.Feed(feed),
		attempts: max(opts.RetryAttempts, 1),
		backoff:  500 * time.Millisecond,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		now:      time.Now,
		log:      log.With("provider", SourceAlpaca),
	}
}

// Name returns "alpaca".
func (a *Alpaca) Name() string { return SourceAlpaca }

// GetBars fetches daily bars for [now - lookbackDays, now].
func (a *Alpaca) GetBars(ctx context.Context, symbol string, lookbackDays int) ([]domain.Bar, error) {
	end := a.now()
	start := end.AddDate(0, 0, -lookbackDays)

	var raw []marketdata.Bar
	err := a.call(ctx, func() error {
		var err error
		raw, err = a.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      a.feed,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	a.log.Debug("fetched bars", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

// GetSpot returns the latest trade price with today's session high and low
// from the snapshot's daily bar.
func (a *Alpaca) GetSpot(ctx context.Context, symbol string) (domain.Spot, error) {
	var snap *marketdata.Snapshot
	err := a.call(ctx, func() error {
		var err error
		snap, err = a.client.GetSnapshot(symbol, marketdata.GetSnapshotRequest{Feed: a.feed})
		return err
	})
	if err != nil {
		return domain.Spot{}, fmt.Errorf("GetSnapshot %s: %w", symbol, err)
	}
	if snap == nil {
		return domain.Spot{}, fmt.Errorf("GetSnapshot %s: empty snapshot", symbol)
	}

	spot := domain.Spot{Source: SourceAlpaca}
	switch {
	case snap.LatestTrade != nil && snap.LatestTrade.Price > 0:
		spot.Price = snap.LatestTrade.Price
		spot.Timestamp = snap.LatestTrade.Timestamp
	case snap.DailyBar != nil && snap.DailyBar.Close > 0:
		spot.Price = snap.DailyBar.Close
		spot.Timestamp = snap.DailyBar.Timestamp
	default:
		return domain.Spot{}, fmt.Errorf("GetSnapshot %s: no price", symbol)
	}
	if snap.DailyBar != nil {
		spot.High = snap.DailyBar.High
		spot.Low = snap.DailyBar.Low
	}
	return spot, nil
}

// call runs fn under the rate limiter with retries. The marketdata client
// takes no context, so cancellation is checked between attempts.
func (a *Alpaca) call(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, a.attempts, a.backoff, func() error {
		if err := ctx.Err(); err != nil {
			return util.Permanent(err)
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		return fn()
	})
}
