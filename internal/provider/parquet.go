package provider

import (
	"context"
	"fmt"
	"time"

	"perfmetrics/internal/domain"
	"perfmetrics/internal/store"
)

// Parquet serves bars from the local Parquet archive. It is the offline
// fallback at the end of a provider chain.
type Parquet struct {
	bars   store.BarStore
	market string
	now    func() time.Time
}

var _ Provider = (*Parquet)(nil)

// NewParquet creates a provider reading from bars under the given market.
// An empty market uses store.DefaultMarket.
func NewParquet(bars store.BarStore, market string) *Parquet {
	if market == "" {
		market = store.DefaultMarket
	}
	return &Parquet{bars: bars, market: market, now: time.Now}
}

// Name returns "parquet".
func (p *Parquet) Name() string { return SourceParquet }

// GetBars reads archived bars for [now - lookbackDays, now].
func (p *Parquet) GetBars(ctx context.Context, symbol string, lookbackDays int) ([]domain.Bar, error) {
	end := p.now()
	start := end.AddDate(0, 0, -lookbackDays)
	bars, err := p.bars.ReadBars(ctx, symbol, p.market, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading archived bars for %s: %w", symbol, err)
	}
	return bars, nil
}

// GetSpot returns the last archived close. The archive is at most as fresh
// as the last successful live fetch, so only the last week is consulted.
func (p *Parquet) GetSpot(ctx context.Context, symbol string) (domain.Spot, error) {
	bars, err := p.GetBars(ctx, symbol, 7)
	if err != nil {
		return domain.Spot{}, err
	}
	if len(bars) == 0 {
		return domain.Spot{}, fmt.Errorf("%s: %w", symbol, ErrNoBars)
	}

	last := bars[0]
	for _, b := range bars[1:] {
		if b.Timestamp.After(last.Timestamp) {
			last = b
		}
	}
	return domain.Spot{
		Price:     last.Close,
		High:      last.High,
		Low:       last.Low,
		Source:    SourceParquet,
		Timestamp: last.Timestamp,
	}, nil
}
