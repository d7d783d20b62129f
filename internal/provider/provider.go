// Package provider adapts external price-history sources to the engine. A
// Provider returns daily bars and a spot price for a symbol; Chain composes
// several providers into a fallback sequence.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"perfmetrics/internal/domain"
)

// Source labels reported in domain.Spot.Source.
const (
	SourceAlpaca  = "alpaca"
	SourceYahoo   = "yahoo"
	SourceParquet = "parquet"
)

// ErrNoBars is returned when a provider has no bars for a symbol.
var ErrNoBars = errors.New("no bars returned")

// Provider fetches price history for a symbol.
type Provider interface {
	// Name returns the source label of the provider.
	Name() string

	// GetBars returns daily bars covering at least the last lookbackDays
	// calendar days, in any order.
	GetBars(ctx context.Context, symbol string, lookbackDays int) ([]domain.Bar, error)

	// GetSpot returns the latest traded price.
	GetSpot(ctx context.Context, symbol string) (domain.Spot, error)
}

// Chain tries each provider in order.
type Chain struct {
	providers []Provider
	log       *slog.Logger
}

var _ Provider = (*Chain)(nil)

// NewChain creates a Chain over providers. A nil logger uses slog.Default.
func NewChain(log *slog.Logger, providers ...Provider) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{
		providers: providers,
		log:       log.With("component", "provider-chain"),
	}
}

// Name joins the names of the chained providers.
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// GetBars returns the bars of the first provider that yields a non-empty
// series. When none does, the collected errors are returned joined.
func (c *Chain) GetBars(ctx context.Context, symbol string, lookbackDays int) ([]domain.Bar, error) {
	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := p.GetBars(ctx, symbol, lookbackDays)
		if err != nil {
			c.log.Warn("bar fetch failed", "provider", p.Name(), "symbol", symbol, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if len(bars) == 0 {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), ErrNoBars))
			continue
		}
		return bars, nil
	}
	if len(errs) == 0 {
		return nil, ErrNoBars
	}
	return nil, errors.Join(errs...)
}

// GetSpot returns the spot of the first provider that yields a positive
// price, so the source label names the provider that actually served it.
func (c *Chain) GetSpot(ctx context.Context, symbol string) (domain.Spot, error) {
	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return domain.Spot{}, err
		}
		spot, err := p.GetSpot(ctx, symbol)
		if err != nil {
			c.log.Debug("spot fetch failed", "provider", p.Name(), "symbol", symbol, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if !(spot.Price > 0) {
			errs = append(errs, fmt.Errorf("%s: no spot price", p.Name()))
			continue
		}
		return spot, nil
	}
	if len(errs) == 0 {
		return domain.Spot{}, errors.New("no providers configured")
	}
	return domain.Spot{}, errors.Join(errs...)
}
