// Package domain defines the core types shared across the metrics engine:
// daily bars, trailing windows, computed window metrics and cache entries.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is one trading day's price observation for a symbol. Close is the
// canonical price; Open, High and Low are optional and zero when the
// provider did not supply them.
type Bar struct {
	Symbol    string    `json:"symbol" msgpack:"symbol"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Open      float64   `json:"open,omitempty" msgpack:"open"`
	High      float64   `json:"high,omitempty" msgpack:"high"`
	Low       float64   `json:"low,omitempty" msgpack:"low"`
	Close     float64   `json:"close" msgpack:"close"`
	Volume    int64     `json:"volume,omitempty" msgpack:"volume"`
}

// HasHigh reports whether the bar carries a high price.
func (b Bar) HasHigh() bool { return b.High > 0 }

// HasLow reports whether the bar carries a low price.
func (b Bar) HasLow() bool { return b.Low > 0 }

// ---------------------------------------------------------------------------
// Windows
// ---------------------------------------------------------------------------

// WindowKey selects a trailing period anchored at the latest bar.
type WindowKey string

const (
	Window7D  WindowKey = "7d"
	Window30D WindowKey = "30d"
	Window60D WindowKey = "60d"
	Window90D WindowKey = "90d"
)

// AllWindows lists every supported window in ascending length.
var AllWindows = []WindowKey{Window7D, Window30D, Window60D, Window90D}

// Days returns the number of calendar days covered by the window, or 0 for
// an unknown key.
func (w WindowKey) Days() int {
	switch w {
	case Window7D:
		return 7
	case Window30D:
		return 30
	case Window60D:
		return 60
	case Window90D:
		return 90
	default:
		return 0
	}
}

// Duration returns the window length in exact 24-hour multiples.
func (w WindowKey) Duration() time.Duration {
	return time.Duration(w.Days()) * 24 * time.Hour
}

// Valid reports whether w is one of the supported windows.
func (w WindowKey) Valid() bool { return w.Days() > 0 }

// ParseWindowKey parses "7d", "30d", "60d" or "90d" (case-insensitive).
func ParseWindowKey(s string) (WindowKey, error) {
	w := WindowKey(strings.ToLower(strings.TrimSpace(s)))
	if !w.Valid() {
		return "", fmt.Errorf("unknown window %q", s)
	}
	return w, nil
}

// MaxWindowDays returns the length of the longest supported window.
func MaxWindowDays() int {
	return AllWindows[len(AllWindows)-1].Days()
}

// ---------------------------------------------------------------------------
// Top price mode
// ---------------------------------------------------------------------------

// TopPriceMode selects which bar field the window top price is taken from.
type TopPriceMode string

const (
	// TopPriceHigh uses each bar's high, falling back to its close when the
	// bar has no high.
	TopPriceHigh TopPriceMode = "high"
	// TopPriceClose uses closing prices only.
	TopPriceClose TopPriceMode = "close"
)

// ParseTopPriceMode parses "high" or "close". An empty string yields
// TopPriceHigh.
func ParseTopPriceMode(s string) (TopPriceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(TopPriceHigh):
		return TopPriceHigh, nil
	case string(TopPriceClose):
		return TopPriceClose, nil
	default:
		return "", fmt.Errorf("unknown top price mode %q", s)
	}
}

// ---------------------------------------------------------------------------
// Computed metrics
// ---------------------------------------------------------------------------

// TickerWindowMetrics is the computed result for one (symbol, window) pair.
// Percentage and ratio fields are rounded to 2 decimals, price and dollar
// fields to 4 decimals.
type TickerWindowMetrics struct {
	Symbol           string    `json:"symbol" msgpack:"symbol"`
	Window           WindowKey `json:"window" msgpack:"window"`
	Bars             int       `json:"bars" msgpack:"bars"`
	StartPrice       float64   `json:"start_price" msgpack:"start_price"`
	EndPrice         float64   `json:"end_price" msgpack:"end_price"`
	ReturnPct        float64   `json:"return_pct" msgpack:"return_pct"`
	ReturnAbs        float64   `json:"return_abs" msgpack:"return_abs"`
	VolatilityAnnual float64   `json:"volatility_annual" msgpack:"volatility_annual"`
	SharpeRatio      float64   `json:"sharpe_ratio" msgpack:"sharpe_ratio"`
	MaxDrawdownPct   float64   `json:"max_drawdown_pct" msgpack:"max_drawdown_pct"`
	TopPrice         float64   `json:"top_price" msgpack:"top_price"`
}

// Spot is the latest traded price for a symbol along with the label of the
// data source that served it. High and Low describe the current session and
// are zero when unknown.
type Spot struct {
	Price     float64   `json:"price"`
	High      float64   `json:"high,omitempty"`
	Low       float64   `json:"low,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheEntry is the per-symbol, per-calendar-day snapshot owned by the
// metrics engine. Entries are never mutated after construction; a stale
// entry is replaced as a whole.
type CacheEntry struct {
	Date       string                            `json:"date" msgpack:"date"`
	Symbol     string                            `json:"symbol" msgpack:"symbol"`
	Bars       []Bar                             `json:"bars,omitempty" msgpack:"bars"`
	Metrics    map[WindowKey]TickerWindowMetrics `json:"metrics" msgpack:"metrics"`
	SpotPrice  float64                           `json:"spot_price" msgpack:"spot_price"`
	DataSource string                            `json:"data_source" msgpack:"data_source"`
	ComputedAt time.Time                         `json:"computed_at" msgpack:"computed_at"`
}

// FreshFor reports whether the entry was computed for the given date key.
func (e *CacheEntry) FreshFor(dateKey string) bool {
	return e != nil && e.Date == dateKey
}
