// Package metrics implements the windowed performance calculators: trailing
// return, annualized volatility, Sharpe ratio, maximum drawdown and window
// top price. Everything in this package is pure and safe for concurrent use.
package metrics

import (
	"sort"

	"perfmetrics/internal/domain"
)

// SortBars returns a copy of bars sorted by timestamp ascending. The input
// slice is left untouched.
func SortBars(bars []domain.Bar) []domain.Bar {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// SelectWindow returns the ascending sub-series of bars whose timestamp lies
// in [anchor - window, anchor], where anchor is the latest timestamp in the
// input (not the current time). An empty input yields an empty result.
func SelectWindow(bars []domain.Bar, window domain.WindowKey) []domain.Bar {
	if len(bars) == 0 {
		return []domain.Bar{}
	}

	sorted := SortBars(bars)
	anchor := sorted[len(sorted)-1].Timestamp
	cutoff := anchor.Add(-window.Duration())

	// sorted is ascending, so the window is a suffix.
	first := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(cutoff)
	})
	return sorted[first:]
}

// Closes extracts the closing-price sequence from bars.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
