package engine

import (
	"time"

	"perfmetrics/internal/domain"
)

const (
	// spotStaleAfter is how old the latest bar may be before the spot is
	// appended as a new bar instead of updating it.
	spotStaleAfter = time.Hour

	// spotBand estimates the session range around spot when the provider
	// reports none.
	spotBand = 0.005
)

// foldSpot returns a copy of the ascending series bars with spot folded in
// as the most recent observation. bars must not be empty.
func foldSpot(bars []domain.Bar, spot domain.Spot, now time.Time) []domain.Bar {
	out := make([]domain.Bar, len(bars), len(bars)+1)
	copy(out, bars)
	last := &out[len(out)-1]
	price := spot.Price

	if now.Sub(last.Timestamp) > spotStaleAfter {
		high, low := spot.High, spot.Low
		if high <= 0 {
			high = price * (1 + spotBand)
		}
		if low <= 0 {
			low = price * (1 - spotBand)
		}
		return append(out, domain.Bar{
			Symbol:    last.Symbol,
			Timestamp: now,
			Open:      price,
			High:      max(high, price),
			Low:       min(low, price),
			Close:     price,
		})
	}

	last.Close = price
	if last.HasHigh() {
		last.High = max(last.High, price)
	}
	if last.HasLow() {
		last.Low = min(last.Low, price)
	}
	return out
}
