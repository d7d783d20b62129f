package api

import (
	"perfmetrics/internal/domain"
	"perfmetrics/internal/engine"
	"perfmetrics/pkg/perfmetrics"
)

// ToMetrics converts a cache entry to its wire form. Bars are included only
// when withBars is set.
func ToMetrics(e *domain.CacheEntry, withBars bool) perfmetrics.Metrics {
	out := perfmetrics.Metrics{
		Symbol:     e.Symbol,
		Date:       e.Date,
		SpotPrice:  e.SpotPrice,
		DataSource: e.DataSource,
		ComputedAt: e.ComputedAt,
		Windows:    make(map[string]perfmetrics.WindowMetrics, len(e.Metrics)),
	}
	for w, m := range e.Metrics {
		out.Windows[string(w)] = perfmetrics.WindowMetrics{
			Window:           string(m.Window),
			Bars:             m.Bars,
			StartPrice:       m.StartPrice,
			EndPrice:         m.EndPrice,
			ReturnPct:        m.ReturnPct,
			ReturnAbs:        m.ReturnAbs,
			VolatilityAnnual: m.VolatilityAnnual,
			SharpeRatio:      m.SharpeRatio,
			MaxDrawdownPct:   m.MaxDrawdownPct,
			TopPrice:         m.TopPrice,
		}
	}
	if withBars {
		out.Bars = make([]perfmetrics.Bar, len(e.Bars))
		for i, b := range e.Bars {
			out.Bars[i] = perfmetrics.Bar{
				Timestamp: b.Timestamp,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
		}
	}
	return out
}

// ToRefreshResponse converts a batch result to its wire form.
func ToRefreshResponse(res engine.BatchResult) perfmetrics.RefreshResponse {
	out := perfmetrics.RefreshResponse{
		RunID:    res.RunID,
		Results:  make(map[string]perfmetrics.Metrics, len(res.Results)),
		Failures: res.Failures,
		Errors:   make(map[string]string, len(res.Errors)),
	}
	if out.Failures == nil {
		out.Failures = []string{}
	}
	for sym, entry := range res.Results {
		out.Results[sym] = ToMetrics(entry, false)
	}
	for sym, err := range res.Errors {
		out.Errors[sym] = err.Error()
	}
	return out
}
