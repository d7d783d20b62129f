package metrics

import (
	"perfmetrics/internal/domain"
)

// Options parameterizes a window computation.
type Options struct {
	TopPriceMode domain.TopPriceMode
	RiskFreeRate float64
}

// DefaultOptions returns high-based top price and a 2% risk-free rate.
func DefaultOptions() Options {
	return Options{
		TopPriceMode: domain.TopPriceHigh,
		RiskFreeRate: DefaultRiskFreeRate,
	}
}

// Compose computes the metrics for one (symbol, window) pair from a full bar
// series in any order. It returns a *domain.WindowError when the selected
// window holds fewer than two bars.
func Compose(symbol string, bars []domain.Bar, window domain.WindowKey, opts Options) (domain.TickerWindowMetrics, error) {
	selected := SelectWindow(bars, window)
	if len(selected) < 2 {
		return domain.TickerWindowMetrics{}, &domain.WindowError{
			Symbol: symbol,
			Window: window,
			Bars:   len(selected),
		}
	}

	prices := Closes(selected)
	returns := LogReturns(prices)

	start := prices[0]
	end := prices[len(prices)-1]
	endpoints := []float64{start, end}

	return domain.TickerWindowMetrics{
		Symbol:           symbol,
		Window:           window,
		Bars:             len(selected),
		StartPrice:       Round4(start),
		EndPrice:         Round4(end),
		ReturnPct:        Round2(ReturnPct(endpoints)),
		ReturnAbs:        Round4(ReturnAbs(endpoints)),
		VolatilityAnnual: Round2(AnnualizedVolatility(returns)),
		SharpeRatio:      Round2(SharpeRatio(returns, opts.RiskFreeRate)),
		MaxDrawdownPct:   Round2(MaxDrawdownPct(prices)),
		TopPrice:         Round4(TopPrice(selected, opts.TopPriceMode)),
	}, nil
}

// ComposeAll computes every supported window. Windows that cannot be
// computed are left out of the map and reported in the error slice; they
// never prevent the other windows from being computed.
func ComposeAll(symbol string, bars []domain.Bar, opts Options) (map[domain.WindowKey]domain.TickerWindowMetrics, []error) {
	out := make(map[domain.WindowKey]domain.TickerWindowMetrics, len(domain.AllWindows))
	var errs []error
	for _, w := range domain.AllWindows {
		m, err := Compose(symbol, bars, w, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[w] = m
	}
	return out, errs
}
