package metrics

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"perfmetrics/internal/domain"
)

const (
	// TradingDaysPerYear is the annualization basis for daily statistics.
	TradingDaysPerYear = 252

	// DefaultRiskFreeRate is the annual risk-free rate used for Sharpe.
	DefaultRiskFreeRate = 0.02

	// zeroDeviation is the threshold below which a standard deviation is
	// treated as zero. Constant-growth series produce deviations of a few
	// ulps which would otherwise blow the Sharpe ratio up.
	zeroDeviation = 1e-12
)

var annualization = math.Sqrt(TradingDaysPerYear)

// ReturnPct returns (p_last / p_first - 1) * 100, or 0 for fewer than two
// prices.
func ReturnPct(prices []float64) float64 {
	if len(prices) < 2 || prices[0] == 0 {
		return 0
	}
	return (prices[len(prices)-1]/prices[0] - 1) * 100
}

// ReturnAbs returns p_last - p_first, or 0 for fewer than two prices.
func ReturnAbs(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	return prices[len(prices)-1] - prices[0]
}

// LogReturns returns ln(p_i / p_{i-1}) for i = 1..n.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return out
}

// popMeanStdDev returns the mean and population standard deviation (divide
// by n) of returns. Fewer than two returns yield a zero deviation.
func popMeanStdDev(returns []float64) (mean, std float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	if len(returns) < 2 {
		return returns[0], 0
	}
	return stat.PopMeanStdDev(returns, nil)
}

// AnnualizedVolatility returns popstdev(returns) * sqrt(252) * 100.
func AnnualizedVolatility(returns []float64) float64 {
	_, std := popMeanStdDev(returns)
	if std < zeroDeviation {
		return 0
	}
	return std * annualization * 100
}

// SharpeRatio returns ((mean - rf/252) / popstdev) * sqrt(252) for daily
// log returns and an annual risk-free rate. It is 0 whenever the deviation
// is zero.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	mean, std := popMeanStdDev(returns)
	if std < zeroDeviation {
		return 0
	}
	dailyRF := riskFreeRate / TradingDaysPerYear
	return (mean - dailyRF) / std * annualization
}

// MaxDrawdownPct walks prices tracking the running peak and returns the most
// negative (p_i / peak - 1) * 100. The result is never positive.
func MaxDrawdownPct(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	peak := prices[0]
	worst := 0.0
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak <= 0 {
			continue
		}
		if dd := (p/peak - 1) * 100; dd < worst {
			worst = dd
		}
	}
	return worst
}

// TopPrice returns the highest price in bars according to mode. In
// TopPriceHigh mode a bar without a high contributes its close.
func TopPrice(bars []domain.Bar, mode domain.TopPriceMode) float64 {
	if len(bars) == 0 {
		return 0
	}
	values := make([]float64, len(bars))
	for i, b := range bars {
		values[i] = b.Close
		if mode == domain.TopPriceHigh && b.HasHigh() {
			values[i] = b.High
		}
	}
	return floats.Max(values)
}

// Round2 rounds v to 2 decimal places, half away from zero.
func Round2(v float64) float64 { return roundPlaces(v, 2) }

// Round4 rounds v to 4 decimal places, half away from zero.
func Round4(v float64) float64 { return roundPlaces(v, 4) }

func roundPlaces(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
