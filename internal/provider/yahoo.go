package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"perfmetrics/internal/domain"
	"perfmetrics/internal/util"
)

// DefaultYahooBaseURL is the public Yahoo Finance chart endpoint host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooOptions configures a Yahoo provider.
type YahooOptions struct {
	BaseURL         string
	ProxyURL        string
	Timeout         time.Duration
	RetryAttempts   int
	RateLimitPerMin int
}

// Yahoo serves bars and spot prices from the Yahoo Finance chart API.
type Yahoo struct {
	baseURL   string
	client    *http.Client
	symbolMap map[string]string
	attempts  int
	backoff   time.Duration
	limiter   *util.RateLimiter
	log       *slog.Logger
}

var _ Provider = (*Yahoo)(nil)

// NewYahoo creates a Yahoo provider from opts.
func NewYahoo(opts YahooOptions, log *slog.Logger) *Yahoo {
	if log == nil {
		log = slog.Default()
	}
	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		if u, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			log.Warn("ignoring invalid yahoo proxy url", "proxy", opts.ProxyURL, "err", err)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &Yahoo{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		symbolMap: map[string]string{
			"SPX":   "^GSPC",
			"SP500": "^GSPC",
			"NDX":   "^NDX",
			"DJI":   "^DJI",
			"VIX":   "^VIX",
		},
		attempts: max(opts.RetryAttempts, 1),
		backoff:  500 * time.Millisecond,
		limiter:  util.NewRateLimiter(opts.RateLimitPerMin),
		log:      log.With("provider", SourceYahoo),
	}
}

// Name returns "yahoo".
func (y *Yahoo) Name() string { return SourceYahoo }

func (y *Yahoo) yahooSymbol(symbol string) string {
	if mapped, ok := y.symbolMap[symbol]; ok {
		return mapped
	}
	// Yahoo spells share classes with a dash (BRK-B).
	return strings.ReplaceAll(symbol, ".", "-")
}

// yahooChart is the response structure of the chart API. Quote arrays hold
// nulls for sessions without trades.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketHigh  float64 `json:"regularMarketDayHigh"`
				RegularMarketLow   float64 `json:"regularMarketDayLow"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

// chartRange picks the smallest chart range covering days calendar days.
func chartRange(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	default:
		return "5y"
	}
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol, interval, rng string) (*yahooChart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		y.baseURL, url.PathEscape(y.yahooSymbol(symbol)), interval, rng)

	var chart yahooChart
	err := util.Retry(ctx, y.attempts, y.backoff, func() error {
		if err := y.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := y.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return util.Permanent(ctx.Err())
			}
			return fmt.Errorf("yahoo fetch: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("yahoo read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, truncate(body, 200))
			// Client errors (unknown symbol, bad range) will not improve on retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return util.Permanent(err)
			}
			return err
		}

		chart = yahooChart{}
		if err := json.Unmarshal(body, &chart); err != nil {
			return util.Permanent(fmt.Errorf("yahoo decode: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no result for %s", symbol)
	}
	return &chart, nil
}

// GetBars fetches daily bars for the smallest chart range covering
// lookbackDays.
func (y *Yahoo) GetBars(ctx context.Context, symbol string, lookbackDays int) ([]domain.Bar, error) {
	chart, err := y.fetchChart(ctx, symbol, "1d", chartRange(lookbackDays))
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := at(quote.Close, i)
		if c == 0 {
			continue // null bar (holiday or halted session)
		}
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      at(quote.Open, i),
			High:      at(quote.High, i),
			Low:       at(quote.Low, i),
			Close:     c,
			Volume:    int64(at(quote.Volume, i)),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	y.log.Debug("fetched bars", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

// GetSpot returns the regular-market price and session range from the chart
// metadata.
func (y *Yahoo) GetSpot(ctx context.Context, symbol string) (domain.Spot, error) {
	chart, err := y.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		return domain.Spot{}, err
	}
	meta := chart.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return domain.Spot{}, fmt.Errorf("yahoo: no market price for %s", symbol)
	}

	spot := domain.Spot{
		Price:  meta.RegularMarketPrice,
		High:   meta.RegularMarketHigh,
		Low:    meta.RegularMarketLow,
		Source: SourceYahoo,
	}
	if meta.RegularMarketTime > 0 {
		spot.Timestamp = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	return spot, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
