package perfmetrics

import "time"

// Bar is one daily price observation.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open,omitempty"`
	High      float64   `json:"high,omitempty"`
	Low       float64   `json:"low,omitempty"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume,omitempty"`
}

// WindowMetrics holds the statistics for one trailing window.
type WindowMetrics struct {
	Window           string  `json:"window"`
	Bars             int     `json:"bars"`
	StartPrice       float64 `json:"start_price"`
	EndPrice         float64 `json:"end_price"`
	ReturnPct        float64 `json:"return_pct"`
	ReturnAbs        float64 `json:"return_abs"`
	VolatilityAnnual float64 `json:"volatility_annual"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
	TopPrice         float64 `json:"top_price"`
}

// Metrics is the daily snapshot for a symbol. Windows without enough data
// are absent from Windows.
type Metrics struct {
	Symbol     string                   `json:"symbol"`
	Date       string                   `json:"date"`
	SpotPrice  float64                  `json:"spot_price"`
	DataSource string                   `json:"data_source"`
	ComputedAt time.Time                `json:"computed_at"`
	Windows    map[string]WindowMetrics `json:"metrics"`
	Bars       []Bar                    `json:"bars,omitempty"`
}

// RefreshRequest is the body of POST /api/v1/refresh.
type RefreshRequest struct {
	Symbols []string `json:"symbols"`
}

// RefreshResponse reports a batch refresh. Failures lists failed symbols in
// request order.
type RefreshResponse struct {
	RunID    string             `json:"run_id"`
	Results  map[string]Metrics `json:"results"`
	Failures []string           `json:"failures"`
	Errors   map[string]string  `json:"errors,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Symbol string `json:"symbol,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
