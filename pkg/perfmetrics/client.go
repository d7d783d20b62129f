// Package perfmetrics is the Go client for the perfmetrics-server HTTP API.
package perfmetrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable is returned when the server has no price history for a
// symbol.
var ErrUnavailable = errors.New("metrics unavailable")

// APIError is a non-2xx response other than 404.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("perfmetrics: status %d: %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the perfmetrics-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. Refreshes of long symbol lists can
// take a while, hence the generous timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("perfmetrics: unhealthy: %q", out.Status)
	}
	return nil
}

// GetMetrics retrieves today's metrics for symbol. With withBars the bar
// series used for the computation is included.
func (c *Client) GetMetrics(ctx context.Context, symbol string, withBars bool) (*Metrics, error) {
	path := "/api/v1/metrics/" + url.PathEscape(symbol)
	if withBars {
		path += "?bars=true"
	}
	var out Metrics
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh recomputes metrics for symbols on the server.
func (c *Client) Refresh(ctx context.Context, symbols []string) (*RefreshResponse, error) {
	var out RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/refresh", RefreshRequest{Symbols: symbols}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if resp.StatusCode == http.StatusNotFound && e.Symbol != "" {
			return fmt.Errorf("%s: %w", e.Symbol, ErrUnavailable)
		}
		msg := e.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
