package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.HasHigh() || bar.HasLow() {
		t.Error("zero-value Bar should report no high/low")
	}

	entry := &CacheEntry{Date: "2024-06-14", Symbol: "AAPL"}
	if !entry.FreshFor("2024-06-14") {
		t.Error("entry should be fresh for its own date")
	}
	if entry.FreshFor("2024-06-15") {
		t.Error("entry should be stale for a later date")
	}
	var nilEntry *CacheEntry
	if nilEntry.FreshFor("2024-06-14") {
		t.Error("nil entry should never be fresh")
	}
}

func TestWindowKeys(t *testing.T) {
	cases := []struct {
		key  WindowKey
		days int
	}{
		{Window7D, 7},
		{Window30D, 30},
		{Window60D, 60},
		{Window90D, 90},
		{WindowKey("1y"), 0},
	}
	for _, c := range cases {
		if got := c.key.Days(); got != c.days {
			t.Errorf("%s.Days() = %d, want %d", c.key, got, c.days)
		}
		if got, want := c.key.Duration(), time.Duration(c.days)*24*time.Hour; got != want {
			t.Errorf("%s.Duration() = %v, want %v", c.key, got, want)
		}
	}

	if MaxWindowDays() != 90 {
		t.Errorf("MaxWindowDays() = %d, want 90", MaxWindowDays())
	}

	w, err := ParseWindowKey(" 30D ")
	if err != nil || w != Window30D {
		t.Errorf("ParseWindowKey(30D) = %q, %v", w, err)
	}
	if _, err := ParseWindowKey("45d"); err == nil {
		t.Error("ParseWindowKey(45d) should fail")
	}
}

func TestParseTopPriceMode(t *testing.T) {
	for in, want := range map[string]TopPriceMode{"": TopPriceHigh, "HIGH": TopPriceHigh, "close": TopPriceClose} {
		got, err := ParseTopPriceMode(in)
		if err != nil || got != want {
			t.Errorf("ParseTopPriceMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseTopPriceMode("open"); err == nil {
		t.Error("ParseTopPriceMode(open) should fail")
	}
}

func TestErrorMatching(t *testing.T) {
	var err error = &WindowError{Symbol: "AAPL", Window: Window7D, Bars: 1}
	if !errors.Is(err, ErrInsufficientWindowData) {
		t.Error("WindowError should match ErrInsufficientWindowData")
	}
	if errors.Is(err, ErrNoHistoricalData) {
		t.Error("WindowError should not match ErrNoHistoricalData")
	}

	cause := context.DeadlineExceeded
	err = fmt.Errorf("refresh: %w", &NoDataError{Symbol: "MSFT", Cause: cause})
	if !errors.Is(err, ErrNoHistoricalData) {
		t.Error("wrapped NoDataError should match ErrNoHistoricalData")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("NoDataError should unwrap to its cause")
	}
	var nd *NoDataError
	if !errors.As(err, &nd) || nd.Symbol != "MSFT" {
		t.Errorf("errors.As NoDataError = %+v", nd)
	}
}
