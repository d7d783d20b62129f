package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientWindowData is matched by errors for windows holding
	// fewer than two bars.
	ErrInsufficientWindowData = errors.New("insufficient window data")

	// ErrNoHistoricalData is matched by errors for symbols whose provider
	// returned no usable bars.
	ErrNoHistoricalData = errors.New("no historical data")

	// ErrInvalidSymbol is returned for blank symbols.
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// WindowError reports a window that cannot be computed because it holds
// fewer than two bars.
type WindowError struct {
	Symbol string
	Window WindowKey
	Bars   int
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("%s %s: %s (%d bars)", e.Symbol, e.Window, ErrInsufficientWindowData, e.Bars)
}

// Is lets errors.Is match ErrInsufficientWindowData.
func (e *WindowError) Is(target error) bool {
	return target == ErrInsufficientWindowData
}

// NoDataError reports a symbol for which no price history could be
// obtained. Cause holds the provider error, if any.
type NoDataError struct {
	Symbol string
	Cause  error
}

func (e *NoDataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Symbol, ErrNoHistoricalData, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Symbol, ErrNoHistoricalData)
}

// Is lets errors.Is match ErrNoHistoricalData.
func (e *NoDataError) Is(target error) bool {
	return target == ErrNoHistoricalData
}

// Unwrap returns the underlying provider error.
func (e *NoDataError) Unwrap() error { return e.Cause }
