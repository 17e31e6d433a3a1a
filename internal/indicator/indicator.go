// Package indicator provides the momentum oscillator and trend-following
// average computed over a candle series.
//
// Each indicator is a streaming calculator implementing Indicator: it is fed
// candles oldest first and reports a value once it has enough history.
// Compute drives them across a whole series and returns an aligned Frame.
package indicator

import "candlesignal/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "RSI", "EMA").
	Name() string

	// Update feeds the next candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Meaningless until Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
