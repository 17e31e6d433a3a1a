// Package pattern derives price-structure features from a candle series:
// candle strength, gaps, trend state, support/resistance and the pullback
// (best-price) zone.
//
// Every function declares its own minimum history and fails with
// model.ErrInsufficientData rather than indexing past the series.
package pattern

// Defaults for Params.
const (
	DefaultGapLookback             = 20
	DefaultSupportResistanceWindow = 20
	DefaultPullbackWindow          = 3

	// TrendCandles is the number of candles DetectTrend compares.
	TrendCandles = 3
)

// Params configures the windowed pattern functions.
type Params struct {
	SupportResistanceWindow int `yaml:"support_resistance_window" json:"support_resistance_window" validate:"min=1"`
	GapLookback             int `yaml:"gap_lookback" json:"gap_lookback" validate:"min=1"`
	PullbackWindow          int `yaml:"pullback_window" json:"pullback_window" validate:"min=1"`
}

// DefaultParams returns the reference windows (20 / 20 / 3).
func DefaultParams() Params {
	return Params{
		SupportResistanceWindow: DefaultSupportResistanceWindow,
		GapLookback:             DefaultGapLookback,
		PullbackWindow:          DefaultPullbackWindow,
	}
}
