package model

import "time"

// TrendState classifies recent price structure.
type TrendState string

const (
	Uptrend      TrendState = "Uptrend"
	Downtrend    TrendState = "Downtrend"
	Ranging      TrendState = "Ranging"
	TrendUnknown TrendState = "Unknown"
)

// GapDirection is the sign of open - previous close.
type GapDirection string

const (
	GapUp   GapDirection = "Up"
	GapDown GapDirection = "Down"
)

// CandleColor classifies a candle body.
type CandleColor string

const (
	Bullish CandleColor = "Bullish"
	Bearish CandleColor = "Bearish"
	Doji    CandleColor = "Doji"
)

// GapEvent is the most recent candle whose open differs from the prior close.
type GapEvent struct {
	Direction   GapDirection `json:"direction"`
	CandleColor CandleColor  `json:"candle_color"`
	CandlesAgo  int          `json:"candles_ago"` // 1 = most recent candle
	Size        float64      `json:"size"`        // open - previous close
}

// Direction is the predicted move of the next close.
type Direction string

const (
	Up   Direction = "Up"
	Down Direction = "Down"
)

// Prediction is the classifier output for the most recent candle.
type Prediction struct {
	Direction       Direction `json:"direction"`
	Probability     float64   `json:"probability"` // P(next close > current close)
	Confidence      float64   `json:"confidence"`  // probability of the predicted class
	TrainRows       int       `json:"train_rows"`
	HoldoutRows     int       `json:"holdout_rows"`
	HoldoutAccuracy *float64  `json:"holdout_accuracy,omitempty"`
}

// FieldError records why one snapshot field is absent.
type FieldError struct {
	Field     string `json:"field"`
	Component string `json:"component"`
	Error     string `json:"error"`
}

// MarketSnapshot is the immutable result of one analysis cycle.
// Every optional field is nil when its component failed or had nothing to
// report; Errors says which.
type MarketSnapshot struct {
	Symbol         string    `json:"symbol,omitempty"`
	CandleTime     time.Time `json:"candle_time"`
	Candles        int       `json:"candles"`
	InvalidDropped int       `json:"invalid_dropped"`

	CandleStrength *float64    `json:"candle_strength,omitempty"`
	LastGap        *float64    `json:"last_gap,omitempty"`
	Gap            *GapEvent   `json:"gap,omitempty"`
	Trend          TrendState  `json:"trend"`
	Support        *float64    `json:"support,omitempty"`
	Resistance     *float64    `json:"resistance,omitempty"`
	BestPrice      *float64    `json:"best_price,omitempty"`
	Momentum       *float64    `json:"momentum,omitempty"`
	TrendAverage   *float64    `json:"trend_average,omitempty"`
	Prediction     *Prediction `json:"prediction,omitempty"`

	Errors []FieldError `json:"errors,omitempty"`
}

// Err returns the recorded failure for field, or nil.
func (s *MarketSnapshot) Err(field string) *FieldError {
	for i := range s.Errors {
		if s.Errors[i].Field == field {
			return &s.Errors[i]
		}
	}
	return nil
}

// Float returns a pointer to v, for optional snapshot fields.
func Float(v float64) *float64 {
	return &v
}
