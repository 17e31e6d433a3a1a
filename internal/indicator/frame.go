package indicator

import (
	"fmt"
	"math"

	"candlesignal/internal/model"
	"candlesignal/internal/series"
)

// Defaults for Params.
const (
	DefaultMomentumPeriod     = 14
	DefaultTrendAverageWindow = 10
)

// Params configures Compute.
type Params struct {
	MomentumPeriod     int `yaml:"momentum_period" json:"momentum_period" validate:"min=1"`
	TrendAverageWindow int `yaml:"trend_average_window" json:"trend_average_window" validate:"min=1"`
}

// DefaultParams returns the reference settings (RSI 14, EMA 10).
func DefaultParams() Params {
	return Params{
		MomentumPeriod:     DefaultMomentumPeriod,
		TrendAverageWindow: DefaultTrendAverageWindow,
	}
}

// Value is one indicator reading. OK is false in the warm-up region, so an
// undefined reading is never confused with a zero one.
type Value struct {
	V  float64
	OK bool
}

// Frame holds indicator readings aligned 1:1 with series positions.
type Frame struct {
	Momentum     []Value
	TrendAverage []Value
}

// Len returns the number of positions in the frame.
func (f *Frame) Len() int { return len(f.Momentum) }

// Latest returns the last momentum and trend-average readings.
func (f *Frame) Latest() (momentum, trendAverage Value) {
	n := f.Len()
	if n == 0 {
		return Value{}, Value{}
	}
	return f.Momentum[n-1], f.TrendAverage[n-1]
}

// Compute runs the momentum oscillator and trend average over s.
// It fails only with model.ErrComputation when a reading is non-finite.
func Compute(s *series.Series, p Params) (*Frame, error) {
	if p.MomentumPeriod < 1 || p.TrendAverageWindow < 1 {
		return nil, fmt.Errorf("indicator params %+v: periods must be positive", p)
	}
	mom, err := run(s, NewRSI(p.MomentumPeriod))
	if err != nil {
		return nil, err
	}
	avg, err := run(s, NewEMA(p.TrendAverageWindow))
	if err != nil {
		return nil, err
	}
	return &Frame{Momentum: mom, TrendAverage: avg}, nil
}

// run feeds every candle of s into ind and records the aligned readings.
func run(s *series.Series, ind Indicator) ([]Value, error) {
	out := make([]Value, s.Len())
	for i := 0; i < s.Len(); i++ {
		ind.Update(s.At(i))
		if !ind.Ready() {
			continue
		}
		v := ind.Value()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s at position %d: non-finite value %v: %w",
				ind.Name(), i, v, model.ErrComputation)
		}
		out[i] = Value{V: v, OK: true}
	}
	return out, nil
}
