package pattern

import (
	"fmt"
	"math"

	"candlesignal/internal/model"
	"candlesignal/internal/series"
)

// SupportResistance returns the minimum low and maximum high over the last
// window candles. A shorter series fails instead of falling back to a
// partial window, which would report misleadingly tight levels.
func SupportResistance(s *series.Series, window int) (support, resistance float64, err error) {
	if window < 1 {
		return 0, 0, fmt.Errorf("support/resistance window %d must be positive", window)
	}
	if s == nil || s.Len() < window {
		return 0, 0, model.InsufficientData("support/resistance", window, lenOf(s))
	}
	support = math.Inf(1)
	resistance = math.Inf(-1)
	for _, c := range s.Tail(window) {
		if c.Low < support {
			support = c.Low
		}
		if c.High > resistance {
			resistance = c.High
		}
	}
	return support, resistance, nil
}

// BestPrice returns the pullback zone for trend: the lowest low of the last
// window candles in an uptrend, the highest high in a downtrend. Ranging and
// unknown trends have no directional target and return nil, nil.
func BestPrice(s *series.Series, trend model.TrendState, window int) (*float64, error) {
	if trend != model.Uptrend && trend != model.Downtrend {
		return nil, nil
	}
	if window < 1 {
		return nil, fmt.Errorf("pullback window %d must be positive", window)
	}
	if s == nil || s.Len() < window {
		return nil, model.InsufficientData("pullback zone", window, lenOf(s))
	}
	support, resistance, err := SupportResistance(s, window)
	if err != nil {
		return nil, err
	}
	if trend == model.Uptrend {
		return model.Float(support), nil
	}
	return model.Float(resistance), nil
}

func lenOf(s *series.Series) int {
	if s == nil {
		return 0
	}
	return s.Len()
}
