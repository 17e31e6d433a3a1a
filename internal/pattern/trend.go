package pattern

import (
	"candlesignal/internal/model"
	"candlesignal/internal/series"
)

// DetectTrend compares the highs and lows of the last three candles.
// Strictly rising highs and lows is an uptrend, strictly falling both a
// downtrend; anything else, ties included, is ranging. Fewer than three
// candles is TrendUnknown.
func DetectTrend(s *series.Series) model.TrendState {
	if s == nil || s.Len() < TrendCandles {
		return model.TrendUnknown
	}
	c := s.Tail(TrendCandles)
	a, b, d := c[0], c[1], c[2]

	switch {
	case a.High < b.High && b.High < d.High && a.Low < b.Low && b.Low < d.Low:
		return model.Uptrend
	case a.High > b.High && b.High > d.High && a.Low > b.Low && b.Low > d.Low:
		return model.Downtrend
	default:
		return model.Ranging
	}
}
