package pattern

import (
	"fmt"
	"math"

	"candlesignal/internal/model"
	"candlesignal/internal/series"
)

// CandleStrength returns (close - open) / open of the most recent candle:
// signed, with magnitude equal to the fractional body size.
func CandleStrength(s *series.Series) (float64, error) {
	if s == nil || s.Len() < 1 {
		return 0, model.InsufficientData("candle strength", 1, 0)
	}
	c := s.Last()
	v := c.Body() / c.Open
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("candle strength: open=%v close=%v: %w", c.Open, c.Close, model.ErrComputation)
	}
	return v, nil
}
