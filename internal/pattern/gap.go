package pattern

import (
	"fmt"

	"candlesignal/internal/model"
	"candlesignal/internal/series"
)

// DetectGap scans backward from the most recent candle, examining at most
// lookback candles, for the first one whose open differs from the previous
// close. CandlesAgo is 1 for the most recent candle.
//
// Returns nil, nil when no gap exists in the window (including a series too
// short to have a previous close).
func DetectGap(s *series.Series, lookback int) (*model.GapEvent, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("gap lookback %d must be positive", lookback)
	}
	if s == nil {
		return nil, model.InsufficientData("gap detection", 1, 0)
	}
	n := s.Len()
	for ago := 1; ago <= lookback; ago++ {
		i := n - ago
		if i < 1 {
			break
		}
		cur, prev := s.At(i), s.At(i-1)
		if cur.Open == prev.Close {
			continue
		}
		dir := model.GapUp
		if cur.Open < prev.Close {
			dir = model.GapDown
		}
		return &model.GapEvent{
			Direction:   dir,
			CandleColor: cur.Color(),
			CandlesAgo:  ago,
			Size:        cur.Open - prev.Close,
		}, nil
	}
	return nil, nil
}

// LastGap returns open - previous close for the most recent candle.
func LastGap(s *series.Series) (float64, error) {
	if s == nil || s.Len() < 2 {
		return 0, model.InsufficientData("last gap", 2, lenOf(s))
	}
	n := s.Len()
	return s.At(n-1).Open - s.At(n-2).Close, nil
}
