// Package series builds the validated, time-ordered candle sequence every
// analysis component reads from.
package series

import (
	"fmt"
	"math"
	"sort"

	"candlesignal/internal/model"

	"github.com/shopspring/decimal"
)

// Series is an ordered run of candles with strictly increasing timestamps.
// It is read-only once built; accessors return copies.
type Series struct {
	candles []model.Candle
}

// BuildStats reports what Build discarded.
type BuildStats struct {
	Input      int // rows received
	Invalid    int // rows dropped as malformed
	Duplicates int // rows superseded by a later row with the same timestamp
}

// Build coerces raw rows into a Series.
//
// Rows whose prices fail to parse, are non-finite or negative, or violate
// low <= min(open, close) <= max(open, close) <= high are dropped and
// counted. Remaining rows are sorted by timestamp; for duplicate timestamps
// the last occurrence in input order wins. An empty result is
// ErrInsufficientData.
func Build(rows []model.RawCandle) (*Series, BuildStats, error) {
	stats := BuildStats{Input: len(rows)}

	candles := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := parseRow(r)
		if err != nil {
			stats.Invalid++
			continue
		}
		candles = append(candles, c)
	}

	// Stable sort keeps input order among equal timestamps so the last
	// occurrence ends up last in each run.
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].TS.Before(candles[j].TS)
	})

	deduped := candles[:0]
	for _, c := range candles {
		if n := len(deduped); n > 0 && deduped[n-1].TS.Equal(c.TS) {
			deduped[n-1] = c
			stats.Duplicates++
			continue
		}
		deduped = append(deduped, c)
	}

	if len(deduped) == 0 {
		return nil, stats, model.InsufficientData("candle series", 1, 0)
	}
	return &Series{candles: deduped}, stats, nil
}

// FromCandles wraps already-typed candles, checking ordering and the OHLC
// invariant instead of repairing them.
func FromCandles(candles []model.Candle) (*Series, error) {
	if len(candles) == 0 {
		return nil, model.InsufficientData("candle series", 1, 0)
	}
	out := make([]model.Candle, len(candles))
	for i, c := range candles {
		if err := checkCandle(c); err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		if i > 0 && !c.TS.After(candles[i-1].TS) {
			return nil, fmt.Errorf("candle %d: timestamp %s not after %s: %w",
				i, c.TS, candles[i-1].TS, model.ErrInvalidCandle)
		}
		out[i] = c
	}
	return &Series{candles: out}, nil
}

func parseRow(r model.RawCandle) (model.Candle, error) {
	if r.Epoch <= 0 {
		return model.Candle{}, fmt.Errorf("missing timestamp: %w", model.ErrInvalidCandle)
	}
	var px [4]float64
	for i, s := range [4]string{r.Open, r.High, r.Low, r.Close} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return model.Candle{}, fmt.Errorf("price %q: %v: %w", s, err, model.ErrInvalidCandle)
		}
		px[i], _ = d.Float64()
	}
	c := model.Candle{TS: r.Time(), Open: px[0], High: px[1], Low: px[2], Close: px[3]}
	return c, checkCandle(c)
}

func checkCandle(c model.Candle) error {
	for _, v := range [4]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("price %v: %w", v, model.ErrInvalidCandle)
		}
	}
	lo, hi := math.Min(c.Open, c.Close), math.Max(c.Open, c.Close)
	if c.Low > lo || hi > c.High {
		return fmt.Errorf("ohlc out of order (o=%v h=%v l=%v c=%v): %w",
			c.Open, c.High, c.Low, c.Close, model.ErrInvalidCandle)
	}
	return nil
}

// Len returns the number of candles.
func (s *Series) Len() int { return len(s.candles) }

// At returns the candle at position i (0 = oldest).
func (s *Series) At(i int) model.Candle { return s.candles[i] }

// Last returns the most recent candle.
func (s *Series) Last() model.Candle { return s.candles[len(s.candles)-1] }

// Candles returns a copy of all candles, oldest first.
func (s *Series) Candles() []model.Candle {
	out := make([]model.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Tail returns a copy of the last n candles (all of them if n > Len).
func (s *Series) Tail(n int) []model.Candle {
	if n > len(s.candles) {
		n = len(s.candles)
	}
	if n < 0 {
		n = 0
	}
	out := make([]model.Candle, n)
	copy(out, s.candles[len(s.candles)-n:])
	return out
}

// Closes returns the close prices, oldest first.
func (s *Series) Closes() []float64 {
	return s.column(func(c model.Candle) float64 { return c.Close })
}

// Highs returns the high prices, oldest first.
func (s *Series) Highs() []float64 {
	return s.column(func(c model.Candle) float64 { return c.High })
}

// Lows returns the low prices, oldest first.
func (s *Series) Lows() []float64 {
	return s.column(func(c model.Candle) float64 { return c.Low })
}

func (s *Series) column(f func(model.Candle) float64) []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = f(c)
	}
	return out
}
