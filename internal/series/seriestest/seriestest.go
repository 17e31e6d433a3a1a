// Package seriestest builds candle series for tests.
package seriestest

import (
	"testing"
	"time"

	"candlesignal/internal/model"
	"candlesignal/internal/series"
)

// Start is the timestamp of the first generated candle.
var Start = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// OHLC is one generated bar.
type OHLC struct {
	O, H, L, C float64
}

// Candles turns bars into one-minute candles starting at Start.
func Candles(bars []OHLC) []model.Candle {
	out := make([]model.Candle, len(bars))
	for i, b := range bars {
		out[i] = model.Candle{
			TS:   Start.Add(time.Duration(i) * time.Minute),
			Open: b.O, High: b.H, Low: b.L, Close: b.C,
		}
	}
	return out
}

// FromBars builds a Series from bars, failing the test on invalid input.
func FromBars(t testing.TB, bars []OHLC) *series.Series {
	t.Helper()
	s, err := series.FromCandles(Candles(bars))
	if err != nil {
		t.Fatalf("seriestest: %v", err)
	}
	return s
}

// FromCloses builds a continuous series where each open equals the prior
// close, so the series contains no gaps.
func FromCloses(t testing.TB, closes []float64) *series.Series {
	t.Helper()
	bars := make([]OHLC, len(closes))
	prev := closes[0]
	for i, c := range closes {
		o := prev
		hi, lo := o, c
		if c > o {
			hi, lo = c, o
		}
		bars[i] = OHLC{O: o, H: hi + 0.0005, L: lo - 0.0005, C: c}
		prev = c
	}
	return FromBars(t, bars)
}

// Flat builds n identical candles.
func Flat(t testing.TB, n int, price float64) *series.Series {
	t.Helper()
	bars := make([]OHLC, n)
	for i := range bars {
		bars[i] = OHLC{O: price, H: price, L: price, C: price}
	}
	return FromBars(t, bars)
}

// Wave builds n gap-free candles oscillating around base, with a slow drift,
// so both gains and losses occur.
func Wave(t testing.TB, n int, base float64) *series.Series {
	t.Helper()
	closes := make([]float64, n)
	for i := range closes {
		// deterministic zig-zag: +3, -2, +1, -3, +2 ticks repeating
		step := []float64{3, -2, 1, -3, 2}[i%5]
		if i == 0 {
			closes[i] = base
			continue
		}
		closes[i] = closes[i-1] + step*0.0001 + float64(i%7)*0.00001
	}
	return FromCloses(t, closes)
}
