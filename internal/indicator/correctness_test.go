package indicator

import (
	"math"
	"testing"

	"candlesignal/internal/model"

	talib "github.com/markcheno/go-talib"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func candle(close float64) model.Candle {
	return model.Candle{Open: close, High: close + 0.5, Low: close - 0.5, Close: close}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// zigzag returns a deterministic price path with both gains and losses.
func zigzag(n int) []float64 {
	out := make([]float64, n)
	out[0] = 100
	steps := []float64{1.2, -0.7, 0.4, -1.1, 0.9, 0.3, -0.5}
	for i := 1; i < n; i++ {
		out[i] = out[i-1] + steps[i%len(steps)]
	}
	return out
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103, 105
	//
	// Candle 3: sum=306 → initial EMA = 306/3 = 102.0 (SMA seed)
	// Candle 4: EMA = 103*0.5 + 102.0*0.5 = 102.5
	// Candle 5: EMA = 105*0.5 + 102.5*0.5 = 103.75

	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(candle(p))
		if ema.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_MatchesTalib(t *testing.T) {
	prices := zigzag(60)
	ema := NewEMA(10)
	for _, p := range prices {
		ema.Update(candle(p))
	}
	ref := talib.Ema(prices, 10)
	assertClose(t, "EMA(10) vs talib", ema.Value(), ref[len(ref)-1], 1e-9)
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// First RSI (after 6 candles, period=5):
	//   avgGain = (0.34+0.72+0.50)/5 = 0.312
	//   avgLoss = (0.25+0.48)/5      = 0.146
	//   RSI = 100 - 100/(1+2.13699) = 68.122
	// Candle 7 (+0.27): avgGain 0.3036, avgLoss 0.1168 → 72.217
	// Candle 8 (+0.32): avgGain 0.30688, avgLoss 0.09344 → 76.659
	// Candle 9 (+0.42): avgGain 0.329504, avgLoss 0.074752 → 81.509
	prices := []float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}

	rsi := NewRSI(5)
	for i := 0; i <= 5; i++ {
		rsi.Update(candle(prices[i]))
		if i < 5 && rsi.Ready() {
			t.Fatalf("candle %d: Ready before period+1 candles", i)
		}
	}
	assertClose(t, "RSI(5) candle 6", rsi.Value(), 68.1223, 0.001)

	rsi.Update(candle(prices[6]))
	assertClose(t, "RSI(5) candle 7", rsi.Value(), 72.2169, 0.001)

	rsi.Update(candle(prices[7]))
	assertClose(t, "RSI(5) candle 8", rsi.Value(), 76.6587, 0.001)

	rsi.Update(candle(prices[8]))
	assertClose(t, "RSI(5) candle 9", rsi.Value(), 81.5087, 0.001)
}

func TestRSI_MatchesTalib(t *testing.T) {
	prices := zigzag(80)
	rsi := NewRSI(14)
	for _, p := range prices {
		rsi.Update(candle(p))
	}
	ref := talib.Rsi(prices, 14)
	assertClose(t, "RSI(14) vs talib", rsi.Value(), ref[len(ref)-1], 1e-6)
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100 + float64(i)))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100.0, 0)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(200 - float64(i)))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0.0, 0.001)
}

func TestRSI_Flat_Is100(t *testing.T) {
	// Both averages are zero; the zero-loss branch saturates to 100.
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100))
	}
	assertClose(t, "RSI flat", rsi.Value(), 100.0, 0)
}

func TestRSI_Bounded(t *testing.T) {
	prices := zigzag(200)
	rsi := NewRSI(14)
	for i, p := range prices {
		rsi.Update(candle(p))
		if rsi.Ready() && (rsi.Value() < 0 || rsi.Value() > 100) {
			t.Fatalf("candle %d: RSI %.4f out of [0,100]", i, rsi.Value())
		}
	}
}

// ────────────────────────────────────────────────────────────
// Cross-indicator sanity
// ────────────────────────────────────────────────────────────

func TestIndicators_TrendingUp(t *testing.T) {
	rsi := NewRSI(14)
	ema := NewEMA(10)
	var last float64
	for i := 0; i < 40; i++ {
		last = 100 + float64(i)*0.5
		rsi.Update(candle(last))
		ema.Update(candle(last))
	}
	if ema.Value() >= last {
		t.Errorf("EMA %.4f should lag below last close %.4f in an uptrend", ema.Value(), last)
	}
	if rsi.Value() <= 70 {
		t.Errorf("RSI %.2f should be overbought in a steady uptrend", rsi.Value())
	}
}
