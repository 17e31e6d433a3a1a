package series

import (
	"errors"
	"testing"
	"time"

	"candlesignal/internal/model"
)

func raw(epoch int64, o, h, l, c string) model.RawCandle {
	return model.RawCandle{Epoch: epoch, Open: o, High: h, Low: l, Close: c}
}

func TestBuild_SortsAndParses(t *testing.T) {
	s, stats, err := Build([]model.RawCandle{
		raw(180, "1.1003", "1.1010", "1.1000", "1.1008"),
		raw(60, "1.1000", "1.1005", "1.0995", "1.1001"),
		raw(120, "1.1001", "1.1006", "1.0999", "1.1003"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len=%d, want 3", s.Len())
	}
	if stats.Invalid != 0 || stats.Duplicates != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	for i := 1; i < s.Len(); i++ {
		if !s.At(i).TS.After(s.At(i - 1).TS) {
			t.Errorf("candle %d not after candle %d", i, i-1)
		}
	}
	if got := s.Last().Close; got != 1.1008 {
		t.Errorf("last close=%v, want 1.1008", got)
	}
	if got := s.At(0).TS; !got.Equal(time.Unix(60, 0)) {
		t.Errorf("first ts=%v, want epoch 60", got)
	}
}

func TestBuild_DropsInvalidRows(t *testing.T) {
	tests := []struct {
		name string
		row  model.RawCandle
	}{
		{"unparsable open", raw(60, "abc", "1.2", "1.0", "1.1")},
		{"empty close", raw(60, "1.1", "1.2", "1.0", "")},
		{"nan", raw(60, "NaN", "1.2", "1.0", "1.1")},
		{"overflow", raw(60, "1e400", "1e401", "1.0", "1.1")},
		{"negative", raw(60, "-1", "1.2", "-2", "1.1")},
		{"high below close", raw(60, "1.1", "1.15", "1.0", "1.2")},
		{"low above open", raw(60, "1.0", "1.2", "1.05", "1.1")},
		{"missing epoch", raw(0, "1.1", "1.2", "1.0", "1.1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			good := raw(120, "1.1", "1.2", "1.0", "1.15")
			s, stats, err := Build([]model.RawCandle{tt.row, good})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if stats.Invalid != 1 {
				t.Errorf("Invalid=%d, want 1", stats.Invalid)
			}
			if s.Len() != 1 {
				t.Errorf("Len=%d, want 1", s.Len())
			}
		})
	}
}

func TestBuild_DuplicateKeepsLast(t *testing.T) {
	s, stats, err := Build([]model.RawCandle{
		raw(60, "1.0", "1.2", "0.9", "1.1"),
		raw(120, "1.1", "1.3", "1.0", "1.2"),
		raw(60, "1.0", "1.5", "0.9", "1.4"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.Duplicates != 1 {
		t.Errorf("Duplicates=%d, want 1", stats.Duplicates)
	}
	if s.Len() != 2 {
		t.Fatalf("Len=%d, want 2", s.Len())
	}
	if got := s.At(0).Close; got != 1.4 {
		t.Errorf("kept close=%v, want 1.4 (last occurrence)", got)
	}
}

func TestBuild_EmptyIsInsufficientData(t *testing.T) {
	_, stats, err := Build([]model.RawCandle{raw(60, "x", "1", "1", "1")})
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("err=%v, want ErrInsufficientData", err)
	}
	if stats.Invalid != 1 {
		t.Errorf("Invalid=%d, want 1", stats.Invalid)
	}

	if _, _, err := Build(nil); !errors.Is(err, model.ErrInsufficientData) {
		t.Errorf("nil input: err=%v, want ErrInsufficientData", err)
	}
}

func TestFromCandles_RejectsDisorder(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0).UTC()
	c := model.Candle{TS: t0, Open: 1, High: 1, Low: 1, Close: 1}
	if _, err := FromCandles([]model.Candle{c, c}); !errors.Is(err, model.ErrInvalidCandle) {
		t.Errorf("duplicate ts: err=%v, want ErrInvalidCandle", err)
	}
	bad := model.Candle{TS: t0.Add(time.Minute), Open: 1, High: 0.5, Low: 0.4, Close: 1}
	if _, err := FromCandles([]model.Candle{c, bad}); !errors.Is(err, model.ErrInvalidCandle) {
		t.Errorf("bad ohlc: err=%v, want ErrInvalidCandle", err)
	}
}

func TestTail_CopiesAndClamps(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0).UTC()
	var cs []model.Candle
	for i := 0; i < 5; i++ {
		p := float64(10 + i)
		cs = append(cs, model.Candle{TS: t0.Add(time.Duration(i) * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p})
	}
	s, err := FromCandles(cs)
	if err != nil {
		t.Fatalf("FromCandles: %v", err)
	}
	tail := s.Tail(3)
	if len(tail) != 3 || tail[0].Close != 12 {
		t.Fatalf("Tail(3)=%v", tail)
	}
	tail[0].Close = 999
	if s.At(2).Close != 12 {
		t.Error("Tail must not alias series storage")
	}
	if got := len(s.Tail(10)); got != 5 {
		t.Errorf("Tail(10) len=%d, want 5", got)
	}
	if got := s.Closes(); got[4] != 14 {
		t.Errorf("Closes()[4]=%v, want 14", got[4])
	}
}
