package model

import "time"

// Candle is one validated OHLC bar for a single instrument.
// Prices are float64 in quote currency; a Candle only exists after
// series construction has checked it, so every field is finite.
type Candle struct {
	TS    time.Time `json:"ts"` // bar open time (UTC)
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Body returns close - open.
func (c Candle) Body() float64 {
	return c.Close - c.Open
}

// Color classifies the candle body by comparing its own open and close.
func (c Candle) Color() CandleColor {
	switch {
	case c.Close > c.Open:
		return Bullish
	case c.Close < c.Open:
		return Bearish
	default:
		return Doji
	}
}

// RawCandle is an unvalidated row as delivered by a candle feed.
// Prices stay as strings until series construction coerces them.
type RawCandle struct {
	Epoch int64  `json:"epoch"` // seconds since Unix epoch
	Open  string `json:"open"`
	High  string `json:"high"`
	Low   string `json:"low"`
	Close string `json:"close"`
}

// Time returns the row timestamp in UTC.
func (r RawCandle) Time() time.Time {
	return time.Unix(r.Epoch, 0).UTC()
}
