package models

import "time"

// Candle represents an OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"ts"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bullish reports a green bar.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports a red bar.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Body is the absolute open-close distance.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range is high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }
