package models

import "time"

// Bar is one OHLCV observation keyed by (symbol, timeframe, timestamp).
// Volume, TradeCount and VWAP are optional at the source.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Timestamp  time.Time `json:"ts"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     *float64  `json:"volume,omitempty"`
	TradeCount *int64    `json:"trade_count,omitempty"`
	VWAP       *float64  `json:"vwap,omitempty"`
}

// Closes extracts close prices in bar order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts high prices in bar order.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts low prices in bar order.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}
