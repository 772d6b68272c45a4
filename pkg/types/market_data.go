package types

import "time"

// OHLCV is one time-bucketed candle for an instrument.
type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Ticker carries the latest price and 24h traded value for an instrument.
type Ticker struct {
	Symbol      string
	Price       float64
	QuoteVolume float64 // 24h traded value in the quote asset
	Timestamp   time.Time
}

// Balance is the free/locked amount held for one asset.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Position is an open holding as reported by the connector.
type Position struct {
	Symbol     string
	Quantity   float64
	EntryPrice float64
	Value      float64
}

// EquityPoint is one append-only sample of total portfolio value.
// Points are never mutated once recorded.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Instruction is the final, risk-gated output for one instrument in a cycle.
// TargetWeight is a fraction of total equity in [0, 1].
type Instruction struct {
	Symbol       string  `json:"symbol"`
	TargetWeight float64 `json:"target_weight"`
	Rationale    string  `json:"rationale"`
}

// Closes extracts the close series from a candle slice.
func Closes(candles []OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high series from a candle slice.
func Highs(candles []OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low series from a candle slice.
func Lows(candles []OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts the volume series from a candle slice.
func Volumes(candles []OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
