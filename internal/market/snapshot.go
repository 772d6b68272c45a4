// Package market assembles the per-cycle data snapshot. Every scoring
// component reads the same immutable snapshot, so a cycle never observes
// partially refreshed data.
package market

import (
	"math"
	"time"

	"github.com/tuanphm93/coinfactor/internal/engerr"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Snapshot is one atomic view of the universe taken at cycle start.
type Snapshot struct {
	Timestamp time.Time
	Benchmark string
	Candles   map[string][]types.OHLCV
	Tickers   map[string]types.Ticker
	// Excluded maps instruments dropped this cycle to the reason.
	Excluded map[string]string
}

// Universe returns the symbols present in the snapshot, candle data included.
func (s *Snapshot) Universe() []string {
	out := make([]string, 0, len(s.Candles))
	for sym := range s.Candles {
		out = append(out, sym)
	}
	return out
}

// Closes returns the close series for one instrument, or nil if absent.
func (s *Snapshot) Closes(symbol string) []float64 {
	candles, ok := s.Candles[symbol]
	if !ok {
		return nil
	}
	return types.Closes(candles)
}

// QuoteVolume returns the 24h traded value for one instrument, 0 if unknown.
func (s *Snapshot) QuoteVolume(symbol string) float64 {
	t, ok := s.Tickers[symbol]
	if !ok {
		return 0
	}
	return t.QuoteVolume
}

// LastPrice returns the latest close for one instrument, 0 if absent.
func (s *Snapshot) LastPrice(symbol string) float64 {
	candles, ok := s.Candles[symbol]
	if !ok || len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// ValidateCandles checks a candle series for ordering and price sanity.
// Timestamps must be strictly increasing; prices must be finite and positive.
func ValidateCandles(symbol string, candles []types.OHLCV) error {
	for i, c := range candles {
		for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
			if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				return engerr.InvalidPrice("market", symbol, p)
			}
		}
		if c.Volume < 0 {
			return engerr.InvalidPrice("market", symbol, c.Volume)
		}
		if i > 0 && !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			return engerr.New(engerr.CategoryInvalidPrice, "market",
				"candle timestamps not strictly increasing").WithSymbol(symbol)
		}
	}
	return nil
}
