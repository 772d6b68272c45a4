package strategy

import (
	"math"

	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Squeeze and breakout gates.
const (
	breakoutBBPeriod    = 20
	breakoutBBStdDev    = 2.0
	breakoutSqueezeFrac = 0.7
	breakoutMinVolRatio = 1.5
	breakoutAvgWindow   = 20
	breakoutMinCandles  = 60
)

// BreakoutSignal trades volatility-squeeze breakouts: Bollinger band width
// compressed well under its recent average, then a close beyond the prior
// band on expanding volume.
type BreakoutSignal struct{}

// NewBreakoutSignal creates the breakout sub-signal.
func NewBreakoutSignal() BreakoutSignal { return BreakoutSignal{} }

func (BreakoutSignal) Name() string { return "breakout" }

// Evaluate scores one instrument.
func (bs BreakoutSignal) Evaluate(symbol string, snap *market.Snapshot) Signal {
	candles, ok := snap.Candles[symbol]
	if !ok || len(candles) < breakoutMinCandles {
		return hold(symbol, bs.Name(), "insufficient history")
	}
	closes := types.Closes(candles)
	volumes := types.Volumes(candles)

	upper, _, lower, err := indicators.BollingerBands(closes, breakoutBBPeriod, breakoutBBStdDev)
	if err != nil {
		return hold(symbol, bs.Name(), "bands unavailable")
	}
	last := len(closes) - 1
	prev := last - 1

	// Squeeze: band width on the bar before the breakout under
	// breakoutSqueezeFrac of the trailing average width. The breakout
	// candle itself widens the bands, so it never counts toward the
	// compression it is escaping.
	if math.IsNaN(upper[prev]) || math.IsNaN(lower[prev]) {
		return hold(symbol, bs.Name(), "bands not formed")
	}
	var widthSum float64
	n := 0
	for i := prev - breakoutAvgWindow; i < prev; i++ {
		if i < 0 || math.IsNaN(upper[i]) || math.IsNaN(lower[i]) {
			continue
		}
		widthSum += upper[i] - lower[i]
		n++
	}
	if n == 0 {
		return hold(symbol, bs.Name(), "bands not formed")
	}
	avgWidth := widthSum / float64(n)
	width := upper[prev] - lower[prev]
	if avgWidth <= 0 || width >= avgWidth*breakoutSqueezeFrac {
		return hold(symbol, bs.Name(), "no squeeze")
	}

	// Volume expansion against the trailing average.
	var volSum float64
	for i := last - breakoutAvgWindow; i < last; i++ {
		volSum += volumes[i]
	}
	avgVol := volSum / breakoutAvgWindow
	if avgVol <= 0 {
		return hold(symbol, bs.Name(), "no volume baseline")
	}
	volRatio := volumes[last] / avgVol
	if volRatio < breakoutMinVolRatio {
		return hold(symbol, bs.Name(), "volume not expanding")
	}

	price := closes[last]
	switch {
	case price > upper[prev]:
		rsi, err := indicators.RSI(closes, 14)
		if err != nil || rsi <= 50 {
			return hold(symbol, bs.Name(), "momentum not confirming")
		}
		return Signal{
			Symbol:     symbol,
			Action:     Buy,
			Confidence: math.Min(0.5+volRatio*0.1, 1),
			Source:     bs.Name(),
			Reason:     "squeeze breakout above upper band",
		}
	case price < lower[prev]:
		return Signal{
			Symbol:     symbol,
			Action:     Sell,
			Confidence: 0.5,
			Source:     bs.Name(),
			Reason:     "squeeze breakdown below lower band",
		}
	}
	return hold(symbol, bs.Name(), "inside bands")
}
