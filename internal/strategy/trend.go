package strategy

import (
	"math"

	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Trend EMA and gating parameters.
const (
	trendFastEMA   = 12
	trendSlowEMA   = 26
	trendADXPeriod = 14
	trendMinADX    = 20.0

	// The confirmation EMA runs on a 4x downsampled series, standing in
	// for the higher timeframe.
	trendConfirmStride = 4
	trendMinCandles    = 140
)

// TrendSignal goes with established trends: EMA alignment plus a MACD cross
// in the same direction, gated on ADX trend strength and confirmed on the
// downsampled series.
type TrendSignal struct{}

// NewTrendSignal creates the trend-following sub-signal.
func NewTrendSignal() TrendSignal { return TrendSignal{} }

func (TrendSignal) Name() string { return "trend" }

// Evaluate scores one instrument.
func (ts TrendSignal) Evaluate(symbol string, snap *market.Snapshot) Signal {
	candles, ok := snap.Candles[symbol]
	if !ok || len(candles) < trendMinCandles {
		return hold(symbol, ts.Name(), "insufficient history")
	}
	closes := types.Closes(candles)
	highs := types.Highs(candles)
	lows := types.Lows(candles)

	fast, err := indicators.EMA(closes, trendFastEMA)
	if err != nil {
		return hold(symbol, ts.Name(), "ema unavailable")
	}
	slow, err := indicators.EMA(closes, trendSlowEMA)
	if err != nil {
		return hold(symbol, ts.Name(), "ema unavailable")
	}
	last := len(closes) - 1

	dif, dea, _, err := indicators.MACD(closes, 12, 26, 9)
	if err != nil {
		return hold(symbol, ts.Name(), "macd unavailable")
	}

	adx, err := indicators.ADX(highs, lows, closes, trendADXPeriod)
	if err != nil || adx < trendMinADX {
		return hold(symbol, ts.Name(), "no trend strength")
	}

	bullish := fast[last] > slow[last] && dif[len(dif)-1] > dea[len(dea)-1]
	bearish := fast[last] < slow[last] && dif[len(dif)-1] < dea[len(dea)-1]
	if !bullish && !bearish {
		return hold(symbol, ts.Name(), "ema and macd disagree")
	}

	// Higher-timeframe confirmation: price on the right side of the slow
	// EMA of the downsampled series.
	confirm := confirmEMA(closes)
	price := closes[last]
	if bullish && price < confirm {
		return hold(symbol, ts.Name(), "higher timeframe not confirming")
	}
	if bearish && price > confirm {
		return hold(symbol, ts.Name(), "higher timeframe not confirming")
	}

	strength := math.Min(adx/25, 1)
	confidence := math.Min(0.3+strength*0.4, 1)

	action := Buy
	if bearish {
		action = Sell
	}
	return Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Source:     ts.Name(),
		Reason:     "ema and macd aligned with trend strength",
	}
}

func confirmEMA(closes []float64) float64 {
	sampled := make([]float64, 0, len(closes)/trendConfirmStride+1)
	for i := len(closes) % trendConfirmStride; i < len(closes); i += trendConfirmStride {
		sampled = append(sampled, closes[i])
	}
	if len(sampled) < trendSlowEMA {
		return closes[len(closes)-1]
	}
	ema, err := indicators.EMA(sampled, trendSlowEMA)
	if err != nil {
		return closes[len(closes)-1]
	}
	return ema[len(ema)-1]
}
