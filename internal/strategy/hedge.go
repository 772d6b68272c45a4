package strategy

import (
	"math"

	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/internal/market"
)

// Hedge gating parameters.
const (
	hedgeReturnWindow = 7
	hedgeMaxReturn    = -0.03
	hedgeVolWindow    = 30
	hedgeVolSpike     = 1.5
	hedgeMinBeta      = 1.0
	hedgeMinCandles   = 62
)

// HedgeSignal dampens high-beta exposure when the benchmark turns risk-off:
// a falling benchmark with spiking volatility sells instruments whose beta
// to the benchmark exceeds 1, and rotates toward the benchmark itself.
type HedgeSignal struct{}

// NewHedgeSignal creates the dynamic hedge sub-signal.
func NewHedgeSignal() HedgeSignal { return HedgeSignal{} }

func (HedgeSignal) Name() string { return "dynamic_hedge" }

// Evaluate scores one instrument.
func (hs HedgeSignal) Evaluate(symbol string, snap *market.Snapshot) Signal {
	bench := snap.Closes(snap.Benchmark)
	if len(bench) < hedgeMinCandles {
		return hold(symbol, hs.Name(), "insufficient benchmark history")
	}

	benchRet, err := indicators.PeriodReturn(bench, hedgeReturnWindow)
	if err != nil {
		return hold(symbol, hs.Name(), "benchmark return unavailable")
	}

	// Risk-off when the benchmark is down hard over the window and recent
	// volatility is elevated against the calm stretch before it.
	benchReturns := indicators.Returns(bench)
	recent := benchReturns[len(benchReturns)-hedgeReturnWindow:]
	baseline := benchReturns[len(benchReturns)-hedgeVolWindow-hedgeReturnWindow : len(benchReturns)-hedgeReturnWindow]
	recentVol := indicators.StdDev(recent)
	baselineVol := indicators.StdDev(baseline)

	riskOff := benchRet < hedgeMaxReturn &&
		(baselineVol == 0 || recentVol > baselineVol*hedgeVolSpike)
	if !riskOff {
		return hold(symbol, hs.Name(), "no risk-off condition")
	}

	severity := math.Min(-benchRet*10, 1)

	// The benchmark is the hedge vehicle: rotate toward it.
	if symbol == snap.Benchmark {
		return Signal{
			Symbol:     symbol,
			Action:     Buy,
			Confidence: severity,
			Source:     hs.Name(),
			Reason:     "risk-off rotation into benchmark",
		}
	}

	closes := snap.Closes(symbol)
	if len(closes) < hedgeVolWindow+1 {
		return hold(symbol, hs.Name(), "insufficient history")
	}
	window := hedgeVolWindow + 1
	if len(closes) < window {
		window = len(closes)
	}
	if len(bench) < window {
		window = len(bench)
	}
	beta := indicators.Beta(closes[len(closes)-window:], bench[len(bench)-window:])
	if beta <= hedgeMinBeta {
		return hold(symbol, hs.Name(), "beta at or below benchmark")
	}

	confidence := math.Min(severity*math.Min(beta/2, 1)+0.2, 1)
	return Signal{
		Symbol:     symbol,
		Action:     Sell,
		Confidence: confidence,
		Source:     hs.Name(),
		Reason:     "high-beta exposure in risk-off tape",
	}
}
