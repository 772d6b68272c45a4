// Package regime classifies the overall market state from benchmark return
// and breadth, and maps the state to a risky/reserve capital split.
package regime

import (
	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/internal/engerr"
	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/internal/market"
)

// Regime is the classified market state.
type Regime string

const (
	Bull    Regime = "BULL"
	Bear    Regime = "BEAR"
	Neutral Regime = "NEUTRAL"
)

// Classification thresholds. Breadth counts only decisive moves: an
// instrument flat within +-2% over the window votes neither way.
const (
	bullReturnThreshold = 0.05
	bearReturnThreshold = -0.05
	breadthThreshold    = 0.5
	breadthMinMove      = 0.02
	returnWindow        = 7
)

// Allocation is the capital split the regime prescribes. Risky plus reserve
// always equals 1.
type Allocation struct {
	Risky   float64 `json:"risky"`
	Reserve float64 `json:"reserve"`
}

// AllocationFor returns the capital split for a regime.
func AllocationFor(r Regime) Allocation {
	switch r {
	case Bull:
		return Allocation{Risky: 0.70, Reserve: 0.30}
	case Bear:
		return Allocation{Risky: 0.20, Reserve: 0.80}
	default:
		return Allocation{Risky: 0.50, Reserve: 0.50}
	}
}

// Result is one cycle's regime classification with its inputs, kept for the
// decision log.
type Result struct {
	Regime          Regime     `json:"regime"`
	BenchmarkReturn float64    `json:"benchmark_return"`
	Breadth         float64    `json:"breadth"`
	Advancers       int        `json:"advancers"`
	Decliners       int        `json:"decliners"`
	Allocation      Allocation `json:"allocation"`
}

// Classifier derives the market regime from a cycle snapshot.
type Classifier struct {
	log zerolog.Logger
}

// NewClassifier creates a regime classifier.
func NewClassifier(log zerolog.Logger) *Classifier {
	return &Classifier{log: log.With().Str("component", "regime").Logger()}
}

// Classify computes the regime for the snapshot. It needs at least
// returnWindow+1 benchmark closes; breadth over an otherwise empty universe
// defaults to the neutral 0.5.
func (c *Classifier) Classify(snap *market.Snapshot) (Result, error) {
	bench := snap.Closes(snap.Benchmark)
	if len(bench) < returnWindow+1 {
		return Result{}, engerr.InsufficientData("regime", snap.Benchmark, len(bench), returnWindow+1)
	}
	benchRet, err := indicators.PeriodReturn(bench, returnWindow)
	if err != nil {
		return Result{}, err
	}

	advancers, decliners := 0, 0
	for _, symbol := range snap.Universe() {
		closes := snap.Closes(symbol)
		if len(closes) < returnWindow+1 {
			continue
		}
		ret, err := indicators.PeriodReturn(closes, returnWindow)
		if err != nil {
			continue
		}
		switch {
		case ret > breadthMinMove:
			advancers++
		case ret < -breadthMinMove:
			decliners++
		}
	}

	breadth := 0.5
	if advancers+decliners > 0 {
		breadth = float64(advancers) / float64(advancers+decliners)
	}

	regime := Neutral
	switch {
	case benchRet > bullReturnThreshold && breadth > breadthThreshold:
		regime = Bull
	case benchRet < bearReturnThreshold && breadth < breadthThreshold:
		regime = Bear
	}

	res := Result{
		Regime:          regime,
		BenchmarkReturn: benchRet,
		Breadth:         breadth,
		Advancers:       advancers,
		Decliners:       decliners,
		Allocation:      AllocationFor(regime),
	}
	c.log.Info().Str("regime", string(regime)).
		Float64("benchmark_return", benchRet).
		Float64("breadth", breadth).
		Msg("regime classified")
	return res, nil
}
