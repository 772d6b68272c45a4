// Package statarb discovers cointegrated pairs and trades the spread
// between them: hedge-ratio regression, unit-root gating and z-score entry
// and exit signals.
package statarb

import (
	"fmt"
	"math"

	"github.com/tuanphm93/coinfactor/internal/engerr"
	"github.com/tuanphm93/coinfactor/internal/indicators"
)

// PairAction is the trade instruction for a pair this cycle.
type PairAction string

const (
	// OpenLong buys the spread: overweight A, underweight B.
	OpenLong PairAction = "OPEN_LONG"
	// OpenShort sells the spread: underweight A, overweight B.
	OpenShort PairAction = "OPEN_SHORT"
	Close     PairAction = "CLOSE"
	Hold      PairAction = "HOLD"
)

// Entry and exit bands on the spread z-score.
const (
	entryZ = 2.0
	exitZ  = 0.5

	// spreadLookback bounds the rolling spread window; stats become valid
	// once minSpreadPoints have accumulated.
	spreadLookback  = 60
	minSpreadPoints = 20
)

// Pair is one admitted cointegrated pair with its rolling spread state.
type Pair struct {
	SymbolA string  `json:"symbol_a"`
	SymbolB string  `json:"symbol_b"`
	Beta    float64 `json:"beta"`

	Correlation float64   `json:"correlation"`
	ADF         ADFResult `json:"adf"`

	spread []float64
	open   PairAction // OpenLong, OpenShort or Hold when flat
}

// NewPair builds a pair from aligned price histories: OLS hedge ratio of A
// on B, then the historical spread seeded into the rolling window.
func NewPair(symbolA, symbolB string, pricesA, pricesB []float64) (*Pair, error) {
	if len(pricesA) != len(pricesB) {
		return nil, engerr.New(engerr.CategoryCointegration, "statarb",
			fmt.Sprintf("price history mismatch: %d vs %d", len(pricesA), len(pricesB)))
	}
	if len(pricesA) < minSpreadPoints {
		return nil, engerr.InsufficientData("statarb", symbolA, len(pricesA), minSpreadPoints)
	}

	_, beta := indicators.LinearRegression(pricesB, pricesA)
	p := &Pair{
		SymbolA: symbolA,
		SymbolB: symbolB,
		Beta:    beta,
		open:    Hold,
	}
	for i := range pricesA {
		p.pushSpread(pricesA[i] - beta*pricesB[i])
	}
	return p, nil
}

func (p *Pair) pushSpread(v float64) {
	p.spread = append(p.spread, v)
	if len(p.spread) > spreadLookback {
		p.spread = p.spread[len(p.spread)-spreadLookback:]
	}
}

// ZScore returns the current spread z-score, or an error until the rolling
// window holds enough points.
func (p *Pair) ZScore() (float64, error) {
	if len(p.spread) < minSpreadPoints {
		return 0, engerr.InsufficientData("statarb", p.SymbolA, len(p.spread), minSpreadPoints)
	}
	mean := indicators.Mean(p.spread)
	sd := indicators.StdDev(p.spread)
	if sd == 0 {
		return 0, nil
	}
	return (p.spread[len(p.spread)-1] - mean) / sd, nil
}

// PairSignal is the per-cycle output for one pair.
type PairSignal struct {
	Pair       *Pair      `json:"pair"`
	Action     PairAction `json:"action"`
	ZScore     float64    `json:"z_score"`
	Confidence float64    `json:"confidence"`
}

// Update ingests the latest prices and emits the cycle signal. Entry above
// +-2 sigma, exit inside +-0.5 sigma, hold in between. Confidence scales
// linearly with the deviation, saturating at 3 sigma.
func (p *Pair) Update(priceA, priceB float64) (PairSignal, error) {
	if priceA <= 0 || priceB <= 0 || math.IsNaN(priceA) || math.IsNaN(priceB) {
		return PairSignal{}, engerr.InvalidPrice("statarb", p.SymbolA, priceA)
	}
	p.pushSpread(priceA - p.Beta*priceB)

	z, err := p.ZScore()
	if err != nil {
		return PairSignal{}, err
	}

	action := Hold
	switch {
	case z > entryZ:
		if p.open != OpenShort {
			action = OpenShort
		}
		p.open = OpenShort
	case z < -entryZ:
		if p.open != OpenLong {
			action = OpenLong
		}
		p.open = OpenLong
	case math.Abs(z) < exitZ && p.open != Hold:
		action = Close
		p.open = Hold
	}

	return PairSignal{
		Pair:       p,
		Action:     action,
		ZScore:     z,
		Confidence: math.Min(math.Abs(z)/3, 1),
	}, nil
}

// Open reports the currently held side of the spread, Hold when flat.
func (p *Pair) Open() PairAction { return p.open }

// Key identifies the pair regardless of leg order.
func (p *Pair) Key() string {
	if p.SymbolA < p.SymbolB {
		return p.SymbolA + "/" + p.SymbolB
	}
	return p.SymbolB + "/" + p.SymbolA
}
