package statarb

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/internal/market"
)

// Admission gates for new pairs.
const (
	minCorrelation = 0.7
	maxADFPValue   = 0.05
)

// Engine maintains the set of admitted pairs and their signals. Discovery is
// expensive (O(n^2) regressions) so it runs on a slower cadence than the
// per-cycle spread updates.
type Engine struct {
	pairs           map[string]*Pair
	rediscoverEvery int
	cycles          int
	log             zerolog.Logger
}

// NewEngine creates a stat-arb engine. rediscoverEvery <= 0 defaults to 24
// cycles between discovery scans.
func NewEngine(rediscoverEvery int, log zerolog.Logger) *Engine {
	if rediscoverEvery <= 0 {
		rediscoverEvery = 24
	}
	return &Engine{
		pairs:           make(map[string]*Pair),
		rediscoverEvery: rediscoverEvery,
		log:             log.With().Str("component", "statarb").Logger(),
	}
}

// Pairs returns the admitted pairs in deterministic key order.
func (e *Engine) Pairs() []*Pair {
	keys := make([]string, 0, len(e.pairs))
	for k := range e.pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Pair, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.pairs[k])
	}
	return out
}

// Step runs one cycle: rediscovery when due, then a spread update for every
// admitted pair. Pairs whose legs left the snapshot are dropped.
func (e *Engine) Step(snap *market.Snapshot) []PairSignal {
	if e.cycles%e.rediscoverEvery == 0 {
		e.discover(snap)
	}
	e.cycles++

	signals := make([]PairSignal, 0, len(e.pairs))
	for _, pair := range e.Pairs() {
		priceA := snap.LastPrice(pair.SymbolA)
		priceB := snap.LastPrice(pair.SymbolB)
		if priceA == 0 || priceB == 0 {
			e.log.Warn().Str("pair", pair.Key()).Msg("leg missing from snapshot, dropping pair")
			delete(e.pairs, pair.Key())
			continue
		}
		sig, err := pair.Update(priceA, priceB)
		if err != nil {
			e.log.Debug().Str("pair", pair.Key()).Err(err).Msg("pair not yet tradeable")
			continue
		}
		if sig.Action != Hold {
			e.log.Info().Str("pair", pair.Key()).
				Str("action", string(sig.Action)).
				Float64("z", sig.ZScore).
				Msg("pair signal")
		}
		signals = append(signals, sig)
	}
	return signals
}

// discover scans all unordered symbol pairs and admits those that pass the
// correlation and stationarity gates. Already-admitted pairs keep their state.
func (e *Engine) discover(snap *market.Snapshot) {
	symbols := snap.Universe()
	sort.Strings(symbols)

	admitted := 0
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			a, b := symbols[i], symbols[j]
			key := a + "/" + b
			if _, ok := e.pairs[key]; ok {
				continue
			}

			pricesA := snap.Closes(a)
			pricesB := snap.Closes(b)
			n := len(pricesA)
			if len(pricesB) < n {
				n = len(pricesB)
			}
			if n < minSpreadPoints {
				continue
			}
			pricesA = pricesA[len(pricesA)-n:]
			pricesB = pricesB[len(pricesB)-n:]

			corr := indicators.Correlation(pricesA, pricesB)
			if corr < minCorrelation && corr > -minCorrelation {
				continue
			}

			pair, err := NewPair(a, b, pricesA, pricesB)
			if err != nil {
				continue
			}
			adf, err := ADFTest(pair.spread)
			if err != nil || !adf.Stationary(maxADFPValue) {
				continue
			}
			pair.Correlation = corr
			pair.ADF = adf
			e.pairs[key] = pair
			admitted++
			e.log.Info().Str("pair", key).
				Float64("beta", pair.Beta).
				Float64("correlation", corr).
				Float64("adf_p", adf.PValue).
				Msg("pair admitted")
		}
	}
	if admitted > 0 {
		e.log.Info().Int("admitted", admitted).Int("total", len(e.pairs)).Msg("pair discovery complete")
	}
}

// WeightTilts converts pair signals into per-symbol weight deltas. The
// underweight leg is tilted down by tilt scaled by confidence, the other leg
// up by the same amount, so tilts sum to zero. Negative final weights are
// the caller's clamp: tilts themselves are bounded by tilt.
func WeightTilts(signals []PairSignal, tilt float64) map[string]float64 {
	if tilt <= 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64)
	for _, sig := range signals {
		delta := tilt * sig.Confidence
		switch sig.Action {
		case OpenShort:
			out[sig.Pair.SymbolA] -= delta
			out[sig.Pair.SymbolB] += delta
		case OpenLong:
			out[sig.Pair.SymbolA] += delta
			out[sig.Pair.SymbolB] -= delta
		}
	}
	return out
}
