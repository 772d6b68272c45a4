package factors

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/internal/engerr"
	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/internal/market"
)

// FactorScore holds one instrument's raw and standardized values for every
// factor. Recomputed each cycle, persisted only in the decision log.
type FactorScore struct {
	Raw          map[string]float64 `json:"raw"`
	Standardized map[string]float64 `json:"standardized"`
}

// RankedCoin is one entry of the per-cycle ranking.
type RankedCoin struct {
	Symbol     string      `json:"symbol"`
	TotalScore float64     `json:"total_score"`
	Scores     FactorScore `json:"scores"`
}

// Ranking is the full cycle ranking, descending by total score with ties
// broken lexically so identical inputs always order identically.
type Ranking []RankedCoin

// Engine scores the universe and derives capital weights.
type Engine struct {
	factors []Factor
	log     zerolog.Logger
}

// NewEngine creates a factor engine over the given factors. An empty factor
// slice falls back to the six defaults.
func NewEngine(factors []Factor, log zerolog.Logger) *Engine {
	if len(factors) == 0 {
		factors = DefaultFactors()
	}
	return &Engine{
		factors: factors,
		log:     log.With().Str("component", "factors").Logger(),
	}
}

// Rank scores every instrument in the snapshot across all factors,
// standardizes each factor cross-sectionally and returns the descending
// ranking. Instruments that cannot be scored (insufficient data) are
// excluded and logged, never fatal.
func (e *Engine) Rank(snap *market.Snapshot) Ranking {
	raw := make(map[string]map[string]float64)

	for _, symbol := range snap.Universe() {
		scores := make(map[string]float64, len(e.factors))
		ok := true
		for _, f := range e.factors {
			v, err := f.Score(symbol, snap)
			if err != nil {
				if engerr.Recoverable(err) {
					e.log.Debug().Str("symbol", symbol).Str("factor", f.Name()).
						Err(err).Msg("instrument skipped this cycle")
					ok = false
					break
				}
				e.log.Warn().Str("symbol", symbol).Str("factor", f.Name()).
					Err(err).Msg("factor scoring failed")
				ok = false
				break
			}
			scores[f.Name()] = v
		}
		if ok {
			raw[symbol] = scores
		}
	}

	std := e.standardize(raw)

	ranking := make(Ranking, 0, len(raw))
	for symbol, scores := range raw {
		total := 0.0
		for _, f := range e.factors {
			total += std[symbol][f.Name()] * f.Weight()
		}
		ranking = append(ranking, RankedCoin{
			Symbol:     symbol,
			TotalScore: total,
			Scores:     FactorScore{Raw: scores, Standardized: std[symbol]},
		})
	}

	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].TotalScore != ranking[j].TotalScore {
			return ranking[i].TotalScore > ranking[j].TotalScore
		}
		return ranking[i].Symbol < ranking[j].Symbol
	})
	return ranking
}

// standardize converts raw factor values to cross-sectional z-scores. A
// factor with zero dispersion across the universe standardizes to 0 for
// every instrument.
func (e *Engine) standardize(raw map[string]map[string]float64) map[string]map[string]float64 {
	std := make(map[string]map[string]float64, len(raw))
	for symbol := range raw {
		std[symbol] = make(map[string]float64, len(e.factors))
	}

	for _, f := range e.factors {
		values := make([]float64, 0, len(raw))
		for _, scores := range raw {
			values = append(values, scores[f.Name()])
		}
		m := indicators.Mean(values)
		sd := indicators.StdDev(values)
		for symbol, scores := range raw {
			if sd == 0 {
				std[symbol][f.Name()] = 0
				continue
			}
			std[symbol][f.Name()] = (scores[f.Name()] - m) / sd
		}
	}
	return std
}

// CapitalWeights converts the top-N ranking entries into portfolio weights
// via a softmax over total scores. Temperature controls concentration:
// lower temperature concentrates weight on the top-ranked instruments.
// Weights sum to 1 across the selection.
func (e *Engine) CapitalWeights(ranking Ranking, topN int, temperature float64) map[string]float64 {
	if len(ranking) == 0 || topN <= 0 {
		return map[string]float64{}
	}
	if topN > len(ranking) {
		topN = len(ranking)
	}
	if temperature <= 0 {
		temperature = 1
	}
	selected := ranking[:topN]

	// Subtract the max score before exponentiating to keep exp() in range.
	maxScore := selected[0].TotalScore
	for _, c := range selected {
		if c.TotalScore > maxScore {
			maxScore = c.TotalScore
		}
	}

	weights := make(map[string]float64, topN)
	sum := 0.0
	for _, c := range selected {
		w := math.Exp((c.TotalScore - maxScore) / temperature)
		weights[c.Symbol] = w
		sum += w
	}
	for symbol := range weights {
		weights[symbol] /= sum
	}
	return weights
}
