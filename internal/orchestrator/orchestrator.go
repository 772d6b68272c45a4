// Package orchestrator runs the per-cycle decision pipeline: snapshot,
// regime, factor ranking, sub-signal blending, risk capping and the final
// rebalance instructions, journaled to the decision log.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/internal/factors"
	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/internal/regime"
	"github.com/tuanphm93/coinfactor/internal/risk"
	"github.com/tuanphm93/coinfactor/internal/statarb"
	"github.com/tuanphm93/coinfactor/internal/strategy"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Sub-signal blend weights. The factor ranking carries the plurality; the
// directional sub-signals tilt around it.
const (
	BlendFactors  = 0.40
	BlendTrend    = 0.25
	BlendStatArb  = 0.15
	BlendBreakout = 0.10
	BlendHedge    = 0.10
)

// Options are the orchestrator knobs surfaced through configuration.
type Options struct {
	TopN               int
	Temperature        float64
	RebalanceThreshold float64
	StatArbTilt        float64
}

// EquitySink receives the cycle equity observation.
type EquitySink interface {
	Append(ts time.Time, value float64) error
	Points() []types.EquityPoint
}

// BalanceSource reports current account equity.
type BalanceSource interface {
	GetEquity(ctx context.Context) (float64, error)
}

// Orchestrator runs one full decision cycle at a time.
type Orchestrator struct {
	collector  *market.Collector
	classifier *regime.Classifier
	engine     *factors.Engine
	statArb    *statarb.Engine
	signals    []strategy.SubSignal
	riskMgr    *risk.Manager
	equity     EquitySink
	balances   BalanceSource
	journal    *DecisionLog
	opts       Options
	log        zerolog.Logger

	mu       sync.Mutex
	universe []string
	bench    string
	weights  map[string]float64
}

// New creates an orchestrator over the given components.
func New(
	collector *market.Collector,
	classifier *regime.Classifier,
	engine *factors.Engine,
	statArb *statarb.Engine,
	riskMgr *risk.Manager,
	equity EquitySink,
	balances BalanceSource,
	journal *DecisionLog,
	universe []string,
	benchmark string,
	opts Options,
	log zerolog.Logger,
) *Orchestrator {
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 2.0
	}
	if opts.StatArbTilt <= 0 {
		opts.StatArbTilt = 0.05
	}
	return &Orchestrator{
		collector:  collector,
		classifier: classifier,
		engine:     engine,
		statArb:    statArb,
		signals: []strategy.SubSignal{
			strategy.NewTrendSignal(),
			strategy.NewBreakoutSignal(),
			strategy.NewHedgeSignal(),
		},
		riskMgr:  riskMgr,
		equity:   equity,
		balances: balances,
		journal:  journal,
		universe: universe,
		bench:    benchmark,
		opts:     opts,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Weights returns the current target weights.
func (o *Orchestrator) Weights() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]float64, len(o.weights))
	for k, v := range o.weights {
		out[k] = v
	}
	return out
}

// RunCycle executes one decision cycle end to end and returns the journaled
// decision.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Decision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := time.Now()
	snap, err := o.collector.Collect(ctx, o.universe, o.bench)
	if err != nil {
		return nil, fmt.Errorf("snapshot collection failed: %w", err)
	}

	equityNow, err := o.balances.GetEquity(ctx)
	if err != nil {
		return nil, fmt.Errorf("equity fetch failed: %w", err)
	}
	if err := o.equity.Append(snap.Timestamp, equityNow); err != nil {
		return nil, fmt.Errorf("equity record failed: %w", err)
	}

	regimeRes, err := o.classifier.Classify(snap)
	if err != nil {
		return nil, fmt.Errorf("regime classification failed: %w", err)
	}

	metrics := risk.ComputeMetrics(o.equity.Points())
	report := o.riskMgr.Assess(metrics)

	ranking := o.engine.Rank(snap)
	base := o.engine.CapitalWeights(ranking, o.opts.TopN, o.opts.Temperature)

	pairSignals := o.statArb.Step(snap)
	proposed := o.blend(snap, base, pairSignals)

	// Correlation guard: additions beyond the held basket must not push
	// average pairwise correlation over the ceiling.
	held := make([]string, 0, len(o.weights))
	for s, w := range o.weights {
		if w > 0 {
			held = append(held, s)
		}
	}
	sort.Strings(held)
	for _, s := range sortedKeys(proposed) {
		if _, ok := o.weights[s]; ok {
			continue
		}
		if !o.riskMgr.CorrelationGuard(snap, held, s) {
			delete(proposed, s)
		}
	}

	// Scale the risky sleeve to the regime allocation, then run the risk
	// capping pipeline.
	for s := range proposed {
		proposed[s] *= regimeRes.Allocation.Risky
	}
	capped := o.riskMgr.CapWeights(proposed, snap, equityNow, regimeRes.Allocation.Risky, report)

	reserve := 1.0
	for _, w := range capped {
		reserve -= w
	}

	instructions, rebalanced := o.diff(capped, equityNow)
	if rebalanced {
		o.weights = capped
	}

	decision := &Decision{
		Timestamp:    snap.Timestamp,
		Regime:       regimeRes,
		Risk:         report,
		TopRanking:   topEntries(ranking, o.opts.TopN),
		Weights:      capped,
		Reserve:      reserve,
		Instructions: instructions,
		Rebalanced:   rebalanced,
		Excluded:     snap.Excluded,
	}
	if o.journal != nil {
		if err := o.journal.Append(*decision); err != nil {
			o.log.Error().Err(err).Msg("decision journal append failed")
		}
	}

	o.log.Info().
		Str("regime", string(regimeRes.Regime)).
		Str("risk_state", string(report.State)).
		Int("instruments", len(capped)).
		Float64("reserve", reserve).
		Bool("rebalanced", rebalanced).
		Dur("elapsed", time.Since(started)).
		Msg("cycle complete")
	return decision, nil
}

// blend combines the factor capital weights with the directional sub-signal
// tilts into normalized risky-sleeve weights. Symbols are processed in
// sorted order and negatives clamp to zero before renormalization, so the
// output is deterministic and long-only.
func (o *Orchestrator) blend(snap *market.Snapshot, base map[string]float64, pairSignals []statarb.PairSignal) map[string]float64 {
	if len(base) == 0 {
		return map[string]float64{}
	}

	// Zero-sum tilts of the pairs book in weight units, amplitude set by
	// the configured tilt.
	pairTilt := statarb.WeightTilts(pairSignals, o.opts.StatArbTilt)

	n := float64(len(base))
	scores := make(map[string]float64, len(base))
	total := 0.0
	for _, s := range sortedKeys(base) {
		// Normalize the factor weight so a uniform allocation scores 1.
		score := BlendFactors * base[s] * n
		for _, sub := range o.signals {
			sig := sub.Evaluate(s, snap)
			switch sub.Name() {
			case "trend":
				score += BlendTrend * sig.Tilt()
			case "breakout":
				score += BlendBreakout * sig.Tilt()
			case "dynamic_hedge":
				score += BlendHedge * sig.Tilt()
			}
		}
		if t, ok := pairTilt[s]; ok {
			// Scale by n like the factor weights, so a tilt of one
			// uniform slot is a full-strength vote.
			score += BlendStatArb * clamp(t*n, -1, 1)
		}
		if score < 0 {
			score = 0
		}
		scores[s] = score
		total += score
	}
	if total == 0 {
		return map[string]float64{}
	}
	for s := range scores {
		scores[s] /= total
	}
	return scores
}

// diff turns the delta between current and target weights into rebalance
// instructions. Deltas below the threshold are suppressed; a cycle with no
// instruction above threshold is a hold.
func (o *Orchestrator) diff(target map[string]float64, equity float64) ([]types.Instruction, bool) {
	symbols := make(map[string]struct{}, len(target)+len(o.weights))
	for s := range target {
		symbols[s] = struct{}{}
	}
	for s := range o.weights {
		symbols[s] = struct{}{}
	}

	ordered := make([]string, 0, len(symbols))
	for s := range symbols {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	var out []types.Instruction
	for _, s := range ordered {
		cur := o.weights[s]
		tgt := target[s]
		if math.Abs(tgt-cur) < o.opts.RebalanceThreshold {
			continue
		}
		out = append(out, types.Instruction{
			Symbol:       s,
			TargetWeight: tgt,
			Rationale:    fmt.Sprintf("rebalance %.4f -> %.4f on equity %.2f", cur, tgt, equity),
		})
	}
	return out, len(out) > 0
}

func topEntries(ranking factors.Ranking, n int) []RankedEntry {
	if n > len(ranking) {
		n = len(ranking)
	}
	out := make([]RankedEntry, 0, n)
	for _, c := range ranking[:n] {
		out = append(out, RankedEntry{Symbol: c.Symbol, Score: c.TotalScore})
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
