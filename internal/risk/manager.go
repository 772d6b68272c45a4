// Package risk sizes and polices positions: Kelly ceilings, historical VaR,
// a drawdown state machine with hysteresis, a fatal circuit breaker and the
// correlation and liquidity guards applied to every proposed weight.
package risk

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/internal/engerr"
	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/internal/market"
)

// State is the graduated risk posture.
type State string

const (
	Normal    State = "NORMAL"
	Cautious  State = "CAUTIOUS"
	Defensive State = "DEFENSIVE"
	// Halted is the circuit breaker: all risky exposure is cut and the
	// engine refuses to trade until an operator resets it.
	Halted State = "HALTED"
)

// Drawdown and daily-loss thresholds. Entry thresholds trip the state;
// recovery requires retreating below the matching exit threshold, so a
// portfolio oscillating around a boundary does not flap between postures.
const (
	cautiousDrawdown  = 0.075
	cautiousDailyLoss = 0.015
	cautiousExitDD    = 0.05
	cautiousExitLoss  = 0.01

	defensiveDrawdown  = 0.12
	defensiveDailyLoss = 0.03
	defensiveExitDD    = 0.10
	defensiveExitLoss  = 0.025

	haltDrawdown = 0.15

	varCeiling = 0.05

	maxAvgCorrelation = 0.8
	liquidityCapFrac  = 0.01
)

// Multiplier returns the exposure scaling for a state.
func (s State) Multiplier() float64 {
	switch s {
	case Cautious:
		return 0.5
	case Defensive:
		return 0.2
	case Halted:
		return 0
	default:
		return 1
	}
}

// NextState is the drawdown state machine, a pure function so transitions
// are testable in isolation. Escalation is immediate; de-escalation is one
// level per cycle and only once metrics clear the exit thresholds. Halted is
// absorbing: only Reset leaves it.
func NextState(prev State, drawdown, dailyLoss float64) State {
	if prev == Halted || drawdown > haltDrawdown {
		return Halted
	}

	switch {
	case drawdown >= defensiveDrawdown || dailyLoss >= defensiveDailyLoss:
		return Defensive
	case drawdown >= cautiousDrawdown || dailyLoss >= cautiousDailyLoss:
		if prev == Defensive {
			return Defensive
		}
		return Cautious
	}

	switch prev {
	case Defensive:
		if drawdown < defensiveExitDD && dailyLoss < defensiveExitLoss {
			return Cautious
		}
		return Defensive
	case Cautious:
		if drawdown < cautiousExitDD && dailyLoss < cautiousExitLoss {
			return Normal
		}
		return Cautious
	default:
		return Normal
	}
}

// escalate bumps a state one level toward Defensive. Used by the VaR
// ceiling check; it never halts on its own.
func escalate(s State) State {
	switch s {
	case Normal:
		return Cautious
	case Cautious:
		return Defensive
	default:
		return s
	}
}

// Report is the full per-cycle risk assessment written to the decision log.
type Report struct {
	State       State    `json:"state"`
	Metrics     Metrics  `json:"metrics"`
	Kelly       float64  `json:"kelly_fraction"`
	HalfKelly   float64  `json:"half_kelly"`
	VaRBreached bool     `json:"var_breached"`
	Notes       []string `json:"notes,omitempty"`
}

// Manager holds the risk state across cycles.
type Manager struct {
	mu    sync.RWMutex
	state State
	kelly KellyInputs
	log   zerolog.Logger
}

// NewManager creates a risk manager starting in Normal with the given Kelly
// priors.
func NewManager(kelly KellyInputs, log zerolog.Logger) *Manager {
	return &Manager{
		state: Normal,
		kelly: kelly,
		log:   log.With().Str("component", "risk").Logger(),
	}
}

// State returns the current posture.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Reset clears the circuit breaker. It is an explicit operator action and
// fails when the breaker has not tripped.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Halted {
		return engerr.New(engerr.CategoryRiskBreach, "risk", "reset requires the halted state")
	}
	m.state = Cautious
	m.log.Warn().Msg("circuit breaker reset by operator, resuming in cautious posture")
	return nil
}

// UpdateKelly replaces the win statistics, typically after the decision log
// has accumulated enough realized outcomes.
func (m *Manager) UpdateKelly(in KellyInputs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kelly = in
}

// Assess advances the state machine on fresh metrics and returns the cycle
// report. A VaR ceiling breach escalates the posture one level beyond what
// drawdown alone demands.
func (m *Manager) Assess(metrics Metrics) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	next := NextState(prev, metrics.Drawdown, metrics.DailyLoss)

	var notes []string
	breached := metrics.VaR99 > varCeiling
	if breached && next != Halted {
		next = escalate(next)
		notes = append(notes, "VaR99 ceiling breached")
	}

	if next != prev {
		evt := m.log.Warn()
		if next == Halted {
			evt = m.log.Error()
		}
		evt.Str("from", string(prev)).Str("to", string(next)).
			Float64("drawdown", metrics.Drawdown).
			Float64("daily_loss", metrics.DailyLoss).
			Float64("var_99", metrics.VaR99).
			Msg("risk state transition")
	}
	m.state = next

	return Report{
		State:       next,
		Metrics:     metrics,
		Kelly:       KellyFraction(m.kelly),
		HalfKelly:   HalfKelly(m.kelly),
		VaRBreached: breached,
	}
}

// CorrelationGuard rejects additions that would push the average pairwise
// correlation of the held basket above the ceiling. It only blocks new
// symbols: existing holdings are never force-sold on correlation alone.
func (m *Manager) CorrelationGuard(snap *market.Snapshot, held []string, candidate string) bool {
	if len(held) == 0 {
		return true
	}
	basket := append(append([]string{}, held...), candidate)

	var sum float64
	n := 0
	for i := 0; i < len(basket); i++ {
		for j := i + 1; j < len(basket); j++ {
			a := returnsOf(snap, basket[i])
			b := returnsOf(snap, basket[j])
			if len(a) == 0 || len(b) == 0 {
				continue
			}
			if len(a) > len(b) {
				a = a[len(a)-len(b):]
			} else if len(b) > len(a) {
				b = b[len(b)-len(a):]
			}
			sum += math.Abs(indicators.Correlation(a, b))
			n++
		}
	}
	if n == 0 {
		return true
	}
	avg := sum / float64(n)
	if avg >= maxAvgCorrelation {
		m.log.Info().Str("symbol", candidate).Float64("avg_correlation", avg).
			Msg("addition blocked by correlation guard")
		return false
	}
	return true
}

func returnsOf(snap *market.Snapshot, symbol string) []float64 {
	closes := snap.Closes(symbol)
	if len(closes) < 2 {
		return nil
	}
	return indicators.Returns(closes)
}

// LiquidityCap returns the weight ceiling for one instrument: the position
// may not exceed liquidityCapFrac of its 24h traded value. Unknown volume
// caps the weight at 0.
func LiquidityCap(snap *market.Snapshot, symbol string, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	vol := snap.QuoteVolume(symbol)
	if vol <= 0 {
		return 0
	}
	cap := vol * liquidityCapFrac / equity
	if cap > 1 {
		return 1
	}
	return cap
}

// CapWeights applies the full sizing pipeline to proposed weights:
// per-symbol min(proposed, half-Kelly, liquidity cap), then the state
// multiplier, then the regime risky ceiling on the total. Symbols are
// processed in sorted order so the output is deterministic.
func (m *Manager) CapWeights(proposed map[string]float64, snap *market.Snapshot, equity, riskyCeiling float64, report Report) map[string]float64 {
	symbols := make([]string, 0, len(proposed))
	for s := range proposed {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	mult := report.State.Multiplier()
	capped := make(map[string]float64, len(proposed))
	total := 0.0
	for _, s := range symbols {
		w := proposed[s]
		if hk := report.HalfKelly; hk > 0 && w > hk {
			w = hk
		}
		if lc := LiquidityCap(snap, s, equity); w > lc {
			w = lc
		}
		w *= mult
		if w <= 0 {
			continue
		}
		capped[s] = w
		total += w
	}

	// Scale down proportionally when the summed risky weight exceeds the
	// regime ceiling. Never scale up.
	if total > riskyCeiling && total > 0 {
		scale := riskyCeiling / total
		for s := range capped {
			capped[s] *= scale
		}
	}
	return capped
}
