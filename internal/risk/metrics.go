package risk

import (
	"math"
	"sort"
	"time"

	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Metrics is the portfolio risk picture computed from the equity curve each
// cycle. All ratios are fractions, not percentages.
type Metrics struct {
	Equity       float64 `json:"equity"`
	PeakEquity   float64 `json:"peak_equity"`
	Drawdown     float64 `json:"drawdown"`
	DailyLoss    float64 `json:"daily_loss"`
	VaR99        float64 `json:"var_99"`
	CVaR99       float64 `json:"cvar_99"`
	Volatility   float64 `json:"volatility"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	Observations int     `json:"observations"`
}

// ComputeMetrics derives the risk metrics from the equity curve. VaR and
// CVaR use historical simulation over per-point returns and need at least
// varMinObservations points to be meaningful; before that they report 0.
func ComputeMetrics(points []types.EquityPoint) Metrics {
	m := Metrics{Observations: len(points)}
	if len(points) == 0 {
		return m
	}

	m.Equity = points[len(points)-1].Equity
	for _, pt := range points {
		if pt.Equity > m.PeakEquity {
			m.PeakEquity = pt.Equity
		}
	}
	if m.PeakEquity > 0 {
		m.Drawdown = (m.PeakEquity - m.Equity) / m.PeakEquity
	}
	m.DailyLoss = dailyLoss(points)

	if len(points) < 2 {
		return m
	}
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, points[i].Equity/prev-1)
	}
	if len(returns) == 0 {
		return m
	}

	m.Volatility = indicators.StdDev(returns)
	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)
	m.VaR99, m.CVaR99 = historicalVaR(returns, 0.99)
	return m
}

const varMinObservations = 30

// dailyLoss is the equity decline from the start of the trailing 24-hour
// window, 0 when flat or up.
func dailyLoss(points []types.EquityPoint) float64 {
	last := points[len(points)-1]
	cutoff := last.Timestamp.Add(-24 * time.Hour)

	ref := last
	for _, pt := range points {
		if pt.Timestamp.After(cutoff) {
			ref = pt
			break
		}
	}
	if ref.Equity <= 0 {
		return 0
	}
	loss := (ref.Equity - last.Equity) / ref.Equity
	if loss < 0 {
		return 0
	}
	return loss
}

// historicalVaR returns the VaR and CVaR at the given confidence as positive
// loss fractions. Both report 0 until enough observations accumulate.
func historicalVaR(returns []float64, confidence float64) (float64, float64) {
	if len(returns) < varMinObservations {
		return 0, 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Ceil(float64(len(sorted))*(1-confidence))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := -sorted[idx]
	if v < 0 {
		v = 0
	}

	// CVaR averages the tail at and below the VaR cut.
	var tailSum float64
	for i := 0; i <= idx; i++ {
		tailSum += sorted[i]
	}
	cv := -tailSum / float64(idx+1)
	if cv < 0 {
		cv = 0
	}
	return v, cv
}

func sharpe(returns []float64) float64 {
	sd := indicators.StdDev(returns)
	if sd == 0 {
		return 0
	}
	return indicators.Mean(returns) / sd * math.Sqrt(365)
}

func sortino(returns []float64) float64 {
	var downSq float64
	n := 0
	for _, r := range returns {
		if r < 0 {
			downSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	dd := math.Sqrt(downSq / float64(n))
	if dd == 0 {
		return 0
	}
	return indicators.Mean(returns) / dd * math.Sqrt(365)
}
