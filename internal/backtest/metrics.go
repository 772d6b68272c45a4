package backtest

import (
	"math"

	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Periods per year for a 4h decision cadence, used to annualize ratios.
const periodsPerYear = 6 * 365

// Metrics summarizes a backtest run. Ratios are annualized; drawdown and
// returns are fractions.
type Metrics struct {
	TotalReturn  float64 `json:"total_return"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	TotalTrades  int     `json:"total_trades"`
	TotalCosts   float64 `json:"total_costs"`
}

// ComputeMetrics derives the run metrics from the equity curve and trade
// ledger.
func ComputeMetrics(curve []types.EquityPoint, trades []Trade, initialCapital float64) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	if len(curve) == 0 || initialCapital <= 0 {
		return m
	}

	final := curve[len(curve)-1].Equity
	m.TotalReturn = final/initialCapital - 1
	m.MaxDrawdown = maxDrawdown(curve)

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) > 1 {
		mean := indicators.Mean(returns)
		if sd := indicators.StdDev(returns); sd > 0 {
			m.SharpeRatio = mean / sd * math.Sqrt(periodsPerYear)
		}
		if dd := downsideDev(returns); dd > 0 {
			m.SortinoRatio = mean / dd * math.Sqrt(periodsPerYear)
		}
	}

	if m.MaxDrawdown > 0 {
		years := float64(len(returns)) / periodsPerYear
		if years > 0 {
			annualized := math.Pow(1+m.TotalReturn, 1/years) - 1
			m.CalmarRatio = annualized / m.MaxDrawdown
		}
	}

	m.WinRate, m.ProfitFactor = tradeStats(trades)
	for _, t := range trades {
		m.TotalCosts += t.Cost
	}
	return m
}

func maxDrawdown(curve []types.EquityPoint) float64 {
	peak := curve[0].Equity
	worst := 0.0
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			if dd := (peak - pt.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func downsideDev(returns []float64) float64 {
	var sumSq float64
	n := 0
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

// tradeStats derives win rate and profit factor from closed (sell) legs.
func tradeStats(trades []Trade) (winRate, profitFactor float64) {
	var wins, losses int
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.Side != "SELL" {
			continue
		}
		if t.PnL > 0 {
			wins++
			grossProfit += t.PnL
		} else if t.PnL < 0 {
			losses++
			grossLoss += -t.PnL
		}
	}
	closed := wins + losses
	if closed > 0 {
		winRate = float64(wins) / float64(closed)
	}
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		profitFactor = math.MaxFloat64
	}
	return winRate, profitFactor
}
