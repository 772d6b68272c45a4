// Package factors implements the multi-factor instrument scoring engine:
// six factor capabilities scored per instrument, standardized across the
// universe, combined into a ranking and softmax capital weights.
package factors

import (
	"math"

	"github.com/tuanphm93/coinfactor/internal/engerr"
	"github.com/tuanphm93/coinfactor/internal/indicators"
	"github.com/tuanphm93/coinfactor/internal/market"
)

// Factor scores one instrument from the cycle snapshot. Implementations are
// pure: they read the snapshot and return a raw, unnormalized score.
type Factor interface {
	Name() string
	Weight() float64
	Score(symbol string, snap *market.Snapshot) (float64, error)
}

// Default factor weights. They sum to 1 and are fixed by design; the
// configurable knobs are the softmax temperature and top-N cutoff.
const (
	WeightMomentum         = 0.25
	WeightVolAdjusted      = 0.20
	WeightRelativeStrength = 0.15
	WeightLiquidity        = 0.15
	WeightMeanReversion    = 0.15
	WeightTechnical        = 0.10
)

// DefaultFactors returns the six standard factors in engine order.
func DefaultFactors() []Factor {
	return []Factor{
		MomentumFactor{},
		VolAdjustedReturnFactor{},
		RelativeStrengthFactor{},
		LiquidityFactor{},
		MeanReversionFactor{},
		TechnicalFactor{},
	}
}

// MomentumFactor blends 7/14/30-period returns, weighting recent history
// more heavily.
type MomentumFactor struct{}

func (MomentumFactor) Name() string    { return "momentum" }
func (MomentumFactor) Weight() float64 { return WeightMomentum }

func (MomentumFactor) Score(symbol string, snap *market.Snapshot) (float64, error) {
	closes := snap.Closes(symbol)
	if len(closes) < 31 {
		return 0, engerr.InsufficientData("factors", symbol, len(closes), 31)
	}
	r7, _ := indicators.PeriodReturn(closes, 7)
	r14, _ := indicators.PeriodReturn(closes, 14)
	r30, _ := indicators.PeriodReturn(closes, 30)
	return (r7*0.5 + r14*0.3 + r30*0.2) * 100, nil
}

// VolAdjustedReturnFactor scores risk-adjusted return: mean return over
// return stdev across the trailing 30 periods, scaled by sqrt(30).
type VolAdjustedReturnFactor struct{}

func (VolAdjustedReturnFactor) Name() string    { return "vol_adjusted" }
func (VolAdjustedReturnFactor) Weight() float64 { return WeightVolAdjusted }

func (VolAdjustedReturnFactor) Score(symbol string, snap *market.Snapshot) (float64, error) {
	closes := snap.Closes(symbol)
	if len(closes) < 31 {
		return 0, engerr.InsufficientData("factors", symbol, len(closes), 31)
	}
	returns := indicators.Returns(closes)
	window := returns[len(returns)-30:]
	sd := indicators.StdDev(window)
	if sd == 0 {
		return 0, nil
	}
	return indicators.Mean(window) / sd * math.Sqrt(30) * 10, nil
}

// RelativeStrengthFactor scores 14-period return relative to the benchmark
// instrument. The benchmark itself scores 0.
type RelativeStrengthFactor struct{}

func (RelativeStrengthFactor) Name() string    { return "relative_strength" }
func (RelativeStrengthFactor) Weight() float64 { return WeightRelativeStrength }

func (RelativeStrengthFactor) Score(symbol string, snap *market.Snapshot) (float64, error) {
	if symbol == snap.Benchmark {
		return 0, nil
	}
	closes := snap.Closes(symbol)
	bench := snap.Closes(snap.Benchmark)
	if len(closes) < 15 || len(bench) < 15 {
		return 0, engerr.InsufficientData("factors", symbol, len(closes), 15)
	}
	ret, _ := indicators.PeriodReturn(closes, 14)
	benchRet, _ := indicators.PeriodReturn(bench, 14)
	if benchRet == 0 {
		return ret * 100, nil
	}
	return (ret/benchRet - 1) * 100, nil
}

// LiquidityFactor scores log-scaled 24h traded value: deep books mean less
// slippage for the same notional.
type LiquidityFactor struct{}

func (LiquidityFactor) Name() string    { return "liquidity" }
func (LiquidityFactor) Weight() float64 { return WeightLiquidity }

func (LiquidityFactor) Score(symbol string, snap *market.Snapshot) (float64, error) {
	vol := snap.QuoteVolume(symbol)
	if vol <= 0 {
		return 0, nil
	}
	return math.Log10(vol+1) * 2, nil
}

// MeanReversionFactor scores the negated z-score of price against its
// 20-period moving average: the deeper below the mean, the higher the score.
type MeanReversionFactor struct{}

func (MeanReversionFactor) Name() string    { return "mean_reversion" }
func (MeanReversionFactor) Weight() float64 { return WeightMeanReversion }

func (MeanReversionFactor) Score(symbol string, snap *market.Snapshot) (float64, error) {
	closes := snap.Closes(symbol)
	if len(closes) < 20 {
		return 0, engerr.InsufficientData("factors", symbol, len(closes), 20)
	}
	z, err := indicators.ZScore(closes, 20)
	if err != nil {
		return 0, err
	}
	return -z * 10, nil
}

// TechnicalFactor combines an RSI oversold signal, a MACD crossover signal
// and the position of price inside the Bollinger bands.
type TechnicalFactor struct{}

func (TechnicalFactor) Name() string    { return "technical" }
func (TechnicalFactor) Weight() float64 { return WeightTechnical }

func (TechnicalFactor) Score(symbol string, snap *market.Snapshot) (float64, error) {
	closes := snap.Closes(symbol)
	if len(closes) < 36 {
		return 0, engerr.InsufficientData("factors", symbol, len(closes), 36)
	}

	score := 0.0

	// Oversold RSI scores up to +30, overbought down to -30.
	rsi, err := indicators.RSI(closes, 14)
	if err != nil {
		return 0, err
	}
	var rsiScore float64
	switch {
	case rsi < 30:
		rsiScore = (30 - rsi) / 30 * 30
	case rsi > 70:
		rsiScore = -(rsi - 70) / 30 * 30
	}
	score += rsiScore * 0.4

	// Fresh MACD crosses score +-20, sustained position above/below +-10.
	dif, dea, _, err := indicators.MACD(closes, 12, 26, 9)
	if err != nil {
		return 0, err
	}
	last := len(dif) - 1
	var macdScore float64
	switch {
	case dif[last] > dea[last] && dif[last-1] <= dea[last-1]:
		macdScore = 20
	case dif[last] < dea[last] && dif[last-1] >= dea[last-1]:
		macdScore = -20
	case dif[last] > dea[last]:
		macdScore = 10
	default:
		macdScore = -10
	}
	score += macdScore * 0.3

	// Price near the lower band scores +20 (oversold), near the upper -20.
	upper, _, lower, err := indicators.BollingerBands(closes, 20, 2)
	if err != nil {
		return 0, err
	}
	var bbScore float64
	if !math.IsNaN(upper[last]) && !math.IsNaN(lower[last]) {
		if width := upper[last] - lower[last]; width > 0 {
			pos := (closes[last] - lower[last]) / width
			switch {
			case pos < 0.2:
				bbScore = 20
			case pos > 0.8:
				bbScore = -20
			}
		}
	}
	score += bbScore * 0.3

	return score, nil
}
