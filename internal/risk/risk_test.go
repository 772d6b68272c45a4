package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

func TestKellyFraction_ReferenceInputs(t *testing.T) {
	in := KellyInputs{WinRate: 0.55, AvgWin: 0.03, AvgLoss: 0.02}

	assert.InDelta(t, 0.25, KellyFraction(in), 1e-9)
	assert.InDelta(t, 0.125, HalfKelly(in), 1e-9)
}

func TestKellyFraction_DegenerateInputs(t *testing.T) {
	assert.Equal(t, 0.0, KellyFraction(KellyInputs{WinRate: 0.55, AvgWin: 0.03}))
	assert.Equal(t, 0.0, KellyFraction(KellyInputs{WinRate: 0.3, AvgWin: 0.01, AvgLoss: 0.05}))
	assert.Equal(t, 0.0, KellyFraction(KellyInputs{WinRate: 0, AvgWin: 0.03, AvgLoss: 0.02}))
}

func TestNextState_EscalationAndHysteresis(t *testing.T) {
	// 7.6% drawdown trips cautious.
	s := NextState(Normal, 0.076, 0)
	assert.Equal(t, Cautious, s)

	// Recovery to 5.5% is above the exit threshold: still cautious.
	s = NextState(s, 0.055, 0)
	assert.Equal(t, Cautious, s)

	// Below 5% clears it.
	s = NextState(s, 0.045, 0)
	assert.Equal(t, Normal, s)
}

func TestNextState_EntryThresholdsAreInclusive(t *testing.T) {
	// Hitting a threshold exactly trips the posture.
	assert.Equal(t, Cautious, NextState(Normal, 0.075, 0))
	assert.Equal(t, Cautious, NextState(Normal, 0, 0.015))
	assert.Equal(t, Defensive, NextState(Normal, 0.12, 0))
	assert.Equal(t, Defensive, NextState(Normal, 0, 0.03))

	// The circuit breaker needs the drawdown to exceed 15%.
	assert.Equal(t, Defensive, NextState(Normal, 0.15, 0))
	assert.Equal(t, Halted, NextState(Normal, 0.1501, 0))
}

func TestNextState_DailyLossAloneTrips(t *testing.T) {
	assert.Equal(t, Cautious, NextState(Normal, 0.01, 0.016))
	assert.Equal(t, Defensive, NextState(Normal, 0.01, 0.031))
}

func TestNextState_DeescalatesOneLevelPerCycle(t *testing.T) {
	// Defensive with fully recovered metrics steps to cautious first,
	// never straight to normal.
	s := NextState(Defensive, 0.01, 0)
	assert.Equal(t, Cautious, s)
	s = NextState(s, 0.01, 0)
	assert.Equal(t, Normal, s)
}

func TestNextState_HaltIsAbsorbing(t *testing.T) {
	s := NextState(Normal, 0.151, 0)
	require.Equal(t, Halted, s)

	// Full recovery does not leave halted without a reset.
	assert.Equal(t, Halted, NextState(s, 0.0, 0))
}

func TestManager_ResetRequiresHalt(t *testing.T) {
	m := NewManager(KellyInputs{WinRate: 0.55, AvgWin: 0.03, AvgLoss: 0.02}, zerolog.Nop())

	assert.Error(t, m.Reset())

	m.Assess(Metrics{Drawdown: 0.2})
	require.Equal(t, Halted, m.State())

	require.NoError(t, m.Reset())
	assert.Equal(t, Cautious, m.State())
}

func TestManager_VaRBreachEscalates(t *testing.T) {
	m := NewManager(KellyInputs{WinRate: 0.55, AvgWin: 0.03, AvgLoss: 0.02}, zerolog.Nop())

	report := m.Assess(Metrics{Drawdown: 0.01, VaR99: 0.06})

	assert.True(t, report.VaRBreached)
	assert.Equal(t, Cautious, report.State)
}

func TestComputeMetrics_DrawdownAndDailyLoss(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	points := []types.EquityPoint{
		{Timestamp: base, Equity: 10000},
		{Timestamp: base.Add(12 * time.Hour), Equity: 11000},
		{Timestamp: base.Add(30 * time.Hour), Equity: 10450},
	}

	m := ComputeMetrics(points)

	assert.Equal(t, 11000.0, m.PeakEquity)
	assert.InDelta(t, 0.05, m.Drawdown, 1e-9)
	// Reference 24h back is the 11000 point.
	assert.InDelta(t, 0.05, m.DailyLoss, 1e-9)
}

func TestComputeMetrics_VaRNeedsHistory(t *testing.T) {
	base := time.Now().UTC()
	points := []types.EquityPoint{
		{Timestamp: base, Equity: 10000},
		{Timestamp: base.Add(time.Hour), Equity: 10100},
	}
	m := ComputeMetrics(points)
	assert.Equal(t, 0.0, m.VaR99)
	assert.Equal(t, 0.0, m.CVaR99)
}

func TestComputeMetrics_HistoricalVaR(t *testing.T) {
	// 99 gentle up moves and one 10% crash: the 1% tail is the crash.
	base := time.Now().UTC()
	points := make([]types.EquityPoint, 0, 101)
	equity := 10000.0
	points = append(points, types.EquityPoint{Timestamp: base, Equity: equity})
	for i := 1; i <= 100; i++ {
		if i == 50 {
			equity *= 0.90
		} else {
			equity *= 1.001
		}
		points = append(points, types.EquityPoint{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Equity:    equity,
		})
	}

	m := ComputeMetrics(points)

	assert.InDelta(t, 0.10, m.VaR99, 1e-9)
	assert.InDelta(t, 0.10, m.CVaR99, 1e-9)
	assert.Greater(t, m.CVaR99, 0.0)
}

func riskSnapshot(t *testing.T, closes map[string][]float64, volumes map[string]float64) *market.Snapshot {
	t.Helper()
	snap := &market.Snapshot{
		Timestamp: time.Now().UTC(),
		Candles:   make(map[string][]types.OHLCV),
		Tickers:   make(map[string]types.Ticker),
		Excluded:  make(map[string]string),
	}
	base := snap.Timestamp.Add(-100 * time.Hour)
	for symbol, series := range closes {
		candles := make([]types.OHLCV, len(series))
		for i, c := range series {
			candles[i] = types.OHLCV{
				Open: c, High: c, Low: c, Close: c, Volume: 1,
				Timestamp: base.Add(time.Duration(i) * time.Hour),
			}
		}
		snap.Candles[symbol] = candles
		snap.Tickers[symbol] = types.Ticker{Symbol: symbol, QuoteVolume: volumes[symbol]}
	}
	return snap
}

func TestCorrelationGuard_BlocksCorrelatedAddition(t *testing.T) {
	a := make([]float64, 50)
	b := make([]float64, 50)
	c := make([]float64, 50)
	for i := range a {
		a[i] = 100 + float64(i)
		b[i] = 50 + float64(i)*0.5 // perfectly correlated with a
		c[i] = 100 - float64(i)    // anti-correlated, but guard uses |corr|
	}
	snap := riskSnapshot(t, map[string][]float64{
		"AAAUSDT": a, "BBBUSDT": b, "CCCUSDT": c,
	}, nil)

	m := NewManager(KellyInputs{}, zerolog.Nop())

	assert.False(t, m.CorrelationGuard(snap, []string{"AAAUSDT"}, "BBBUSDT"))
	assert.False(t, m.CorrelationGuard(snap, []string{"AAAUSDT"}, "CCCUSDT"))
	assert.True(t, m.CorrelationGuard(snap, nil, "BBBUSDT"))
}

func TestLiquidityCap(t *testing.T) {
	snap := riskSnapshot(t, map[string][]float64{"AAAUSDT": {100, 101}},
		map[string]float64{"AAAUSDT": 50000})

	// 1% of 50k volume = 500; equity 10k means a 5% weight cap.
	assert.InDelta(t, 0.05, LiquidityCap(snap, "AAAUSDT", 10000), 1e-9)
	// Unknown volume caps at zero.
	assert.Equal(t, 0.0, LiquidityCap(snap, "ZZZUSDT", 10000))
}

func TestCapWeights_Pipeline(t *testing.T) {
	snap := riskSnapshot(t,
		map[string][]float64{"AAAUSDT": {100, 101}, "BBBUSDT": {100, 101}},
		map[string]float64{"AAAUSDT": 1_000_000, "BBBUSDT": 20_000})

	m := NewManager(KellyInputs{WinRate: 0.55, AvgWin: 0.03, AvgLoss: 0.02}, zerolog.Nop())
	report := m.Assess(Metrics{})
	require.Equal(t, Normal, report.State)

	proposed := map[string]float64{
		"AAAUSDT": 0.40, // above half-Kelly 0.125
		"BBBUSDT": 0.10, // above its 2% liquidity cap
	}
	capped := m.CapWeights(proposed, snap, 10000, 0.70, report)

	assert.InDelta(t, 0.125, capped["AAAUSDT"], 1e-9)
	assert.InDelta(t, 0.02, capped["BBBUSDT"], 1e-9)
}

func TestCapWeights_StateMultiplierAndCeiling(t *testing.T) {
	snap := riskSnapshot(t,
		map[string][]float64{"AAAUSDT": {100, 101}, "BBBUSDT": {100, 101}},
		map[string]float64{"AAAUSDT": 10_000_000, "BBBUSDT": 10_000_000})

	m := NewManager(KellyInputs{WinRate: 0.9, AvgWin: 0.05, AvgLoss: 0.01}, zerolog.Nop())
	report := m.Assess(Metrics{Drawdown: 0.08}) // cautious: x0.5
	require.Equal(t, Cautious, report.State)

	proposed := map[string]float64{"AAAUSDT": 0.30, "BBBUSDT": 0.30}
	capped := m.CapWeights(proposed, snap, 10000, 0.20, report)

	// 0.30 * 0.5 = 0.15 each, total 0.30 > 0.20 ceiling: scaled to 0.10.
	assert.InDelta(t, 0.10, capped["AAAUSDT"], 1e-9)
	assert.InDelta(t, 0.10, capped["BBBUSDT"], 1e-9)
}

func TestCapWeights_HaltZeroesEverything(t *testing.T) {
	snap := riskSnapshot(t, map[string][]float64{"AAAUSDT": {100, 101}},
		map[string]float64{"AAAUSDT": 10_000_000})

	m := NewManager(KellyInputs{WinRate: 0.55, AvgWin: 0.03, AvgLoss: 0.02}, zerolog.Nop())
	report := m.Assess(Metrics{Drawdown: 0.20})
	require.Equal(t, Halted, report.State)

	capped := m.CapWeights(map[string]float64{"AAAUSDT": 0.1}, snap, 10000, 0.70, report)
	assert.Empty(t, capped)
}
