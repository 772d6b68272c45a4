package regime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// seriesWithReturn builds 10 closes ending with the given total return over
// the trailing 7 periods.
func seriesWithReturn(ret float64) []float64 {
	out := make([]float64, 10)
	for i := 0; i < 3; i++ {
		out[i] = 100
	}
	for i := 3; i < 10; i++ {
		out[i] = 100 * (1 + ret*float64(i-2)/7)
	}
	return out
}

func regimeSnapshot(t *testing.T, closes map[string][]float64, benchmark string) *market.Snapshot {
	t.Helper()
	snap := &market.Snapshot{
		Timestamp: time.Now().UTC(),
		Benchmark: benchmark,
		Candles:   make(map[string][]types.OHLCV),
		Tickers:   make(map[string]types.Ticker),
		Excluded:  make(map[string]string),
	}
	base := snap.Timestamp.Add(-24 * time.Hour)
	for symbol, series := range closes {
		candles := make([]types.OHLCV, len(series))
		for i, c := range series {
			candles[i] = types.OHLCV{
				Open: c, High: c, Low: c, Close: c, Volume: 1,
				Timestamp: base.Add(time.Duration(i) * time.Hour),
			}
		}
		snap.Candles[symbol] = candles
	}
	return snap
}

func TestClassify_BullNeedsReturnAndBreadth(t *testing.T) {
	snap := regimeSnapshot(t, map[string][]float64{
		"BTCUSDT": seriesWithReturn(0.06),
		"ETHUSDT": seriesWithReturn(0.04),
		"SOLUSDT": seriesWithReturn(0.03),
		"XRPUSDT": seriesWithReturn(-0.04),
	}, "BTCUSDT")

	res, err := NewClassifier(zerolog.Nop()).Classify(snap)
	require.NoError(t, err)

	assert.Equal(t, Bull, res.Regime)
	assert.InDelta(t, 0.06, res.BenchmarkReturn, 0.002)
	assert.Equal(t, 3, res.Advancers)
	assert.Equal(t, 1, res.Decliners)
	assert.Equal(t, Allocation{Risky: 0.70, Reserve: 0.30}, res.Allocation)
}

func TestClassify_StrongReturnWithWeakBreadthStaysNeutral(t *testing.T) {
	snap := regimeSnapshot(t, map[string][]float64{
		"BTCUSDT": seriesWithReturn(0.08),
		"ETHUSDT": seriesWithReturn(-0.05),
		"SOLUSDT": seriesWithReturn(-0.06),
		"XRPUSDT": seriesWithReturn(-0.04),
	}, "BTCUSDT")

	res, err := NewClassifier(zerolog.Nop()).Classify(snap)
	require.NoError(t, err)

	assert.Equal(t, Neutral, res.Regime)
	assert.Equal(t, Allocation{Risky: 0.50, Reserve: 0.50}, res.Allocation)
}

func TestClassify_Bear(t *testing.T) {
	snap := regimeSnapshot(t, map[string][]float64{
		"BTCUSDT": seriesWithReturn(-0.08),
		"ETHUSDT": seriesWithReturn(-0.06),
		"SOLUSDT": seriesWithReturn(-0.05),
		"XRPUSDT": seriesWithReturn(0.03),
	}, "BTCUSDT")

	res, err := NewClassifier(zerolog.Nop()).Classify(snap)
	require.NoError(t, err)

	assert.Equal(t, Bear, res.Regime)
	assert.Equal(t, Allocation{Risky: 0.20, Reserve: 0.80}, res.Allocation)
}

func TestClassify_FlatMovesDoNotVote(t *testing.T) {
	// Moves inside +-2% count neither as advance nor decline, so breadth
	// here is decided by the two decisive movers.
	snap := regimeSnapshot(t, map[string][]float64{
		"BTCUSDT": seriesWithReturn(0.06),
		"ETHUSDT": seriesWithReturn(0.01),
		"SOLUSDT": seriesWithReturn(-0.015),
		"XRPUSDT": seriesWithReturn(0.03),
	}, "BTCUSDT")

	res, err := NewClassifier(zerolog.Nop()).Classify(snap)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Advancers)
	assert.Equal(t, 0, res.Decliners)
	assert.Equal(t, 1.0, res.Breadth)
	assert.Equal(t, Bull, res.Regime)
}

func TestClassify_EmptyBreadthDefaultsToHalf(t *testing.T) {
	snap := regimeSnapshot(t, map[string][]float64{
		"BTCUSDT": seriesWithReturn(0.001),
	}, "BTCUSDT")

	res, err := NewClassifier(zerolog.Nop()).Classify(snap)
	require.NoError(t, err)

	assert.Equal(t, 0.5, res.Breadth)
	assert.Equal(t, Neutral, res.Regime)
}

func TestClassify_ShortBenchmarkHistoryFails(t *testing.T) {
	snap := regimeSnapshot(t, map[string][]float64{
		"BTCUSDT": {100, 101, 102},
	}, "BTCUSDT")

	_, err := NewClassifier(zerolog.Nop()).Classify(snap)
	assert.Error(t, err)
}
