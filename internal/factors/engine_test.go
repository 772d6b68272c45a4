package factors

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

func snapshotFromCloses(t *testing.T, closes map[string][]float64, benchmark string) *market.Snapshot {
	t.Helper()
	snap := &market.Snapshot{
		Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Benchmark: benchmark,
		Candles:   make(map[string][]types.OHLCV),
		Tickers:   make(map[string]types.Ticker),
		Excluded:  make(map[string]string),
	}
	base := snap.Timestamp.Add(-100 * time.Hour)
	for symbol, series := range closes {
		candles := make([]types.OHLCV, len(series))
		for i, c := range series {
			candles[i] = types.OHLCV{
				Open: c, High: c * 1.01, Low: c * 0.99, Close: c,
				Volume:    1000,
				Timestamp: base.Add(time.Duration(i) * time.Hour),
			}
		}
		snap.Candles[symbol] = candles
		snap.Tickers[symbol] = types.Ticker{
			Symbol: symbol, Price: series[len(series)-1], QuoteVolume: 5_000_000,
		}
	}
	return snap
}

func trendingSeries(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestEngine_StandardizationIsZeroMeanUnitVariance(t *testing.T) {
	snap := snapshotFromCloses(t, map[string][]float64{
		"BTCUSDT": trendingSeries(100, 1.0, 40),
		"ETHUSDT": trendingSeries(100, 0.5, 40),
		"SOLUSDT": trendingSeries(100, -0.5, 40),
	}, "BTCUSDT")

	engine := NewEngine(nil, zerolog.Nop())
	ranking := engine.Rank(snap)
	require.Len(t, ranking, 3)

	for _, f := range DefaultFactors() {
		var sum, sumSq float64
		allEqual := true
		var first float64
		for i, c := range ranking {
			raw := c.Scores.Raw[f.Name()]
			if i == 0 {
				first = raw
			} else if raw != first {
				allEqual = false
			}
			z := c.Scores.Standardized[f.Name()]
			sum += z
			sumSq += z * z
		}
		mean := sum / 3
		assert.InDelta(t, 0.0, mean, 1e-9, "factor %s mean", f.Name())
		if allEqual {
			assert.InDelta(t, 0.0, sumSq, 1e-9, "factor %s should be all zero", f.Name())
		} else {
			variance := sumSq/3 - mean*mean
			assert.InDelta(t, 1.0, variance, 1e-9, "factor %s variance", f.Name())
		}
	}
}

func TestEngine_RankingIsDescendingWithLexicalTies(t *testing.T) {
	// Identical series produce identical scores; order must fall back to
	// the symbol so reruns are deterministic.
	series := trendingSeries(100, 0.8, 40)
	snap := snapshotFromCloses(t, map[string][]float64{
		"ZRXUSDT": series,
		"AAVUSDT": series,
		"MIDUSDT": series,
	}, "AAVUSDT")

	engine := NewEngine(nil, zerolog.Nop())
	ranking := engine.Rank(snap)
	require.Len(t, ranking, 3)

	for i := 1; i < len(ranking); i++ {
		if ranking[i-1].TotalScore == ranking[i].TotalScore {
			assert.Less(t, ranking[i-1].Symbol, ranking[i].Symbol)
		} else {
			assert.Greater(t, ranking[i-1].TotalScore, ranking[i].TotalScore)
		}
	}
}

func TestEngine_SkipsInstrumentWithShortHistory(t *testing.T) {
	snap := snapshotFromCloses(t, map[string][]float64{
		"BTCUSDT": trendingSeries(100, 1.0, 40),
		"ETHUSDT": trendingSeries(100, 0.5, 40),
		"NEWUSDT": trendingSeries(1, 0.1, 10), // too short to score
	}, "BTCUSDT")

	engine := NewEngine(nil, zerolog.Nop())
	ranking := engine.Rank(snap)

	require.Len(t, ranking, 2)
	for _, c := range ranking {
		assert.NotEqual(t, "NEWUSDT", c.Symbol)
	}
}

func TestEngine_CapitalWeightsSumToOne(t *testing.T) {
	ranking := Ranking{
		{Symbol: "BTCUSDT", TotalScore: 1.2},
		{Symbol: "ETHUSDT", TotalScore: 0.4},
		{Symbol: "SOLUSDT", TotalScore: -0.3},
		{Symbol: "XRPUSDT", TotalScore: -0.9},
	}
	engine := NewEngine(nil, zerolog.Nop())

	weights := engine.CapitalWeights(ranking, 3, 2.0)
	require.Len(t, weights, 3)

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, weights["BTCUSDT"], weights["ETHUSDT"])
	assert.Greater(t, weights["ETHUSDT"], weights["SOLUSDT"])
}

func TestEngine_LowerTemperatureConcentratesWeights(t *testing.T) {
	ranking := Ranking{
		{Symbol: "BTCUSDT", TotalScore: 1.0},
		{Symbol: "ETHUSDT", TotalScore: 0.0},
	}
	engine := NewEngine(nil, zerolog.Nop())

	loose := engine.CapitalWeights(ranking, 2, 4.0)
	tight := engine.CapitalWeights(ranking, 2, 0.5)

	assert.Greater(t, tight["BTCUSDT"], loose["BTCUSDT"])
}

func TestMomentumFactor_BlendsPeriodReturns(t *testing.T) {
	// Flat then +10% over the last 7 candles: the 7d leg dominates.
	series := make([]float64, 40)
	for i := range series {
		series[i] = 100
	}
	for i := 33; i < 40; i++ {
		series[i] = 100 + float64(i-32)*10.0/7.0
	}
	snap := snapshotFromCloses(t, map[string][]float64{"BTCUSDT": series}, "BTCUSDT")

	score, err := MomentumFactor{}.Score("BTCUSDT", snap)
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
}

func TestMeanReversionFactor_RewardsOversold(t *testing.T) {
	// Price collapses below its 20-period mean: positive score.
	series := trendingSeries(100, 0, 30)
	series[29] = 80
	snap := snapshotFromCloses(t, map[string][]float64{"BTCUSDT": series}, "BTCUSDT")

	score, err := MeanReversionFactor{}.Score("BTCUSDT", snap)
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
}

func TestRelativeStrengthFactor_BenchmarkScoresZero(t *testing.T) {
	snap := snapshotFromCloses(t, map[string][]float64{
		"BTCUSDT": trendingSeries(100, 1, 40),
		"ETHUSDT": trendingSeries(100, 2, 40),
	}, "BTCUSDT")

	score, err := RelativeStrengthFactor{}.Score("BTCUSDT", snap)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	ethScore, err := RelativeStrengthFactor{}.Score("ETHUSDT", snap)
	require.NoError(t, err)
	assert.Greater(t, ethScore, 0.0, "ETH outpaced the benchmark")
}
