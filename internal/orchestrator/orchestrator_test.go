package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanphm93/coinfactor/internal/equity"
	"github.com/tuanphm93/coinfactor/internal/factors"
	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/internal/regime"
	"github.com/tuanphm93/coinfactor/internal/risk"
	"github.com/tuanphm93/coinfactor/internal/statarb"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// fakeSource serves canned candle series keyed by symbol.
type fakeSource struct {
	closes map[string][]float64
}

func (f *fakeSource) GetCandles(_ context.Context, symbol, _ string, _ int) ([]types.OHLCV, error) {
	series := f.closes[symbol]
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.OHLCV, len(series))
	for i, c := range series {
		out[i] = types.OHLCV{
			Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 1000,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out, nil
}

func (f *fakeSource) GetTicker(_ context.Context, symbol string) (*types.Ticker, error) {
	series := f.closes[symbol]
	return &types.Ticker{
		Symbol:      symbol,
		Price:       series[len(series)-1],
		QuoteVolume: 50_000_000,
	}, nil
}

type fakeBalances struct{ equity float64 }

func (f *fakeBalances) GetEquity(context.Context) (float64, error) { return f.equity, nil }

func uptrend(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func newTestOrchestrator(t *testing.T, closes map[string][]float64, opts Options) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()

	src := &fakeSource{closes: closes}
	collector := market.NewCollector(src, "4h", 200, 2, zerolog.Nop())
	classifier := regime.NewClassifier(zerolog.Nop())
	engine := factors.NewEngine(nil, zerolog.Nop())
	pairs := statarb.NewEngine(24, zerolog.Nop())
	riskMgr := risk.NewManager(risk.KellyInputs{WinRate: 0.55, AvgWin: 0.03, AvgLoss: 0.02}, zerolog.Nop())

	hist, err := equity.Open(filepath.Join(dir, "equity.jsonl"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	journalPath := filepath.Join(dir, "decisions.jsonl")
	journal, err := OpenDecisionLog(journalPath)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	universe := make([]string, 0, len(closes))
	for s := range closes {
		universe = append(universe, s)
	}

	o := New(collector, classifier, engine, pairs, riskMgr,
		hist, &fakeBalances{equity: 10000}, journal,
		universe, "BTCUSDT", opts, zerolog.Nop())
	return o, journalPath
}

func testUniverse() map[string][]float64 {
	return map[string][]float64{
		"BTCUSDT": uptrend(100, 0.9, 160),
		"ETHUSDT": uptrend(50, 0.5, 160),
		"SOLUSDT": uptrend(20, 0.1, 160),
		"XRPUSDT": uptrend(200, -0.4, 160),
	}
}

func TestRunCycle_WeightsAndReserveSumToOne(t *testing.T) {
	o, _ := newTestOrchestrator(t, testUniverse(), Options{TopN: 3, Temperature: 2.0})

	d, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	sum := d.Reserve
	for _, w := range d.Weights {
		require.GreaterOrEqual(t, w, 0.0)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.NotEmpty(t, d.Weights)
	assert.NotEmpty(t, d.TopRanking)
	assert.True(t, d.Rebalanced)
}

func TestRunCycle_RiskyNeverExceedsRegimeCeiling(t *testing.T) {
	o, _ := newTestOrchestrator(t, testUniverse(), Options{TopN: 4, Temperature: 2.0})

	d, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	risky := 0.0
	for _, w := range d.Weights {
		risky += w
	}
	assert.LessOrEqual(t, risky, d.Regime.Allocation.Risky+1e-9)
}

func TestRunCycle_SecondIdenticalCycleHolds(t *testing.T) {
	o, _ := newTestOrchestrator(t, testUniverse(),
		Options{TopN: 3, Temperature: 2.0, RebalanceThreshold: 0.01})

	d1, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, d1.Rebalanced)

	d2, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	assert.False(t, d2.Rebalanced)
	assert.Empty(t, d2.Instructions)
}

func TestRunCycle_JournalsEveryCycle(t *testing.T) {
	o, journalPath := newTestOrchestrator(t, testUniverse(), Options{TopN: 3})

	_, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = o.RunCycle(context.Background())
	require.NoError(t, err)

	f, err := os.Open(journalPath)
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var d Decision
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &d))
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestRunCycle_HaltCutsAllExposure(t *testing.T) {
	o, _ := newTestOrchestrator(t, testUniverse(), Options{TopN: 3})

	// Seed an equity collapse beyond the circuit breaker.
	base := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, o.equity.Append(base, 12000))

	d, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	// 10000 vs 12000 peak is a 16.7% drawdown.
	assert.Equal(t, risk.Halted, d.Risk.State)
	assert.Empty(t, d.Weights)
	assert.InDelta(t, 1.0, d.Reserve, 1e-9)
}

func TestDiff_ThresholdSuppressesSmallMoves(t *testing.T) {
	o, _ := newTestOrchestrator(t, testUniverse(), Options{RebalanceThreshold: 0.02})
	o.weights = map[string]float64{"BTCUSDT": 0.30, "ETHUSDT": 0.20}

	instructions, rebalanced := o.diff(map[string]float64{
		"BTCUSDT": 0.31, // below threshold
		"ETHUSDT": 0.10, // actionable
	}, 10000)

	require.True(t, rebalanced)
	require.Len(t, instructions, 1)
	assert.Equal(t, "ETHUSDT", instructions[0].Symbol)
	assert.InDelta(t, 0.10, instructions[0].TargetWeight, 1e-12)
}

func TestBlend_StatArbTiltShiftsWeights(t *testing.T) {
	closes := testUniverse()
	def, _ := newTestOrchestrator(t, closes, Options{TopN: 3})
	wide, _ := newTestOrchestrator(t, closes, Options{TopN: 3, StatArbTilt: 0.2})

	snap, err := def.collector.Collect(context.Background(),
		[]string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"}, "BTCUSDT")
	require.NoError(t, err)

	base := map[string]float64{"ETHUSDT": 0.5, "SOLUSDT": 0.5}
	pair := &statarb.Pair{SymbolA: "ETHUSDT", SymbolB: "SOLUSDT"}
	signals := []statarb.PairSignal{
		{Pair: pair, Action: statarb.OpenLong, ZScore: -2.5, Confidence: 1},
	}

	none := def.blend(snap, base, nil)
	tilted := def.blend(snap, base, signals)
	wider := wide.blend(snap, base, signals)

	// The overweight leg gains against the no-pairs blend, and a larger
	// configured tilt pushes it further.
	assert.Greater(t, tilted["ETHUSDT"], none["ETHUSDT"])
	assert.Greater(t, wider["ETHUSDT"], tilted["ETHUSDT"])
	assert.Less(t, wider["SOLUSDT"], tilted["SOLUSDT"])
}

func TestBlend_IsDeterministic(t *testing.T) {
	o, _ := newTestOrchestrator(t, testUniverse(), Options{TopN: 3})

	snap, err := o.collector.Collect(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, "BTCUSDT")
	require.NoError(t, err)

	base := map[string]float64{"BTCUSDT": 0.5, "ETHUSDT": 0.3, "SOLUSDT": 0.2}
	first := o.blend(snap, base, nil)
	for i := 0; i < 5; i++ {
		again := o.blend(snap, base, nil)
		require.Equal(t, first, again)
	}

	sum := 0.0
	for _, w := range first {
		require.False(t, math.IsNaN(w))
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}
