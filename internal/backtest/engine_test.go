package backtest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

func historyFrom(closes []float64) []types.OHLCV {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.OHLCV, len(closes))
	for i, c := range closes {
		out[i] = types.OHLCV{
			Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 10000,
			Timestamp: base.Add(time.Duration(i) * 4 * time.Hour),
		}
	}
	return out
}

func constantSeries(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestRun_FlatMarketLosesOnlyCosts(t *testing.T) {
	candles := map[string][]types.OHLCV{
		"BTCUSDT": historyFrom(constantSeries(100, 50)),
	}
	e := NewEngine(10000, DefaultFee, DefaultSlippage, zerolog.Nop())

	res, err := e.Run(candles, "BTCUSDT", 10, func(*market.Snapshot) map[string]float64 {
		return map[string]float64{"BTCUSDT": 0.5}
	})
	require.NoError(t, err)

	assert.Less(t, res.FinalEquity, res.InitialCapital)
	assert.Greater(t, res.Metrics.TotalCosts, 0.0)
	// Half the book at 0.3% round-trip cost territory: losses stay small.
	assert.Greater(t, res.FinalEquity, 9900.0)
}

func TestRun_ProfitableRoundTrip(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}
	candles := map[string][]types.OHLCV{"BTCUSDT": historyFrom(closes)}
	e := NewEngine(10000, DefaultFee, DefaultSlippage, zerolog.Nop())

	step := 0
	res, err := e.Run(candles, "BTCUSDT", 10, func(*market.Snapshot) map[string]float64 {
		step++
		if step < 40 {
			return map[string]float64{"BTCUSDT": 0.9}
		}
		return map[string]float64{} // exit everything
	})
	require.NoError(t, err)

	assert.Greater(t, res.FinalEquity, res.InitialCapital)
	assert.Equal(t, 1.0, res.Metrics.WinRate)
	assert.Greater(t, res.Metrics.TotalReturn, 0.0)

	var sells int
	for _, tr := range res.Trades {
		if tr.Side == "SELL" {
			sells++
			assert.Greater(t, tr.PnL, 0.0)
		}
	}
	assert.Greater(t, sells, 0)
}

func TestRun_BuysFillAboveSellsBelowClose(t *testing.T) {
	candles := map[string][]types.OHLCV{
		"BTCUSDT": historyFrom(constantSeries(100, 20)),
	}
	e := NewEngine(10000, DefaultFee, DefaultSlippage, zerolog.Nop())

	step := 0
	res, err := e.Run(candles, "BTCUSDT", 5, func(*market.Snapshot) map[string]float64 {
		step++
		if step == 1 {
			return map[string]float64{"BTCUSDT": 0.5}
		}
		return map[string]float64{}
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Trades), 2)

	buy := res.Trades[0]
	require.Equal(t, "BUY", buy.Side)
	assert.InDelta(t, 100*(1+DefaultSlippage), buy.Price, 1e-9)

	sell := res.Trades[1]
	require.Equal(t, "SELL", sell.Side)
	assert.InDelta(t, 100*(1-DefaultSlippage), sell.Price, 1e-9)
}

func TestRun_NeverLeversUp(t *testing.T) {
	candles := map[string][]types.OHLCV{
		"BTCUSDT": historyFrom(constantSeries(100, 20)),
		"ETHUSDT": historyFrom(constantSeries(50, 20)),
	}
	e := NewEngine(10000, DefaultFee, DefaultSlippage, zerolog.Nop())

	// Deliberately over-allocated weights.
	res, err := e.Run(candles, "BTCUSDT", 5, func(*market.Snapshot) map[string]float64 {
		return map[string]float64{"BTCUSDT": 0.8, "ETHUSDT": 0.8}
	})
	require.NoError(t, err)

	for _, pt := range res.EquityCurve {
		assert.Greater(t, pt.Equity, 0.0)
	}
	// Equity never exceeds what costs alone allow.
	assert.LessOrEqual(t, res.FinalEquity, res.InitialCapital)
}

func TestRun_DeterministicByteIdenticalReports(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i%7) - float64(i%3)
	}
	candles := map[string][]types.OHLCV{
		"BTCUSDT": historyFrom(closes),
		"ETHUSDT": historyFrom(constantSeries(50, 80)),
	}
	decide := func(snap *market.Snapshot) map[string]float64 {
		if snap.LastPrice("BTCUSDT") > 102 {
			return map[string]float64{"BTCUSDT": 0.4, "ETHUSDT": 0.2}
		}
		return map[string]float64{"ETHUSDT": 0.3}
	}

	run := func() []byte {
		e := NewEngine(10000, DefaultFee, DefaultSlippage, zerolog.Nop())
		res, err := e.Run(candles, "BTCUSDT", 10, decide)
		require.NoError(t, err)
		data, err := json.Marshal(res)
		require.NoError(t, err)
		return data
	}

	first := run()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, run())
	}
}

func TestRun_RejectsMismatchedHistories(t *testing.T) {
	candles := map[string][]types.OHLCV{
		"BTCUSDT": historyFrom(constantSeries(100, 20)),
		"ETHUSDT": historyFrom(constantSeries(50, 15)),
	}
	e := NewEngine(10000, 0, 0, zerolog.Nop())

	_, err := e.Run(candles, "BTCUSDT", 5, func(*market.Snapshot) map[string]float64 { return nil })
	assert.Error(t, err)
}

func TestComputeMetrics_DrawdownAndRatios(t *testing.T) {
	base := time.Now().UTC()
	curve := []types.EquityPoint{
		{Timestamp: base, Equity: 10000},
		{Timestamp: base.Add(4 * time.Hour), Equity: 11000},
		{Timestamp: base.Add(8 * time.Hour), Equity: 9900},
		{Timestamp: base.Add(12 * time.Hour), Equity: 10500},
	}
	m := ComputeMetrics(curve, nil, 10000)

	assert.InDelta(t, 0.05, m.TotalReturn, 1e-9)
	assert.InDelta(t, 0.1, m.MaxDrawdown, 1e-9)
	assert.NotZero(t, m.SharpeRatio)
	assert.NotZero(t, m.SortinoRatio)
	assert.Greater(t, m.CalmarRatio, 0.0)
}

func TestTradeStats(t *testing.T) {
	trades := []Trade{
		{Side: "BUY", Notional: 100},
		{Side: "SELL", PnL: 30},
		{Side: "SELL", PnL: -10},
		{Side: "SELL", PnL: 20},
	}
	winRate, pf := tradeStats(trades)

	assert.InDelta(t, 2.0/3.0, winRate, 1e-9)
	assert.InDelta(t, 5.0, pf, 1e-9)
}
