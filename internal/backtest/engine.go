// Package backtest replays the decision pipeline over historical candles
// with an explicit cost model, producing an equity curve, a trade ledger and
// performance metrics. Runs are deterministic: the same inputs produce a
// byte-identical report.
package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/internal/engerr"
	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Cost model defaults: taker fee plus expected slippage, both as fractions
// of traded notional.
const (
	DefaultFee      = 0.001
	DefaultSlippage = 0.002
)

// DecideFunc maps a point-in-time snapshot to target portfolio weights.
// Weights are fractions of total equity; the remainder sits in the reserve.
type DecideFunc func(snap *market.Snapshot) map[string]float64

// Trade is one executed rebalance leg.
type Trade struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Notional  float64   `json:"notional"`
	Cost      float64   `json:"cost"`
	PnL       float64   `json:"pnl,omitempty"`
}

// Result is the full backtest output.
type Result struct {
	InitialCapital float64             `json:"initial_capital"`
	FinalEquity    float64             `json:"final_equity"`
	EquityCurve    []types.EquityPoint `json:"equity_curve"`
	Trades         []Trade             `json:"trades"`
	Metrics        Metrics             `json:"metrics"`
}

// Engine replays decisions over a candle history.
type Engine struct {
	initialCapital float64
	fee            float64
	slippage       float64
	log            zerolog.Logger
}

// NewEngine creates a backtest engine. Non-positive fee or slippage fall
// back to the defaults.
func NewEngine(initialCapital, fee, slippage float64, log zerolog.Logger) *Engine {
	if fee <= 0 {
		fee = DefaultFee
	}
	if slippage <= 0 {
		slippage = DefaultSlippage
	}
	return &Engine{
		initialCapital: initialCapital,
		fee:            fee,
		slippage:       slippage,
		log:            log.With().Str("component", "backtest").Logger(),
	}
}

type position struct {
	quantity  float64
	costBasis float64
}

// Run replays the decision function over the candle history. All series
// must share their timeline; warmup candles are consumed before the first
// decision so indicators have history to work with.
func (e *Engine) Run(candles map[string][]types.OHLCV, benchmark string, warmup int, decide DecideFunc) (*Result, error) {
	if e.initialCapital <= 0 {
		return nil, engerr.New(engerr.CategoryConfig, "backtest", "initial capital must be positive")
	}
	symbols := make([]string, 0, len(candles))
	length := -1
	for s, series := range candles {
		symbols = append(symbols, s)
		if length == -1 {
			length = len(series)
		} else if len(series) != length {
			return nil, engerr.New(engerr.CategoryConfig, "backtest",
				fmt.Sprintf("candle history length mismatch for %s", s))
		}
	}
	sort.Strings(symbols)
	if length <= warmup {
		return nil, engerr.InsufficientData("backtest", benchmark, length, warmup+1)
	}

	cash := e.initialCapital
	positions := make(map[string]*position)
	result := &Result{InitialCapital: e.initialCapital}

	for t := warmup; t < length; t++ {
		snap := snapshotAt(candles, symbols, benchmark, t)
		target := decide(snap)

		equity := cash
		for _, s := range symbols {
			if p, ok := positions[s]; ok {
				equity += p.quantity * snap.LastPrice(s)
			}
		}

		// Sells first so the freed cash funds the buys.
		for _, pass := range []bool{true, false} {
			for _, s := range symbols {
				price := snap.LastPrice(s)
				if price <= 0 {
					continue
				}
				var held float64
				if p, ok := positions[s]; ok {
					held = p.quantity * price
				}
				desired := target[s] * equity
				delta := desired - held
				isSell := delta < 0
				if isSell != pass || math.Abs(delta) < equity*1e-6 {
					continue
				}
				trade := e.execute(positions, &cash, s, delta, price, snap.Timestamp)
				if trade != nil {
					result.Trades = append(result.Trades, *trade)
				}
			}
		}

		equity = cash
		for _, s := range symbols {
			if p, ok := positions[s]; ok {
				equity += p.quantity * snap.LastPrice(s)
			}
		}
		result.EquityCurve = append(result.EquityCurve, types.EquityPoint{
			Timestamp: snap.Timestamp,
			Equity:    equity,
		})
	}

	if len(result.EquityCurve) > 0 {
		result.FinalEquity = result.EquityCurve[len(result.EquityCurve)-1].Equity
	}
	result.Metrics = ComputeMetrics(result.EquityCurve, result.Trades, e.initialCapital)
	e.log.Info().
		Float64("final_equity", result.FinalEquity).
		Int("trades", len(result.Trades)).
		Float64("total_return", result.Metrics.TotalReturn).
		Msg("backtest complete")
	return result, nil
}

// execute fills one rebalance leg with slippage against the trade and the
// fee on notional.
func (e *Engine) execute(positions map[string]*position, cash *float64, symbol string, delta, price float64, ts time.Time) *Trade {
	if delta > 0 {
		fill := price * (1 + e.slippage)
		qty := delta / fill
		fee := delta * e.fee
		if delta+fee > *cash {
			// Never lever up: shrink the buy to the cash on hand.
			delta = *cash / (1 + e.fee)
			if delta <= 0 {
				return nil
			}
			qty = delta / fill
			fee = delta * e.fee
		}
		*cash -= delta + fee
		p, ok := positions[symbol]
		if !ok {
			p = &position{}
			positions[symbol] = p
		}
		p.costBasis = (p.costBasis*p.quantity + fill*qty) / (p.quantity + qty)
		p.quantity += qty
		return &Trade{
			Timestamp: ts, Symbol: symbol, Side: "BUY",
			Quantity: qty, Price: fill, Notional: delta, Cost: fee,
		}
	}

	p, ok := positions[symbol]
	if !ok || p.quantity <= 0 {
		return nil
	}
	fill := price * (1 - e.slippage)
	qty := math.Min(-delta/fill, p.quantity)
	notional := qty * fill
	fee := notional * e.fee
	pnl := (fill - p.costBasis) * qty
	*cash += notional - fee
	p.quantity -= qty
	if p.quantity*price < 1e-9 {
		delete(positions, symbol)
	}
	return &Trade{
		Timestamp: ts, Symbol: symbol, Side: "SELL",
		Quantity: qty, Price: fill, Notional: notional, Cost: fee, PnL: pnl,
	}
}

// snapshotAt builds the point-in-time view ending at candle index t.
func snapshotAt(candles map[string][]types.OHLCV, symbols []string, benchmark string, t int) *market.Snapshot {
	snap := &market.Snapshot{
		Benchmark: benchmark,
		Candles:   make(map[string][]types.OHLCV, len(symbols)),
		Tickers:   make(map[string]types.Ticker, len(symbols)),
		Excluded:  map[string]string{},
	}
	for _, s := range symbols {
		window := candles[s][:t+1]
		snap.Candles[s] = window
		last := window[len(window)-1]
		snap.Timestamp = last.Timestamp
		snap.Tickers[s] = types.Ticker{
			Symbol:      s,
			Price:       last.Close,
			QuoteVolume: last.Volume * last.Close,
			Timestamp:   last.Timestamp,
		}
	}
	return snap
}
