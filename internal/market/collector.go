package market

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuanphm93/coinfactor/pkg/types"
)

// CandleSource is the slice of the exchange connector the collector needs.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error)
	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)
}

// Collector fetches candles and tickers for the whole universe with a
// bounded worker pool. One failing instrument never aborts the cycle; it is
// excluded from the snapshot with a logged reason.
type Collector struct {
	source    CandleSource
	workers   int
	timeframe string
	limit     int
	log       zerolog.Logger
}

// NewCollector creates a snapshot collector. workers <= 0 defaults to 4.
func NewCollector(source CandleSource, timeframe string, limit, workers int, log zerolog.Logger) *Collector {
	if workers <= 0 {
		workers = 4
	}
	return &Collector{
		source:    source,
		workers:   workers,
		timeframe: timeframe,
		limit:     limit,
		log:       log.With().Str("component", "market").Logger(),
	}
}

type fetchResult struct {
	symbol  string
	candles []types.OHLCV
	ticker  *types.Ticker
	err     error
}

// Collect builds the cycle snapshot for the given universe.
func (c *Collector) Collect(ctx context.Context, symbols []string, benchmark string) (*Snapshot, error) {
	jobs := make(chan string)
	results := make(chan fetchResult, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				results <- c.fetch(ctx, sym)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, sym := range symbols {
			select {
			case jobs <- sym:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	snap := &Snapshot{
		Timestamp: time.Now().UTC(),
		Benchmark: benchmark,
		Candles:   make(map[string][]types.OHLCV, len(symbols)),
		Tickers:   make(map[string]types.Ticker, len(symbols)),
		Excluded:  make(map[string]string),
	}

	for res := range results {
		if res.err != nil {
			snap.Excluded[res.symbol] = res.err.Error()
			c.log.Warn().Str("symbol", res.symbol).Err(res.err).
				Msg("instrument excluded from cycle")
			continue
		}
		snap.Candles[res.symbol] = res.candles
		if res.ticker != nil {
			snap.Tickers[res.symbol] = *res.ticker
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Collector) fetch(ctx context.Context, symbol string) fetchResult {
	candles, err := c.source.GetCandles(ctx, symbol, c.timeframe, c.limit)
	if err != nil {
		return fetchResult{symbol: symbol, err: err}
	}
	if err := ValidateCandles(symbol, candles); err != nil {
		return fetchResult{symbol: symbol, err: err}
	}

	ticker, err := c.source.GetTicker(ctx, symbol)
	if err != nil {
		// Ticker loss only costs the liquidity factor; candles still score.
		c.log.Warn().Str("symbol", symbol).Err(err).Msg("ticker fetch failed")
		ticker = nil
	}
	return fetchResult{symbol: symbol, candles: candles, ticker: ticker}
}
