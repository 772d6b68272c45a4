// Package exchange defines the venue connector surface the engine runs
// against and the shared retry policy for venue calls.
package exchange

import (
	"context"

	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Connector is the read surface the engine needs from a venue. The engine
// emits target-weight instructions rather than orders, so no trading calls
// appear here.
type Connector interface {
	// GetCandles returns up to limit candles for the symbol, oldest first.
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error)
	// GetTicker returns the latest price and 24h turnover.
	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	// GetEquity returns total account equity in quote currency.
	GetEquity(ctx context.Context) (float64, error)
	// GetBalances returns per-coin balances.
	GetBalances(ctx context.Context) ([]types.Balance, error)
	// GetOpenPositions returns currently held positions.
	GetOpenPositions(ctx context.Context) ([]types.Position, error)
}
