// Package bybit implements the venue connector against the Bybit v5 API.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tuanphm93/coinfactor/internal/engerr"
	"github.com/tuanphm93/coinfactor/internal/exchange"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

// Bybit v5 kline interval codes by engine timeframe.
var intervalCodes = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W",
}

// Config holds the Bybit connector settings.
type Config struct {
	APIKey    string
	APISecret string
	Category  string // "spot" or "linear"
	Testnet   bool
	Demo      bool
	// RateLimit is requests per second against the public API; Bybit
	// allows 10/s per endpoint group.
	RateLimit float64
}

// Client is the Bybit connector. All calls run through a shared rate
// limiter and the package retry policy.
type Client struct {
	api      *bybit_api.Client
	category string
	limiter  *rate.Limiter
	log      zerolog.Logger
}

var _ exchange.Connector = (*Client)(nil)

// NewClient creates a Bybit connector.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	baseURL := bybit_api.MAINNET
	if cfg.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if cfg.Testnet {
		baseURL = bybit_api.TESTNET
	}
	if cfg.Category == "" {
		cfg.Category = "spot"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	return &Client{
		api: bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret,
			bybit_api.WithBaseURL(baseURL)),
		category: cfg.Category,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		log:      log.With().Str("component", "bybit").Logger(),
	}
}

// GetCandles fetches klines for the symbol, returned oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error) {
	interval, ok := intervalCodes[timeframe]
	if !ok {
		return nil, engerr.New(engerr.CategoryConfig, "bybit",
			fmt.Sprintf("unsupported timeframe %q", timeframe))
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	var candles []types.OHLCV
	err := exchange.WithRetry(ctx, c.log, "get_candles", func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.api.NewUtaBybitServiceWithParams(map[string]interface{}{
			"category": c.category,
			"symbol":   symbol,
			"interval": interval,
			"limit":    limit,
		}).GetMarketKline(ctx)
		if err != nil {
			return engerr.Wrap(err, engerr.CategoryConnector, "bybit", "kline request failed").WithSymbol(symbol)
		}
		candles, err = parseKlines(resp)
		if err != nil {
			return engerr.Wrap(err, engerr.CategoryConnector, "bybit", "kline parse failed").WithSymbol(symbol)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return candles, nil
}

// GetTicker fetches the latest price and 24h turnover for the symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	var ticker *types.Ticker
	err := exchange.WithRetry(ctx, c.log, "get_ticker", func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.api.NewUtaBybitServiceWithParams(map[string]interface{}{
			"category": c.category,
			"symbol":   symbol,
		}).GetMarketTickers(ctx)
		if err != nil {
			return engerr.Wrap(err, engerr.CategoryConnector, "bybit", "ticker request failed").WithSymbol(symbol)
		}
		ticker, err = parseTicker(resp, symbol)
		if err != nil {
			return engerr.Wrap(err, engerr.CategoryConnector, "bybit", "ticker parse failed").WithSymbol(symbol)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticker, nil
}

// GetEquity returns total unified-account equity in USD terms.
func (c *Client) GetEquity(ctx context.Context) (float64, error) {
	var equity float64
	err := exchange.WithRetry(ctx, c.log, "get_equity", func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.api.NewUtaBybitServiceWithParams(map[string]interface{}{
			"accountType": "UNIFIED",
		}).GetAccountWallet(ctx)
		if err != nil {
			return engerr.Wrap(err, engerr.CategoryConnector, "bybit", "wallet request failed")
		}
		equity, err = parseEquity(resp)
		if err != nil {
			return engerr.Wrap(err, engerr.CategoryConnector, "bybit", "wallet parse failed")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return equity, nil
}

// GetBalances returns per-coin wallet balances.
func (c *Client) GetBalances(ctx context.Context) ([]types.Balance, error) {
	var balances []types.Balance
	err := exchange.WithRetry(ctx, c.log, "get_balances", func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.api.NewUtaBybitServiceWithParams(map[string]interface{}{
			"accountType": "UNIFIED",
		}).GetAccountWallet(ctx)
		if err != nil {
			return engerr.Wrap(err, engerr.CategoryConnector, "bybit", "wallet request failed")
		}
		balances, err = parseBalances(resp)
		if err != nil {
			return engerr.Wrap(err, engerr.CategoryConnector, "bybit", "wallet parse failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// GetOpenPositions returns held positions. Spot holdings map to the coin
// balances with non-zero quantity.
func (c *Client) GetOpenPositions(ctx context.Context) ([]types.Position, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	positions := make([]types.Position, 0, len(balances))
	for _, b := range balances {
		if b.Free+b.Locked <= 0 || b.Asset == "USDT" || b.Asset == "USDC" {
			continue
		}
		positions = append(positions, types.Position{
			Symbol:   b.Asset + "USDT",
			Quantity: b.Free + b.Locked,
		})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

func decodeResult(resp interface{}, out interface{}) error {
	serverResp, ok := resp.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", resp)
	}
	if serverResp.RetCode != 0 {
		return fmt.Errorf("api error %d: %s", serverResp.RetCode, serverResp.RetMsg)
	}
	data, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to re-marshal result: %w", err)
	}
	return json.Unmarshal(data, out)
}

// parseKlines decodes the v5 kline payload. Bybit returns rows newest
// first; the engine wants oldest first.
func parseKlines(resp interface{}) ([]types.OHLCV, error) {
	var result struct {
		List [][]string `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}

	out := make([]types.OHLCV, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad kline timestamp %q: %w", row[0], err)
		}
		out = append(out, types.OHLCV{
			Timestamp: time.UnixMilli(ms).UTC(),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func parseTicker(resp interface{}, symbol string) (*types.Ticker, error) {
	var result struct {
		List []struct {
			Symbol      string `json:"symbol"`
			LastPrice   string `json:"lastPrice"`
			Turnover24h string `json:"turnover24h"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}
	t := result.List[0]
	return &types.Ticker{
		Symbol:      symbol,
		Price:       parseFloat(t.LastPrice),
		QuoteVolume: parseFloat(t.Turnover24h),
		Timestamp:   time.Now().UTC(),
	}, nil
}

type walletResult struct {
	List []struct {
		TotalEquity string `json:"totalEquity"`
		Coin        []struct {
			Coin          string `json:"coin"`
			WalletBalance string `json:"walletBalance"`
			UsdValue      string `json:"usdValue"`
			Locked        string `json:"locked"`
		} `json:"coin"`
	} `json:"list"`
}

func parseEquity(resp interface{}) (float64, error) {
	var result walletResult
	if err := decodeResult(resp, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("no wallet data")
	}
	return parseFloat(result.List[0].TotalEquity), nil
}

func parseBalances(resp interface{}) ([]types.Balance, error) {
	var result walletResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("no wallet data")
	}
	out := make([]types.Balance, 0, len(result.List[0].Coin))
	for _, c := range result.List[0].Coin {
		locked := parseFloat(c.Locked)
		out = append(out, types.Balance{
			Asset:  c.Coin,
			Free:   parseFloat(c.WalletBalance) - locked,
			Locked: locked,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
