package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tuanphm93/coinfactor/internal/backtest"
	"github.com/tuanphm93/coinfactor/internal/config"
	"github.com/tuanphm93/coinfactor/internal/exchange/bybit"
	"github.com/tuanphm93/coinfactor/internal/factors"
	"github.com/tuanphm93/coinfactor/internal/logger"
	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/internal/regime"
	"github.com/tuanphm93/coinfactor/pkg/reporting"
	"github.com/tuanphm93/coinfactor/pkg/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the engine config")
	candles := flag.Int("candles", 1000, "history length per instrument")
	capital := flag.Float64("capital", 10000, "initial capital")
	warmup := flag.Int("warmup", 150, "candles consumed before the first decision")
	xlsxPath := flag.String("xlsx", "", "optional Excel report path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{Level: cfg.Logging.Level, Pretty: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	connector := bybit.NewClient(bybit.Config{
		Category:  cfg.Exchange.Category,
		Testnet:   cfg.Exchange.Testnet,
		RateLimit: cfg.Exchange.RateLimit,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	history := make(map[string][]types.OHLCV, len(cfg.Engine.Universe))
	minLen := -1
	for _, symbol := range cfg.Engine.Universe {
		series, err := connector.GetCandles(ctx, symbol, cfg.Engine.Timeframe, *candles)
		if err != nil {
			log.Fatal().Str("symbol", symbol).Err(err).Msg("history download failed")
		}
		history[symbol] = series
		if minLen == -1 || len(series) < minLen {
			minLen = len(series)
		}
		log.Info().Str("symbol", symbol).Int("candles", len(series)).Msg("history downloaded")
	}
	// Align all series to the shortest history so the timeline is shared.
	for symbol, series := range history {
		history[symbol] = series[len(series)-minLen:]
	}

	engine := factors.NewEngine(nil, log)
	classifier := regime.NewClassifier(log)
	decide := func(snap *market.Snapshot) map[string]float64 {
		res, err := classifier.Classify(snap)
		if err != nil {
			return nil
		}
		ranking := engine.Rank(snap)
		weights := engine.CapitalWeights(ranking, cfg.Engine.TopN, cfg.Engine.Temperature)
		for s := range weights {
			weights[s] *= res.Allocation.Risky
		}
		return weights
	}

	bt := backtest.NewEngine(*capital, backtest.DefaultFee, backtest.DefaultSlippage, log)
	result, err := bt.Run(history, cfg.Engine.Benchmark, *warmup, decide)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	reporting.PrintBacktest(result)
	if *xlsxPath != "" {
		if err := reporting.WriteBacktestXLSX(result, *xlsxPath); err != nil {
			log.Fatal().Err(err).Msg("excel report failed")
		}
		log.Info().Str("path", *xlsxPath).Msg("excel report written")
	}
}
