package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tuanphm93/coinfactor/internal/config"
	"github.com/tuanphm93/coinfactor/internal/equity"
	"github.com/tuanphm93/coinfactor/internal/exchange/bybit"
	"github.com/tuanphm93/coinfactor/internal/factors"
	"github.com/tuanphm93/coinfactor/internal/logger"
	"github.com/tuanphm93/coinfactor/internal/market"
	"github.com/tuanphm93/coinfactor/internal/monitoring"
	"github.com/tuanphm93/coinfactor/internal/orchestrator"
	"github.com/tuanphm93/coinfactor/internal/regime"
	"github.com/tuanphm93/coinfactor/internal/risk"
	"github.com/tuanphm93/coinfactor/internal/scheduler"
	"github.com/tuanphm93/coinfactor/internal/statarb"
	"github.com/tuanphm93/coinfactor/pkg/reporting"
)

var riskStates = []string{
	string(risk.Normal), string(risk.Cautious), string(risk.Defensive), string(risk.Halted),
}

var regimes = []string{
	string(regime.Bull), string(regime.Neutral), string(regime.Bear),
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the engine config")
	printTables := flag.Bool("tables", true, "print cycle decisions as console tables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		File:   cfg.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	connector := bybit.NewClient(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Category:  cfg.Exchange.Category,
		Testnet:   cfg.Exchange.Testnet,
		Demo:      cfg.Exchange.Demo,
		RateLimit: cfg.Exchange.RateLimit,
	}, log)

	hist, err := equity.Open(cfg.Paths.EquityHistory, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open equity history")
	}
	defer hist.Close()

	journal, err := orchestrator.OpenDecisionLog(cfg.Paths.DecisionLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open decision log")
	}
	defer journal.Close()

	riskMgr := risk.NewManager(risk.KellyInputs{
		WinRate: cfg.Risk.KellyWinRate,
		AvgWin:  cfg.Risk.KellyAvgWin,
		AvgLoss: cfg.Risk.KellyAvgLoss,
	}, log)

	engine := orchestrator.New(
		market.NewCollector(connector, cfg.Engine.Timeframe, cfg.Engine.CandleLimit, cfg.Engine.FetchWorkers, log),
		regime.NewClassifier(log),
		factors.NewEngine(nil, log),
		statarb.NewEngine(cfg.StatArb.RediscoverCycles, log),
		riskMgr,
		hist,
		connector,
		journal,
		cfg.Engine.Universe,
		cfg.Engine.Benchmark,
		orchestrator.Options{
			TopN:               cfg.Engine.TopN,
			Temperature:        cfg.Engine.Temperature,
			RebalanceThreshold: cfg.Engine.RebalanceThreshold,
			StatArbTilt:        cfg.StatArb.Tilt,
		},
		log,
	)

	health := monitoring.NewHealthChecker(2 * cfg.Engine.CycleInterval.Std())
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.Handle("/health", health)
	server := &http.Server{Addr: cfg.Monitoring.ListenAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.Monitoring.ListenAddr).Msg("monitoring endpoint listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("monitoring server failed")
		}
	}()

	cycle := func(ctx context.Context) error {
		started := time.Now()
		decision, err := engine.RunCycle(ctx)
		if err != nil {
			monitoring.RecordError("cycle")
			health.CycleFailed(err)
			return err
		}
		monitoring.RecordCycle(time.Since(started).Seconds())
		monitoring.UpdatePortfolio(
			decision.Risk.Metrics.Equity,
			decision.Risk.Metrics.Drawdown,
			decision.Risk.Metrics.VaR99,
			len(decision.Weights),
			len(decision.Excluded),
		)
		monitoring.UpdateRiskState(string(decision.Risk.State), riskStates)
		monitoring.UpdateRegime(string(decision.Regime.Regime), regimes)
		health.CycleCompleted(string(decision.Risk.State))
		if *printTables {
			reporting.PrintDecision(decision)
		}
		return nil
	}

	runner := scheduler.NewRunner(cfg.Engine.CycleInterval.Std(), cycle, log)
	runner.OnSkip(monitoring.RecordSkippedCycle)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1 is the operator's circuit breaker reset.
	resetCh := make(chan os.Signal, 1)
	signal.Notify(resetCh, syscall.SIGUSR1)
	go func() {
		for range resetCh {
			if err := riskMgr.Reset(); err != nil {
				log.Warn().Err(err).Msg("breaker reset ignored")
			}
		}
	}()

	log.Info().
		Strs("universe", cfg.Engine.Universe).
		Str("benchmark", cfg.Engine.Benchmark).
		Dur("interval", cfg.Engine.CycleInterval.Std()).
		Msg("engine starting")

	runner.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("monitoring server shutdown failed")
	}
	log.Info().Msg("engine stopped")
}
