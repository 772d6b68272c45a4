// Package monitoring exposes Prometheus metrics and the health endpoint for
// the decision engine.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_cycles_total",
			Help: "Total number of completed decision cycles",
		},
	)

	cyclesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_cycles_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running",
		},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_cycle_duration_seconds",
			Help:    "Decision cycle wall time",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_errors_total",
			Help: "Errors by category",
		},
		[]string{"category"},
	)

	portfolioEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_portfolio_equity",
			Help: "Current portfolio equity in quote currency",
		},
	)

	drawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_drawdown",
			Help: "Current drawdown from peak equity as a fraction",
		},
	)

	valueAtRisk = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_var_99",
			Help: "Historical-simulation 99% value at risk as a fraction",
		},
	)

	riskState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_risk_state",
			Help: "Risk posture, 1 for the active state",
		},
		[]string{"state"},
	)

	marketRegime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_market_regime",
			Help: "Classified market regime, 1 for the active regime",
		},
		[]string{"regime"},
	)

	instrumentsHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_instruments_held",
			Help: "Instruments with non-zero target weight",
		},
	)

	excludedInstruments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_instruments_excluded",
			Help: "Instruments excluded from the last cycle snapshot",
		},
	)
)

func init() {
	prometheus.MustRegister(
		cyclesTotal,
		cyclesSkipped,
		cycleDuration,
		errorsTotal,
		portfolioEquity,
		drawdown,
		valueAtRisk,
		riskState,
		marketRegime,
		instrumentsHeld,
		excludedInstruments,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCycle records one completed cycle.
func RecordCycle(seconds float64) {
	cyclesTotal.Inc()
	cycleDuration.Observe(seconds)
}

// RecordSkippedCycle bumps the skipped-tick counter.
func RecordSkippedCycle() {
	cyclesSkipped.Inc()
}

// RecordError counts an error by category.
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}

// UpdatePortfolio publishes the portfolio gauges.
func UpdatePortfolio(equity, dd, var99 float64, held, excluded int) {
	portfolioEquity.Set(equity)
	drawdown.Set(dd)
	valueAtRisk.Set(var99)
	instrumentsHeld.Set(float64(held))
	excludedInstruments.Set(float64(excluded))
}

// UpdateRiskState marks the active risk posture.
func UpdateRiskState(active string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1
		}
		riskState.WithLabelValues(s).Set(v)
	}
}

// UpdateRegime marks the active market regime.
func UpdateRegime(active string, all []string) {
	for _, r := range all {
		v := 0.0
		if r == active {
			v = 1
		}
		marketRegime.WithLabelValues(r).Set(v)
	}
}
