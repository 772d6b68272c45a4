// Package reporting renders engine output for humans: console tables for
// cycle decisions and backtest runs, and the Excel workbook export.
package reporting

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/tuanphm93/coinfactor/internal/backtest"
	"github.com/tuanphm93/coinfactor/internal/orchestrator"
)

// PrintDecision renders one cycle decision as console tables.
func PrintDecision(d *orchestrator.Decision) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Cycle %s", d.Timestamp.Format("2006-01-02 15:04"))
	t.AppendRows([]table.Row{
		{"Regime", string(d.Regime.Regime)},
		{"Benchmark 7d", fmt.Sprintf("%+.2f%%", d.Regime.BenchmarkReturn*100)},
		{"Breadth", fmt.Sprintf("%.2f", d.Regime.Breadth)},
		{"Risk State", string(d.Risk.State)},
		{"Drawdown", fmt.Sprintf("%.2f%%", d.Risk.Metrics.Drawdown*100)},
		{"VaR 99", fmt.Sprintf("%.2f%%", d.Risk.Metrics.VaR99*100)},
		{"Reserve", fmt.Sprintf("%.2f%%", d.Reserve*100)},
		{"Rebalanced", fmt.Sprintf("%t", d.Rebalanced)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 15, Align: text.AlignRight},
	})
	t.Render()

	if len(d.Weights) > 0 {
		wt := table.NewWriter()
		wt.SetOutputMirror(os.Stdout)
		wt.SetStyle(table.StyleRounded)
		wt.SetTitle("Target Weights")
		wt.AppendHeader(table.Row{"Symbol", "Weight"})

		symbols := make([]string, 0, len(d.Weights))
		for s := range d.Weights {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			wt.AppendRow(table.Row{s, fmt.Sprintf("%.2f%%", d.Weights[s]*100)})
		}
		wt.Render()
	}

	if len(d.Instructions) > 0 {
		it := table.NewWriter()
		it.SetOutputMirror(os.Stdout)
		it.SetStyle(table.StyleRounded)
		it.SetTitle("Instructions")
		it.AppendHeader(table.Row{"Symbol", "Target", "Rationale"})
		for _, ins := range d.Instructions {
			it.AppendRow(table.Row{ins.Symbol, fmt.Sprintf("%.2f%%", ins.TargetWeight*100), ins.Rationale})
		}
		it.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, WidthMax: 50},
		})
		it.Render()
	}
}

// PrintBacktest renders a backtest result summary.
func PrintBacktest(res *backtest.Result) {
	m := res.Metrics

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Backtest Results")
	t.AppendRows([]table.Row{
		{"Initial Capital", fmt.Sprintf("$%.2f", res.InitialCapital)},
		{"Final Equity", fmt.Sprintf("$%.2f", res.FinalEquity)},
		{"Total Return", fmt.Sprintf("%+.2f%%", m.TotalReturn*100)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Sortino Ratio", fmt.Sprintf("%.2f", m.SortinoRatio)},
		{"Calmar Ratio", fmt.Sprintf("%.2f", m.CalmarRatio)},
		{"Win Rate", fmt.Sprintf("%.1f%%", m.WinRate*100)},
		{"Profit Factor", fmt.Sprintf("%.2f", m.ProfitFactor)},
		{"Total Trades", fmt.Sprintf("%d", m.TotalTrades)},
		{"Total Costs", fmt.Sprintf("$%.2f", m.TotalCosts)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 12, Align: text.AlignRight},
	})
	t.Render()
}
