package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/tuanphm93/coinfactor/internal/backtest"
)

// WriteBacktestXLSX writes the backtest result to an Excel workbook with a
// summary sheet, the trade ledger and the equity curve.
func WriteBacktestXLSX(res *backtest.Result, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report dir: %w", err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const (
		summarySheet = "Summary"
		tradesSheet  = "Trades"
		equitySheet  = "Equity Curve"
	)
	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	if _, err := fx.NewSheet(tradesSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(equitySheet); err != nil {
		return err
	}

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	if err := writeSummarySheet(fx, summarySheet, res, headerStyle); err != nil {
		return err
	}
	if err := writeTradesSheet(fx, tradesSheet, res, headerStyle); err != nil {
		return err
	}
	if err := writeEquitySheet(fx, equitySheet, res, headerStyle); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func writeSummarySheet(fx *excelize.File, sheet string, res *backtest.Result, headerStyle int) error {
	m := res.Metrics
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Initial Capital", res.InitialCapital},
		{"Final Equity", res.FinalEquity},
		{"Total Return", m.TotalReturn},
		{"Max Drawdown", m.MaxDrawdown},
		{"Sharpe Ratio", m.SharpeRatio},
		{"Sortino Ratio", m.SortinoRatio},
		{"Calmar Ratio", m.CalmarRatio},
		{"Win Rate", m.WinRate},
		{"Profit Factor", m.ProfitFactor},
		{"Total Trades", m.TotalTrades},
		{"Total Costs", m.TotalCosts},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return fx.SetCellStyle(sheet, "A1", "B1", headerStyle)
}

func writeTradesSheet(fx *excelize.File, sheet string, res *backtest.Result, headerStyle int) error {
	header := []interface{}{"Timestamp", "Symbol", "Side", "Quantity", "Price", "Notional", "Cost", "PnL"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, tr := range res.Trades {
		row := []interface{}{
			tr.Timestamp.Format("2006-01-02 15:04:05"),
			tr.Symbol, tr.Side, tr.Quantity, tr.Price, tr.Notional, tr.Cost, tr.PnL,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return fx.SetCellStyle(sheet, "A1", "H1", headerStyle)
}

func writeEquitySheet(fx *excelize.File, sheet string, res *backtest.Result, headerStyle int) error {
	header := []interface{}{"Timestamp", "Equity"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, pt := range res.EquityCurve {
		row := []interface{}{pt.Timestamp.Format("2006-01-02 15:04:05"), pt.Equity}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return fx.SetCellStyle(sheet, "A1", "B1", headerStyle)
}
