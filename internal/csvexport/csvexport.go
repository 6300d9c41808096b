// Package csvexport writes the simulation's and walk-forward orchestrator's
// output artefacts (§6.3). It is a decoupled collaborator: the simulation
// and walk-forward packages never import it, keeping result export out of
// the core per the stated Non-goal on CSV/Postgres export. Callers that
// want files wire this package themselves.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"backtestlab/internal/metrics"
	"backtestlab/internal/portfolio"
	"backtestlab/internal/walkforward"
)

// WriteEquityCurve writes one row per snapshot: timestamp, equity, cash,
// positions_value, daily_return, drawdown, num_positions.
func WriteEquityCurve(w io.Writer, snapshots []portfolio.Snapshot) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "equity", "cash", "positions_value", "daily_return", "drawdown", "num_positions"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csvexport: equity curve header: %w", err)
	}
	for _, s := range snapshots {
		row := []string{
			strconv.FormatInt(s.Timestamp, 10),
			formatFloat(s.Equity),
			formatFloat(s.Cash),
			formatFloat(s.PositionsValue),
			formatFloat(s.DailyReturn),
			formatFloat(s.Drawdown),
			strconv.Itoa(s.NumPositions),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csvexport: equity curve row: %w", err)
		}
	}
	return cw.Error()
}

// WriteTrades writes one row per TradeRecord: symbol, side, quantity,
// entry_price, exit_price, pnl, return_pct, holding_days, entry_time,
// exit_time. Side is the literal text BUY or SELL.
func WriteTrades(w io.Writer, trades []portfolio.TradeRecord) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"symbol", "side", "quantity", "entry_price", "exit_price", "pnl", "return_pct", "holding_days", "entry_time", "exit_time"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csvexport: trades header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			t.Symbol,
			t.Side.String(),
			strconv.Itoa(t.Quantity),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.PnL),
			formatFloat(t.ReturnPct),
			strconv.Itoa(t.HoldingDays),
			strconv.FormatInt(t.EntryTime, 10),
			strconv.FormatInt(t.ExitTime, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csvexport: trades row: %w", err)
		}
	}
	return cw.Error()
}

// WriteMetrics writes a two-column metric,value CSV: a leading strategy row
// naming the producer, then one row per PerformanceMetrics field.
func WriteMetrics(w io.Writer, strategyName string, m metrics.PerformanceMetrics) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"metric", "value"}); err != nil {
		return fmt.Errorf("csvexport: metrics header: %w", err)
	}
	rows := [][2]string{
		{"strategy", strategyName},
		{"total_return", formatFloat(m.TotalReturn)},
		{"annualized_return", formatFloat(m.AnnualizedReturn)},
		{"annualized_volatility", formatFloat(m.AnnualizedVolatility)},
		{"sharpe_ratio", formatFloat(m.SharpeRatio)},
		{"downside_deviation", formatFloat(m.DownsideDeviation)},
		{"sortino_ratio", formatFloat(m.SortinoRatio)},
		{"max_drawdown", formatFloat(m.MaxDrawdown)},
		{"max_drawdown_duration_days", strconv.Itoa(m.MaxDrawdownDurationDays)},
		{"calmar_ratio", formatFloat(m.CalmarRatio)},
		{"skewness", formatFloat(m.Skewness)},
		{"kurtosis", formatFloat(m.Kurtosis)},
		{"var_95", formatFloat(m.VaR95)},
		{"cvar_95", formatFloat(m.CVaR95)},
		{"total_trades", strconv.Itoa(m.TotalTrades)},
		{"winning_trades", strconv.Itoa(m.WinningTrades)},
		{"losing_trades", strconv.Itoa(m.LosingTrades)},
		{"win_rate", formatFloat(m.WinRate)},
		{"profit_factor", formatFloat(m.ProfitFactor)},
		{"avg_trade_return", formatFloat(m.AvgTradeReturn)},
		{"avg_winner", formatFloat(m.AvgWinner)},
		{"avg_loser", formatFloat(m.AvgLoser)},
		{"beta", formatFloat(m.Beta)},
		{"alpha", formatFloat(m.Alpha)},
		{"information_ratio", formatFloat(m.InformationRatio)},
		{"turnover", formatFloat(m.Turnover)},
	}
	for _, r := range rows {
		if err := cw.Write(r[:]); err != nil {
			return fmt.Errorf("csvexport: metrics row: %w", err)
		}
	}
	return cw.Error()
}

// WriteWalkForwardResults writes one row per window: window, train_sharpe,
// test_sharpe, train_return, test_return, test_maxdd.
func WriteWalkForwardResults(w io.Writer, results []walkforward.Result) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"window", "train_sharpe", "test_sharpe", "train_return", "test_return", "test_maxdd"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csvexport: walk-forward header: %w", err)
	}
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.WindowID),
			formatFloat(r.TrainSharpe),
			formatFloat(r.TestSharpe),
			formatFloat(r.TrainReturn),
			formatFloat(r.TestReturn),
			formatFloat(r.OutOfSample.MaxDrawdown),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csvexport: walk-forward row: %w", err)
		}
	}
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
