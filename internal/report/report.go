// Package report analyses executed orders into a FIFO-matched PnL report.
package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// ErrNoTrades is returned when there is nothing to analyse.
var ErrNoTrades = errors.New("no trades to analyze")

// Trade は約定した（またはシミュレートされた）自分の注文です。
// Price is HBD per HIVE, Amount is HIVE.
type Trade struct {
	Time   time.Time       `json:"time"`
	Pair   string          `json:"pair"`
	Side   string          `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	TrxID  string          `json:"trx_id"`
	Failed bool            `json:"failed"`
}

// Report は損益分析の結果を保持します。PnL values are in HBD.
type Report struct {
	StartDate                   time.Time       `json:"start_date"`
	EndDate                     time.Time       `json:"end_date"`
	TotalTrades                 int             `json:"total_trades"` // matched round trips
	FailedOrders                int             `json:"failed_orders"`
	FailureRate                 float64         `json:"failure_rate"`
	WinningTrades               int             `json:"winning_trades"`
	LosingTrades                int             `json:"losing_trades"`
	WinRate                     float64         `json:"win_rate"`
	LongWinningTrades           int             `json:"long_winning_trades"`
	LongLosingTrades            int             `json:"long_losing_trades"`
	LongWinRate                 float64         `json:"long_win_rate"`
	ShortWinningTrades          int             `json:"short_winning_trades"`
	ShortLosingTrades           int             `json:"short_losing_trades"`
	ShortWinRate                float64         `json:"short_win_rate"`
	TotalPnL                    decimal.Decimal `json:"total_pnl"`
	AverageProfit               decimal.Decimal `json:"average_profit"`
	AverageLoss                 decimal.Decimal `json:"average_loss"`
	RiskRewardRatio             float64         `json:"risk_reward_ratio"`
	ProfitFactor                float64         `json:"profit_factor"`
	MaxDrawdown                 decimal.Decimal `json:"max_drawdown"`
	RecoveryFactor              float64         `json:"recovery_factor"`
	SharpeRatio                 float64         `json:"sharpe_ratio"`
	SortinoRatio                float64         `json:"sortino_ratio"`
	MaxConsecutiveWins          int             `json:"max_consecutive_wins"`
	MaxConsecutiveLosses        int             `json:"max_consecutive_losses"`
	AverageHoldingPeriodSeconds float64         `json:"average_holding_period_seconds"`
	BuyAndHoldReturn            decimal.Decimal `json:"buy_and_hold_return"`
	ReturnVsBuyAndHold          decimal.Decimal `json:"return_vs_buy_and_hold"`
	LastTrxID                   string          `json:"last_trx_id"`
}

// Execer is the part of pgxpool.Pool the service needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// Service handles report generation.
type Service struct {
	db Execer
}

// NewService creates a new report service. db may be nil when reports are not saved.
func NewService(db Execer) *Service {
	return &Service{db: db}
}

// match is one FIFO pairing of an opening and a closing fill.
type match struct {
	pnl     decimal.Decimal
	holding float64
	long    bool
}

type streak struct {
	wins, losses, maxWins, maxLosses int
}

func (s *streak) add(pnl decimal.Decimal) {
	switch {
	case pnl.IsPositive():
		s.wins++
		s.losses = 0
		if s.wins > s.maxWins {
			s.maxWins = s.wins
		}
	case pnl.IsNegative():
		s.losses++
		s.wins = 0
		if s.losses > s.maxLosses {
			s.maxLosses = s.losses
		}
	}
}

// fifoMatch closes open fills of the opposite side, oldest first.
// A buy closing earlier sells is a short round trip, a sell closing buys is long.
func fifoMatch(trades []Trade) []match {
	var buys, sells []Trade
	var matches []match

	closeAgainst := func(trade Trade, open []Trade, long bool) ([]Trade, Trade) {
		for len(open) > 0 && trade.Amount.IsPositive() {
			o := open[0]
			size := decimal.Min(o.Amount, trade.Amount)
			var pnl decimal.Decimal
			if long {
				pnl = trade.Price.Sub(o.Price).Mul(size)
			} else {
				pnl = o.Price.Sub(trade.Price).Mul(size)
			}
			matches = append(matches, match{pnl: pnl, holding: trade.Time.Sub(o.Time).Seconds(), long: long})
			o.Amount = o.Amount.Sub(size)
			trade.Amount = trade.Amount.Sub(size)
			if o.Amount.IsZero() {
				open = open[1:]
			} else {
				open[0] = o
			}
		}
		return open, trade
	}

	for _, trade := range trades {
		switch trade.Side {
		case "buy":
			sells, trade = closeAgainst(trade, sells, false)
			if trade.Amount.IsPositive() {
				buys = append(buys, trade)
			}
		case "sell":
			buys, trade = closeAgainst(trade, buys, true)
			if trade.Amount.IsPositive() {
				sells = append(sells, trade)
			}
		}
	}
	return matches
}

func ratePct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// AnalyzeTrades はトレードリストを分析してレポートを作成します。
// trades must be in time order.
func (s *Service) AnalyzeTrades(trades []Trade) (Report, error) {
	if len(trades) == 0 {
		return Report{}, ErrNoTrades
	}

	var executed []Trade
	failed := 0
	for _, t := range trades {
		if t.Failed {
			failed++
		} else {
			executed = append(executed, t)
		}
	}
	if len(executed) == 0 {
		return Report{}, fmt.Errorf("no executed trades to analyze, only %d failed orders found: %w", failed, ErrNoTrades)
	}

	matches := fifoMatch(executed)

	var (
		r                      Report
		totalProfit, totalLoss decimal.Decimal
		pnlFloats, holdings    []float64
		st                     streak
	)
	for _, m := range matches {
		r.TotalPnL = r.TotalPnL.Add(m.pnl)
		pnlFloats = append(pnlFloats, m.pnl.InexactFloat64())
		holdings = append(holdings, m.holding)
		st.add(m.pnl)

		switch {
		case m.pnl.IsPositive():
			totalProfit = totalProfit.Add(m.pnl)
			if m.long {
				r.LongWinningTrades++
			} else {
				r.ShortWinningTrades++
			}
		case m.pnl.IsNegative():
			totalLoss = totalLoss.Add(m.pnl)
			if m.long {
				r.LongLosingTrades++
			} else {
				r.ShortLosingTrades++
			}
		}
	}

	r.StartDate = executed[0].Time
	r.EndDate = executed[len(executed)-1].Time
	r.LastTrxID = executed[len(executed)-1].TrxID
	r.WinningTrades = r.LongWinningTrades + r.ShortWinningTrades
	r.LosingTrades = r.LongLosingTrades + r.ShortLosingTrades
	r.TotalTrades = r.WinningTrades + r.LosingTrades
	r.FailedOrders = failed
	r.FailureRate = ratePct(failed, len(trades))
	r.WinRate = ratePct(r.WinningTrades, r.TotalTrades)
	r.LongWinRate = ratePct(r.LongWinningTrades, r.LongWinningTrades+r.LongLosingTrades)
	r.ShortWinRate = ratePct(r.ShortWinningTrades, r.ShortWinningTrades+r.ShortLosingTrades)
	r.MaxConsecutiveWins = st.maxWins
	r.MaxConsecutiveLosses = st.maxLosses

	if r.WinningTrades > 0 {
		r.AverageProfit = totalProfit.Div(decimal.NewFromInt(int64(r.WinningTrades)))
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = totalLoss.Div(decimal.NewFromInt(int64(r.LosingTrades)))
	}
	if !r.AverageLoss.IsZero() {
		r.RiskRewardRatio = r.AverageProfit.Div(r.AverageLoss.Abs()).InexactFloat64()
	}
	if totalLoss.IsNegative() {
		r.ProfitFactor = totalProfit.Div(totalLoss.Abs()).InexactFloat64()
	}

	// エクイティカーブから最大ドローダウンを計算
	equity, peak := decimal.Zero, decimal.Zero
	for _, m := range matches {
		equity = equity.Add(m.pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(r.MaxDrawdown) {
			r.MaxDrawdown = dd
		}
	}
	if r.MaxDrawdown.IsPositive() {
		r.RecoveryFactor = r.TotalPnL.Div(r.MaxDrawdown).InexactFloat64()
	}

	r.SharpeRatio = calculateSharpeRatio(pnlFloats, 0)
	r.SortinoRatio = calculateSortinoRatio(pnlFloats, 0)
	if len(holdings) > 0 {
		r.AverageHoldingPeriodSeconds = stat.Mean(holdings, nil)
	}

	if len(executed) > 1 {
		initial := executed[0].Price
		final := executed[len(executed)-1].Price
		if initial.IsPositive() {
			r.BuyAndHoldReturn = final.Sub(initial).Div(initial)
		}
	}
	r.ReturnVsBuyAndHold = r.TotalPnL.Sub(r.BuyAndHoldReturn)

	return r, nil
}

// SavePnlReport は分析レポートをデータベースに保存します。
func (s *Service) SavePnlReport(ctx context.Context, report Report, source string) error {
	if s.db == nil {
		return errors.New("report service has no database")
	}
	query := `
        INSERT INTO pnl_reports (
            time, start_date, end_date, total_trades, failed_orders, failure_rate,
            winning_trades, losing_trades, win_rate,
            long_winning_trades, long_losing_trades, long_win_rate,
            short_winning_trades, short_losing_trades, short_win_rate,
            total_pnl, average_profit, average_loss, risk_reward_ratio,
            profit_factor, max_drawdown, recovery_factor, sharpe_ratio,
            sortino_ratio, max_consecutive_wins, max_consecutive_losses,
            average_holding_period_seconds, buy_and_hold_return, return_vs_buy_and_hold,
            last_trx_id, source
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
            $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31
        );
    `
	_, err := s.db.Exec(ctx, query,
		time.Now().UTC(), report.StartDate, report.EndDate, report.TotalTrades, report.FailedOrders, report.FailureRate,
		report.WinningTrades, report.LosingTrades, report.WinRate,
		report.LongWinningTrades, report.LongLosingTrades, report.LongWinRate,
		report.ShortWinningTrades, report.ShortLosingTrades, report.ShortWinRate,
		report.TotalPnL, report.AverageProfit, report.AverageLoss, report.RiskRewardRatio,
		report.ProfitFactor, report.MaxDrawdown, report.RecoveryFactor, report.SharpeRatio,
		report.SortinoRatio, report.MaxConsecutiveWins, report.MaxConsecutiveLosses,
		report.AverageHoldingPeriodSeconds, report.BuyAndHoldReturn, report.ReturnVsBuyAndHold,
		report.LastTrxID, source,
	)
	if err != nil {
		return fmt.Errorf("failed to save pnl report: %w", err)
	}
	return nil
}

// calculateDownsideDeviation は下方偏差を計算します。
func calculateDownsideDeviation(returns []float64, target float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < target {
			downside = append(downside, r-target)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, d := range downside {
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(downside)))
}

// calculateSharpeRatio はシャープレシオを計算します。
func calculateSharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	stdDev := stat.PopStdDev(returns, nil)
	if stdDev == 0 {
		return 0
	}
	return (mean - riskFreeRate) / stdDev
}

// calculateSortinoRatio はソルティノレシオを計算します。
func calculateSortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	downsideDev := calculateDownsideDeviation(returns, 0)
	if downsideDev == 0 {
		return 0
	}
	return (stat.Mean(returns, nil) - riskFreeRate) / downsideDev
}
