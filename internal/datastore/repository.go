// Package datastore reads stored market legs, own orders and reports back out of TimescaleDB or CSV.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/internal/report"
)

// Querier is the subset of pgxpool.Pool the repository uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PerformanceMetrics は最新のパフォーマンス指標です。
type PerformanceMetrics struct {
	SharpeRatio  float64         `json:"sharpe_ratio"`
	ProfitFactor float64         `json:"profit_factor"`
	MaxDrawdown  decimal.Decimal `json:"max_drawdown"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
}

// LastPrices are the prices of the latest own buy and sell, zero when none.
type LastPrices struct {
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

// Store is what the HTTP handlers and the bot read.
type Store interface {
	FetchLatestPerformanceMetrics(ctx context.Context) (*PerformanceMetrics, error)
	FetchLastOrderPrices(ctx context.Context, pair string) (LastPrices, error)
}

// Repository handles database reads.
type Repository struct {
	db Querier
}

// NewRepository creates a new Repository.
func NewRepository(db Querier) *Repository {
	return &Repository{db: db}
}

// FetchMarketTrades returns stored legs in [start, end), oldest first.
func (r *Repository) FetchMarketTrades(ctx context.Context, pair string, start, end time.Time) ([]dbwriter.MarketTrade, error) {
	query := `
        SELECT time, pair, side, price, volume
        FROM market_trades
        WHERE pair = $1 AND time >= $2 AND time < $3
        ORDER BY time ASC;
    `
	rows, err := r.db.Query(ctx, query, pair, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query market trades: %w", err)
	}
	defer rows.Close()

	var trades []dbwriter.MarketTrade
	for rows.Next() {
		var t dbwriter.MarketTrade
		if err := rows.Scan(&t.Time, &t.Pair, &t.Side, &t.Price, &t.Volume); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SplitLegs separates stored legs into buy and sell series.
func SplitLegs(rows []dbwriter.MarketTrade) (buys, sells []market.Trade) {
	for _, row := range rows {
		t := market.Trade{Timestamp: row.Time, Price: row.Price, Volume: row.Volume}
		switch row.Side {
		case market.SideBuy:
			buys = append(buys, t)
		case market.SideSell:
			sells = append(sells, t)
		}
	}
	return buys, sells
}

// FetchOrdersForReport returns live own orders in [start, end) as report trades.
// Dry-run and replayed orders are left out.
func (r *Repository) FetchOrdersForReport(ctx context.Context, pair string, start, end time.Time) ([]report.Trade, error) {
	query := `
        SELECT time, pair, side, price, amount, trx_id, status
        FROM bot_orders
        WHERE pair = $1 AND time >= $2 AND time < $3 AND NOT dry_run
        ORDER BY time ASC;
    `
	rows, err := r.db.Query(ctx, query, pair, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var trades []report.Trade
	for rows.Next() {
		var (
			t             report.Trade
			price, amount float64
			status        string
		)
		if err := rows.Scan(&t.Time, &t.Pair, &t.Side, &price, &amount, &t.TrxID, &status); err != nil {
			return nil, err
		}
		t.Price = decimal.NewFromFloat(price)
		t.Amount = decimal.NewFromFloat(amount)
		t.Failed = status == dbwriter.OrderStatusFailed
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// FetchLastOrderPrices reads the latest own buy and sell prices.
func (r *Repository) FetchLastOrderPrices(ctx context.Context, pair string) (LastPrices, error) {
	rows, err := r.db.Query(ctx, `SELECT side, price FROM v_last_order_prices WHERE pair = $1`, pair)
	if err != nil {
		return LastPrices{}, fmt.Errorf("failed to query last order prices: %w", err)
	}
	defer rows.Close()

	var lp LastPrices
	for rows.Next() {
		var side string
		var price float64
		if err := rows.Scan(&side, &price); err != nil {
			return LastPrices{}, err
		}
		switch side {
		case market.SideBuy:
			lp.Buy = price
		case market.SideSell:
			lp.Sell = price
		}
	}
	return lp, rows.Err()
}

// FetchLatestPerformanceMetrics は最新のpnl_reportsから指標を取得します。
func (r *Repository) FetchLatestPerformanceMetrics(ctx context.Context) (*PerformanceMetrics, error) {
	query := `
        SELECT sharpe_ratio, profit_factor, max_drawdown, total_pnl
        FROM pnl_reports
        ORDER BY time DESC
        LIMIT 1;
    `
	var m PerformanceMetrics
	err := r.db.QueryRow(ctx, query).Scan(&m.SharpeRatio, &m.ProfitFactor, &m.MaxDrawdown, &m.TotalPnL)
	if errors.Is(err, pgx.ErrNoRows) {
		return &PerformanceMetrics{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest performance metrics: %w", err)
	}
	return &m, nil
}

// DeleteOldPnlReports は指定した期間より古いPnLレポートを削除します。
func (r *Repository) DeleteOldPnlReports(ctx context.Context, maxAge time.Duration) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM pnl_reports WHERE time < $1;`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
