package datastore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewRepository(mock)
}

func TestRepository_FetchMarketTrades(t *testing.T) {
	ctx := context.Background()
	mock, repo := newMockRepo(t)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"time", "pair", "side", "price", "volume"}).
		AddRow(t0, "HIVE/HBD", "buy", 0.25, 10.0).
		AddRow(t0.Add(time.Minute), "HIVE/HBD", "sell", 0.26, 4.0)
	mock.ExpectQuery(`FROM market_trades`).
		WithArgs("HIVE/HBD", t0, t0.Add(time.Hour)).
		WillReturnRows(rows)

	got, err := repo.FetchMarketTrades(ctx, "HIVE/HBD", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sell", got[1].Side)
	assert.Equal(t, 0.26, got[1].Price)
	assert.NoError(t, mock.ExpectationsWereMet())

	buys, sells := SplitLegs(got)
	require.Len(t, buys, 1)
	require.Len(t, sells, 1)
	assert.Equal(t, 10.0, buys[0].Volume)
}

func TestRepository_FetchMarketTrades_QueryError(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery(".*").WillReturnError(assert.AnError)

	_, err := repo.FetchMarketTrades(context.Background(), "HIVE/HBD", time.Time{}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query market trades")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FetchOrdersForReport(t *testing.T) {
	mock, repo := newMockRepo(t)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"time", "pair", "side", "price", "amount", "trx_id", "status"}).
		AddRow(t0, "HIVE/HBD", "buy", 0.25, 40.0, "abc", dbwriter.OrderStatusConfirmed).
		AddRow(t0.Add(time.Minute), "HIVE/HBD", "sell", 0.27, 40.0, "", dbwriter.OrderStatusFailed)
	// dry-run and replayed orders must never reach the live report
	mock.ExpectQuery(`FROM bot_orders\s+WHERE pair = \$1 AND time >= \$2 AND time < \$3 AND NOT dry_run`).
		WithArgs("HIVE/HBD", t0, t0.Add(time.Hour)).
		WillReturnRows(rows)

	trades, err := repo.FetchOrdersForReport(context.Background(), "HIVE/HBD", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.False(t, trades[0].Failed)
	assert.True(t, trades[1].Failed)
	assert.True(t, decimal.NewFromFloat(0.25).Equal(trades[0].Price))
	assert.Equal(t, "abc", trades[0].TrxID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FetchLastOrderPrices(t *testing.T) {
	mock, repo := newMockRepo(t)
	rows := pgxmock.NewRows([]string{"side", "price"}).
		AddRow("buy", 0.24).
		AddRow("sell", 0.27)
	mock.ExpectQuery(`FROM v_last_order_prices WHERE pair = \$1`).
		WithArgs("HIVE/HBD").
		WillReturnRows(rows)

	lp, err := repo.FetchLastOrderPrices(context.Background(), "HIVE/HBD")
	require.NoError(t, err)
	assert.Equal(t, LastPrices{Buy: 0.24, Sell: 0.27}, lp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FetchLastOrderPrices_RowsErr(t *testing.T) {
	mock, repo := newMockRepo(t)
	rows := pgxmock.NewRows([]string{"side", "price"}).
		AddRow("buy", 0.24).
		RowError(0, errors.New("conn reset"))
	mock.ExpectQuery(`v_last_order_prices`).WithArgs("HIVE/HBD").WillReturnRows(rows)

	_, err := repo.FetchLastOrderPrices(context.Background(), "HIVE/HBD")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FetchLatestPerformanceMetrics(t *testing.T) {
	ctx := context.Background()
	mock, repo := newMockRepo(t)

	t.Run("success", func(t *testing.T) {
		expected := &PerformanceMetrics{
			SharpeRatio:  1.5,
			ProfitFactor: 2.3,
			MaxDrawdown:  decimal.NewFromFloat(-100.5),
			TotalPnL:     decimal.NewFromInt(12),
		}
		rows := pgxmock.NewRows([]string{"sharpe_ratio", "profit_factor", "max_drawdown", "total_pnl"}).
			AddRow(expected.SharpeRatio, expected.ProfitFactor, expected.MaxDrawdown, expected.TotalPnL)
		mock.ExpectQuery(`FROM pnl_reports\s+ORDER BY time DESC\s+LIMIT 1`).WillReturnRows(rows)

		m, err := repo.FetchLatestPerformanceMetrics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1.5, m.SharpeRatio)
		assert.Equal(t, 2.3, m.ProfitFactor)
		assert.True(t, expected.MaxDrawdown.Equal(m.MaxDrawdown))
		assert.True(t, expected.TotalPnL.Equal(m.TotalPnL))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows", func(t *testing.T) {
		mock.ExpectQuery(`FROM pnl_reports`).WillReturnError(pgx.ErrNoRows)

		m, err := repo.FetchLatestPerformanceMetrics(ctx)
		require.NoError(t, err)
		assert.Equal(t, &PerformanceMetrics{}, m)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(".*").WillReturnError(assert.AnError)

		_, err := repo.FetchLatestPerformanceMetrics(ctx)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_DeleteOldPnlReports(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectExec(`DELETE FROM pnl_reports WHERE time < \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := repo.DeleteOldPnlReports(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInMemRepository(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	lp, err := repo.FetchLastOrderPrices(ctx, "HIVE/HBD")
	require.NoError(t, err)
	assert.Zero(t, lp)

	repo.SeedLastPrices("HIVE/HBD", LastPrices{Buy: 0.2, Sell: 0.3})
	lp, _ = repo.FetchLastOrderPrices(ctx, "HIVE/HBD")
	assert.Equal(t, 0.3, lp.Sell)

	m, _ := repo.FetchLatestPerformanceMetrics(ctx)
	assert.Equal(t, &PerformanceMetrics{}, m)
	repo.SeedPerformanceMetrics(&PerformanceMetrics{SharpeRatio: 1.1})
	m, _ = repo.FetchLatestPerformanceMetrics(ctx)
	assert.Equal(t, 1.1, m.SharpeRatio)
}

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestLoadMarketTradesFromCSV(t *testing.T) {
	path := writeCSV(t,
		"time,pair,side,price,volume",
		"2025-01-01T00:00:00Z,HIVE/HBD,buy,0.25,10",
		"2025-07-14 04:11:13.484971+00,HIVE/HBD,sell,0.26,4.5",
		"not-a-time,HIVE/HBD,buy,0.25,10",
		"2025-01-01T00:02:00Z,HIVE/HBD,buy,abc,10",
	)
	trades, err := LoadMarketTradesFromCSV(path)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), trades[0].Time)
	assert.Equal(t, "sell", trades[1].Side)
	assert.Equal(t, 4.5, trades[1].Volume)
}

func TestLoadMarketTradesFromCSV_EmptyAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	trades, err := LoadMarketTradesFromCSV(path)
	require.NoError(t, err)
	assert.Empty(t, trades)

	_, err = LoadMarketTradesFromCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestStreamMarketTradesFromCSV_Cancel(t *testing.T) {
	path := writeCSV(t,
		"time,pair,side,price,volume",
		"2025-01-01T00:00:00Z,HIVE/HBD,buy,0.25,10",
		"2025-01-01T00:01:00Z,HIVE/HBD,buy,0.25,10",
	)
	ctx, cancel := context.WithCancel(context.Background())
	events, errs := StreamMarketTradesFromCSV(ctx, path)
	<-events
	cancel()
	for range events {
	}
	assert.NoError(t, <-errs)
}
