package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyusGup/Hive-Automation/internal/backtest"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/internal/report"
)

func legs(base time.Time, prices ...float64) []market.Trade {
	out := make([]market.Trade, len(prices))
	for i, p := range prices {
		out[i] = market.Trade{Timestamp: base.Add(time.Duration(i) * time.Minute), Price: p, Volume: 1}
	}
	return out
}

func simulate(t *testing.T) *backtest.Result {
	t.Helper()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	buys := legs(base, 0.30, 0.30)
	sells := legs(base, 0.32, 0.35)
	res, err := backtest.SimulateTrades(buys, sells, 6)
	require.NoError(t, err)
	require.Len(t, res.Fills, 2)
	return res
}

func TestReplayStoresFillsAtHistoricalTimes(t *testing.T) {
	res := simulate(t)
	w := dbwriter.NewInMemWriter()

	require.NoError(t, replay(context.Background(), w, "HIVE/HBD", res))

	orders := w.OrdersSnapshot()
	require.Len(t, orders, 2)
	for i, o := range orders {
		assert.True(t, o.Time.Equal(res.Fills[i].Time))
		assert.Equal(t, res.Fills[i].Side, o.Side)
		assert.Equal(t, dbwriter.OrderStatusSimulated, o.Status)
	}
}

func TestPrintResult(t *testing.T) {
	res := simulate(t)
	rep, err := report.NewService(nil).AnalyzeTrades(res.ReportTrades("HIVE/HBD"))
	require.NoError(t, err)

	var buf bytes.Buffer
	printResult(&buf, res, rep, true)
	out := buf.String()
	assert.Contains(t, out, "Trade Log:")
	assert.Contains(t, out, "Bought 20.0000 HIVE")
	assert.Contains(t, out, "Initial Portfolio Value: 6.0000 HBD")
	assert.Contains(t, out, "Round trips: 1")

	buf.Reset()
	printResult(&buf, res, report.Report{}, false)
	assert.Contains(t, buf.String(), "No fills to analyze.")
}
