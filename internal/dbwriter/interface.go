package dbwriter

import (
	"context"
)

// DBWriter persists market legs, the bot's own orders, PnL rows and portfolio
// valuations. Legs, orders and valuations may be buffered, so the Save calls
// must not block the trading loop; Close flushes whatever is pending.
type DBWriter interface {
	SaveMarketTrade(trade MarketTrade)
	SaveOrder(order Order)
	SavePnLSummary(ctx context.Context, pnl PnLSummary) error
	SaveBenchmarkValue(ctx context.Context, value BenchmarkValue)
	Close()
}

var (
	_ DBWriter = (*TimescaleWriter)(nil)
	_ DBWriter = (*InMemWriter)(nil)
	_ DBWriter = (*dummyWriter)(nil)
)
