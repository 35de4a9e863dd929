package dbwriter

import (
	"time"
)

// MarketTrade は市場の約定レッグ（買い/売り）です。
type MarketTrade struct {
	Time   time.Time `db:"time"`
	Pair   string    `db:"pair"`
	Side   string    `db:"side"` // "buy" or "sell"
	Price  float64   `db:"price"`
	Volume float64   `db:"volume"`
}

// Order はボット自身が出した注文です。
type Order struct {
	Time   time.Time `db:"time"`
	Pair   string    `db:"pair"`
	Side   string    `db:"side"`
	Price  float64   `db:"price"`
	Amount float64   `db:"amount"`
	TrxID  string    `db:"trx_id"`
	Status string    `db:"status"`
	DryRun bool      `db:"dry_run"`
}

// Order statuses.
const (
	OrderStatusBroadcast = "broadcast"
	OrderStatusConfirmed = "confirmed"
	OrderStatusFailed    = "failed"
	OrderStatusSimulated = "simulated"
)

// PnLSummary はデータベースに保存するPnL情報の構造体です。
type PnLSummary struct {
	Time          time.Time `db:"time"`
	StrategyID    string    `db:"strategy_id"`
	Pair          string    `db:"pair"`
	RealizedPnL   float64   `db:"realized_pnl"`
	UnrealizedPnL float64   `db:"unrealized_pnl"`
	TotalPnL      float64   `db:"total_pnl"`
	PositionSize  float64   `db:"position_size"`
	AvgEntryPrice float64   `db:"avg_entry_price"`
}

// BenchmarkValue is a portfolio valuation in HBD.
type BenchmarkValue struct {
	Time  time.Time `db:"time"`
	HBD   float64   `db:"hbd"`
	HIVE  float64   `db:"hive"`
	Price float64   `db:"price"`
	Value float64   `db:"value"`
}
