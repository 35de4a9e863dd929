package dbwriter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

var (
	marketTradeColumns = []string{"time", "pair", "side", "price", "volume"}
	orderColumns       = []string{"time", "pair", "side", "price", "amount", "trx_id", "status", "dry_run"}
	benchmarkColumns   = []string{"time", "hbd", "hive", "price", "value"}
)

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Close()
}

// TimescaleWriter はTimescaleDBへのデータ書き込みを担当します。
type TimescaleWriter struct {
	pool            Pool
	logger          *zap.Logger
	config          config.DBWriterConfig
	marketBuffer    []MarketTrade
	orderBuffer     []Order
	benchmarkBuffer []BenchmarkValue
	bufferMutex     sync.Mutex
	flushTicker     *time.Ticker
	shutdownChan    chan struct{}
	closeOnce       sync.Once
}

// NewTimescaleWriter は新しいTimescaleWriterインスタンスを作成します。
// pool が nil の場合は何も書き込まない writer を返します。
func NewTimescaleWriter(pool Pool, writerConfig config.DBWriterConfig, zl *zap.Logger) DBWriter {
	if pool == nil {
		return NewDummyWriter(logger.FromZap(zl))
	}

	if writerConfig.WriteIntervalSeconds <= 0 {
		zl.Warn("WriteIntervalSeconds is zero or negative, defaulting to 1s.", zap.Int("originalValue", writerConfig.WriteIntervalSeconds))
		writerConfig.WriteIntervalSeconds = 1
	}
	if writerConfig.BatchSize <= 0 {
		zl.Warn("BatchSize is zero or negative, defaulting to 100.", zap.Int("originalValue", writerConfig.BatchSize))
		writerConfig.BatchSize = 100
	}

	writer := &TimescaleWriter{
		pool:            pool,
		logger:          zl,
		config:          writerConfig,
		marketBuffer:    make([]MarketTrade, 0, writerConfig.BatchSize),
		orderBuffer:     make([]Order, 0, writerConfig.BatchSize),
		benchmarkBuffer: make([]BenchmarkValue, 0, writerConfig.BatchSize),
		flushTicker:     time.NewTicker(time.Duration(writerConfig.WriteIntervalSeconds) * time.Second),
		shutdownChan:    make(chan struct{}),
	}
	go writer.run()
	zl.Info("Started TimescaleDB batch writer", zap.Int("batchSize", writerConfig.BatchSize))
	return writer
}

// Close はバッファをフラッシュし、接続プールをクローズします。
func (w *TimescaleWriter) Close() {
	w.closeOnce.Do(func() {
		w.logger.Info("Closing TimescaleDB writer...")
		close(w.shutdownChan)
		w.flushTicker.Stop()
		w.flushBuffers()
		w.pool.Close()
		w.logger.Info("TimescaleDB connection pool closed")
	})
}

func (w *TimescaleWriter) run() {
	for {
		select {
		case <-w.flushTicker.C:
			w.flushBuffers()
		case <-w.shutdownChan:
			return
		}
	}
}

// SaveMarketTrade は約定レッグをバッファに追加します。
func (w *TimescaleWriter) SaveMarketTrade(trade MarketTrade) {
	w.bufferMutex.Lock()
	w.marketBuffer = append(w.marketBuffer, trade)
	shouldFlush := len(w.marketBuffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		w.flushBuffers()
	}
}

// SaveOrder は注文をバッファに追加します。
func (w *TimescaleWriter) SaveOrder(order Order) {
	w.bufferMutex.Lock()
	w.orderBuffer = append(w.orderBuffer, order)
	shouldFlush := len(w.orderBuffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		w.flushBuffers()
	}
}

// SaveBenchmarkValue はポートフォリオ評価額をバッファに追加します。
func (w *TimescaleWriter) SaveBenchmarkValue(ctx context.Context, value BenchmarkValue) {
	w.bufferMutex.Lock()
	w.benchmarkBuffer = append(w.benchmarkBuffer, value)
	shouldFlush := len(w.benchmarkBuffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		w.flushBuffers()
	}
}

func (w *TimescaleWriter) flushBuffers() {
	w.bufferMutex.Lock()
	defer w.bufferMutex.Unlock()
	ctx := context.Background()

	if len(w.marketBuffer) > 0 {
		w.copyRows(ctx, "market_trades", marketTradeColumns, toMarketTradeRows(w.marketBuffer))
		w.marketBuffer = w.marketBuffer[:0]
	}
	if len(w.orderBuffer) > 0 {
		w.copyRows(ctx, "bot_orders", orderColumns, toOrderRows(w.orderBuffer))
		w.orderBuffer = w.orderBuffer[:0]
	}
	if len(w.benchmarkBuffer) > 0 {
		w.copyRows(ctx, "portfolio_values", benchmarkColumns, toBenchmarkRows(w.benchmarkBuffer))
		w.benchmarkBuffer = w.benchmarkBuffer[:0]
	}
}

func (w *TimescaleWriter) copyRows(ctx context.Context, table string, columns []string, rows [][]interface{}) {
	w.logger.Debug("Flushing rows", zap.String("table", table), zap.Int("count", len(rows)))
	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		w.logger.Error("Failed to batch insert", zap.String("table", table), zap.Error(err))
	}
}

func toMarketTradeRows(trades []MarketTrade) [][]interface{} {
	rows := make([][]interface{}, len(trades))
	for i, t := range trades {
		rows[i] = []interface{}{t.Time, t.Pair, t.Side, t.Price, t.Volume}
	}
	return rows
}

func toOrderRows(orders []Order) [][]interface{} {
	rows := make([][]interface{}, len(orders))
	for i, o := range orders {
		rows[i] = []interface{}{o.Time, o.Pair, o.Side, o.Price, o.Amount, o.TrxID, o.Status, o.DryRun}
	}
	return rows
}

func toBenchmarkRows(values []BenchmarkValue) [][]interface{} {
	rows := make([][]interface{}, len(values))
	for i, v := range values {
		rows[i] = []interface{}{v.Time, v.HBD, v.HIVE, v.Price, v.Value}
	}
	return rows
}

// SavePnLSummary は単一のPnLサマリーをデータベースに保存します。
func (w *TimescaleWriter) SavePnLSummary(ctx context.Context, pnl PnLSummary) error {
	query := `INSERT INTO pnl_summary (time, strategy_id, pair, realized_pnl, unrealized_pnl, total_pnl, position_size, avg_entry_price)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := w.pool.Exec(ctx, query,
		pnl.Time, pnl.StrategyID, pnl.Pair,
		pnl.RealizedPnL, pnl.UnrealizedPnL, pnl.TotalPnL,
		pnl.PositionSize, pnl.AvgEntryPrice,
	)
	if err != nil {
		w.logger.Error("Failed to insert PnL summary", zap.Error(err), zap.Any("pnl", pnl))
		return fmt.Errorf("failed to insert PnL summary: %w", err)
	}
	return nil
}
