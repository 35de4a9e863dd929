package dbwriter

import (
	"context"

	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// dummyWriter is a no-op implementation of the DBWriter interface.
// It is used when the database connection is not available.
type dummyWriter struct {
	logger logger.Logger
}

// NewDummyWriter creates a new dummy writer.
func NewDummyWriter(l logger.Logger) DBWriter {
	l.Info("Creating dummy DB writer because no database connection is available.")
	return &dummyWriter{logger: l}
}

func (d *dummyWriter) SaveMarketTrade(trade MarketTrade) {}

func (d *dummyWriter) SaveOrder(order Order) {
	d.logger.Debugf("Dummy writer: SaveOrder %+v", order)
}

func (d *dummyWriter) SavePnLSummary(ctx context.Context, pnl PnLSummary) error {
	d.logger.Debugf("Dummy writer: SavePnLSummary %+v", pnl)
	return nil
}

func (d *dummyWriter) SaveBenchmarkValue(ctx context.Context, value BenchmarkValue) {}

func (d *dummyWriter) Close() {
	d.logger.Debug("Dummy writer: Close called")
}
