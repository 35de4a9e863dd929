package dbwriter

import (
	"context"
	"sync"
)

// InMemWriter is an in-memory implementation of the DBWriter interface for testing.
type InMemWriter struct {
	mu              sync.RWMutex
	MarketTrades    []MarketTrade
	Orders          []Order
	PnlSummaries    []PnLSummary
	BenchmarkValues []BenchmarkValue
	IsClosed        bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{}
}

// SaveMarketTrade appends a market leg to the in-memory slice.
func (w *InMemWriter) SaveMarketTrade(trade MarketTrade) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.MarketTrades = append(w.MarketTrades, trade)
}

// SaveOrder appends an order to the in-memory slice.
func (w *InMemWriter) SaveOrder(order Order) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Orders = append(w.Orders, order)
}

// SavePnLSummary appends a PnL summary to the in-memory slice.
func (w *InMemWriter) SavePnLSummary(ctx context.Context, pnl PnLSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.PnlSummaries = append(w.PnlSummaries, pnl)
	return nil
}

// SaveBenchmarkValue appends a benchmark value to the in-memory slice.
func (w *InMemWriter) SaveBenchmarkValue(ctx context.Context, value BenchmarkValue) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.BenchmarkValues = append(w.BenchmarkValues, value)
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
}

// OrdersSnapshot returns a copy of the saved orders.
func (w *InMemWriter) OrdersSnapshot() []Order {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Order(nil), w.Orders...)
}

// Clear resets all the in-memory slices.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.MarketTrades = nil
	w.Orders = nil
	w.PnlSummaries = nil
	w.BenchmarkValues = nil
	w.IsClosed = false
}
