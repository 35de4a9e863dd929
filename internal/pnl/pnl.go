// Package pnl accumulates realized and unrealized PnL in HBD.
package pnl

import (
	"sync"
	"time"

	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
)

// Calculator handles PnL calculations.
type Calculator struct {
	RealizedPnL float64
	mutex       sync.RWMutex
}

// NewCalculator creates a new PnL Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// UpdateRealizedPnL adds pnl to the running realized total.
func (c *Calculator) UpdateRealizedPnL(pnl float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.RealizedPnL += pnl
}

// CalculateUnrealizedPnL marks a position to currentPrice.
func (c *Calculator) CalculateUnrealizedPnL(positionSize float64, avgEntryPrice float64, currentPrice float64) float64 {
	if positionSize == 0 {
		return 0
	}
	return (currentPrice - avgEntryPrice) * positionSize
}

// GetRealizedPnL returns the current realized PnL.
func (c *Calculator) GetRealizedPnL() float64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.RealizedPnL
}

// Summary builds a PnL row for the given position marked at price.
func (c *Calculator) Summary(at time.Time, strategyID, pair string, size, avgEntry, price float64) dbwriter.PnLSummary {
	realized := c.GetRealizedPnL()
	unrealized := c.CalculateUnrealizedPnL(size, avgEntry, price)
	return dbwriter.PnLSummary{
		Time:          at,
		StrategyID:    strategyID,
		Pair:          pair,
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      realized + unrealized,
		PositionSize:  size,
		AvgEntryPrice: avgEntry,
	}
}
