// Package position tracks the simulated HIVE position of the replay engine.
package position

import (
	"fmt"
	"sync"
)

// Position holds the HIVE held and its average entry price in HBD per HIVE.
// Size is negative after selling HIVE that was not bought in this session.
type Position struct {
	Size          float64
	AvgEntryPrice float64
	mutex         sync.RWMutex
}

// NewPosition creates a new Position instance.
func NewPosition() *Position {
	return &Position{}
}

// Update applies a fill (positive size buys HIVE, negative sells) and returns the realized PnL in HBD.
func (p *Position) Update(tradeSize float64, tradePrice float64) (realizedPnL float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.Size == 0 {
		p.Size = tradeSize
		p.AvgEntryPrice = tradePrice
		return 0
	}

	// same direction adds to the position
	if (p.Size > 0) == (tradeSize > 0) {
		newSize := p.Size + tradeSize
		p.AvgEntryPrice = (p.Size*p.AvgEntryPrice + tradeSize*tradePrice) / newSize
		p.Size = newSize
		return 0
	}

	closedSize := min(abs(tradeSize), abs(p.Size))
	realizedPnL = (tradePrice - p.AvgEntryPrice) * closedSize
	if p.Size < 0 {
		realizedPnL = -realizedPnL
	}

	newSize := p.Size + tradeSize
	switch {
	case newSize == 0:
		p.AvgEntryPrice = 0
	case (newSize > 0) != (p.Size > 0):
		// flipped through zero, the remainder opens at the trade price
		p.AvgEntryPrice = tradePrice
	}
	p.Size = newSize
	return realizedPnL
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Get returns the current size and average entry price of the position.
func (p *Position) Get() (float64, float64) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.Size, p.AvgEntryPrice
}

// String returns a string representation of the position.
func (p *Position) String() string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return fmt.Sprintf("Position{Size: %.3f HIVE, AvgEntryPrice: %.6f HBD}", p.Size, p.AvgEntryPrice)
}
