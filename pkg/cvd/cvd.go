// Package cvd tracks the cumulative volume delta of market legs: volume
// bought minus volume sold over a rolling time window.
package cvd

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Trade is one leg of a fill.
type Trade struct {
	Timestamp time.Time
	Side      string // "buy" or "sell"
	Price     float64
	Size      float64
}

// Fills have no id of their own, so a leg is identified by its contents.
func (t Trade) key() string {
	return strconv.FormatInt(t.Timestamp.UnixNano(), 10) + "|" + strings.ToLower(t.Side) + "|" +
		strconv.FormatFloat(t.Price, 'g', -1, 64) + "|" + strconv.FormatFloat(t.Size, 'g', -1, 64)
}

// Calculator calculates Cumulative Volume Delta over a rolling window.
type Calculator struct {
	window  time.Duration
	trades  []Trade
	seen    map[string]struct{}
	current float64
}

// NewCalculator creates a new Calculator.
func NewCalculator(window time.Duration) *Calculator {
	return &Calculator{
		window: window,
		seen:   make(map[string]struct{}),
	}
}

// Update adds new trades, drops the ones older than now-window and returns
// the recalculated CVD. Trades already seen are ignored, so overlapping
// batches can be passed as they come.
func (c *Calculator) Update(newTrades []Trade, now time.Time) float64 {
	added := false
	for _, tr := range newTrades {
		k := tr.key()
		if _, ok := c.seen[k]; ok {
			continue
		}
		c.seen[k] = struct{}{}
		c.trades = append(c.trades, tr)
		added = true
	}
	if added {
		sort.SliceStable(c.trades, func(i, j int) bool {
			return c.trades[i].Timestamp.Before(c.trades[j].Timestamp)
		})
	}

	first := 0
	for first < len(c.trades) && now.Sub(c.trades[first].Timestamp) > c.window {
		delete(c.seen, c.trades[first].key())
		first++
	}
	c.trades = c.trades[first:]

	c.current = 0
	for _, tr := range c.trades {
		switch strings.ToLower(tr.Side) {
		case "buy":
			c.current += tr.Size
		case "sell":
			c.current -= tr.Size
		}
	}
	return c.current
}

// Value returns the current CVD.
func (c *Calculator) Value() float64 {
	return c.current
}

// Len returns the number of trades inside the window.
func (c *Calculator) Len() int {
	return len(c.trades)
}
