// Package market turns raw internal market fills into buy and sell price series.
package market

import (
	"time"

	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
)

// Side of a classified leg.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade is one leg of a market fill, priced in HBD per HIVE.
type Trade struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"` // HIVE
}

// Classify splits a raw fill into a buy or sell leg. ok is false for fills
// that involve neither HIVE nor HBD as current_pays, or where either side pays
// nothing and the leg cannot be priced.
func Classify(mt hive.MarketTrade) (side string, trade Trade, ok bool) {
	current := mt.CurrentPays.Amount
	open := mt.OpenPays.Amount
	if !current.IsPositive() || !open.IsPositive() {
		return "", Trade{}, false
	}

	switch mt.CurrentPays.NAI {
	case hive.NAIHive:
		// HIVE sold for HBD
		price, _ := open.Div(current).Float64()
		volume, _ := current.Float64()
		return SideBuy, Trade{Timestamp: mt.Date.Time, Price: price, Volume: volume}, true
	case hive.NAIHBD:
		// HBD sold for HIVE
		price, _ := current.Div(open).Float64()
		volume, _ := open.Float64()
		return SideSell, Trade{Timestamp: mt.Date.Time, Price: price, Volume: volume}, true
	default:
		return "", Trade{}, false
	}
}

// Split classifies every fill.
func Split(raw []hive.MarketTrade) (buys, sells []Trade) {
	for _, mt := range raw {
		side, trade, ok := Classify(mt)
		if !ok {
			continue
		}
		if side == SideBuy {
			buys = append(buys, trade)
		} else {
			sells = append(sells, trade)
		}
	}
	return buys, sells
}

// Prices extracts the price column.
func Prices(trades []Trade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.Price
	}
	return out
}
