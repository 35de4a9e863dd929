// Package backtest replays buy/sell leg pairs through a greedy buy-low/sell-high rule.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/internal/report"
)

// DefaultInitialHBD is the starting balance of a simulation.
const DefaultInitialHBD = 6.0

// ErrNoTrades is returned when there is no aligned buy/sell pair to replay.
var ErrNoTrades = errors.New("no trades to simulate")

// Fill is one simulated execution.
type Fill struct {
	Time   time.Time
	Side   string
	Amount float64 // HIVE
	Price  float64 // HBD per HIVE
}

// Result summarises a simulation. Values are in HBD.
type Result struct {
	TradeLog       []string
	Fills          []Fill
	InitialValue   float64
	FinalValue     float64
	ProfitOrLoss   float64
	PortfolioValue []float64
	FinalHBD       float64
	FinalHIVE      float64
}

// SimulateTrades pairs buys[i] with sells[i] up to the shorter series. With HBD
// on hand and buy < sell it spends all HBD on HIVE; otherwise with HIVE on hand
// and sell > buy it sells all HIVE. HIVE is valued at the sell price. Pairs
// with a non-positive price are not traded and keep the last valid valuation.
func SimulateTrades(buys, sells []market.Trade, initialHBD float64) (*Result, error) {
	n := min(len(buys), len(sells))
	if n == 0 {
		return nil, ErrNoTrades
	}

	hbd, hiveBal := initialHBD, 0.0
	res := &Result{
		InitialValue:   initialHBD,
		PortfolioValue: make([]float64, 0, n),
	}

	var mark float64
	for i := 0; i < n; i++ {
		buyPrice := buys[i].Price
		sellPrice := sells[i].Price
		if buyPrice <= 0 || sellPrice <= 0 {
			res.PortfolioValue = append(res.PortfolioValue, hbd+hiveBal*mark)
			continue
		}
		mark = sellPrice
		at := buys[i].Timestamp
		if sells[i].Timestamp.After(at) {
			at = sells[i].Timestamp
		}

		switch {
		case hbd > 0 && buyPrice < sellPrice:
			purchased := hbd / buyPrice
			hbd = 0
			hiveBal += purchased
			res.Fills = append(res.Fills, Fill{Time: at, Side: market.SideBuy, Amount: purchased, Price: buyPrice})
			res.TradeLog = append(res.TradeLog, fmt.Sprintf("Bought %.4f HIVE at %.6f HBD per HIVE.", purchased, buyPrice))
		case hiveBal > 0 && sellPrice > buyPrice:
			earned := hiveBal * sellPrice
			res.Fills = append(res.Fills, Fill{Time: at, Side: market.SideSell, Amount: hiveBal, Price: sellPrice})
			res.TradeLog = append(res.TradeLog, fmt.Sprintf("Sold %.4f HIVE for %.4f HBD at %.6f HBD per HIVE.", hiveBal, earned, sellPrice))
			hiveBal = 0
			hbd += earned
		}

		res.PortfolioValue = append(res.PortfolioValue, hbd+hiveBal*mark)
	}

	res.FinalHBD, res.FinalHIVE = hbd, hiveBal
	res.FinalValue = hbd + hiveBal*mark
	res.ProfitOrLoss = res.FinalValue - res.InitialValue
	return res, nil
}

// ReportTrades converts the simulated fills for report.AnalyzeTrades.
func (r *Result) ReportTrades(pair string) []report.Trade {
	out := make([]report.Trade, 0, len(r.Fills))
	for i, f := range r.Fills {
		out = append(out, report.Trade{
			Time:   f.Time,
			Pair:   pair,
			Side:   f.Side,
			Price:  decimal.NewFromFloat(f.Price),
			Amount: decimal.NewFromFloat(f.Amount),
			TrxID:  fmt.Sprintf("sim-%d", i+1),
		})
	}
	return out
}
