// Package predictor blends recent and average trade prices into next buy/sell targets.
package predictor

import (
	"github.com/AyusGup/Hive-Automation/internal/market"
)

// Config holds the blend parameters.
type Config struct {
	Interval      int     // number of trailing prices averaged
	AverageWeight float64 // weight of the trailing average
	RecentWeight  float64 // weight of the most recent price
	BuyDiscount   float64 // applied to the last sell price when a buy would cross it
	SellPremium   float64 // applied to the last buy price when a sell would cross it
}

// DefaultConfig returns the standard 0.7/0.3 blend over two prices.
func DefaultConfig() Config {
	return Config{
		Interval:      2,
		AverageWeight: 0.7,
		RecentWeight:  0.3,
		BuyDiscount:   0.98,
		SellPremium:   1.02,
	}
}

// Prediction holds the target prices in HBD per HIVE. Zero means no prediction.
type Prediction struct {
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

// PredictNextPrices predicts the next buy and sell prices. lastBuy and lastSell
// are the prices of the bot's own last fills, zero when unknown.
func PredictNextPrices(buys, sells []market.Trade, lastBuy, lastSell float64, cfg Config) Prediction {
	if cfg.Interval <= 0 {
		cfg.Interval = 1
	}
	buy := blend(market.Prices(buys), cfg)
	sell := blend(market.Prices(sells), cfg)

	if lastSell != 0 && buy >= lastSell {
		buy = lastSell * cfg.BuyDiscount
	}
	if lastBuy != 0 && sell <= lastBuy {
		sell = lastBuy * cfg.SellPremium
	}
	return Prediction{Buy: buy, Sell: sell}
}

func blend(prices []float64, cfg Config) float64 {
	avg := trailingAverage(prices, cfg.Interval)
	recent := 0.0
	if len(prices) > 0 {
		recent = prices[len(prices)-1]
	}
	if avg == 0 || recent == 0 {
		return 0
	}
	return cfg.AverageWeight*avg + cfg.RecentWeight*recent
}

// trailingAverage is the mean of the last n prices, or 0 with fewer than n.
func trailingAverage(prices []float64, n int) float64 {
	if len(prices) < n {
		return 0
	}
	sum := 0.0
	for _, p := range prices[len(prices)-n:] {
		sum += p
	}
	return sum / float64(n)
}
