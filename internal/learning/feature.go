package learning

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/AyusGup/Hive-Automation/internal/market"
)

// DefaultRollingWindow is the window of the rolling mean and std features.
const DefaultRollingWindow = 5

// ErrInsufficientData is returned when too few trades remain to build or split features.
var ErrInsufficientData = errors.New("insufficient data")

// Featureは1約定分の特徴量と目的変数（価格）です。
type Feature struct {
	Timestamp   time.Time
	PriceChange float64
	RollingAvg  float64
	RollingStd  float64
	Price       float64
}

// Vector returns the regressors in model order.
func (f Feature) Vector() []float64 {
	return []float64{f.PriceChange, f.RollingAvg, f.RollingStd}
}

// PrepareFeatures sorts trades by time and derives the percentage change, the
// rolling mean and the rolling sample std of price. Rows where any of them is
// undefined are dropped.
func PrepareFeatures(trades []market.Trade, window int) ([]Feature, error) {
	if window <= 1 {
		window = DefaultRollingWindow
	}
	sorted := make([]market.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if len(sorted) < window {
		return nil, fmt.Errorf("%w: need at least %d trades, got %d", ErrInsufficientData, window, len(sorted))
	}

	prices := market.Prices(sorted)
	sma := talib.Sma(prices, window)

	features := make([]Feature, 0, len(prices)-window+1)
	for i := window - 1; i < len(prices); i++ {
		if i == 0 || prices[i-1] == 0 {
			continue
		}
		features = append(features, Feature{
			Timestamp:   sorted[i].Timestamp,
			PriceChange: (prices[i] - prices[i-1]) / prices[i-1],
			RollingAvg:  sma[i],
			RollingStd:  stat.StdDev(prices[i-window+1:i+1], nil),
			Price:       prices[i],
		})
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no complete feature rows", ErrInsufficientData)
	}
	return features, nil
}
