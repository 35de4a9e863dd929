package predictor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/AyusGup/Hive-Automation/internal/market"
)

func legs(prices ...float64) []market.Trade {
	out := make([]market.Trade, len(prices))
	for i, p := range prices {
		out[i] = market.Trade{Price: p, Volume: 1}
	}
	return out
}

func TestPredictNextPrices(t *testing.T) {
	approx := cmpopts.EquateApprox(0, 1e-9)
	tests := []struct {
		name     string
		buys     []market.Trade
		sells    []market.Trade
		lastBuy  float64
		lastSell float64
		want     Prediction
	}{
		{
			name:  "blend of trailing average and recent",
			buys:  legs(0.20, 0.22, 0.24),
			sells: legs(0.30, 0.26),
			// buy: 0.7*0.23 + 0.3*0.24 = 0.233; sell: 0.7*0.28 + 0.3*0.26 = 0.274
			want: Prediction{Buy: 0.233, Sell: 0.274},
		},
		{
			name:  "fewer prices than the interval",
			buys:  legs(0.25),
			sells: nil,
			want:  Prediction{Buy: 0, Sell: 0},
		},
		{
			name:     "buy clamped below last sell",
			buys:     legs(0.30, 0.30),
			sells:    legs(0.31, 0.31),
			lastSell: 0.29,
			want:     Prediction{Buy: 0.29 * 0.98, Sell: 0.31},
		},
		{
			name:    "sell clamped above last buy",
			buys:    legs(0.20, 0.20),
			sells:   legs(0.21, 0.21),
			lastBuy: 0.25,
			want:    Prediction{Buy: 0.20, Sell: 0.25 * 1.02},
		},
		{
			name:     "clamps also apply to a zero prediction",
			lastBuy:  0.25,
			lastSell: 0.27,
			want:     Prediction{Buy: 0, Sell: 0.25 * 1.02},
		},
		{
			name:     "no clamp when prediction is on the right side",
			buys:     legs(0.20, 0.20),
			sells:    legs(0.30, 0.30),
			lastBuy:  0.25,
			lastSell: 0.27,
			want:     Prediction{Buy: 0.20, Sell: 0.30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PredictNextPrices(tt.buys, tt.sells, tt.lastBuy, tt.lastSell, DefaultConfig())
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("PredictNextPrices() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPredictNextPrices_CustomConfig(t *testing.T) {
	cfg := Config{Interval: 3, AverageWeight: 0.5, RecentWeight: 0.5, BuyDiscount: 0.9, SellPremium: 1.1}
	got := PredictNextPrices(legs(0.1, 0.2, 0.3), legs(0.3, 0.3), 0, 0, cfg)
	want := Prediction{Buy: 0.5*0.2 + 0.5*0.3, Sell: 0}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
