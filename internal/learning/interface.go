package learning

import (
	"context"

	"github.com/AyusGup/Hive-Automation/internal/market"
)

// TradeStreamは約定のストリームを扱うインターフェースです。
type TradeStream interface {
	// Publishは約定をストリームに発行します。
	Publish(ctx context.Context, trade market.Trade) error
	// Subscribeはストリームから約定を受け取るためのチャネルを返します。
	Subscribe(ctx context.Context) (<-chan market.Trade, error)
}
