package learning

import (
	"context"
	"sync"

	"github.com/AyusGup/Hive-Automation/internal/market"
)

// InMemoryTradeStream はインメモリで約定ストリームを実現します。
// goroutine-safeです。
type InMemoryTradeStream struct {
	mu      sync.RWMutex
	subs    map[chan market.Trade]struct{}
	bufSize int
}

// NewInMemoryTradeStream は新しいInMemoryTradeStreamを生成します。
func NewInMemoryTradeStream(bufferSize int) *InMemoryTradeStream {
	return &InMemoryTradeStream{
		subs:    make(map[chan market.Trade]struct{}),
		bufSize: bufferSize,
	}
}

// Publishは約定を登録されている全てのsubscriberに送信します。
func (s *InMemoryTradeStream) Publish(ctx context.Context, trade market.Trade) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for sub := range s.subs {
		select {
		case sub <- trade:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// subscriberが詰まっている場合はブロックしない
		}
	}
	return nil
}

// Subscribeはストリームから約定を受け取るためのチャネルを返します。
// contextがキャンセルされるとチャネルは閉じられます。
func (s *InMemoryTradeStream) Subscribe(ctx context.Context) (<-chan market.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan market.Trade, s.bufSize)
	s.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		close(ch)
		delete(s.subs, ch)
	}()

	return ch, nil
}
