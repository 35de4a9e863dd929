// Package publisher streams market legs, own orders and portfolio values to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
)

const writeTimeout = 5 * time.Second

// Publisher is the event sink used by the trader.
type Publisher interface {
	PublishTrades(ctx context.Context, trades []dbwriter.MarketTrade) error
	PublishOrder(ctx context.Context, order dbwriter.Order) error
	PublishValuation(ctx context.Context, value dbwriter.BenchmarkValue) error
	Close() error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TradeEvent is the JSON body of a market leg message.
type TradeEvent struct {
	Time   time.Time `json:"time"`
	Pair   string    `json:"pair"`
	Side   string    `json:"side"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

// OrderEvent is the JSON body of an own order message.
type OrderEvent struct {
	Time   time.Time `json:"time"`
	Pair   string    `json:"pair"`
	Side   string    `json:"side"`
	Price  float64   `json:"price"`
	Amount float64   `json:"amount"`
	TrxID  string    `json:"trx_id"`
	Status string    `json:"status"`
	DryRun bool      `json:"dry_run"`
}

// ValuationEvent is the JSON body of a portfolio value message.
type ValuationEvent struct {
	Time  time.Time `json:"time"`
	HBD   float64   `json:"hbd"`
	HIVE  float64   `json:"hive"`
	Price float64   `json:"price"`
	Value float64   `json:"value"`
}

// KafkaPublisher writes one topic per event kind.
type KafkaPublisher struct {
	trades    MessageWriter
	orders    MessageWriter
	portfolio MessageWriter
	logger    *zap.Logger
}

// New returns a Kafka publisher, or a no-op one when no brokers are configured.
func New(cfg config.KafkaConfig, logger *zap.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return NoopPublisher{}
	}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			Compression:  kafka.Zstd,
		}
	}
	return NewKafkaPublisher(
		newWriter(cfg.TradeTopic),
		newWriter(cfg.OrderTopic),
		newWriter(cfg.PortfolioTopic),
		logger,
	)
}

// NewKafkaPublisher builds a publisher over the given writers.
func NewKafkaPublisher(trades, orders, portfolio MessageWriter, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{trades: trades, orders: orders, portfolio: portfolio, logger: logger}
}

// PublishTrades sends every leg as one message keyed by pair.
func (p *KafkaPublisher) PublishTrades(ctx context.Context, trades []dbwriter.MarketTrade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		msg, err := newMessage(t.Pair, TradeEvent(t))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.write(ctx, p.trades, msgs...)
}

// PublishOrder sends one own order.
func (p *KafkaPublisher) PublishOrder(ctx context.Context, order dbwriter.Order) error {
	msg, err := newMessage(order.Pair, OrderEvent(order))
	if err != nil {
		return err
	}
	return p.write(ctx, p.orders, msg)
}

// PublishValuation sends one portfolio value.
func (p *KafkaPublisher) PublishValuation(ctx context.Context, value dbwriter.BenchmarkValue) error {
	msg, err := newMessage("portfolio", ValuationEvent(value))
	if err != nil {
		return err
	}
	return p.write(ctx, p.portfolio, msg)
}

func (p *KafkaPublisher) write(ctx context.Context, w MessageWriter, msgs ...kafka.Message) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := w.WriteMessages(writeCtx, msgs...); err != nil {
		// shutdown in progress
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	p.logger.Debug("published", zap.Int("messages", len(msgs)))
	return nil
}

// Close closes all writers and returns the first error.
func (p *KafkaPublisher) Close() error {
	var first error
	for _, w := range []MessageWriter{p.trades, p.orders, p.portfolio} {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newMessage(key string, v interface{}) (kafka.Message, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event: %w", err)
	}
	return kafka.Message{Key: []byte(key), Value: body}, nil
}

// NoopPublisher drops everything.
type NoopPublisher struct{}

func (NoopPublisher) PublishTrades(context.Context, []dbwriter.MarketTrade) error     { return nil }
func (NoopPublisher) PublishOrder(context.Context, dbwriter.Order) error              { return nil }
func (NoopPublisher) PublishValuation(context.Context, dbwriter.BenchmarkValue) error { return nil }
func (NoopPublisher) Close() error                                                    { return nil }
