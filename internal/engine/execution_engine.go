package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AyusGup/Hive-Automation/internal/alert"
	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
	"github.com/AyusGup/Hive-Automation/internal/pnl"
	"github.com/AyusGup/Hive-Automation/internal/position"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// ErrNotConfirmed wraps a failed confirmation wait.
var ErrNotConfirmed = errors.New("transaction not confirmed")

// OrderResult describes an accepted order.
type OrderResult struct {
	Time      time.Time
	Side      string
	Amount    float64
	Price     float64
	TrxID     string
	BlockNum  uint32
	Confirmed bool
	Simulated bool
}

// ExecutionEngine defines the interface for order execution.
type ExecutionEngine interface {
	PlaceOrder(ctx context.Context, side string, amount, price float64) (*OrderResult, error)
}

// OrderSink receives every recorded order, e.g. the Kafka publisher.
type OrderSink interface {
	PublishOrder(ctx context.Context, order dbwriter.Order) error
}

// Confirmer waits for a transaction to land in a block. *hive.Client satisfies it.
type Confirmer interface {
	WaitForTransaction(ctx context.Context, trxID string, interval time.Duration) (*hive.TransactionStatus, error)
}

// LiveConfig holds what the live engine needs from the application config.
type LiveConfig struct {
	Account        string
	Pair           string
	DryRun         bool
	ConfirmOrders  bool
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
	Expiration     time.Duration
}

// LiveConfigFrom extracts a LiveConfig.
func LiveConfigFrom(cfg *config.Config) LiveConfig {
	return LiveConfig{
		Account:        cfg.AccountName,
		Pair:           cfg.Pair,
		DryRun:         cfg.Trading.DryRun.Bool(),
		ConfirmOrders:  cfg.Trading.ConfirmOrders.Bool(),
		ConfirmTimeout: cfg.Trading.ConfirmTimeout(),
		ConfirmPoll:    cfg.Trading.ConfirmPoll(),
		Expiration:     time.Duration(cfg.Trading.OrderExpirationHours) * time.Hour,
	}
}

// LiveOption configures a LiveExecutionEngine.
type LiveOption func(*LiveExecutionEngine)

// WithDBWriter records every order attempt.
func WithDBWriter(w dbwriter.DBWriter) LiveOption {
	return func(e *LiveExecutionEngine) { e.dbWriter = w }
}

// WithNotifier reports failed orders.
func WithNotifier(n alert.Notifier) LiveOption {
	return func(e *LiveExecutionEngine) { e.notifier = n }
}

// WithOrderSink publishes every recorded order.
func WithOrderSink(s OrderSink) LiveOption {
	return func(e *LiveExecutionEngine) { e.sink = s }
}

// WithConfirmer enables confirmation waits when ConfirmOrders is set.
func WithConfirmer(c Confirmer) LiveOption {
	return func(e *LiveExecutionEngine) { e.confirmer = c }
}

// LiveExecutionEngine places limit orders on the Hive internal market.
type LiveExecutionEngine struct {
	broadcaster hive.Broadcaster
	confirmer   Confirmer
	cfg         LiveConfig
	dbWriter    dbwriter.DBWriter
	notifier    alert.Notifier
	sink        OrderSink
	now         func() time.Time
	lastOrderID atomic.Uint32
}

// NewLiveExecutionEngine creates a new LiveExecutionEngine.
func NewLiveExecutionEngine(b hive.Broadcaster, cfg LiveConfig, opts ...LiveOption) *LiveExecutionEngine {
	e := &LiveExecutionEngine{
		broadcaster: b,
		cfg:         cfg,
		notifier:    alert.NewNoOpNotifier(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// nextOrderID returns the unix second of now, bumped past the last id handed
// out. The chain rejects a second open order with the same owner and orderid.
func (e *LiveExecutionEngine) nextOrderID(now time.Time) uint32 {
	for {
		last := e.lastOrderID.Load()
		id := uint32(now.Unix())
		if id <= last {
			id = last + 1
		}
		if e.lastOrderID.CompareAndSwap(last, id) {
			return id
		}
	}
}

// PlaceOrder builds, broadcasts and optionally confirms a limit order.
func (e *LiveExecutionEngine) PlaceOrder(ctx context.Context, side string, amount, price float64) (*OrderResult, error) {
	if e.broadcaster == nil {
		return nil, fmt.Errorf("LiveExecutionEngine: broadcaster is not initialized")
	}
	now := e.now().UTC()
	op, err := hive.NewLimitOrder(e.cfg.Account, side, amount, price, now, e.cfg.Expiration)
	if err != nil {
		return nil, err
	}
	op.OrderID = e.nextOrderID(now)

	logger.Infof("[Live] Placing %s order: %s HIVE at %s HBD (sell %s, receive %s)",
		side, op.Amount.StringFixed(3), op.Price.String(), op.AmountToSell, op.MinToReceive)

	res, err := e.broadcaster.Broadcast(ctx, op)
	if err != nil {
		logger.Errorf("[Live] Error placing %s order: %v", side, err)
		e.record(ctx, op, now, "", dbwriter.OrderStatusFailed)
		e.alert(fmt.Sprintf("%s order for %s HIVE at %s failed: %v", side, op.Amount.StringFixed(3), op.Price.String(), err))
		return nil, fmt.Errorf("failed to broadcast %s order: %w", side, err)
	}
	logger.Infof("[Live] Order broadcast, trx_id=%s", res.TrxID)

	result := &OrderResult{
		Time:      now,
		Side:      side,
		Amount:    op.Amount.InexactFloat64(),
		Price:     op.Price.InexactFloat64(),
		TrxID:     res.TrxID,
		BlockNum:  res.BlockNum,
		Simulated: e.cfg.DryRun,
	}

	if e.cfg.DryRun {
		e.record(ctx, op, now, res.TrxID, dbwriter.OrderStatusSimulated)
		return result, nil
	}

	if e.cfg.ConfirmOrders && e.confirmer != nil {
		if err := e.confirm(ctx, result); err != nil {
			e.record(ctx, op, now, res.TrxID, dbwriter.OrderStatusBroadcast)
			e.alert(fmt.Sprintf("%s order %s not confirmed: %v", side, res.TrxID, err))
			return nil, err
		}
		e.record(ctx, op, now, res.TrxID, dbwriter.OrderStatusConfirmed)
		return result, nil
	}

	e.record(ctx, op, now, res.TrxID, dbwriter.OrderStatusBroadcast)
	return result, nil
}

func (e *LiveExecutionEngine) confirm(ctx context.Context, result *OrderResult) error {
	waitCtx := ctx
	if e.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
		defer cancel()
	}
	poll := e.cfg.ConfirmPoll
	if poll <= 0 {
		poll = 5 * time.Second
	}
	status, err := e.confirmer.WaitForTransaction(waitCtx, result.TrxID, poll)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotConfirmed, result.TrxID, err)
	}
	result.Confirmed = true
	result.BlockNum = status.BlockNum
	return nil
}

func (e *LiveExecutionEngine) record(ctx context.Context, op *hive.LimitOrderCreate, at time.Time, trxID, status string) {
	order := dbwriter.Order{
		Time:   at,
		Pair:   e.cfg.Pair,
		Side:   op.Side,
		Price:  op.Price.InexactFloat64(),
		Amount: op.Amount.InexactFloat64(),
		TrxID:  trxID,
		Status: status,
		DryRun: e.cfg.DryRun,
	}
	if e.dbWriter != nil {
		e.dbWriter.SaveOrder(order)
	}
	if e.sink != nil {
		if err := e.sink.PublishOrder(ctx, order); err != nil {
			logger.Warnf("[Live] Failed to publish order: %v", err)
		}
	}
}

func (e *LiveExecutionEngine) alert(msg string) {
	if err := e.notifier.Send(msg); err != nil {
		logger.Warnf("[Live] Failed to send alert: %v", err)
	}
}

// ReplayExecutionEngine simulates order execution for backtesting.
type ReplayExecutionEngine struct {
	dbWriter      dbwriter.DBWriter
	position      *position.Position
	pnlCalculator *pnl.Calculator
	pair          string
	strategyID    string
	now           func() time.Time
}

// NewReplayExecutionEngine creates a new ReplayExecutionEngine. dbWriter may be nil.
func NewReplayExecutionEngine(dbWriter dbwriter.DBWriter, pair string) *ReplayExecutionEngine {
	return &ReplayExecutionEngine{
		dbWriter:      dbWriter,
		position:      position.NewPosition(),
		pnlCalculator: pnl.NewCalculator(),
		pair:          pair,
		strategyID:    "replay",
		now:           time.Now,
	}
}

// SetClock replaces the time source, so fills carry the replayed event time.
func (e *ReplayExecutionEngine) SetClock(now func() time.Time) {
	e.now = now
}

// PlaceOrder simulates an immediate fill at the requested price.
func (e *ReplayExecutionEngine) PlaceOrder(ctx context.Context, side string, amount, price float64) (*OrderResult, error) {
	var signed float64
	switch side {
	case hive.SideBuy:
		signed = amount
	case hive.SideSell:
		signed = -amount
	default:
		return nil, fmt.Errorf("%w: %q", hive.ErrInvalidSide, side)
	}
	if amount <= 0 || price <= 0 {
		return nil, fmt.Errorf("amount and price must be positive, got %f @ %f", amount, price)
	}

	logger.Infof("[Replay] Simulating %s: Amount=%.3f, Price=%.6f", side, amount, price)

	at := e.now().UTC()
	trxID := "replay-" + uuid.NewString()

	realized := e.position.Update(signed, price)
	e.pnlCalculator.UpdateRealizedPnL(realized)
	logger.Debugf("[Replay] Position updated: %s", e.position.String())

	if e.dbWriter != nil {
		e.dbWriter.SaveOrder(dbwriter.Order{
			Time:   at,
			Pair:   e.pair,
			Side:   side,
			Price:  price,
			Amount: amount,
			TrxID:  trxID,
			Status: dbwriter.OrderStatusSimulated,
			DryRun: true,
		})
		size, avg := e.position.Get()
		summary := e.pnlCalculator.Summary(at, e.strategyID, e.pair, size, avg, price)
		if err := e.dbWriter.SavePnLSummary(ctx, summary); err != nil {
			logger.Errorf("[Replay] Error saving PnL summary: %v", err)
		}
	}

	return &OrderResult{
		Time:      at,
		Side:      side,
		Amount:    amount,
		Price:     price,
		TrxID:     trxID,
		Confirmed: true,
		Simulated: true,
	}, nil
}

// Position returns the simulated HIVE position and its average entry price.
func (e *ReplayExecutionEngine) Position() (float64, float64) {
	return e.position.Get()
}

// RealizedPnL returns the accumulated realized PnL in HBD.
func (e *ReplayExecutionEngine) RealizedPnL() float64 {
	return e.pnlCalculator.GetRealizedPnL()
}
