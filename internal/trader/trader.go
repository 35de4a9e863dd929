// Package trader runs the polling market-making loop.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AyusGup/Hive-Automation/internal/benchmark"
	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/datastore"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/engine"
	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/internal/predictor"
	"github.com/AyusGup/Hive-Automation/internal/publisher"
	"github.com/AyusGup/Hive-Automation/internal/wallet"
	"github.com/AyusGup/Hive-Automation/pkg/cvd"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// BalanceSource is satisfied by *wallet.Reader.
type BalanceSource interface {
	FetchBalances(ctx context.Context) (wallet.Balances, error)
}

// TradeSource is satisfied by *market.Fetcher.
type TradeSource interface {
	FetchRecentTrades(ctx context.Context, lastFetchTime *time.Time) (*market.Result, error)
}

// TickerSource is satisfied by *hive.Client.
type TickerSource interface {
	GetTicker(ctx context.Context) (*hive.Ticker, error)
}

// LastPriceSource restores the last own fill prices on start.
type LastPriceSource interface {
	FetchLastOrderPrices(ctx context.Context, pair string) (datastore.LastPrices, error)
}

// Config holds the loop settings.
type Config struct {
	Pair         string
	DryRun       bool
	PollInterval time.Duration
	ErrorBackoff time.Duration
	FlowWindow   time.Duration // volume delta window, defaults to one hour
	Predictor    predictor.Config
}

// ConfigFrom extracts the loop settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Pair:         cfg.Pair,
		DryRun:       cfg.Trading.DryRun.Bool(),
		PollInterval: cfg.Trading.PollInterval(),
		ErrorBackoff: cfg.Trading.ErrorBackoff(),
		FlowWindow:   time.Duration(cfg.Fetcher.WindowMinutes) * time.Minute,
		Predictor: predictor.Config{
			Interval:      cfg.Predictor.Interval,
			AverageWeight: cfg.Predictor.AverageWeight,
			RecentWeight:  cfg.Predictor.RecentWeight,
			BuyDiscount:   cfg.Predictor.BuyDiscount,
			SellPremium:   cfg.Predictor.SellPremium,
		},
	}
}

// Deps are the collaborators of the loop. Writer, Publisher, Benchmark and
// LastPrices are optional.
type Deps struct {
	Wallet     BalanceSource
	Trades     TradeSource
	Ticker     TickerSource
	Engine     engine.ExecutionEngine
	Writer     dbwriter.DBWriter
	Publisher  publisher.Publisher
	Benchmark  *benchmark.Service
	LastPrices LastPriceSource
}

// OrderSummary is the last order placed by the loop.
type OrderSummary struct {
	Time   time.Time `json:"time"`
	Side   string    `json:"side"`
	Amount float64   `json:"amount"`
	Price  float64   `json:"price"`
	TrxID  string    `json:"trx_id"`
}

// Status is a snapshot of the last iteration.
type Status struct {
	Pair           string               `json:"pair"`
	DryRun         bool                 `json:"dry_run"`
	UpdatedAt      time.Time            `json:"updated_at"`
	Iterations     int                  `json:"iterations"`
	Errors         int                  `json:"errors"`
	LastError      string               `json:"last_error,omitempty"`
	Balances       wallet.Balances      `json:"balances"`
	Prediction     predictor.Prediction `json:"prediction"`
	HighestBid     float64              `json:"highest_bid"`
	LowestAsk      float64              `json:"lowest_ask"`
	LastBuyPrice   float64              `json:"last_buy_price"`
	LastSellPrice  float64              `json:"last_sell_price"`
	WindowEnd      time.Time            `json:"window_end"`
	PortfolioValue float64              `json:"portfolio_value"`
	VolumeDelta    float64              `json:"volume_delta"`
	LastOrder      *OrderSummary        `json:"last_order,omitempty"`
}

// Trader owns the loop state.
type Trader struct {
	cfg  Config
	deps Deps

	lastFetch     *time.Time
	lastSavedLeg  time.Time
	lastBuyPrice  float64
	lastSellPrice float64
	flow          *cvd.Calculator

	mu     sync.RWMutex
	status Status
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Trader.
func New(cfg Config, deps Deps) *Trader {
	if deps.Publisher == nil {
		deps.Publisher = publisher.NoopPublisher{}
	}
	if cfg.FlowWindow <= 0 {
		cfg.FlowWindow = time.Hour
	}
	return &Trader{
		cfg:    cfg,
		deps:   deps,
		flow:   cvd.NewCalculator(cfg.FlowWindow),
		status: Status{Pair: cfg.Pair, DryRun: cfg.DryRun},
		sleep:  sleepCtx,
	}
}

// Status returns a copy of the latest snapshot.
func (t *Trader) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.status
	if s.LastOrder != nil {
		o := *s.LastOrder
		s.LastOrder = &o
	}
	return s
}

// RestoreLastPrices seeds the last buy/sell prices from stored orders.
func (t *Trader) RestoreLastPrices(ctx context.Context) error {
	if t.deps.LastPrices == nil {
		return nil
	}
	lp, err := t.deps.LastPrices.FetchLastOrderPrices(ctx, t.cfg.Pair)
	if err != nil {
		return fmt.Errorf("failed to restore last order prices: %w", err)
	}
	t.lastBuyPrice, t.lastSellPrice = lp.Buy, lp.Sell
	t.updateStatus(func(s *Status) {
		s.LastBuyPrice, s.LastSellPrice = lp.Buy, lp.Sell
	})
	logger.Infof("Restored last prices: buy=%.6f sell=%.6f", lp.Buy, lp.Sell)
	return nil
}

// Run loops until ctx is cancelled. Iteration errors are logged and retried
// after the error backoff.
func (t *Trader) Run(ctx context.Context) error {
	logger.Infof("Starting trading loop for %s (dry_run=%t)", t.cfg.Pair, t.cfg.DryRun)
	for {
		wait := t.cfg.PollInterval
		if err := t.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorf("Error in main loop: %v", err)
			t.updateStatus(func(s *Status) {
				s.Errors++
				s.LastError = err.Error()
			})
			wait = t.cfg.ErrorBackoff
		}
		if err := t.sleep(ctx, wait); err != nil {
			logger.Info("Trading loop stopped.")
			return err
		}
	}
}

func (t *Trader) iterate(ctx context.Context) error {
	balances, err := t.deps.Wallet.FetchBalances(ctx)
	if err != nil {
		return err
	}

	res, err := t.deps.Trades.FetchRecentTrades(ctx, t.lastFetch)
	if err != nil {
		return fmt.Errorf("failed to fetch trades: %w", err)
	}
	windowEnd := res.WindowEnd
	t.lastFetch = &windowEnd
	t.persistLegs(ctx, res)
	delta := t.flow.Update(flowLegs(res), windowEnd)
	logger.Debugf("Volume delta over %v: %.3f HIVE", t.cfg.FlowWindow, delta)

	pred := predictor.PredictNextPrices(res.Buys, res.Sells, t.lastBuyPrice, t.lastSellPrice, t.cfg.Predictor)

	ticker, err := t.deps.Ticker.GetTicker(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch ticker: %w", err)
	}
	currentBuy, currentSell := ticker.HighestBid, ticker.LowestAsk

	logger.Infof("Predicted Buy Price: %.6f, Current Buy Price: %.6f, Last Buy Price: %.6f", pred.Buy, currentBuy, t.lastBuyPrice)
	logger.Infof("Predicted Sell Price: %.6f, Current Sell Price: %.6f, Last Sell Price: %.6f", pred.Sell, currentSell, t.lastSellPrice)

	if balances.HBD > 0 && pred.Buy > 0 && pred.Buy >= currentBuy {
		amount := balances.HBD / pred.Buy
		if res, ok := t.place(ctx, hive.SideBuy, amount, pred.Buy); ok {
			if balances, err = t.deps.Wallet.FetchBalances(ctx); err != nil {
				return err
			}
			t.lastBuyPrice = res.Price
		}
	}

	if balances.HIVE > 0 && pred.Sell > 0 && pred.Sell <= currentSell {
		if res, ok := t.place(ctx, hive.SideSell, balances.HIVE, pred.Sell); ok {
			if balances, err = t.deps.Wallet.FetchBalances(ctx); err != nil {
				return err
			}
			t.lastSellPrice = res.Price
		}
	}

	logger.Infof("Portfolio: HBD=%.3f, HIVE=%.3f", balances.HBD, balances.HIVE)
	value := balances.HBD + balances.HIVE*currentBuy
	if t.deps.Benchmark != nil {
		value = t.deps.Benchmark.Tick(ctx, balances.HBD, balances.HIVE, currentBuy).Value
	}
	if err := t.deps.Publisher.PublishValuation(ctx, dbwriter.BenchmarkValue{
		Time:  time.Now().UTC(),
		HBD:   balances.HBD,
		HIVE:  balances.HIVE,
		Price: currentBuy,
		Value: value,
	}); err != nil {
		logger.Warnf("Failed to publish portfolio value: %v", err)
	}

	t.updateStatus(func(s *Status) {
		s.UpdatedAt = time.Now().UTC()
		s.Iterations++
		s.LastError = ""
		s.Balances = balances
		s.Prediction = pred
		s.HighestBid, s.LowestAsk = currentBuy, currentSell
		s.LastBuyPrice, s.LastSellPrice = t.lastBuyPrice, t.lastSellPrice
		s.WindowEnd = windowEnd
		s.PortfolioValue = value
		s.VolumeDelta = delta
	})
	return nil
}

func (t *Trader) place(ctx context.Context, side string, amount, price float64) (*engine.OrderResult, bool) {
	logger.Infof("Placing %s order: %.3f HIVE at %.6f HBD", side, amount, price)
	res, err := t.deps.Engine.PlaceOrder(ctx, side, amount, price)
	if err != nil {
		logger.Errorf("%s order failed, balances not updated: %v", side, err)
		return nil, false
	}
	logger.Infof("%s order placed, trx_id=%s", side, res.TrxID)
	t.updateStatus(func(s *Status) {
		s.LastOrder = &OrderSummary{Time: res.Time, Side: side, Amount: res.Amount, Price: res.Price, TrxID: res.TrxID}
	})
	return res, true
}

// persistLegs stores and publishes legs newer than the last stored one.
// Consecutive windows overlap, so older legs were already handled.
func (t *Trader) persistLegs(ctx context.Context, res *market.Result) {
	var fresh []dbwriter.MarketTrade
	newest := t.lastSavedLeg
	collect := func(side string, trades []market.Trade) {
		for _, tr := range trades {
			if !tr.Timestamp.After(t.lastSavedLeg) {
				continue
			}
			fresh = append(fresh, dbwriter.MarketTrade{
				Time:   tr.Timestamp,
				Pair:   t.cfg.Pair,
				Side:   side,
				Price:  tr.Price,
				Volume: tr.Volume,
			})
			if tr.Timestamp.After(newest) {
				newest = tr.Timestamp
			}
		}
	}
	collect(market.SideBuy, res.Buys)
	collect(market.SideSell, res.Sells)
	if len(fresh) == 0 {
		return
	}
	t.lastSavedLeg = newest

	if t.deps.Writer != nil {
		for _, mt := range fresh {
			t.deps.Writer.SaveMarketTrade(mt)
		}
	}
	if err := t.deps.Publisher.PublishTrades(ctx, fresh); err != nil {
		logger.Warnf("Failed to publish market trades: %v", err)
	}
}

func flowLegs(res *market.Result) []cvd.Trade {
	legs := make([]cvd.Trade, 0, len(res.Buys)+len(res.Sells))
	for _, tr := range res.Buys {
		legs = append(legs, cvd.Trade{Timestamp: tr.Timestamp, Side: market.SideBuy, Price: tr.Price, Size: tr.Volume})
	}
	for _, tr := range res.Sells {
		legs = append(legs, cvd.Trade{Timestamp: tr.Timestamp, Side: market.SideSell, Price: tr.Price, Size: tr.Volume})
	}
	return legs
}

func (t *Trader) updateStatus(fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
