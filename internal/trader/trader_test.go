package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AyusGup/Hive-Automation/internal/benchmark"
	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/datastore"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/engine"
	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/internal/predictor"
	"github.com/AyusGup/Hive-Automation/internal/wallet"
)

type fakeWallet struct {
	seq   []wallet.Balances
	calls int
	err   error
}

func (w *fakeWallet) FetchBalances(ctx context.Context) (wallet.Balances, error) {
	if w.err != nil {
		return wallet.Balances{}, w.err
	}
	b := w.seq[min(w.calls, len(w.seq)-1)]
	w.calls++
	return b, nil
}

type fakeTrades struct {
	res   *market.Result
	err   error
	calls []*time.Time
}

func (f *fakeTrades) FetchRecentTrades(ctx context.Context, last *time.Time) (*market.Result, error) {
	f.calls = append(f.calls, last)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeTicker struct{ t hive.Ticker }

func (f fakeTicker) GetTicker(ctx context.Context) (*hive.Ticker, error) { return &f.t, nil }

type placed struct {
	side          string
	amount, price float64
}

type fakeEngine struct {
	orders []placed
	err    error
}

func (e *fakeEngine) PlaceOrder(ctx context.Context, side string, amount, price float64) (*engine.OrderResult, error) {
	e.orders = append(e.orders, placed{side, amount, price})
	if e.err != nil {
		return nil, e.err
	}
	return &engine.OrderResult{Side: side, Amount: amount, Price: price, TrxID: "trx-" + side}, nil
}

type recordingPublisher struct {
	trades     []dbwriter.MarketTrade
	valuations []dbwriter.BenchmarkValue
}

func (p *recordingPublisher) PublishTrades(ctx context.Context, t []dbwriter.MarketTrade) error {
	p.trades = append(p.trades, t...)
	return nil
}
func (p *recordingPublisher) PublishOrder(context.Context, dbwriter.Order) error { return nil }
func (p *recordingPublisher) PublishValuation(ctx context.Context, v dbwriter.BenchmarkValue) error {
	p.valuations = append(p.valuations, v)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func trades(prices ...float64) []market.Trade {
	out := make([]market.Trade, len(prices))
	for i, p := range prices {
		out[i] = market.Trade{Timestamp: t0.Add(time.Duration(i) * time.Second), Price: p, Volume: 1}
	}
	return out
}

func testConfig() Config {
	return Config{
		Pair:         "HIVE/HBD",
		PollInterval: 120 * time.Second,
		ErrorBackoff: 10 * time.Second,
		Predictor:    predictor.DefaultConfig(),
	}
}

func TestIterate_BuysWhenPredictionAboveBid(t *testing.T) {
	w := &fakeWallet{seq: []wallet.Balances{{HBD: 10, HIVE: 0}, {HBD: 0, HIVE: 40}}}
	// buy prediction: 0.7*0.25 + 0.3*0.25 = 0.25; sell prediction 0.3
	ft := &fakeTrades{res: &market.Result{Buys: trades(0.25, 0.25), Sells: trades(0.3, 0.3), WindowEnd: t0}}
	e := &fakeEngine{}
	inmem := dbwriter.NewInMemWriter()
	pub := &recordingPublisher{}
	tr := New(testConfig(), Deps{
		Wallet:    w,
		Trades:    ft,
		Ticker:    fakeTicker{hive.Ticker{HighestBid: 0.24, LowestAsk: 0.29}},
		Engine:    e,
		Writer:    inmem,
		Publisher: pub,
		Benchmark: benchmark.NewService(zap.NewNop(), inmem),
	})

	require.NoError(t, tr.iterate(context.Background()))

	require.Len(t, e.orders, 1, "sell prediction 0.3 is above the ask, so only the buy fires")
	assert.Equal(t, "buy", e.orders[0].side)
	assert.InDelta(t, 40.0, e.orders[0].amount, 1e-9)
	assert.InDelta(t, 0.25, e.orders[0].price, 1e-9)

	st := tr.Status()
	assert.Equal(t, 1, st.Iterations)
	assert.InDelta(t, 0.25, st.LastBuyPrice, 1e-9)
	assert.Equal(t, wallet.Balances{HBD: 0, HIVE: 40}, st.Balances)
	assert.InDelta(t, 40*0.24, st.PortfolioValue, 1e-9)
	require.NotNil(t, st.LastOrder)
	assert.Equal(t, "trx-buy", st.LastOrder.TrxID)

	assert.Len(t, inmem.MarketTrades, 4)
	assert.Len(t, pub.trades, 4)
	require.Len(t, pub.valuations, 1)
	assert.Len(t, inmem.BenchmarkValues, 1)
}

func TestIterate_SellsWhenPredictionBelowAsk(t *testing.T) {
	w := &fakeWallet{seq: []wallet.Balances{{HBD: 0, HIVE: 100}, {HBD: 26, HIVE: 0}}}
	ft := &fakeTrades{res: &market.Result{Sells: trades(0.26, 0.26), WindowEnd: t0}}
	e := &fakeEngine{}
	tr := New(testConfig(), Deps{
		Wallet: w,
		Trades: ft,
		Ticker: fakeTicker{hive.Ticker{HighestBid: 0.25, LowestAsk: 0.27}},
		Engine: e,
	})

	require.NoError(t, tr.iterate(context.Background()))
	require.Len(t, e.orders, 1)
	assert.Equal(t, "sell", e.orders[0].side)
	assert.Equal(t, 100.0, e.orders[0].amount)
	assert.InDelta(t, 0.26, e.orders[0].price, 1e-9)
	assert.InDelta(t, 0.26, tr.Status().LastSellPrice, 1e-9)
}

func TestIterate_NoOrderOnZeroPrediction(t *testing.T) {
	w := &fakeWallet{seq: []wallet.Balances{{HBD: 10, HIVE: 10}}}
	ft := &fakeTrades{res: &market.Result{Buys: trades(0.25), WindowEnd: t0}}
	e := &fakeEngine{}
	tr := New(testConfig(), Deps{Wallet: w, Trades: ft, Ticker: fakeTicker{hive.Ticker{HighestBid: 0, LowestAsk: 1}}, Engine: e})

	require.NoError(t, tr.iterate(context.Background()))
	assert.Empty(t, e.orders)
}

func TestIterate_FailedOrderKeepsBalancesAndLastPrice(t *testing.T) {
	w := &fakeWallet{seq: []wallet.Balances{{HBD: 10}}}
	ft := &fakeTrades{res: &market.Result{Buys: trades(0.25, 0.25), WindowEnd: t0}}
	e := &fakeEngine{err: hive.ErrNoTransactionID}
	tr := New(testConfig(), Deps{Wallet: w, Trades: ft, Ticker: fakeTicker{hive.Ticker{HighestBid: 0.2, LowestAsk: 0.3}}, Engine: e})

	require.NoError(t, tr.iterate(context.Background()))
	assert.Len(t, e.orders, 1)
	assert.Equal(t, 1, w.calls)
	assert.Zero(t, tr.Status().LastBuyPrice)
}

func TestIterate_PassesWindowEndBack(t *testing.T) {
	w := &fakeWallet{seq: []wallet.Balances{{}}}
	ft := &fakeTrades{res: &market.Result{WindowEnd: t0}}
	tr := New(testConfig(), Deps{Wallet: w, Trades: ft, Ticker: fakeTicker{}, Engine: &fakeEngine{}})

	require.NoError(t, tr.iterate(context.Background()))
	require.NoError(t, tr.iterate(context.Background()))
	require.Len(t, ft.calls, 2)
	assert.Nil(t, ft.calls[0])
	require.NotNil(t, ft.calls[1])
	assert.Equal(t, t0, *ft.calls[1])
}

func TestPersistLegs_SkipsAlreadyStored(t *testing.T) {
	inmem := dbwriter.NewInMemWriter()
	tr := New(testConfig(), Deps{Writer: inmem})

	tr.persistLegs(context.Background(), &market.Result{Buys: trades(0.1, 0.2)})
	tr.persistLegs(context.Background(), &market.Result{Buys: trades(0.1, 0.2, 0.3)})
	require.Len(t, inmem.MarketTrades, 3)
	assert.Equal(t, 0.3, inmem.MarketTrades[2].Price)
	assert.Equal(t, "buy", inmem.MarketTrades[2].Side)
}

func TestRun_BacksOffOnErrorAndStopsOnCancel(t *testing.T) {
	w := &fakeWallet{err: errors.New("node down")}
	tr := New(testConfig(), Deps{Wallet: w})

	ctx, cancel := context.WithCancel(context.Background())
	var waits []time.Duration
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 2 {
			cancel()
		}
		return ctx.Err()
	}

	err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, waits)
	st := tr.Status()
	assert.Equal(t, 2, st.Errors)
	assert.Equal(t, "node down", st.LastError)
}

func TestRun_PollIntervalAfterSuccess(t *testing.T) {
	w := &fakeWallet{seq: []wallet.Balances{{}}}
	tr := New(testConfig(), Deps{Wallet: w, Trades: &fakeTrades{res: &market.Result{}}, Ticker: fakeTicker{}, Engine: &fakeEngine{}})

	ctx, cancel := context.WithCancel(context.Background())
	var waits []time.Duration
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		cancel()
		return ctx.Err()
	}
	assert.ErrorIs(t, tr.Run(ctx), context.Canceled)
	assert.Equal(t, []time.Duration{120 * time.Second}, waits)
}

func TestRestoreLastPrices(t *testing.T) {
	repo := datastore.NewInMemRepository()
	repo.SeedLastPrices("HIVE/HBD", datastore.LastPrices{Buy: 0.21, Sell: 0.27})
	tr := New(testConfig(), Deps{LastPrices: repo})

	require.NoError(t, tr.RestoreLastPrices(context.Background()))
	st := tr.Status()
	assert.Equal(t, 0.21, st.LastBuyPrice)
	assert.Equal(t, 0.27, st.LastSellPrice)

	assert.NoError(t, New(testConfig(), Deps{}).RestoreLastPrices(context.Background()))
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Default()
	c := ConfigFrom(cfg)
	assert.Equal(t, 120*time.Second, c.PollInterval)
	assert.Equal(t, 10*time.Second, c.ErrorBackoff)
	assert.Equal(t, predictor.DefaultConfig(), c.Predictor)
	assert.Equal(t, time.Hour, c.FlowWindow)
	assert.True(t, c.DryRun)
}

func TestIterate_VolumeDeltaIgnoresOverlap(t *testing.T) {
	w := &fakeWallet{seq: []wallet.Balances{{}}}
	ft := &fakeTrades{res: &market.Result{Buys: trades(0.25, 0.25), Sells: trades(0.3, 0.3, 0.3), WindowEnd: t0.Add(10 * time.Second)}}
	tr := New(testConfig(), Deps{
		Wallet: w,
		Trades: ft,
		Ticker: fakeTicker{hive.Ticker{HighestBid: 0.24, LowestAsk: 0.29}},
		Engine: &fakeEngine{},
	})

	require.NoError(t, tr.iterate(context.Background()))
	assert.InDelta(t, -1.0, tr.Status().VolumeDelta, 1e-9)

	// The next window returns the same legs; they must not be counted twice.
	require.NoError(t, tr.iterate(context.Background()))
	assert.InDelta(t, -1.0, tr.Status().VolumeDelta, 1e-9)
}
