package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
)

func asset(amount string, nai string) hive.Asset {
	return hive.Asset{Amount: decimal.RequireFromString(amount), Precision: 3, NAI: nai}
}

func fill(ts time.Time, currentAmount, currentNAI, openAmount, openNAI string) hive.MarketTrade {
	return hive.MarketTrade{
		Date:        hive.Time{Time: ts},
		CurrentPays: asset(currentAmount, currentNAI),
		OpenPays:    asset(openAmount, openNAI),
	}
}

var base = time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	t.Run("hive current pays is a buy leg", func(t *testing.T) {
		side, tr, ok := Classify(fill(base, "10", hive.NAIHive, "2.5", hive.NAIHBD))
		require.True(t, ok)
		assert.Equal(t, SideBuy, side)
		assert.Equal(t, 0.25, tr.Price)
		assert.Equal(t, 10.0, tr.Volume)
		assert.Equal(t, base, tr.Timestamp)
	})

	t.Run("hbd current pays is a sell leg", func(t *testing.T) {
		side, tr, ok := Classify(fill(base, "3", hive.NAIHBD, "12", hive.NAIHive))
		require.True(t, ok)
		assert.Equal(t, SideSell, side)
		assert.Equal(t, 0.25, tr.Price)
		assert.Equal(t, 12.0, tr.Volume)
	})

	t.Run("unknown asset skipped", func(t *testing.T) {
		_, _, ok := Classify(fill(base, "1", "@@000000037", "1", hive.NAIHive))
		assert.False(t, ok)
	})

	t.Run("zero denominator skipped", func(t *testing.T) {
		_, _, ok := Classify(fill(base, "0", hive.NAIHive, "1", hive.NAIHBD))
		assert.False(t, ok)
		_, _, ok = Classify(fill(base, "1", hive.NAIHBD, "0", hive.NAIHive))
		assert.False(t, ok)
	})

	t.Run("zero price skipped", func(t *testing.T) {
		_, _, ok := Classify(fill(base, "10", hive.NAIHive, "0", hive.NAIHBD))
		assert.False(t, ok)
		_, _, ok = Classify(fill(base, "0", hive.NAIHBD, "12", hive.NAIHive))
		assert.False(t, ok)
	})
}

type historyCall struct {
	start, end time.Time
	limit      int
}

type fakeHistory struct {
	pages [][]hive.MarketTrade
	calls []historyCall
	err   error
}

func (f *fakeHistory) GetTradeHistory(_ context.Context, start, end time.Time, limit int) ([]hive.MarketTrade, error) {
	f.calls = append(f.calls, historyCall{start, end, limit})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.calls) > len(f.pages) {
		return nil, nil
	}
	page := f.pages[len(f.calls)-1]
	if len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

func newTestFetcher(src HistorySource, cfg FetcherConfig) *Fetcher {
	f := NewFetcher(src, cfg)
	f.now = func() time.Time { return base }
	return f
}

func TestFetchRecentTrades_Paginates(t *testing.T) {
	src := &fakeHistory{pages: [][]hive.MarketTrade{
		{
			fill(base.Add(-2*time.Minute), "10", hive.NAIHive, "2.5", hive.NAIHBD),
			fill(base.Add(-1*time.Minute), "1", hive.NAIHBD, "4", hive.NAIHive),
		},
		{
			fill(base.Add(-10*time.Minute), "10", hive.NAIHive, "2", hive.NAIHBD),
		},
	}}
	f := newTestFetcher(src, FetcherConfig{Limit: 4, BatchSize: 2})

	res, err := f.FetchRecentTrades(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, base, res.WindowEnd)
	require.Len(t, src.calls, 3, "third call returns empty and stops the loop")
	assert.Equal(t, historyCall{base.Add(-time.Hour), base, 2}, src.calls[0])
	assert.Equal(t, base.Add(-2*time.Minute), src.calls[1].end, "cursor moves to the oldest fill of the batch")
	assert.Equal(t, 2, src.calls[1].limit)
	assert.Equal(t, 1, src.calls[2].limit, "last batch asks only for what is missing")

	wantBuys := []Trade{
		{Timestamp: base.Add(-10 * time.Minute), Price: 0.2, Volume: 10},
		{Timestamp: base.Add(-2 * time.Minute), Price: 0.25, Volume: 10},
	}
	if diff := cmp.Diff(wantBuys, res.Buys, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("buys mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, res.Sells, 1)
	assert.InDelta(t, 0.25, res.Sells[0].Price, 1e-12)
}

func TestFetchRecentTrades_StopsAtLimit(t *testing.T) {
	page := []hive.MarketTrade{
		fill(base.Add(-3*time.Minute), "10", hive.NAIHive, "2.5", hive.NAIHBD),
		fill(base.Add(-2*time.Minute), "10", hive.NAIHive, "2.5", hive.NAIHBD),
	}
	src := &fakeHistory{pages: [][]hive.MarketTrade{page, page, page}}
	f := newTestFetcher(src, FetcherConfig{Limit: 2, BatchSize: 1000})

	res, err := f.FetchRecentTrades(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, src.calls, 1)
	assert.Len(t, res.Buys, 2)
}

func TestFetchRecentTrades_StuckCursor(t *testing.T) {
	page := []hive.MarketTrade{fill(base, "10", hive.NAIHive, "2.5", hive.NAIHBD)}
	src := &fakeHistory{pages: [][]hive.MarketTrade{page, page, page}}
	f := newTestFetcher(src, FetcherConfig{Limit: 10, BatchSize: 1})

	_, err := f.FetchRecentTrades(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, src.calls, 1)
}

func TestFetchRecentTrades_WindowAnchor(t *testing.T) {
	src := &fakeHistory{}
	f := newTestFetcher(src, FetcherConfig{})

	last := base.Add(-10 * time.Minute)
	res, err := f.FetchRecentTrades(context.Background(), &last)
	require.NoError(t, err)
	assert.Equal(t, last.Add(2*time.Minute), res.WindowEnd)
	assert.Equal(t, last.Add(2*time.Minute), src.calls[0].end)

	recent := base.Add(-30 * time.Second)
	res, err = f.FetchRecentTrades(context.Background(), &recent)
	require.NoError(t, err)
	assert.Equal(t, base, res.WindowEnd, "window end is capped at now")
}

func TestFetchRecentTrades_Error(t *testing.T) {
	boom := errors.New("node down")
	f := newTestFetcher(&fakeHistory{err: boom}, FetcherConfig{})

	_, err := f.FetchRecentTrades(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestPrices(t *testing.T) {
	assert.Equal(t, []float64{1, 2}, Prices([]Trade{{Price: 1}, {Price: 2}}))
	assert.Empty(t, Prices(nil))
}
