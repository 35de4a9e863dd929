package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// HistorySource is the part of the hive client the fetcher needs.
type HistorySource interface {
	GetTradeHistory(ctx context.Context, start, end time.Time, limit int) ([]hive.MarketTrade, error)
}

// FetcherConfig controls pagination.
type FetcherConfig struct {
	Limit     int
	BatchSize int
	Window    time.Duration
	Step      time.Duration
}

// DefaultFetcherConfig mirrors the config defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Limit:     200,
		BatchSize: 1000,
		Window:    time.Hour,
		Step:      2 * time.Minute,
	}
}

// Fetcher collects recent fills from the node.
type Fetcher struct {
	source HistorySource
	cfg    FetcherConfig
	now    func() time.Time
}

// NewFetcher creates a Fetcher. Zero config values fall back to defaults.
func NewFetcher(source HistorySource, cfg FetcherConfig) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchSize > hive.MaxTradeHistoryLimit {
		cfg.BatchSize = hive.MaxTradeHistoryLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	return &Fetcher{source: source, cfg: cfg, now: time.Now}
}

// Result of one fetch.
type Result struct {
	Buys      []Trade
	Sells     []Trade
	WindowEnd time.Time
	Raw       []hive.MarketTrade
}

// FetchRecentTrades pages backwards from the window end until Limit fills are
// collected or the history runs dry. With lastFetchTime nil the window ends now,
// otherwise at lastFetchTime + Step, never later than now. Legs come back oldest first.
func (f *Fetcher) FetchRecentTrades(ctx context.Context, lastFetchTime *time.Time) (*Result, error) {
	now := f.now().UTC()
	windowEnd := now
	if lastFetchTime != nil {
		windowEnd = lastFetchTime.UTC().Add(f.cfg.Step)
		if windowEnd.After(now) {
			windowEnd = now
		}
	}

	var all []hive.MarketTrade
	end := windowEnd
	for len(all) < f.cfg.Limit {
		batchLimit := f.cfg.BatchSize
		if remaining := f.cfg.Limit - len(all); remaining < batchLimit {
			batchLimit = remaining
		}
		start := end.Add(-f.cfg.Window)

		batch, err := f.source.GetTradeHistory(ctx, start, end, batchLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch trade history %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)

		oldest := batch[0].Date.Time
		for _, mt := range batch[1:] {
			if mt.Date.Before(oldest) {
				oldest = mt.Date.Time
			}
		}
		if !oldest.Before(end) {
			logger.Debugf("Trade history cursor stuck at %s, stopping pagination", end.Format(time.RFC3339))
			break
		}
		end = oldest
	}

	buys, sells := Split(all)
	sortByTime(buys)
	sortByTime(sells)
	logger.Debugf("Fetched %d fills (%d buys, %d sells) up to %s", len(all), len(buys), len(sells), windowEnd.Format(time.RFC3339))

	return &Result{Buys: buys, Sells: sells, WindowEnd: windowEnd, Raw: all}, nil
}

func sortByTime(trades []Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})
}
