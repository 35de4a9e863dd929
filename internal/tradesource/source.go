// Package tradesource loads market legs for the offline tools from a CSV
// export, the database or a live node.
package tradesource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/datastore"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// Options selects where legs come from. CSVPath wins over FromDB; with
// neither set the latest window is fetched from the node.
type Options struct {
	CSVPath string
	FromDB  bool
	Start   time.Time
	End     time.Time
}

// Legs are the rows loaded plus their buy/sell split.
type Legs struct {
	Rows  []dbwriter.MarketTrade
	Buys  []market.Trade
	Sells []market.Trade
}

// All returns buys and sells together.
func (l *Legs) All() []market.Trade {
	out := make([]market.Trade, 0, len(l.Buys)+len(l.Sells))
	out = append(out, l.Buys...)
	return append(out, l.Sells...)
}

// NewHiveClient builds a node client from config.
func NewHiveClient(cfg *config.Config) *hive.Client {
	return hive.NewClient(cfg.Hive.NodeURL,
		hive.WithRateLimit(cfg.Hive.RequestsPerSecond, cfg.Hive.Burst),
		hive.WithTimeout(time.Duration(cfg.Hive.RequestTimeoutSeconds)*time.Second),
	)
}

// FetcherConfig converts the fetcher section of the config.
func FetcherConfig(cfg *config.Config) market.FetcherConfig {
	return market.FetcherConfig{
		Limit:     cfg.Fetcher.Limit,
		BatchSize: cfg.Fetcher.BatchSize,
		Window:    time.Duration(cfg.Fetcher.WindowMinutes) * time.Minute,
		Step:      time.Duration(cfg.Fetcher.StepMinutes) * time.Minute,
	}
}

// Load returns the legs selected by opts.
func Load(ctx context.Context, cfg *config.Config, opts Options) (*Legs, error) {
	switch {
	case opts.CSVPath != "":
		return LoadCSV(opts.CSVPath, cfg.Pair)
	case opts.FromDB:
		return loadDB(ctx, cfg, opts)
	default:
		return loadNode(ctx, cfg)
	}
}

// LoadCSV reads an export and keeps the rows of pair (rows without a pair are kept).
func LoadCSV(path, pair string) (*Legs, error) {
	rows, err := datastore.LoadMarketTradesFromCSV(path)
	if err != nil {
		return nil, err
	}
	kept := rows[:0]
	for _, r := range rows {
		if r.Pair == "" || r.Pair == pair {
			kept = append(kept, r)
		}
	}
	buys, sells := datastore.SplitLegs(kept)
	logger.Infof("Loaded %d legs (%d buys, %d sells) from %s", len(kept), len(buys), len(sells), path)
	return &Legs{Rows: kept, Buys: buys, Sells: sells}, nil
}

func loadDB(ctx context.Context, cfg *config.Config, opts Options) (*Legs, error) {
	if !cfg.Database.Enabled() {
		return nil, errors.New("database is not configured (DB_HOST, DB_USER, DB_NAME)")
	}
	end := opts.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start := opts.Start
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	defer pool.Close()

	rows, err := datastore.NewRepository(pool).FetchMarketTrades(ctx, cfg.Pair, start, end)
	if err != nil {
		return nil, err
	}
	buys, sells := datastore.SplitLegs(rows)
	logger.Infof("Loaded %d legs from the database between %s and %s", len(rows), start.Format(time.RFC3339), end.Format(time.RFC3339))
	return &Legs{Rows: rows, Buys: buys, Sells: sells}, nil
}

func loadNode(ctx context.Context, cfg *config.Config) (*Legs, error) {
	client := NewHiveClient(cfg)
	defer client.Close()

	res, err := market.NewFetcher(client, FetcherConfig(cfg)).FetchRecentTrades(ctx, nil)
	if err != nil {
		return nil, err
	}
	return FromResult(res, cfg.Pair), nil
}

// FromResult converts a fetch result into legs.
func FromResult(res *market.Result, pair string) *Legs {
	legs := &Legs{Buys: res.Buys, Sells: res.Sells}
	add := func(side string, trades []market.Trade) {
		for _, t := range trades {
			legs.Rows = append(legs.Rows, dbwriter.MarketTrade{Time: t.Timestamp, Pair: pair, Side: side, Price: t.Price, Volume: t.Volume})
		}
	}
	add(market.SideBuy, res.Buys)
	add(market.SideSell, res.Sells)
	return legs
}
