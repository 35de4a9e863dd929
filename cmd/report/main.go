// Command report periodically analyses the bot's own orders and stores the
// result in pnl_reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/datastore"
	"github.com/AyusGup/Hive-Automation/internal/report"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

const reportSource = "live"

type orderSource interface {
	FetchOrdersForReport(ctx context.Context, pair string, start, end time.Time) ([]report.Trade, error)
}

type reportPruner interface {
	DeleteOldPnlReports(ctx context.Context, maxAge time.Duration) (int64, error)
}

type reportSaver interface {
	SavePnlReport(ctx context.Context, r report.Report, source string) error
}

type generator struct {
	orders    orderSource
	pruner    reportPruner
	saver     reportSaver
	analyzer  *report.Service
	pair      string
	window    time.Duration
	retention time.Duration
	l         logger.Logger
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	interval := flag.Duration("interval", time.Hour, "How often to generate a report")
	window := flag.Duration("window", 7*24*time.Hour, "Lookback window of orders to analyse")
	retention := flag.Duration("retention", 30*24*time.Hour, "Delete reports older than this (0 keeps all)")
	once := flag.Bool("once", false, "Generate a single report and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	l := logger.NewLogger(cfg.LogLevel)
	if !cfg.Database.Enabled() {
		l.Fatal("Report generation needs a database; set database.host in the config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		l.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	repo := datastore.NewRepository(dbpool)
	svc := report.NewService(dbpool)
	g := &generator{
		orders:    repo,
		pruner:    repo,
		saver:     svc,
		analyzer:  svc,
		pair:      cfg.Pair,
		window:    *window,
		retention: *retention,
		l:         l,
	}

	if _, err := g.run(ctx, time.Now().UTC()); err != nil {
		l.Errorf("Report generation failed: %v", err)
	}
	if *once {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	l.Infof("Report generator started. Will run every %v.", *interval)

	for {
		select {
		case <-ticker.C:
			l.Info("--- Running Report Generation ---")
			if _, err := g.run(ctx, time.Now().UTC()); err != nil {
				l.Errorf("Report generation failed: %v", err)
			}
		case <-ctx.Done():
			l.Info("Shutting down report generator.")
			return
		}
	}
}

// run analyses the orders in [now-window, now], saves the report and prunes
// old ones. A window without executed orders is not an error.
func (g *generator) run(ctx context.Context, now time.Time) (*report.Report, error) {
	trades, err := g.orders.FetchOrdersForReport(ctx, g.pair, now.Add(-g.window), now)
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}

	rep, err := g.analyzer.AnalyzeTrades(trades)
	if err != nil {
		if errors.Is(err, report.ErrNoTrades) {
			g.l.Infof("Skipping report generation: %v", err)
			g.prune(ctx)
			return nil, nil
		}
		return nil, fmt.Errorf("analyze orders: %w", err)
	}

	if err := g.saver.SavePnlReport(ctx, rep, reportSource); err != nil {
		return nil, err
	}
	g.l.Infof("Saved PnL report from %d orders: total_pnl=%s HBD, win_rate=%.1f%%",
		len(trades), rep.TotalPnL.StringFixed(4), rep.WinRate)

	g.prune(ctx)
	return &rep, nil
}

func (g *generator) prune(ctx context.Context) {
	if g.retention <= 0 || g.pruner == nil {
		return
	}
	n, err := g.pruner.DeleteOldPnlReports(ctx, g.retention)
	if err != nil {
		g.l.Warnf("Failed to prune old reports: %v", err)
		return
	}
	if n > 0 {
		g.l.Infof("Deleted %d reports older than %v", n, g.retention)
	}
}
