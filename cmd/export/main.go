// Command export writes market legs from the database or the node to a CSV
// file that the backtest and learner tools can read back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/csvwriter"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/tradesource"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

const timeLayout = "2006-01-02 15:04:05"

func main() {
	// --- Argument Parsing ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	startTimeStr := flag.String("start", "", "Start of the export window (YYYY-MM-DD HH:MM:SS, UTC); requires -db")
	endTimeStr := flag.String("end", "", "End of the export window (YYYY-MM-DD HH:MM:SS, UTC); requires -db")
	fromDB := flag.Bool("db", false, "Export from the database instead of the node")
	out := flag.String("out", "market_trades.csv", "Output CSV path")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)

	start, err := parseFlagTime(*startTimeStr)
	if err != nil {
		logger.Fatalf("Invalid -start: %v", err)
	}
	end, err := parseFlagTime(*endTimeStr)
	if err != nil {
		logger.Fatalf("Invalid -end: %v", err)
	}
	if !*fromDB && (!start.IsZero() || !end.IsZero()) {
		logger.Fatal("-start and -end only apply with -db; the node export always covers the latest window.")
	}

	ctx := context.Background()
	legs, err := tradesource.Load(ctx, cfg, tradesource.Options{FromDB: *fromDB, Start: start, End: end})
	if err != nil {
		logger.Fatalf("Failed to load trades: %v", err)
	}

	n, err := export(*out, legs.Rows)
	if err != nil {
		logger.Fatalf("Export failed: %v", err)
	}
	logger.Infof("Successfully exported %d rows to %s.", n, *out)
}

func parseFlagTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

func export(path string, rows []dbwriter.MarketTrade) (int, error) {
	w, err := csvwriter.NewWriter(path, logger.NewZap("info"))
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := w.WriteMarketTrade(r); err != nil {
			w.Close()
			return w.Rows(), err
		}
	}
	if err := w.Close(); err != nil {
		return w.Rows(), err
	}
	return w.Rows(), nil
}
