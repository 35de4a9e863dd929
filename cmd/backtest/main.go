// Command backtest replays historical buy/sell legs through the greedy
// simulator and prints the resulting trade log and PnL analysis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AyusGup/Hive-Automation/internal/backtest"
	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/engine"
	"github.com/AyusGup/Hive-Automation/internal/report"
	"github.com/AyusGup/Hive-Automation/internal/tradesource"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	csvPath := flag.String("csv", "", "Replay a CSV export instead of the node")
	fromDB := flag.Bool("db", false, "Replay legs stored in the database")
	initial := flag.Float64("initial-hbd", 0, "Starting HBD balance (defaults to backtest.initial_hbd)")
	saveReport := flag.Bool("save-report", false, "Store the analysis in pnl_reports")
	replayDB := flag.Bool("replay-db", false, "Record the simulated fills as bot orders and PnL summaries")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)

	ctx := context.Background()
	legs, err := tradesource.Load(ctx, cfg, tradesource.Options{CSVPath: *csvPath, FromDB: *fromDB})
	if err != nil {
		logger.Fatalf("Failed to load trades: %v", err)
	}

	initialHBD := cfg.Backtest.InitialHBD
	if *initial > 0 {
		initialHBD = *initial
	}
	res, err := backtest.SimulateTrades(legs.Buys, legs.Sells, initialHBD)
	if err != nil {
		logger.Fatalf("Simulation failed: %v", err)
	}

	svc := report.NewService(nil)
	var pool *pgxpool.Pool
	if *saveReport || *replayDB {
		if !cfg.Database.Enabled() {
			logger.Fatal("-save-report and -replay-db need a configured database.")
		}
		pool, err = pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			logger.Fatalf("Unable to connect to database: %v", err)
		}
		defer pool.Close()
		svc = report.NewService(pool)
	}

	rep, err := svc.AnalyzeTrades(res.ReportTrades(cfg.Pair))
	if err != nil && !errors.Is(err, report.ErrNoTrades) {
		logger.Fatalf("Failed to analyze trades: %v", err)
	}
	analyzed := err == nil
	printResult(os.Stdout, res, rep, analyzed)

	if *saveReport && analyzed {
		if err := svc.SavePnlReport(ctx, rep, "backtest"); err != nil {
			logger.Errorf("%v", err)
		} else {
			logger.Info("Backtest report saved.")
		}
	}
	if *replayDB {
		w := dbwriter.NewTimescaleWriter(pool, cfg.DBWriter, logger.NewZap(cfg.LogLevel))
		if err := replay(ctx, w, cfg.Pair, res); err != nil {
			logger.Errorf("Replay failed: %v", err)
		}
		w.Close()
	}
}

// replay feeds the simulated fills through the replay engine so they are
// stored like live orders, stamped with their historical times.
func replay(ctx context.Context, w dbwriter.DBWriter, pair string, res *backtest.Result) error {
	eng := engine.NewReplayExecutionEngine(w, pair)
	for _, f := range res.Fills {
		at := f.Time
		eng.SetClock(func() time.Time { return at })
		if _, err := eng.PlaceOrder(ctx, f.Side, f.Amount, f.Price); err != nil {
			return err
		}
	}
	size, avg := eng.Position()
	logger.Infof("Replayed %d fills: position %.4f HIVE @ %.6f, realized PnL %.4f HBD", len(res.Fills), size, avg, eng.RealizedPnL())
	return nil
}

func printResult(out io.Writer, res *backtest.Result, rep report.Report, analyzed bool) {
	fmt.Fprintln(out, "Trade Log:")
	for _, line := range res.TradeLog {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "\nInitial Portfolio Value: %.4f HBD\n", res.InitialValue)
	fmt.Fprintf(out, "Final Portfolio Value: %.4f HBD\n", res.FinalValue)
	fmt.Fprintf(out, "Profit or Loss: %.4f HBD\n", res.ProfitOrLoss)
	fmt.Fprintf(out, "Final balances: %.4f HBD, %.4f HIVE\n", res.FinalHBD, res.FinalHIVE)
	if !analyzed {
		fmt.Fprintln(out, "\nNo fills to analyze.")
		return
	}
	fmt.Fprintf(out, "\nRound trips: %d (win rate %.1f%%)\n", rep.TotalTrades, rep.WinRate)
	fmt.Fprintf(out, "Total PnL: %s HBD, max drawdown %s HBD\n", rep.TotalPnL.StringFixed(4), rep.MaxDrawdown.StringFixed(4))
	fmt.Fprintf(out, "Profit factor: %.2f, Sharpe: %.2f, Sortino: %.2f\n", rep.ProfitFactor, rep.SharpeRatio, rep.SortinoRatio)
}
