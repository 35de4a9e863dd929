// Package main is the entry point of the HIVE/HBD market-making bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AyusGup/Hive-Automation/internal/alert"
	"github.com/AyusGup/Hive-Automation/internal/benchmark"
	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/datastore"
	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/internal/engine"
	"github.com/AyusGup/Hive-Automation/internal/exchange/hive"
	"github.com/AyusGup/Hive-Automation/internal/http/handler"
	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/internal/publisher"
	"github.com/AyusGup/Hive-Automation/internal/tradesource"
	"github.com/AyusGup/Hive-Automation/internal/trader"
	"github.com/AyusGup/Hive-Automation/internal/wallet"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	zapLogger := logger.NewZap(cfg.LogLevel)
	defer func() {
		if err := zapLogger.Sync(); err != nil {
			// We can't use the logger here because it's being synced.
			fmt.Fprintf(os.Stderr, "Failed to sync zap logger: %v\n", err)
		}
	}()
	logger.Info("HIVE market bot starting...")
	logger.Infof("Loaded configuration from: %s", *configPath)
	logger.Infof("Account: %s, pair: %s, node: %s, dry_run: %t", cfg.AccountName, cfg.Pair, cfg.Hive.NodeURL, cfg.Trading.DryRun.Bool())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Hive client ---
	client := tradesource.NewHiveClient(cfg)
	defer client.Close()

	// --- TimescaleDB (optional) ---
	var (
		dbWriter dbwriter.DBWriter = dbwriter.NewDummyWriter(logger.FromZap(zapLogger))
		repo     datastore.Store
	)
	if cfg.Database.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			logger.Fatalf("Unable to connect to database: %v", err)
		}
		defer pool.Close()
		dbWriter = dbwriter.NewTimescaleWriter(pool, cfg.DBWriter, zapLogger)
		repo = datastore.NewRepository(pool)
		logger.Info("TimescaleDB writer initialized successfully.")
	}
	defer dbWriter.Close()

	// --- Event sink (optional) ---
	pub := publisher.New(cfg.Kafka, zapLogger)
	defer pub.Close()

	// --- Alerts ---
	notifier := alert.NewLogNotifier(zapLogger.Named("alert"), time.Minute)
	defer notifier.Close()

	// --- Order execution ---
	var broadcaster hive.Broadcaster = hive.DryRunBroadcaster{}
	if !cfg.Trading.DryRun.Bool() {
		broadcaster = hive.NewRelayBroadcaster(cfg.Hive.SignerURL, cfg.AccountName, cfg.Hive.SignerKey(cfg.PrivateKey))
	}
	exec := engine.NewLiveExecutionEngine(broadcaster, engine.LiveConfigFrom(cfg),
		engine.WithDBWriter(dbWriter),
		engine.WithNotifier(notifier),
		engine.WithOrderSink(pub),
		engine.WithConfirmer(client),
	)

	deps := trader.Deps{
		Wallet:    wallet.NewReader(client, cfg.AccountName, cfg.Trading.BufferAmount),
		Trades:    market.NewFetcher(client, tradesource.FetcherConfig(cfg)),
		Ticker:    client,
		Engine:    exec,
		Writer:    dbWriter,
		Publisher: pub,
		Benchmark: benchmark.NewService(zapLogger.Named("benchmark"), dbWriter),
	}
	if repo != nil {
		deps.LastPrices = repo
	}
	bot := trader.New(trader.ConfigFrom(cfg), deps)
	if err := bot.RestoreLastPrices(ctx); err != nil {
		logger.Warnf("%v", err)
	}

	// --- Health / status server ---
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewMux(bot, repo, cfg.Pair),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("Health check server starting on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Health check server failed: %v", err)
		}
	}()

	// --- Main loop ---
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Trading loop exited: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP server shutdown: %v", err)
	}
	logger.Info("HIVE market bot shut down gracefully.")
}
