// Command learner trains the linear price model on market legs and prints a
// forecast. With -serve it keeps polling the node and retrains periodically.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/learning"
	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/internal/tradesource"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	csvPath := flag.String("csv", "", "train on a CSV export instead of the node")
	fromDB := flag.Bool("db", false, "train on legs stored in the database")
	serve := flag.Bool("serve", false, "keep polling the node and retrain on an interval")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)
	logger.Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		runServe(ctx, cfg)
		return
	}

	legs, err := tradesource.Load(ctx, cfg, tradesource.Options{CSVPath: *csvPath, FromDB: *fromDB})
	if err != nil {
		logger.Fatalf("Failed to load trades: %v", err)
	}
	if err := trainOnce(ctx, cfg.Learning, legs.All()); err != nil {
		logger.Fatalf("Training failed: %v", err)
	}
}

func trainOnce(ctx context.Context, lc config.LearningConfig, trades []market.Trade) error {
	features, err := learning.PrepareFeatures(trades, lc.RollingWindow)
	if err != nil {
		return err
	}
	model, r2, err := learning.TrainModel(ctx, features, lc.TestSize, lc.Seed)
	if err != nil {
		return err
	}
	intercept, coef := model.Coefficients()
	logger.Infof("Model trained on %d rows: R^2=%.4f intercept=%.6f coef=%v", len(features), r2, intercept, coef)

	prices, err := learning.PredictNextPrices(model, features[len(features)-1], lc.ForecastSteps)
	if err != nil {
		return err
	}
	for i, p := range prices {
		fmt.Printf("step %2d: %.6f HBD\n", i+1, p)
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) {
	stream := learning.NewInMemoryTradeStream(1024)
	interval := time.Duration(cfg.Learning.RetrainIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	pipeline := learning.NewPipeline(stream, learning.NewLinearModel(), learning.PipelineConfig{
		UpdateInterval: interval,
		RollingWindow:  cfg.Learning.RollingWindow,
		ForecastSteps:  cfg.Learning.ForecastSteps,
	}, nil)
	defer pipeline.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		pipeline.Start(ctx)
	}()
	<-pipeline.Ready()

	client := tradesource.NewHiveClient(cfg)
	defer client.Close()
	fetcher := market.NewFetcher(client, tradesource.FetcherConfig(cfg))

	logger.Infof("Online learner service started. Retraining every %v.", interval)
	pollInterval := cfg.Trading.PollInterval()
	var lastFetch *time.Time
	var lastSeen time.Time
	for {
		res, err := fetcher.FetchRecentTrades(ctx, lastFetch)
		if err != nil {
			logger.Warnf("Failed to fetch trades: %v", err)
		} else {
			end := res.WindowEnd
			lastFetch = &end
			lastSeen = publishNew(ctx, stream, res, lastSeen)
		}

		select {
		case <-ctx.Done():
			logger.Info("Shutting down online learner service...")
			<-done
			return
		case <-time.After(pollInterval):
		}
	}
}

// publishNew sends the legs newer than since and returns the newest timestamp seen.
func publishNew(ctx context.Context, stream *learning.InMemoryTradeStream, res *market.Result, since time.Time) time.Time {
	newest := since
	for _, t := range tradesource.FromResult(res, "").All() {
		if !t.Timestamp.After(since) {
			continue
		}
		if err := stream.Publish(ctx, t); err != nil {
			logger.Warnf("Failed to publish trade: %v", err)
			return newest
		}
		if t.Timestamp.After(newest) {
			newest = t.Timestamp
		}
	}
	return newest
}
