// Command plot renders the price trend of recent market legs to a PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/AyusGup/Hive-Automation/internal/config"
	"github.com/AyusGup/Hive-Automation/internal/plot"
	"github.com/AyusGup/Hive-Automation/internal/tradesource"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	csvPath := flag.String("csv", "", "Plot a CSV export instead of the node")
	fromDB := flag.Bool("db", false, "Plot legs stored in the database")
	out := flag.String("out", "trend.png", "Output image path")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)

	legs, err := tradesource.Load(context.Background(), cfg, tradesource.Options{CSVPath: *csvPath, FromDB: *fromDB})
	if err != nil {
		logger.Fatalf("Failed to load trades: %v", err)
	}
	if err := plot.PlotPriceTrend(legs.All(), *out); err != nil {
		logger.Fatalf("Failed to plot: %v", err)
	}
	logger.Infof("Price trend written to %s", *out)
}
