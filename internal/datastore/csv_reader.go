package datastore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// CSVHeader is the column layout written by the exporter.
var CSVHeader = []string{"time", "pair", "side", "price", "volume"}

// StreamMarketTradesFromCSV streams legs from a CSV file with header
// time,pair,side,price,volume. Malformed records are logged and skipped.
func StreamMarketTradesFromCSV(ctx context.Context, filePath string) (<-chan dbwriter.MarketTrade, <-chan error) {
	eventCh := make(chan dbwriter.MarketTrade)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		file, err := os.Open(filePath)
		if err != nil {
			errCh <- fmt.Errorf("failed to open csv file: %w", err)
			return
		}
		defer file.Close()

		reader := csv.NewReader(file)
		if _, err := reader.Read(); err != nil {
			if err != io.EOF {
				errCh <- fmt.Errorf("failed to read csv header: %w", err)
			}
			return // Empty file is not an error
		}

		total := 0
		for {
			record, err := reader.Read()
			if err == io.EOF {
				logger.Infof("Streamed %d market trades from %s", total, filePath)
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("failed to read csv record: %w", err)
				return
			}
			trade, ok := parseRecord(record)
			if !ok {
				continue
			}
			select {
			case eventCh <- trade:
				total++
			case <-ctx.Done():
				logger.Info("CSV streaming cancelled by context.")
				return
			}
		}
	}()

	return eventCh, errCh
}

// LoadMarketTradesFromCSV reads an entire CSV file into memory.
func LoadMarketTradesFromCSV(filePath string) ([]dbwriter.MarketTrade, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, errs := StreamMarketTradesFromCSV(ctx, filePath)
	var trades []dbwriter.MarketTrade
	for t := range events {
		trades = append(trades, t)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return trades, nil
}

func parseRecord(record []string) (dbwriter.MarketTrade, bool) {
	if len(record) != len(CSVHeader) {
		logger.Warnf("Skipping record due to invalid number of columns: expected %d, got %d", len(CSVHeader), len(record))
		return dbwriter.MarketTrade{}, false
	}
	ts, err := parseTime(record[0])
	if err != nil {
		logger.Warnf("Skipping record due to time parse error: %v", err)
		return dbwriter.MarketTrade{}, false
	}
	price, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		logger.Warnf("Skipping record due to price parse error: %v", err)
		return dbwriter.MarketTrade{}, false
	}
	volume, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		logger.Warnf("Skipping record due to volume parse error: %v", err)
		return dbwriter.MarketTrade{}, false
	}
	return dbwriter.MarketTrade{Time: ts, Pair: record[1], Side: record[2], Price: price, Volume: volume}, true
}

func parseTime(timeStr string) (time.Time, error) {
	// psql exports look like "2025-07-14 04:11:13.484971+00", the exporter writes RFC3339
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999-07", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse time '%s' with any known format", timeStr)
}
