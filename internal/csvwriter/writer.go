// Package csvwriter writes market legs in the layout the datastore CSV reader accepts.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
)

var header = []string{"time", "pair", "side", "price", "volume"}

// Writer is a CSV writer for market legs.
type Writer struct {
	closer io.Closer
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
	rows   int
}

// NewWriter creates the file and writes the header row.
func NewWriter(filePath string, logger *zap.Logger) (*Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}
	w, err := newWriter(file, file, logger)
	if err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(out io.Writer, closer io.Closer, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{closer: closer, writer: csv.NewWriter(out), logger: logger}
	if err := w.writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return w, nil
}

// WriteMarketTrade appends one leg.
func (w *Writer) WriteMarketTrade(t dbwriter.MarketTrade) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	record := []string{
		t.Time.UTC().Format(time.RFC3339Nano),
		t.Pair,
		t.Side,
		strconv.FormatFloat(t.Price, 'f', -1, 64),
		strconv.FormatFloat(t.Volume, 'f', -1, 64),
	}
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	w.rows++
	return nil
}

// Rows returns the number of legs written so far.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Flush flushes any buffered data to the underlying file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	w.logger.Info("CSV writer closed", zap.Int("rows", w.Rows()))
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
