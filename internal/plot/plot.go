// Package plot renders the market price trend.
package plot

import (
	"errors"
	"fmt"
	"sort"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/AyusGup/Hive-Automation/internal/market"
)

// ErrNoTrades is returned when there is nothing to plot.
var ErrNoTrades = errors.New("no trades to plot")

// Size of the rendered image.
var (
	Width  = 10 * vg.Inch
	Height = 6 * vg.Inch
)

// NewPriceTrend builds the price-over-time line plot. Trades are sorted by time first.
func NewPriceTrend(trades []market.Trade) (*gplot.Plot, error) {
	if len(trades) == 0 {
		return nil, ErrNoTrades
	}
	sorted := make([]market.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	pts := make(plotter.XYs, len(sorted))
	for i, t := range sorted {
		pts[i].X = float64(t.Timestamp.Unix())
		pts[i].Y = t.Price
	}

	p := gplot.New()
	p.Title.Text = "Hive Price Trend"
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Price"
	p.X.Tick.Marker = gplot.TimeTicks{Format: "01-02\n15:04"}
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build price line: %w", err)
	}
	p.Add(line)
	p.Legend.Add("Price (HIVE/HBD)", line)
	p.Legend.Top = true
	return p, nil
}

// PlotPriceTrend renders the price trend to path. The format follows the
// extension (.png, .svg, .pdf, ...).
func PlotPriceTrend(trades []market.Trade, path string) error {
	p, err := NewPriceTrend(trades)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("failed to save plot to %s: %w", path, err)
	}
	return nil
}
