// Package benchmark はポートフォリオのHBD建て評価額を記録します。
package benchmark

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AyusGup/Hive-Automation/internal/dbwriter"
)

// Snapshot is one valuation together with the value the starting balances would have now.
type Snapshot struct {
	Value     float64
	HoldValue float64
}

// Excess is how far the traded portfolio is ahead of simply holding.
func (s Snapshot) Excess() float64 { return s.Value - s.HoldValue }

// Service は評価額を計算し、DBライターに保存します。
type Service struct {
	logger *zap.Logger
	writer dbwriter.DBWriter
	now    func() time.Time

	mu                  sync.Mutex
	started             bool
	startHBD, startHIVE float64
}

// NewService は新しいServiceを生成します。writerはnilでも構いません。
func NewService(logger *zap.Logger, writer dbwriter.DBWriter) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, writer: writer, now: time.Now}
}

// Tick values hbd + hive*price and persists it. The first call fixes the hold baseline.
func (s *Service) Tick(ctx context.Context, hbd, hive, price float64) Snapshot {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.startHBD, s.startHIVE = hbd, hive
	}
	snap := Snapshot{
		Value:     hbd + hive*price,
		HoldValue: s.startHBD + s.startHIVE*price,
	}
	s.mu.Unlock()

	s.logger.Debug("portfolio valued",
		zap.Float64("hbd", hbd),
		zap.Float64("hive", hive),
		zap.Float64("price", price),
		zap.Float64("value", snap.Value),
		zap.Float64("excess", snap.Excess()))

	if s.writer != nil {
		s.writer.SaveBenchmarkValue(ctx, dbwriter.BenchmarkValue{
			Time:  s.now().UTC(),
			HBD:   hbd,
			HIVE:  hive,
			Price: price,
			Value: snap.Value,
		})
	}
	return snap
}
