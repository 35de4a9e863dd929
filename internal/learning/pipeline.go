package learning

import (
	"context"
	"errors"
	"time"

	"github.com/AyusGup/Hive-Automation/internal/market"
	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// PipelineConfig controls retraining.
type PipelineConfig struct {
	UpdateInterval time.Duration
	RollingWindow  int
	ForecastSteps  int
	MaxTrades      int // trades kept for training, oldest dropped first
}

// Forecast is emitted after every successful retrain.
type Forecast struct {
	Version   string
	TrainedAt time.Time
	Rows      int
	Prices    []float64
}

// Pipelineはストリームされた約定からモデルを定期的に再学習します。
type Pipeline struct {
	stream       TradeStream
	model        Model
	cfg          PipelineConfig
	updateTicker *time.Ticker
	tradeBuffer  []market.Trade
	dirty        bool
	onForecast   func(Forecast)
	ready        chan struct{}
}

// NewPipelineは新しいPipelineを生成します。onForecastはnilでも構いません。
func NewPipeline(stream TradeStream, model Model, cfg PipelineConfig, onForecast func(Forecast)) *Pipeline {
	if cfg.RollingWindow <= 1 {
		cfg.RollingWindow = DefaultRollingWindow
	}
	if cfg.ForecastSteps <= 0 {
		cfg.ForecastSteps = 10
	}
	if cfg.MaxTrades <= 0 {
		cfg.MaxTrades = 5000
	}
	return &Pipeline{
		stream:       stream,
		model:        model,
		cfg:          cfg,
		updateTicker: time.NewTicker(cfg.UpdateInterval),
		tradeBuffer:  make([]market.Trade, 0, 1024),
		onForecast:   onForecast,
		ready:        make(chan struct{}),
	}
}

// Ready is closed once Start has subscribed to the stream (or failed to).
// Trades published before that are not seen by the pipeline.
func (p *Pipeline) Ready() <-chan struct{} {
	return p.ready
}

// Startは学習パイプラインを開始します。
// このメソッドはgoroutineとして実行されることを想定しています。
func (p *Pipeline) Start(ctx context.Context) {
	logger.Info("Starting learning pipeline...")
	sub, err := p.stream.Subscribe(ctx)
	close(p.ready)
	if err != nil {
		logger.Errorf("Failed to subscribe to trade stream: %v", err)
		return
	}

	for {
		select {
		case trade, ok := <-sub:
			if !ok {
				logger.Info("Trade stream closed.")
				return
			}
			p.add(trade)
		case <-p.updateTicker.C:
			if !p.dirty {
				logger.Debug("Ticker triggered, but no new trades to train on.")
				continue
			}
			p.retrain(ctx)
		case <-ctx.Done():
			logger.Info("Stopping learning pipeline...")
			return
		}
	}
}

func (p *Pipeline) add(trade market.Trade) {
	p.tradeBuffer = append(p.tradeBuffer, trade)
	if over := len(p.tradeBuffer) - p.cfg.MaxTrades; over > 0 {
		p.tradeBuffer = append(p.tradeBuffer[:0], p.tradeBuffer[over:]...)
	}
	p.dirty = true
}

func (p *Pipeline) retrain(ctx context.Context) {
	features, err := PrepareFeatures(p.tradeBuffer, p.cfg.RollingWindow)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			logger.Debugf("Skipping retrain: %v", err)
		} else {
			logger.Errorf("Failed to prepare features: %v", err)
		}
		return
	}
	logger.Infof("Starting model training with %d rows.", len(features))
	if err := p.model.Train(ctx, features); err != nil {
		logger.Errorf("Failed to train model: %v", err)
		return
	}
	p.dirty = false

	prices, err := PredictNextPrices(p.model, features[len(features)-1], p.cfg.ForecastSteps)
	if err != nil {
		logger.Errorf("Failed to forecast: %v", err)
		return
	}
	fc := Forecast{Version: p.model.Version(), TrainedAt: time.Now().UTC(), Rows: len(features), Prices: prices}
	logger.Infof("Model %s forecast: %v", fc.Version, fc.Prices)
	if p.onForecast != nil {
		p.onForecast(fc)
	}
}

// Stopは学習パイプラインを停止します。
func (p *Pipeline) Stop() {
	p.updateTicker.Stop()
}
