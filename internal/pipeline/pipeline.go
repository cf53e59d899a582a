package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"goldwatch/internal/combiner"
	"goldwatch/internal/config"
	"goldwatch/internal/market"
	"goldwatch/internal/models"
	"goldwatch/internal/publisher"
	"goldwatch/internal/scorer"
)

// Repo is the storage slice the pipeline reads market data through.
type Repo interface {
	ListRecentTicks(ctx context.Context, symbol string, limit int) ([]models.PriceTick, error)
}

// Switches gates the pipeline at runtime; nil means always on.
type Switches interface {
	Enabled(ctx context.Context, key string) bool
}

// SwitchPipeline pauses signal generation when flipped off. Already-active
// signals and queued executions are unaffected.
const SwitchPipeline = "signal_pipeline_enabled"

// Pipeline runs one scoring pass per interval: load the tick window, compute
// indicators, run the tool bank, fuse, publish. Each stage is pure except the
// final publish; a pass that cannot complete leaves the previous active
// signal untouched.
type Pipeline struct {
	Repo      Repo
	Bank      *scorer.Bank
	Combiner  *combiner.Combiner
	Publisher *publisher.Publisher
	Switches  Switches
	Logger    *zap.Logger
	Config    config.PipelineConfig
	Symbol    string
}

func New(repo Repo, bank *scorer.Bank, comb *combiner.Combiner, pub *publisher.Publisher, sw Switches, logger *zap.Logger, cfg config.PipelineConfig, symbol string) *Pipeline {
	return &Pipeline{
		Repo:      repo,
		Bank:      bank,
		Combiner:  comb,
		Publisher: pub,
		Switches:  sw,
		Logger:    logger,
		Config:    cfg,
		Symbol:    symbol,
	}
}

func (p *Pipeline) Run(ctx context.Context) {
	interval := p.Config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.Logger.Info("signal pipeline started", zap.String("symbol", p.Symbol), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("signal pipeline stopped")
			return
		case <-ticker.C:
			if p.Switches != nil && !p.Switches.Enabled(ctx, SwitchPipeline) {
				continue
			}
			if err := p.RunOnce(ctx); err != nil {
				p.Logger.Error("pipeline pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a single pass. A short window is not an error, just a
// skipped pass; an aggregation error is fatal to the pass and publishes
// nothing.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	windowSize := p.Config.WindowSize
	if windowSize < market.MinWindow {
		windowSize = market.MinWindow
	}
	ticks, err := p.Repo.ListRecentTicks(ctx, p.Symbol, windowSize)
	if err != nil {
		return err
	}
	if len(ticks) < market.MinWindow {
		p.Logger.Info("tick window still warming up",
			zap.Int("have", len(ticks)),
			zap.Int("need", market.MinWindow))
		return nil
	}

	snap := market.Compute(ticks)
	results := p.Bank.Run(ctx, scorer.Context{
		Snapshot:     snap,
		CurrentPrice: snap.LastClose,
	})

	rec, err := p.Combiner.Combine(results, snap.LastCloseDecimal())
	if err != nil {
		var aggErr *combiner.AggregationError
		if errors.As(err, &aggErr) {
			p.Logger.Error("malformed tool result set, keeping previous signal", zap.Error(err))
			return nil
		}
		return err
	}

	p.Logger.Info("pipeline pass combined",
		zap.String("action", rec.Action),
		zap.Float64("composite", rec.Composite),
		zap.Float64("confidence", rec.Confidence))

	_, err = p.Publisher.Publish(ctx, rec)
	return err
}
