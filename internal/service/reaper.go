package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"goldwatch/internal/config"
)

// ReaperRepo is the storage slice the reaper sweeps through.
type ReaperRepo interface {
	ReapStaleProcessing(ctx context.Context, claimedBefore time.Time, errorMessage string) (int64, error)
}

// SwitchQueueReaper pauses the sweep when flipped off.
const SwitchQueueReaper = "queue_reaper_enabled"

// QueueReaper fails queue items stuck in processing past the wall-clock
// budget. A worker that crashed mid-claim leaves its item in processing
// forever; the sweep is what turns that into a visible failure instead of a
// silently wedged row.
type QueueReaper struct {
	Repo     ReaperRepo
	Switches Switches
	Logger   *zap.Logger
	Config   config.QueueConfig
}

// Switches gates background services at runtime; nil means always on.
type Switches interface {
	Enabled(ctx context.Context, key string) bool
}

func NewQueueReaper(repo ReaperRepo, sw Switches, logger *zap.Logger, cfg config.QueueConfig) *QueueReaper {
	return &QueueReaper{Repo: repo, Switches: sw, Logger: logger, Config: cfg}
}

func (r *QueueReaper) Run(ctx context.Context) {
	interval := r.Config.ReaperInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r.Logger.Info("queue reaper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("queue reaper stopped")
			return
		case <-ticker.C:
			if r.Switches != nil && !r.Switches.Enabled(ctx, SwitchQueueReaper) {
				continue
			}
			if err := r.RunOnce(ctx); err != nil {
				r.Logger.Error("queue reap failed", zap.Error(err))
			}
		}
	}
}

func (r *QueueReaper) RunOnce(ctx context.Context) error {
	budget := r.Config.ProcessingBudget
	if budget <= 0 {
		budget = 2 * time.Minute
	}
	cutoff := time.Now().UTC().Add(-budget)
	reaped, err := r.Repo.ReapStaleProcessing(ctx, cutoff, "orphaned: exceeded processing budget")
	if err != nil {
		return err
	}
	if reaped > 0 {
		r.Logger.Warn("reaped orphaned queue items", zap.Int64("count", reaped))
	}
	return nil
}
