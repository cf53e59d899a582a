package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goldwatch/internal/config"
	"goldwatch/internal/ledger"
	"goldwatch/internal/models"
	"goldwatch/internal/repository"
)

// MonitorRepo is the storage slice the position monitor reads.
type MonitorRepo interface {
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	LatestTick(ctx context.Context, symbol string) (*models.PriceTick, error)
}

// SwitchPositionMonitor pauses automatic stop/target closes when flipped off.
const SwitchPositionMonitor = "position_monitor_enabled"

const (
	CloseReasonTarget = "target_hit"
	CloseReasonStop   = "stop_hit"
	CloseReasonUser   = "user_close"
)

// PositionMonitor marks open positions to market and closes any whose stop or
// target has been crossed. Closing races with user closes are settled by the
// ledger's status guard; losing that race is not an error here.
type PositionMonitor struct {
	Repo     MonitorRepo
	Ledger   *ledger.Ledger
	Switches Switches
	Logger   *zap.Logger
	Config   config.LedgerConfig
	Symbol   string
}

func NewPositionMonitor(repo MonitorRepo, lg *ledger.Ledger, sw Switches, logger *zap.Logger, cfg config.LedgerConfig, symbol string) *PositionMonitor {
	return &PositionMonitor{Repo: repo, Ledger: lg, Switches: sw, Logger: logger, Config: cfg, Symbol: symbol}
}

func (m *PositionMonitor) Run(ctx context.Context) {
	interval := m.Config.MonitorInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.Logger.Info("position monitor started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.Logger.Info("position monitor stopped")
			return
		case <-ticker.C:
			if m.Switches != nil && !m.Switches.Enabled(ctx, SwitchPositionMonitor) {
				continue
			}
			if err := m.RunOnce(ctx); err != nil {
				m.Logger.Error("position sweep failed", zap.Error(err))
			}
		}
	}
}

func (m *PositionMonitor) RunOnce(ctx context.Context) error {
	tick, err := m.Repo.LatestTick(ctx, m.Symbol)
	if err != nil {
		return err
	}
	if tick == nil {
		return nil
	}
	price := tick.Close

	positions, err := m.Repo.ListOpenPositions(ctx)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		reason := closeReason(&pos, price)
		if reason == "" {
			continue
		}
		if _, err := m.Ledger.Close(ctx, pos.ID, &price, reason); err != nil {
			if errors.Is(err, repository.ErrPositionNotOpen) {
				continue
			}
			m.Logger.Error("failed to close position",
				zap.Uint64("position_id", pos.ID),
				zap.String("reason", reason),
				zap.Error(err))
		}
	}
	return nil
}

// closeReason decides whether price has crossed the position's target or
// stop. Bulls close at-or-above target and at-or-below stop; bears mirror.
func closeReason(pos *models.Position, price decimal.Decimal) string {
	bull := pos.InstrumentType != models.InstrumentBear
	if pos.TargetPrice != nil {
		if bull && price.GreaterThanOrEqual(*pos.TargetPrice) {
			return CloseReasonTarget
		}
		if !bull && price.LessThanOrEqual(*pos.TargetPrice) {
			return CloseReasonTarget
		}
	}
	if pos.StopLoss != nil {
		if bull && price.LessThanOrEqual(*pos.StopLoss) {
			return CloseReasonStop
		}
		if !bull && price.GreaterThanOrEqual(*pos.StopLoss) {
			return CloseReasonStop
		}
	}
	return ""
}
