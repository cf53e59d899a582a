package execqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goldwatch/internal/broker"
	"goldwatch/internal/config"
	"goldwatch/internal/ledger"
	"goldwatch/internal/models"
)

// Repo is the storage slice the queue workers need.
type Repo interface {
	ListPendingQueueItemIDs(ctx context.Context, limit int) ([]uint64, error)
	ClaimQueueItem(ctx context.Context, id uint64, claimedAt time.Time) (bool, error)
	FinishQueueItem(ctx context.Context, id uint64, status string, errorMessage string, processedAt time.Time) error
	GetQueueItemByID(ctx context.Context, id uint64) (*models.QueueItem, error)
	InsertQueueItem(ctx context.Context, item *models.QueueItem) error
	GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error)
	MarkSignalExecuted(ctx context.Context, id uint64, at time.Time) error
	GetUserSetting(ctx context.Context, userID string) (*models.UserSetting, error)
}

// Switches gates queue processing at runtime. Satisfied by
// service.SettingsService; nil means always on.
type Switches interface {
	Enabled(ctx context.Context, key string) bool
}

// SwitchQueueProcessing pauses all claim attempts when flipped off.
const SwitchQueueProcessing = "queue_processing_enabled"

// Workers drains the execution queue. Several workers poll concurrently; the
// conditional pending→processing claim in storage is what keeps any item from
// executing twice. A failed item stays failed; retries are fresh rows
// scheduled after a backoff.
type Workers struct {
	Repo     Repo
	Ledger   *ledger.Ledger
	Broker   broker.Broker
	Switches Switches
	Logger   *zap.Logger
	Config   config.QueueConfig

	PositionValue decimal.Decimal

	wg sync.WaitGroup
}

func NewWorkers(repo Repo, lg *ledger.Ledger, br broker.Broker, sw Switches, logger *zap.Logger, cfg config.QueueConfig, positionValue decimal.Decimal) *Workers {
	return &Workers{
		Repo:          repo,
		Ledger:        lg,
		Broker:        br,
		Switches:      sw,
		Logger:        logger,
		Config:        cfg,
		PositionValue: positionValue,
	}
}

// Run blocks until ctx is done, keeping Config.Workers pollers going.
func (w *Workers) Run(ctx context.Context) {
	n := w.Config.Workers
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go func(worker int) {
			defer w.wg.Done()
			w.pollLoop(ctx, worker)
		}(i)
	}
	w.wg.Wait()
}

func (w *Workers) pollLoop(ctx context.Context, worker int) {
	interval := w.Config.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	w.Logger.Info("queue worker started", zap.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("queue worker stopped", zap.Int("worker", worker))
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Workers) drainOnce(ctx context.Context) {
	if w.Switches != nil && !w.Switches.Enabled(ctx, SwitchQueueProcessing) {
		return
	}
	ids, err := w.Repo.ListPendingQueueItemIDs(ctx, w.Config.BatchSize)
	if err != nil {
		w.Logger.Error("failed to list pending queue items", zap.Error(err))
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		w.ProcessOne(ctx, id)
	}
}

// ProcessOne claims and executes a single queue item. Returns true when this
// call won the claim and drove the item to a terminal state; false when
// another worker got there first.
func (w *Workers) ProcessOne(ctx context.Context, id uint64) bool {
	claimed, err := w.Repo.ClaimQueueItem(ctx, id, time.Now().UTC())
	if err != nil {
		w.Logger.Error("failed to claim queue item", zap.Uint64("queue_item_id", id), zap.Error(err))
		return false
	}
	if !claimed {
		return false
	}

	item, err := w.Repo.GetQueueItemByID(ctx, id)
	if err != nil || item == nil {
		w.finish(ctx, id, models.QueueFailed, "queue item vanished after claim", nil)
		return true
	}

	if execErr := w.execute(ctx, item); execErr != nil {
		// The broker or ledger message lands in error_message untouched.
		w.finish(ctx, id, models.QueueFailed, execErr.Error(), item)
		return true
	}
	w.finish(ctx, id, models.QueueCompleted, "", nil)
	return true
}

func (w *Workers) execute(ctx context.Context, item *models.QueueItem) error {
	signal, err := w.Repo.GetSignalByID(ctx, item.SignalID)
	if err != nil {
		return fmt.Errorf("load signal: %w", err)
	}
	if signal == nil {
		return fmt.Errorf("signal %d not found", item.SignalID)
	}

	var instrument string
	switch signal.SignalType {
	case models.SignalBuy:
		instrument = models.InstrumentBull
	case models.SignalSell:
		instrument = models.InstrumentBear
	default:
		return fmt.Errorf("signal %d is not executable (%s)", signal.ID, signal.SignalType)
	}

	mode := models.TradingModePaper
	setting, err := w.Repo.GetUserSetting(ctx, item.UserID)
	if err != nil {
		return fmt.Errorf("load user setting: %w", err)
	}
	if setting != nil && setting.TradingMode == models.TradingModeLive {
		mode = models.TradingModeLive
	}

	entry := signal.CurrentPrice
	if mode == models.TradingModeLive {
		result, err := w.Broker.PlaceOrder(ctx, broker.OrderRequest{
			UserID:         item.UserID,
			InstrumentType: instrument,
			Amount:         w.PositionValue,
			ReferencePrice: signal.CurrentPrice,
		})
		if err != nil {
			return err
		}
		if result != nil && result.FilledPrice.GreaterThan(decimal.Zero) {
			entry = result.FilledPrice
		}
	}

	signalID := signal.ID
	_, err = w.Ledger.Open(ctx, ledger.OpenParams{
		UserID:         item.UserID,
		SignalID:       &signalID,
		InstrumentType: instrument,
		Mode:           mode,
		EntryPrice:     entry,
		PositionValue:  w.PositionValue,
		TargetPrice:    signal.TargetPrice,
		StopLoss:       signal.StopLoss,
	})
	if err != nil {
		return err
	}

	if err := w.Repo.MarkSignalExecuted(ctx, signal.ID, time.Now().UTC()); err != nil {
		w.Logger.Warn("failed to mark signal executed", zap.Uint64("signal_id", signal.ID), zap.Error(err))
	}
	return nil
}

func (w *Workers) finish(ctx context.Context, id uint64, status, errorMessage string, failed *models.QueueItem) {
	if err := w.Repo.FinishQueueItem(ctx, id, status, errorMessage, time.Now().UTC()); err != nil {
		w.Logger.Error("failed to finish queue item", zap.Uint64("queue_item_id", id), zap.Error(err))
		return
	}
	if status == models.QueueFailed {
		w.Logger.Warn("queue item failed",
			zap.Uint64("queue_item_id", id),
			zap.String("error", errorMessage))
		if failed != nil {
			w.scheduleRetry(ctx, failed)
		}
	} else {
		w.Logger.Info("queue item completed", zap.Uint64("queue_item_id", id))
	}
}

// scheduleRetry creates a fresh pending row after a backoff delay. Terminal
// rows are never mutated; the new row carries the attempt count forward so
// the policy can give up.
func (w *Workers) scheduleRetry(ctx context.Context, failed *models.QueueItem) {
	maxAttempts := w.Config.Retry.MaxAttempts
	if maxAttempts <= 0 || failed.Attempt >= maxAttempts {
		return
	}
	b := &backoff.Backoff{
		Min:    w.Config.Retry.BackoffMin,
		Max:    w.Config.Retry.BackoffMax,
		Factor: 2,
		Jitter: true,
	}
	delay := b.ForAttempt(float64(failed.Attempt))
	w.Logger.Info("scheduling queue retry",
		zap.Uint64("queue_item_id", failed.ID),
		zap.Int("attempt", failed.Attempt),
		zap.Duration("delay", delay))
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		fresh := &models.QueueItem{
			SignalID: failed.SignalID,
			UserID:   failed.UserID,
			Status:   models.QueuePending,
			Attempt:  failed.Attempt + 1,
		}
		if err := w.Repo.InsertQueueItem(ctx, fresh); err != nil {
			w.Logger.Error("failed to enqueue retry", zap.Uint64("queue_item_id", failed.ID), zap.Error(err))
		}
	}()
}
