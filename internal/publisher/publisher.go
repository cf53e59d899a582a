package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"goldwatch/internal/combiner"
	"goldwatch/internal/config"
	"goldwatch/internal/models"
	"goldwatch/internal/repository"
)

// Repo is the storage slice the publisher needs.
type Repo interface {
	InsertSignal(ctx context.Context, item *models.Signal) error
	ActivateSignal(ctx context.Context, item *models.Signal, prevActiveID *uint64) error
	GetActiveSignal(ctx context.Context) (*models.Signal, error)
	InsertQueueItem(ctx context.Context, item *models.QueueItem) error
	ListAutoTradingUsers(ctx context.Context) ([]models.UserSetting, error)
}

// Publisher turns a fused recommendation into the one durable active signal.
// There is at most one active signal at a time; replacing it is an atomic
// swap retried a bounded number of times when concurrent passes collide.
type Publisher struct {
	Repo   Repo
	Logger *zap.Logger
	Config config.PublisherConfig
}

func New(repo Repo, logger *zap.Logger, cfg config.PublisherConfig) *Publisher {
	return &Publisher{Repo: repo, Logger: logger, Config: cfg}
}

// Publish persists the recommendation if it clears the confidence gate.
// Returns the activated signal, or nil when nothing was activated (HOLD, or
// below the minimum confidence). A HOLD pass can still leave a history row
// when configured, but never touches the active signal.
func (p *Publisher) Publish(ctx context.Context, rec combiner.Recommendation) (*models.Signal, error) {
	now := time.Now().UTC()

	if rec.Action == combiner.ActionHold {
		if p.Config.RecordHoldHistory {
			item := p.buildSignal(rec, now)
			item.IsActive = false
			if err := p.Repo.InsertSignal(ctx, item); err != nil {
				p.Logger.Warn("failed to record hold history", zap.Error(err))
			}
		}
		return nil, nil
	}

	if rec.Confidence < p.Config.MinConfidence {
		p.Logger.Info("recommendation below publish threshold",
			zap.String("action", rec.Action),
			zap.Float64("confidence", rec.Confidence))
		return nil, nil
	}

	item := p.buildSignal(rec, now)
	if err := p.activateWithRetry(ctx, item); err != nil {
		return nil, err
	}
	p.Logger.Info("signal activated",
		zap.Uint64("signal_id", item.ID),
		zap.String("signal_type", item.SignalType),
		zap.String("strength", item.Strength),
		zap.Float64("confidence", rec.Confidence))

	p.enqueueForAutoTraders(ctx, item)
	return item, nil
}

// activateWithRetry reads the current active signal and swaps it for the new
// one. A conflict means another pass swapped in between the read and the
// write; re-read and try again, bounded.
func (p *Publisher) activateWithRetry(ctx context.Context, item *models.Signal) error {
	retries := p.Config.ActivationRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		prev, err := p.Repo.GetActiveSignal(ctx)
		if err != nil {
			return err
		}
		var prevID *uint64
		if prev != nil {
			prevID = &prev.ID
		}
		err = p.Repo.ActivateSignal(ctx, item, prevID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrActivationConflict) {
			return err
		}
		lastErr = err
		p.Logger.Warn("active signal swap conflicted, retrying", zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("activate signal: %w", lastErr)
}

func (p *Publisher) enqueueForAutoTraders(ctx context.Context, item *models.Signal) {
	users, err := p.Repo.ListAutoTradingUsers(ctx)
	if err != nil {
		p.Logger.Error("failed to list auto-trading users", zap.Error(err))
		return
	}
	for _, u := range users {
		qi := &models.QueueItem{
			SignalID: item.ID,
			UserID:   u.UserID,
			Status:   models.QueuePending,
		}
		if err := p.Repo.InsertQueueItem(ctx, qi); err != nil {
			p.Logger.Error("failed to enqueue signal execution",
				zap.String("user_id", u.UserID),
				zap.Uint64("signal_id", item.ID),
				zap.Error(err))
			continue
		}
	}
	if len(users) > 0 {
		p.Logger.Info("signal execution enqueued",
			zap.Uint64("signal_id", item.ID),
			zap.Int("users", len(users)))
	}
}

func (p *Publisher) buildSignal(rec combiner.Recommendation, now time.Time) *models.Signal {
	probUp := 50 + rec.Composite/2
	if probUp < 0 {
		probUp = 0
	}
	if probUp > 100 {
		probUp = 100
	}

	item := &models.Signal{
		Timestamp:       now,
		SignalType:      signalTypeForAction(rec.Action),
		Strength:        p.strengthFor(rec.Confidence),
		ProbabilityUp:   probUp,
		ProbabilityDown: 100 - probUp,
		Confidence:      rec.Confidence,
		Reasoning:       buildReasoning(rec),
	}
	if raw, err := json.Marshal(rec.Factors); err == nil {
		item.Factors = datatypes.JSON(raw)
	}
	if rec.Strategy != nil {
		item.CurrentPrice = rec.Strategy.Entry
		target := rec.Strategy.Target
		stop := rec.Strategy.StopLoss
		item.TargetPrice = &target
		item.StopLoss = &stop
	}
	return item
}

func (p *Publisher) strengthFor(confidence float64) string {
	switch {
	case confidence >= p.Config.StrongThreshold:
		return models.StrengthStrong
	case confidence <= p.Config.WeakThreshold:
		return models.StrengthWeak
	default:
		return models.StrengthModerate
	}
}

func signalTypeForAction(action string) string {
	switch action {
	case combiner.ActionBuyBull:
		return models.SignalBuy
	case combiner.ActionBuyBear:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

func buildReasoning(rec combiner.Recommendation) string {
	parts := make([]string, 0, len(rec.Factors)+1)
	parts = append(parts, fmt.Sprintf("composite %.2f via %d tools", rec.Composite, len(rec.Factors)))
	for _, f := range rec.Factors {
		if f.Confidence == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %+.0f@%.0f: %s", f.Name, f.Score, f.Confidence, f.Reasoning))
	}
	return strings.Join(parts, "; ")
}
