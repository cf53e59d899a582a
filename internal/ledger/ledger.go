package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"goldwatch/internal/models"
	"goldwatch/internal/repository"
)

// ErrNoMarketPrice means an at-market close was requested with no tick to
// price it against.
var ErrNoMarketPrice = errors.New("no market price available")

// Repo is the storage slice the ledger needs.
type Repo interface {
	OpenPositionWithBalance(ctx context.Context, item *models.Position) error
	ClosePositionWithBalance(ctx context.Context, params repository.ClosePositionParams) error
	GetPositionByID(ctx context.Context, id uint64) (*models.Position, error)
	EnsureAccount(ctx context.Context, userID string, startingBalance decimal.Decimal) error
	LatestTick(ctx context.Context, symbol string) (*models.PriceTick, error)
}

// Ledger owns position lifecycle and the balance it settles against. Every
// open debits the account and every close credits it back with the result, in
// the same transaction as the position row change.
type Ledger struct {
	Repo            Repo
	Logger          *zap.Logger
	Symbol          string
	StartingBalance decimal.Decimal
}

func New(repo Repo, logger *zap.Logger, symbol string, startingBalance decimal.Decimal) *Ledger {
	return &Ledger{Repo: repo, Logger: logger, Symbol: symbol, StartingBalance: startingBalance}
}

type OpenParams struct {
	UserID         string
	SignalID       *uint64
	InstrumentType string
	Mode           string
	EntryPrice     decimal.Decimal
	PositionValue  decimal.Decimal
	TargetPrice    *decimal.Decimal
	StopLoss       *decimal.Decimal
}

// Open commits capital into a new position. First-time users get their
// account seeded with the configured starting balance before the debit.
func (l *Ledger) Open(ctx context.Context, params OpenParams) (*models.Position, error) {
	if params.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("invalid entry price %s", params.EntryPrice)
	}
	if params.PositionValue.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("invalid position value %s", params.PositionValue)
	}
	if err := l.Repo.EnsureAccount(ctx, params.UserID, l.StartingBalance); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	item := &models.Position{
		UserID:         params.UserID,
		SignalID:       params.SignalID,
		Direction:      models.DirectionBuy,
		InstrumentType: params.InstrumentType,
		Mode:           params.Mode,
		EntryPrice:     params.EntryPrice,
		PositionValue:  params.PositionValue,
		TargetPrice:    params.TargetPrice,
		StopLoss:       params.StopLoss,
		Status:         models.PositionOpen,
		EntryAt:        time.Now().UTC(),
	}
	if err := l.Repo.OpenPositionWithBalance(ctx, item); err != nil {
		return nil, err
	}
	l.Logger.Info("position opened",
		zap.Uint64("position_id", item.ID),
		zap.String("user_id", item.UserID),
		zap.String("instrument", item.InstrumentType),
		zap.String("mode", item.Mode),
		zap.String("entry_price", item.EntryPrice.String()),
		zap.String("position_value", item.PositionValue.String()))
	return item, nil
}

// Close settles an open position at exitPrice. A nil exitPrice closes at
// market, priced off the latest tick. A position that is already closed is
// rejected with repository.ErrPositionNotOpen, never recomputed.
func (l *Ledger) Close(ctx context.Context, positionID uint64, exitPrice *decimal.Decimal, reason string) (*models.Position, error) {
	item, err := l.Repo.GetPositionByID(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Status != models.PositionOpen {
		return nil, repository.ErrPositionNotOpen
	}

	var exit decimal.Decimal
	if exitPrice != nil {
		exit = *exitPrice
	} else {
		tick, err := l.Repo.LatestTick(ctx, l.Symbol)
		if err != nil {
			return nil, err
		}
		if tick == nil {
			return nil, ErrNoMarketPrice
		}
		exit = tick.Close
	}
	if exit.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("invalid exit price %s", exit)
	}

	plPct, plAbs := ProfitLoss(item.InstrumentType, item.EntryPrice, exit, item.PositionValue)
	closedAt := time.Now().UTC()

	err = l.Repo.ClosePositionWithBalance(ctx, repository.ClosePositionParams{
		PositionID:    positionID,
		ExitPrice:     exit,
		ProfitLoss:    plAbs,
		ProfitLossPct: plPct,
		CloseReason:   reason,
		ClosedAt:      closedAt,
	})
	if err != nil {
		return nil, err
	}

	item.Status = models.PositionClosed
	item.ExitPrice = &exit
	item.ProfitLoss = &plAbs
	item.ProfitLossPct = &plPct
	item.CloseReason = reason
	item.ExitAt = &closedAt

	l.Logger.Info("position closed",
		zap.Uint64("position_id", item.ID),
		zap.String("user_id", item.UserID),
		zap.String("exit_price", exit.String()),
		zap.String("profit_loss", plAbs.String()),
		zap.String("reason", reason))
	return item, nil
}

// Unrealized computes the mark-to-market result of an open position against
// price without touching storage.
func Unrealized(item *models.Position, price decimal.Decimal) (plPct, plAbs decimal.Decimal) {
	if item == nil || price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero
	}
	return ProfitLoss(item.InstrumentType, item.EntryPrice, price, item.PositionValue)
}

// ProfitLoss applies the certificate payoff: bulls gain when price rises,
// bears when it falls. The absolute result is rounded to cents.
func ProfitLoss(instrumentType string, entry, exit, value decimal.Decimal) (plPct, plAbs decimal.Decimal) {
	if entry.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	switch instrumentType {
	case models.InstrumentBear:
		plPct = entry.Sub(exit).Div(entry).Mul(hundred)
	default:
		plPct = exit.Sub(entry).Div(entry).Mul(hundred)
	}
	plAbs = value.Mul(plPct).Div(hundred).Round(2)
	return plPct, plAbs
}
