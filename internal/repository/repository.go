package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"goldwatch/internal/models"
)

var (
	// ErrActivationConflict means the active-signal swap lost a race: the
	// signal the caller observed as active is no longer the active one.
	// Callers retry with freshly read state.
	ErrActivationConflict = errors.New("active signal changed concurrently")

	// ErrPositionNotOpen means a close was attempted on a position that is
	// not (or no longer) open. Never recovered silently.
	ErrPositionNotOpen = errors.New("position is not open")

	// ErrInsufficientFunds means the account balance cannot cover the
	// position value being committed.
	ErrInsufficientFunds = errors.New("insufficient account balance")
)

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Price ticks (append-only feed).
	InsertPriceTick(ctx context.Context, item *models.PriceTick) error
	ListRecentTicks(ctx context.Context, symbol string, limit int) ([]models.PriceTick, error)
	LatestTick(ctx context.Context, symbol string) (*models.PriceTick, error)
	DeleteTicksBefore(ctx context.Context, before time.Time) (int64, error)

	// Signals. ActivateSignal performs the atomic swap: it deactivates the
	// signal identified by prevActiveID (nil means "no signal is active") and
	// inserts item with is_active=true in the same transaction. If the
	// precondition no longer holds it returns ErrActivationConflict and
	// writes nothing.
	InsertSignal(ctx context.Context, item *models.Signal) error
	ActivateSignal(ctx context.Context, item *models.Signal, prevActiveID *uint64) error
	GetActiveSignal(ctx context.Context) (*models.Signal, error)
	GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	MarkSignalExecuted(ctx context.Context, id uint64, at time.Time) error

	// Execution queue. ClaimQueueItem is the exactly-once claim: a
	// conditional pending→processing update that reports whether this caller
	// won. Losing the race is not an error.
	InsertQueueItem(ctx context.Context, item *models.QueueItem) error
	ListPendingQueueItemIDs(ctx context.Context, limit int) ([]uint64, error)
	ClaimQueueItem(ctx context.Context, id uint64, claimedAt time.Time) (bool, error)
	FinishQueueItem(ctx context.Context, id uint64, status string, errorMessage string, processedAt time.Time) error
	GetQueueItemByID(ctx context.Context, id uint64) (*models.QueueItem, error)
	ListQueueItems(ctx context.Context, params ListQueueItemsParams) ([]models.QueueItem, error)
	CountQueueByStatus(ctx context.Context) (map[string]int64, error)
	ReapStaleProcessing(ctx context.Context, claimedBefore time.Time, errorMessage string) (int64, error)

	// Positions and balances. Open debits the account and inserts the
	// position in one transaction; Close credits the account and flips the
	// position to closed in one transaction, failing with ErrPositionNotOpen
	// if the row is not open anymore.
	OpenPositionWithBalance(ctx context.Context, item *models.Position) error
	ClosePositionWithBalance(ctx context.Context, params ClosePositionParams) error
	GetPositionByID(ctx context.Context, id uint64) (*models.Position, error)
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	PositionsSummary(ctx context.Context, userID string) (PositionsSummary, error)

	// Accounts.
	EnsureAccount(ctx context.Context, userID string, startingBalance decimal.Decimal) error
	GetAccountByUserID(ctx context.Context, userID string) (*models.Account, error)

	// User settings (auto-trading / trading-mode flags).
	UpsertUserSetting(ctx context.Context, item *models.UserSetting) error
	GetUserSetting(ctx context.Context, userID string) (*models.UserSetting, error)
	ListAutoTradingUsers(ctx context.Context) ([]models.UserSetting, error)

	// System settings (feature switches).
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
}

type ClosePositionParams struct {
	PositionID    uint64
	ExitPrice     decimal.Decimal
	ProfitLoss    decimal.Decimal
	ProfitLossPct decimal.Decimal
	CloseReason   string
	ClosedAt      time.Time
}

type ListSignalsParams struct {
	Limit      int
	Offset     int
	Type       *string
	ActiveOnly bool
	Since      *time.Time
	OrderBy    string
	Asc        *bool
}

type ListQueueItemsParams struct {
	Limit    int
	Offset   int
	Status   *string
	UserID   *string
	SignalID *uint64
	OrderBy  string
	Asc      *bool
}

type ListPositionsParams struct {
	Limit   int
	Offset  int
	Status  *string
	UserID  *string
	Mode    *string
	OrderBy string
	Asc     *bool
}

type PositionsSummary struct {
	TotalOpen      int64
	TotalClosed    int64
	CommittedValue float64
	RealizedPnL    float64
	Balance        float64
}
