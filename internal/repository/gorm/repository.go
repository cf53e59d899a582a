package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"goldwatch/internal/models"
	"goldwatch/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Price ticks -------------------------------------------------------------

func (s *Store) InsertPriceTick(ctx context.Context, item *models.PriceTick) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	// Feed sources may redeliver the same minute; first write wins.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) ListRecentTicks(ctx context.Context, symbol string, limit int) ([]models.PriceTick, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 200)
	var items []models.PriceTick
	if err := s.db.WithContext(ctx).
		Model(&models.PriceTick{}).
		Where("symbol = ?", strings.TrimSpace(symbol)).
		Order("timestamp desc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	// Callers compute indicators over the window; hand it back oldest first.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *Store) LatestTick(ctx context.Context, symbol string) (*models.PriceTick, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PriceTick
	err := s.db.WithContext(ctx).
		Where("symbol = ?", strings.TrimSpace(symbol)).
		Order("timestamp desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeleteTicksBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&models.PriceTick{})
	return res.RowsAffected, res.Error
}

// --- Signals -----------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// ActivateSignal swaps the active signal in one transaction. The caller passes
// the id of the signal it observed as active (nil when it observed none); if
// another writer changed that in the meantime the transaction rolls back with
// repository.ErrActivationConflict so the caller can re-read and retry.
func (s *Store) ActivateSignal(ctx context.Context, item *models.Signal, prevActiveID *uint64) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if prevActiveID != nil {
			res := tx.Model(&models.Signal{}).
				Where("id = ?", *prevActiveID).
				Where("is_active = ?", true).
				Update("is_active", false)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repository.ErrActivationConflict
			}
		} else {
			var count int64
			if err := tx.Model(&models.Signal{}).
				Where("is_active = ?", true).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return repository.ErrActivationConflict
			}
		}
		item.IsActive = true
		return tx.Create(item).Error
	})
}

func (s *Store) GetActiveSignal(ctx context.Context) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetSignalByID(ctx context.Context, id uint64) (*models.Signal, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Signal{})
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("signal_type = ?", strings.TrimSpace(*params.Type))
	}
	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkSignalExecuted(ctx context.Context, id uint64, at time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Signal{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"auto_executed": true,
			"executed_at":   at,
		}).Error
}

// --- Execution queue ---------------------------------------------------------

func (s *Store) InsertQueueItem(ctx context.Context, item *models.QueueItem) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListPendingQueueItemIDs(ctx context.Context, limit int) ([]uint64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 100)
	var ids []uint64
	if err := s.db.WithContext(ctx).
		Model(&models.QueueItem{}).
		Where("status = ?", models.QueuePending).
		Order("created_at asc").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ClaimQueueItem flips one item from pending to processing. The conditional
// update is the whole claim protocol: whichever worker's UPDATE matches the
// row wins, everyone else sees zero rows affected and moves on.
func (s *Store) ClaimQueueItem(ctx context.Context, id uint64, claimedAt time.Time) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", id).
		Where("status = ?", models.QueuePending).
		Updates(map[string]any{
			"status":     models.QueueProcessing,
			"claimed_at": claimedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) FinishQueueItem(ctx context.Context, id uint64, status string, errorMessage string, processedAt time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("id = ?", id).
		Where("status = ?", models.QueueProcessing).
		Updates(map[string]any{
			"status":        status,
			"error_message": errorMessage,
			"processed_at":  processedAt,
		}).Error
}

func (s *Store) GetQueueItemByID(ctx context.Context, id uint64) (*models.QueueItem, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.QueueItem
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListQueueItems(ctx context.Context, params repository.ListQueueItemsParams) ([]models.QueueItem, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.QueueItem{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.SignalID != nil && *params.SignalID > 0 {
		query = query.Where("signal_id = ?", *params.SignalID)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.QueueItem
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountQueueByStatus(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Model(&models.QueueItem{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *Store) ReapStaleProcessing(ctx context.Context, claimedBefore time.Time, errorMessage string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if claimedBefore.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.QueueItem{}).
		Where("status = ?", models.QueueProcessing).
		Where("claimed_at < ?", claimedBefore).
		Updates(map[string]any{
			"status":        models.QueueFailed,
			"error_message": errorMessage,
			"processed_at":  time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// --- Positions and balances --------------------------------------------------

// OpenPositionWithBalance inserts the position and debits the account in one
// transaction. The debit is conditional on the balance covering the position
// value, so an overdraft rolls the insert back too.
func (s *Store) OpenPositionWithBalance(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).
			Where("user_id = ?", item.UserID).
			Where("balance >= ?", item.PositionValue).
			Update("balance", gorm.Expr("balance - ?", item.PositionValue))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrInsufficientFunds
		}
		return tx.Create(item).Error
	})
}

// ClosePositionWithBalance settles a position and credits the account in one
// transaction. The status guard makes a second close a no-row update, which
// surfaces as repository.ErrPositionNotOpen instead of a double credit.
func (s *Store) ClosePositionWithBalance(ctx context.Context, params repository.ClosePositionParams) error {
	if s == nil || s.db == nil || params.PositionID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.Position
		if err := tx.Where("id = ?", params.PositionID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrPositionNotOpen
			}
			return err
		}
		res := tx.Model(&models.Position{}).
			Where("id = ?", params.PositionID).
			Where("status = ?", models.PositionOpen).
			Updates(map[string]any{
				"status":              models.PositionClosed,
				"exit_price":          params.ExitPrice,
				"profit_loss":         params.ProfitLoss,
				"profit_loss_percent": params.ProfitLossPct,
				"close_reason":        params.CloseReason,
				"exit_at":             params.ClosedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrPositionNotOpen
		}
		proceeds := item.PositionValue.Add(params.ProfitLoss)
		return tx.Model(&models.Account{}).
			Where("user_id = ?", item.UserID).
			Update("balance", gorm.Expr("balance + ?", proceeds)).Error
	})
}

func (s *Store) GetPositionByID(ctx context.Context, id uint64) (*models.Position, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Position{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Mode != nil && strings.TrimSpace(*params.Mode) != "" {
		query = query.Where("mode = ?", strings.TrimSpace(*params.Mode))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "entry_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Position
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Position
	if err := s.db.WithContext(ctx).
		Model(&models.Position{}).
		Where("status = ?", models.PositionOpen).
		Order("entry_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) PositionsSummary(ctx context.Context, userID string) (repository.PositionsSummary, error) {
	var out repository.PositionsSummary
	if s == nil || s.db == nil {
		return out, nil
	}
	base := s.db.WithContext(ctx).Model(&models.Position{})
	if strings.TrimSpace(userID) != "" {
		base = base.Where("user_id = ?", strings.TrimSpace(userID))
	}
	type row struct {
		Status    string
		Count     int64
		Committed float64
		Realized  float64
	}
	var rows []row
	if err := base.
		Select("status, count(*) as count, coalesce(sum(position_value), 0) as committed, coalesce(sum(profit_loss), 0) as realized").
		Group("status").
		Scan(&rows).Error; err != nil {
		return out, err
	}
	for _, r := range rows {
		switch r.Status {
		case models.PositionOpen:
			out.TotalOpen = r.Count
			out.CommittedValue = r.Committed
		case models.PositionClosed:
			out.TotalClosed = r.Count
			out.RealizedPnL = r.Realized
		}
	}
	if strings.TrimSpace(userID) != "" {
		account, err := s.GetAccountByUserID(ctx, userID)
		if err != nil {
			return out, err
		}
		if account != nil {
			out.Balance, _ = account.Balance.Float64()
		}
	}
	return out, nil
}

// --- Accounts ----------------------------------------------------------------

func (s *Store) EnsureAccount(ctx context.Context, userID string, startingBalance decimal.Decimal) error {
	if s == nil || s.db == nil || strings.TrimSpace(userID) == "" {
		return nil
	}
	item := models.Account{
		UserID:  strings.TrimSpace(userID),
		Balance: startingBalance,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&item).Error
}

func (s *Store) GetAccountByUserID(ctx context.Context, userID string) (*models.Account, error) {
	if s == nil || s.db == nil || strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	var item models.Account
	err := s.db.WithContext(ctx).Where("user_id = ?", strings.TrimSpace(userID)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- User settings -----------------------------------------------------------

func (s *Store) UpsertUserSetting(ctx context.Context, item *models.UserSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.UserID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"auto_trading",
			"trading_mode",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetUserSetting(ctx context.Context, userID string) (*models.UserSetting, error) {
	if s == nil || s.db == nil || strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	var item models.UserSetting
	err := s.db.WithContext(ctx).Where("user_id = ?", strings.TrimSpace(userID)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAutoTradingUsers(ctx context.Context) ([]models.UserSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.UserSetting
	if err := s.db.WithContext(ctx).
		Model(&models.UserSetting{}).
		Where("auto_trading = ?", true).
		Order("user_id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- System settings ---------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil || strings.TrimSpace(key) == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
