package db

import (
	"goldwatch/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.AutoMigrate(
		&models.PriceTick{},
		&models.Signal{},
		&models.QueueItem{},
		&models.Position{},
		&models.Account{},
		&models.UserSetting{},
		&models.SystemSetting{},
	); err != nil {
		return err
	}

	// Enforce the single-active-signal invariant in storage, not in process
	// memory: a partial unique index over the one active row.
	return db.Gorm.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_single_active ON signals ((is_active)) WHERE is_active",
	).Error
}
