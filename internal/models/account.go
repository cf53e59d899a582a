package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account tracks the per-user balance that positions commit capital against.
type Account struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID string `gorm:"type:varchar(100);not null;uniqueIndex"`

	Balance  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Currency string          `gorm:"type:varchar(10);not null;default:'SEK'"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}
