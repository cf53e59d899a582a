package models

import (
	"time"
)

const (
	TradingModePaper = "paper"
	TradingModeLive  = "live"
)

// UserSetting holds the two per-user flags the execution path reads: whether
// active signals should auto-execute, and whether execution is simulated or
// sent to the broker. Owned by settings storage; the core only reads it.
type UserSetting struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID string `gorm:"type:varchar(100);not null;uniqueIndex"`

	AutoTrading bool   `gorm:"not null;default:false;index"`
	TradingMode string `gorm:"type:varchar(10);not null;default:'paper'"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (UserSetting) TableName() string {
	return "user_settings"
}
