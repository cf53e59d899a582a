package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionOpen   = "open"
	PositionClosed = "closed"

	InstrumentBull = "BULL"
	InstrumentBear = "BEAR"

	DirectionBuy        = "BUY"
	CloseActionSellBull = "SELL_BULL"
	CloseActionSellBear = "SELL_BEAR"
)

// Position is one tracked certificate position, paper or live. Once closed it
// is immutable except for audit metadata; the close itself commits together
// with the balance credit in one transaction.
type Position struct {
	ID       uint64  `gorm:"primaryKey;autoIncrement"`
	UserID   string  `gorm:"type:varchar(100);not null;index"`
	SignalID *uint64 `gorm:"index"`

	Direction      string `gorm:"type:varchar(10);not null"`
	InstrumentType string `gorm:"type:varchar(10);not null"`
	Mode           string `gorm:"type:varchar(10);not null;default:'paper'"`

	EntryPrice     decimal.Decimal  `gorm:"type:numeric(20,10);not null"`
	ExitPrice      *decimal.Decimal `gorm:"type:numeric(20,10)"`
	PositionValue  decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	ProfitLoss     *decimal.Decimal `gorm:"type:numeric(30,10)"`
	ProfitLossPct  *decimal.Decimal `gorm:"column:profit_loss_percent;type:numeric(20,10)"`
	TargetPrice    *decimal.Decimal `gorm:"type:numeric(20,10)"`
	StopLoss       *decimal.Decimal `gorm:"type:numeric(20,10)"`

	Status      string     `gorm:"type:varchar(20);not null;default:'open';index"`
	CloseReason string     `gorm:"type:varchar(30)"`
	EntryAt     time.Time  `gorm:"type:timestamptz;not null"`
	ExitAt      *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}
