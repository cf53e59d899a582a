package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
	SignalHold = "HOLD"

	StrengthStrong   = "STRONG"
	StrengthModerate = "MODERATE"
	StrengthWeak     = "WEAK"
)

// Signal is a published recommendation. At most one row has is_active=true at
// any instant (partial unique index, see db.AutoMigrate); activating a new
// signal deactivates the previous one inside the same transaction. Rows are
// never deleted: the table is the audit trail of everything the combiner
// decided to say out loud.
type Signal struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"type:timestamptz;not null;index"`

	SignalType string `gorm:"type:varchar(10);not null;index"`
	Strength   string `gorm:"type:varchar(10);not null"`

	ProbabilityUp   float64 `gorm:"not null"`
	ProbabilityDown float64 `gorm:"not null"`
	Confidence      float64 `gorm:"not null"`

	CurrentPrice decimal.Decimal  `gorm:"type:numeric(20,10);not null"`
	TargetPrice  *decimal.Decimal `gorm:"type:numeric(20,10)"`
	StopLoss     *decimal.Decimal `gorm:"type:numeric(20,10)"`

	Reasoning string         `gorm:"type:text"`
	Factors   datatypes.JSON `gorm:"type:jsonb"`

	IsActive     bool       `gorm:"not null;default:false;index"`
	AutoExecuted bool       `gorm:"not null;default:false"`
	ExecutedAt   *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Signal) TableName() string {
	return "signals"
}
