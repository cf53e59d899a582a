package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is one minute-resolution candle of the commodity feed.
// The feed is append-only; rows are never updated after insert. Gaps in the
// minute grid are expected and tolerated by every consumer.
type PriceTick struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(20);not null;uniqueIndex:idx_ticks_symbol_ts,priority:1"`

	Timestamp time.Time `gorm:"type:timestamptz;not null;uniqueIndex:idx_ticks_symbol_ts,priority:2;index"`

	Open   decimal.Decimal  `gorm:"type:numeric(20,10);not null"`
	High   decimal.Decimal  `gorm:"type:numeric(20,10);not null"`
	Low    decimal.Decimal  `gorm:"type:numeric(20,10);not null"`
	Close  decimal.Decimal  `gorm:"type:numeric(20,10);not null"`
	Volume *decimal.Decimal `gorm:"type:numeric(30,10)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PriceTick) TableName() string {
	return "price_ticks"
}
