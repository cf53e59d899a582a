package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"goldwatch/internal/models"
)

// Bar is one minute candle as delivered by either feed source.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Repo is the storage slice both feed sources write through.
type Repo interface {
	InsertPriceTick(ctx context.Context, item *models.PriceTick) error
}

func (b Bar) toTick() *models.PriceTick {
	volume := b.Volume
	return &models.PriceTick{
		Symbol:    b.Symbol,
		Timestamp: b.Timestamp.UTC().Truncate(time.Minute),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    &volume,
	}
}
