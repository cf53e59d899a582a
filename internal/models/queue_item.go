package models

import (
	"time"
)

const (
	QueuePending    = "pending"
	QueueProcessing = "processing"
	QueueCompleted  = "completed"
	QueueFailed     = "failed"
)

// QueueItem is one durable unit of execution work: one signal, one user, one
// attempt. Status only ever moves pending → processing → {completed|failed};
// terminal rows are never mutated again. A retry is a fresh row with a
// higher Attempt, created by policy, not by the worker.
type QueueItem struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	SignalID uint64 `gorm:"not null;index"`
	UserID   string `gorm:"type:varchar(100);not null;index"`

	Status  string `gorm:"type:varchar(20);not null;default:'pending';index"`
	Attempt int    `gorm:"not null;default:1"`

	ErrorMessage string `gorm:"type:text"`

	ClaimedAt   *time.Time `gorm:"type:timestamptz;index"`
	ProcessedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (QueueItem) TableName() string {
	return "queue_items"
}
