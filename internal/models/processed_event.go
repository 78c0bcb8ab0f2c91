package models

import "time"

// ProcessedEvent is the idempotency record for one (correlation id, operation) pair.
// It is written in the same database transaction as the mutation it guards.
type ProcessedEvent struct {
	CorrelationID string `gorm:"primaryKey;size:64"`
	Operation     string `gorm:"primaryKey;size:64"`
	EventID       string `gorm:"size:36"`
	Outcome       string `gorm:"size:16"`
	Reason        string `gorm:"size:255"`
	ProcessedAt   time.Time
}
