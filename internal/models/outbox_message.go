package models

import "time"

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
)

// OutboxMessage is an encoded envelope waiting to be published. ID order is creation order.
type OutboxMessage struct {
	ID           uint         `gorm:"primarykey"`
	EventID      string       `gorm:"size:36;uniqueIndex;not null"`
	Topic        string       `gorm:"size:128;not null"`
	PartitionKey string       `gorm:"size:64;not null;index"`
	EventType    string       `gorm:"size:64;not null"`
	Payload      []byte       `gorm:"not null"`
	Status       OutboxStatus `gorm:"size:16;not null;index;default:'PENDING'"`
	Attempts     int          `gorm:"not null;default:0"`
	LastError    string       `gorm:"size:512"`
	CreatedAt    time.Time
	PublishedAt  *time.Time
}
