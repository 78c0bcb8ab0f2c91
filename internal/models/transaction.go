package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a transfer.
type TransactionStatus string

const (
	TransactionInitiated TransactionStatus = "INITIATED"
	TransactionSucceeded TransactionStatus = "SUCCEEDED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionSucceeded || s == TransactionFailed
}

// Transaction is the transfer record owned by the transaction service.
type Transaction struct {
	TransactionID   string            `gorm:"primaryKey;size:36" json:"transactionId"`
	SenderAccount   string            `gorm:"size:64;not null;index:idx_transactions_sender_created,priority:1" json:"senderAccount"`
	ReceiverAccount string            `gorm:"size:64;not null;index" json:"receiverAccount"`
	Amount          decimal.Decimal   `gorm:"type:numeric(20,4);not null" json:"amount"`
	Purpose         string            `gorm:"size:255" json:"purpose"`
	Status          TransactionStatus `gorm:"size:16;not null;index;default:'INITIATED'" json:"status"`
	StatusMessage   string            `gorm:"size:255" json:"statusMessage,omitempty"`
	RedriveCount    int               `gorm:"not null;default:0" json:"-"`
	LastDrivenAt    time.Time         `gorm:"not null;index" json:"-"`
	ExpiresAt       time.Time         `gorm:"not null" json:"expiresAt"`
	CreatedAt       time.Time         `gorm:"index:idx_transactions_sender_created,priority:2" json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Involves reports whether account is the sender or the receiver.
func (t *Transaction) Involves(account string) bool {
	return t.SenderAccount == account || t.ReceiverAccount == account
}
