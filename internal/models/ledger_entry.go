package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryDirection is the side of a balance change.
type EntryDirection string

const (
	EntryDebit  EntryDirection = "DEBIT"
	EntryCredit EntryDirection = "CREDIT"
)

// LedgerEntry records one side of a settled transfer with the balance it left behind.
type LedgerEntry struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	TransactionID string          `gorm:"size:36;not null;uniqueIndex:idx_ledger_entries_tx_account_dir,priority:1" json:"transactionId"`
	AccountID     string          `gorm:"size:64;not null;index;uniqueIndex:idx_ledger_entries_tx_account_dir,priority:2" json:"accountId"`
	Direction     EntryDirection  `gorm:"size:8;not null;uniqueIndex:idx_ledger_entries_tx_account_dir,priority:3" json:"direction"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"balanceAfter"`
	CreatedAt     time.Time       `json:"createdAt"`
}
