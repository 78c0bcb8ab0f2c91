package transaction

import (
	"time"

	"wallettx/internal/models"

	"github.com/shopspring/decimal"
)

// TransferRequest is a request to move money between two accounts.
type TransferRequest struct {
	SenderAccount   string          `json:"senderAccount" validate:"required"`
	ReceiverAccount string          `json:"receiverAccount" validate:"required,nefield=SenderAccount"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	Purpose         string          `json:"purpose" validate:"max=255"`
}

// SettlementResult describes what ApplySettlement did.
type SettlementResult string

// Page is one page of a sender's transactions, newest first.
type Page struct {
	Items []models.Transaction
	Total int64
	Page  int
	Size  int
}

// Config holds the state machine settings.
type Config struct {
	// TransferTTL is how long the ledger may still apply a request.
	TransferTTL time.Duration
	Producer    string
	Now         func() time.Time
}
