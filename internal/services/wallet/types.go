package wallet

import (
	"time"

	"wallettx/internal/events"

	"github.com/shopspring/decimal"
)

// TransferRequest is one request to move Amount from Sender to Receiver.
type TransferRequest struct {
	TransactionID string
	EventID       string
	Sender        string
	Receiver      string
	Amount        decimal.Decimal
	ExpiresAt     *time.Time
}

// Outcome is the ledger's answer to a transfer request.
type Outcome struct {
	Status events.SettlementStatus
	Reason string
	// Duplicate is set when the request had already been applied and the
	// stored outcome was returned.
	Duplicate bool
}

func Settled() Outcome {
	return Outcome{Status: events.StatusSettled}
}

func Rejected(reason string) Outcome {
	return Outcome{Status: events.StatusRejected, Reason: reason}
}

// EventType is the envelope type that reports the outcome.
func (o Outcome) EventType() events.Type {
	if o.Status == events.StatusSettled {
		return events.TypeTransferSettled
	}
	return events.TypeTransferRejected
}

// Account is a provisioning request.
type Account struct {
	AccountID    string
	OwnerPhoneNo string
	// InitialBalance falls back to Config.InitialAmount when nil.
	InitialBalance *decimal.Decimal
}

// Config holds the ledger settings.
type Config struct {
	InitialAmount decimal.Decimal
	Producer      string
	// Now is the clock used for deadline checks.
	Now func() time.Time
}
