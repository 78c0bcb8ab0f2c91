// Package events defines the envelope and the typed payloads exchanged between
// the transaction service and the wallet service.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics.
const (
	TopicTransferRequested  = "transfer.requested"
	TopicTransferSettled    = "transfer.settled"
	TopicAccountProvisioned = "account.provisioned"

	deadLetterSuffix = ".dlq"
)

// DeadLetterTopic returns the dead-letter channel of topic.
func DeadLetterTopic(topic string) string {
	return topic + deadLetterSuffix
}

// Type discriminates the payload carried by an Envelope.
type Type string

const (
	TypeTransferRequested  Type = "TransferRequested"
	TypeTransferSettled    Type = "TransferSettled"
	TypeTransferRejected   Type = "TransferRejected"
	TypeAccountProvisioned Type = "AccountProvisioned"
)

// Topic returns the topic events of this type are published to.
func (t Type) Topic() string {
	switch t {
	case TypeTransferRequested:
		return TopicTransferRequested
	case TypeTransferSettled, TypeTransferRejected:
		return TopicTransferSettled
	case TypeAccountProvisioned:
		return TopicAccountProvisioned
	default:
		return ""
	}
}

// IsTransfer reports whether the type belongs to the transfer protocol and so
// must carry a transaction id.
func (t Type) IsTransfer() bool {
	switch t {
	case TypeTransferRequested, TypeTransferSettled, TypeTransferRejected:
		return true
	default:
		return false
	}
}

// SettlementStatus is the outcome reported by the wallet ledger.
type SettlementStatus string

const (
	StatusSettled  SettlementStatus = "SETTLED"
	StatusRejected SettlementStatus = "REJECTED"
)

// Rejection reasons carried in TransferSettled.StatusMessage.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonAccountNotFound   = "account_not_found"
	ReasonExpired           = "expired"
	ReasonTimeout           = "timeout"
)

// TransferRequested asks the wallet ledger to move Amount from sender to receiver.
type TransferRequested struct {
	TransactionID   string          `json:"transactionId" validate:"required"`
	SenderAccount   string          `json:"senderAccount" validate:"required"`
	ReceiverAccount string          `json:"receiverAccount" validate:"required,nefield=SenderAccount"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	// ExpiresAt is the deadline after which the ledger refuses to apply the transfer.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// TransferSettled reports the ledger outcome for a transfer. It is carried by both
// TransferSettled and TransferRejected envelopes.
type TransferSettled struct {
	TransactionID string           `json:"transactionId" validate:"required"`
	Status        SettlementStatus `json:"status" validate:"required,oneof=SETTLED REJECTED"`
	StatusMessage string           `json:"statusMessage"`
}

// AccountProvisioned announces a new account that needs a wallet.
type AccountProvisioned struct {
	AccountID    string `json:"accountId" validate:"required"`
	OwnerPhoneNo string `json:"ownerPhoneNo" validate:"required,phone"`
	// InitialBalance falls back to the wallet service default when omitted.
	InitialBalance *decimal.Decimal `json:"initialBalance,omitempty" validate:"omitempty,gte=0"`
}
