package transaction

import (
	"context"
	"time"

	"wallettx/internal/events"
	"wallettx/internal/models"
)

// Service is the transfer state machine: INITIATED -> SUCCEEDED | FAILED.
type Service interface {
	// Initiate records a new INITIATED transfer and enqueues its request in the
	// same database transaction.
	Initiate(ctx context.Context, req TransferRequest) (*models.Transaction, error)
	// ApplySettlement finalizes a transfer from the ledger's outcome. It is a
	// no-op for duplicates and for transfers already in a terminal state.
	ApplySettlement(ctx context.Context, eventID string, outcome events.TransferSettled) (SettlementResult, error)

	Get(ctx context.Context, id string) (*models.Transaction, error)
	ListByAccount(ctx context.Context, sender string, page, size int) (Page, error)

	// ListStale returns INITIATED transfers not driven for longer than threshold.
	ListStale(ctx context.Context, threshold time.Duration, limit int) ([]models.Transaction, error)
	// Redrive publishes the request of an INITIATED transfer again.
	Redrive(ctx context.Context, id string) error
	// Expire fails an INITIATED transfer with reason.
	Expire(ctx context.Context, id string, reason string) error
}
