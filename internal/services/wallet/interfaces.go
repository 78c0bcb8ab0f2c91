package wallet

import (
	"context"

	"wallettx/internal/models"

	"github.com/shopspring/decimal"
)

// Ledger defines the wallet service operations.
type Ledger interface {
	// ApplyTransfer applies req at most once and enqueues the outcome for
	// publishing. Repeated calls return the first outcome with Duplicate set
	// and enqueue it again.
	ApplyTransfer(ctx context.Context, req TransferRequest) (Outcome, error)
	// Provision creates the wallet of acct unless it was already provisioned.
	Provision(ctx context.Context, acct Account) (bool, error)

	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetWallet(ctx context.Context, accountID string) (*models.Wallet, error)
	Entries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)
	// ResolveOwner maps an owner identity (phone number) to its account id.
	ResolveOwner(ctx context.Context, identity string) (string, error)
}

// MetricsCollector receives ledger outcomes.
type MetricsCollector interface {
	RecordOutcome(status, reason string)
	RecordDuplicate(operation string)
	RecordProvisioned()
}
