package repositories

import (
	"context"
	"errors"

	"wallettx/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound  = errors.New("wallet not found")
	ErrDuplicateWallet = errors.New("wallet already exists")
)

// WalletRepository defines the database operations of the wallet ledger.
type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	GetByID(ctx context.Context, accountID string) (*models.Wallet, error)
	GetByOwnerPhone(ctx context.Context, phone string) (*models.Wallet, error)
	// GetForUpdate reads the wallet under a row lock held until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, accountID string) (*models.Wallet, error)
	UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error

	AddEntries(ctx context.Context, entries ...*models.LedgerEntry) error
	ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error)

	GetTotalBalance(ctx context.Context) (decimal.Decimal, error)
}
