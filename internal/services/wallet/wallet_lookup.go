package wallet

import (
	"context"
	"errors"

	"wallettx/internal/models"
	"wallettx/internal/repositories"

	"github.com/shopspring/decimal"
)

func (l *ledger) GetWallet(ctx context.Context, accountID string) (*models.Wallet, error) {
	w, err := l.store.Wallets().GetByID(ctx, accountID)
	if errors.Is(err, repositories.ErrWalletNotFound) {
		return nil, ErrAccountNotFound
	}
	return w, err
}

func (l *ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	w, err := l.GetWallet(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (l *ledger) Entries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	return l.store.Wallets().ListEntries(ctx, accountID, limit)
}

func (l *ledger) ResolveOwner(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", ErrAccountNotFound
	}
	w, err := l.store.Wallets().GetByOwnerPhone(ctx, identity)
	if errors.Is(err, repositories.ErrWalletNotFound) {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", err
	}
	return w.AccountID, nil
}
