package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"wallettx/internal/events"
	"wallettx/internal/models"
	"wallettx/internal/repositories"
)

func validateTransfer(req TransferRequest) error {
	switch {
	case req.TransactionID == "":
		return fmt.Errorf("%w: transaction id is required", ErrInvalidTransfer)
	case req.Sender == "" || req.Receiver == "":
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidTransfer)
	case req.Sender == req.Receiver:
		return fmt.Errorf("%w: sender and receiver must differ", ErrInvalidTransfer)
	case !req.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransfer)
	}
	return nil
}

// settle moves the funds inside the caller's transaction. Wallets are locked in
// account id order so opposite transfers between the same pair cannot deadlock.
func (l *ledger) settle(ctx context.Context, s repositories.Store, req TransferRequest) (Outcome, error) {
	if req.ExpiresAt != nil && l.config.Now().After(*req.ExpiresAt) {
		return Rejected(events.ReasonExpired), nil
	}

	ids := []string{req.Sender, req.Receiver}
	sort.Strings(ids)

	locked := make(map[string]*models.Wallet, 2)
	for _, id := range ids {
		w, err := s.Wallets().GetForUpdate(ctx, id)
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return Rejected(events.ReasonAccountNotFound), nil
		}
		if err != nil {
			return Outcome{}, err
		}
		locked[id] = w
	}

	sender, receiver := locked[req.Sender], locked[req.Receiver]
	if sender.Balance.LessThan(req.Amount) {
		return Rejected(events.ReasonInsufficientFunds), nil
	}

	senderBalance := sender.Balance.Sub(req.Amount)
	receiverBalance := receiver.Balance.Add(req.Amount)

	if err := s.Wallets().UpdateBalance(ctx, sender.AccountID, senderBalance); err != nil {
		return Outcome{}, err
	}
	if err := s.Wallets().UpdateBalance(ctx, receiver.AccountID, receiverBalance); err != nil {
		return Outcome{}, err
	}

	err := s.Wallets().AddEntries(ctx,
		&models.LedgerEntry{
			TransactionID: req.TransactionID,
			AccountID:     sender.AccountID,
			Direction:     models.EntryDebit,
			Amount:        req.Amount,
			BalanceAfter:  senderBalance,
		},
		&models.LedgerEntry{
			TransactionID: req.TransactionID,
			AccountID:     receiver.AccountID,
			Direction:     models.EntryCredit,
			Amount:        req.Amount,
			BalanceAfter:  receiverBalance,
		},
	)
	if err != nil {
		return Outcome{}, err
	}
	return Settled(), nil
}
