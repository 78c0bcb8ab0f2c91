package wallet

import (
	"context"
	"errors"

	"wallettx/internal/dispatch"
	"wallettx/internal/events"
)

// RegisterHandlers binds the ledger to the events the wallet service consumes.
func RegisterHandlers(reg *dispatch.Registry, l Ledger) error {
	if err := reg.Register(events.TypeTransferRequested, dispatch.HandlerFunc(func(ctx context.Context, env events.Envelope) error {
		var p events.TransferRequested
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		_, err := l.ApplyTransfer(ctx, TransferRequest{
			TransactionID: p.TransactionID,
			EventID:       env.EventID,
			Sender:        p.SenderAccount,
			Receiver:      p.ReceiverAccount,
			Amount:        p.Amount,
			ExpiresAt:     p.ExpiresAt,
		})
		if errors.Is(err, ErrInvalidTransfer) {
			return dispatch.Permanent(err)
		}
		return err
	})); err != nil {
		return err
	}

	return reg.Register(events.TypeAccountProvisioned, dispatch.HandlerFunc(func(ctx context.Context, env events.Envelope) error {
		var p events.AccountProvisioned
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		_, err := l.Provision(ctx, Account{
			AccountID:      p.AccountID,
			OwnerPhoneNo:   p.OwnerPhoneNo,
			InitialBalance: p.InitialBalance,
		})
		if errors.Is(err, ErrInvalidAccount) || errors.Is(err, ErrOwnerConflict) {
			return dispatch.Permanent(err)
		}
		return err
	}))
}
