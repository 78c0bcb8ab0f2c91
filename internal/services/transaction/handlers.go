package transaction

import (
	"context"
	"errors"

	"wallettx/internal/dispatch"
	"wallettx/internal/events"
)

// RegisterHandlers binds the state machine to the ledger's outcome events.
func RegisterHandlers(reg *dispatch.Registry, svc Service) error {
	h := dispatch.HandlerFunc(func(ctx context.Context, env events.Envelope) error {
		var p events.TransferSettled
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		_, err := svc.ApplySettlement(ctx, env.EventID, p)
		if errors.Is(err, ErrTransactionNotFound) || errors.Is(err, ErrInvalidOutcome) {
			return dispatch.Permanent(err)
		}
		return err
	})

	if err := reg.Register(events.TypeTransferSettled, h); err != nil {
		return err
	}
	return reg.Register(events.TypeTransferRejected, h)
}
