package wallet

import (
	"context"
	"testing"

	"wallettx/internal/dispatch"
	"wallettx/internal/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHandlers(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t, nil)

	reg := dispatch.NewRegistry()
	require.NoError(t, RegisterHandlers(reg, l))
	assert.Equal(t, []string{events.TopicAccountProvisioned, events.TopicTransferRequested}, reg.Topics())

	handle := func(t *testing.T, typ events.Type, key string, payload interface{}) error {
		t.Helper()
		env, err := events.New(typ, key, "test", payload)
		require.NoError(t, err)
		h, ok := reg.Get(typ)
		require.True(t, ok)
		return h.Handle(ctx, env)
	}

	seed := decimal.NewFromInt(30)
	require.NoError(t, handle(t, events.TypeAccountProvisioned, "acct-a", events.AccountProvisioned{
		AccountID: "acct-a", OwnerPhoneNo: "+15550100", InitialBalance: &seed,
	}))
	require.NoError(t, handle(t, events.TypeAccountProvisioned, "acct-b", events.AccountProvisioned{
		AccountID: "acct-b", OwnerPhoneNo: "+15550101",
	}))
	assert.True(t, balance(t, l, "acct-a").Equal(d(30)))
	assert.True(t, balance(t, l, "acct-b").Equal(d(100)))

	t.Run("transfer requested", func(t *testing.T) {
		require.NoError(t, handle(t, events.TypeTransferRequested, "tx-1", events.TransferRequested{
			TransactionID: "tx-1", SenderAccount: "acct-a", ReceiverAccount: "acct-b", Amount: d(10),
		}))
		assert.True(t, balance(t, l, "acct-a").Equal(d(20)))

		rec, err := store.Idempotency().Get(ctx, "tx-1", OperationApplyTransfer)
		require.NoError(t, err)
		assert.NotEmpty(t, rec.EventID)
	})

	t.Run("owner conflict is permanent", func(t *testing.T) {
		err := handle(t, events.TypeAccountProvisioned, "acct-c", events.AccountProvisioned{
			AccountID: "acct-c", OwnerPhoneNo: "+15550100",
		})
		assert.ErrorIs(t, err, ErrOwnerConflict)
		assert.True(t, dispatch.IsPermanent(err))
	})

	t.Run("payload key mismatch", func(t *testing.T) {
		env, err := events.New(events.TypeTransferRequested, "tx-2", "test", events.TransferRequested{
			TransactionID: "tx-2", SenderAccount: "acct-a", ReceiverAccount: "acct-b", Amount: d(1),
		})
		require.NoError(t, err)
		env.TransactionID = "tx-3"

		h, _ := reg.Get(events.TypeTransferRequested)
		assert.ErrorIs(t, h.Handle(ctx, env), events.ErrInvalidPayload)
	})
}
