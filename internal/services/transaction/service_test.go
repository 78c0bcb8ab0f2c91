package transaction

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wallettx/internal/config"
	"wallettx/internal/dispatch"
	"wallettx/internal/events"
	"wallettx/internal/models"
	"wallettx/internal/repositories"
	"wallettx/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source. Times stay minute aligned so sqlite's
// textual comparison orders them correctly.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (Service, repositories.Store, *clock) {
	t.Helper()
	clk := newClock()
	store := repositories.NewStore(testutil.NewDB(t, config.TransactionService))
	svc := NewService(store, Config{TransferTTL: 10 * time.Minute, Now: clk.Now}, nil)
	return svc, store, clk
}

func transfer(amount int64) TransferRequest {
	return TransferRequest{
		SenderAccount:   "acct-a",
		ReceiverAccount: "acct-b",
		Amount:          decimal.NewFromInt(amount),
		Purpose:         "rent",
	}
}

func pendingRequests(t *testing.T, store repositories.Store) []events.TransferRequested {
	t.Helper()
	msgs, err := store.Outbox().ListPending(context.Background(), 100)
	require.NoError(t, err)

	var out []events.TransferRequested
	for _, m := range msgs {
		if m.EventType != string(events.TypeTransferRequested) {
			continue
		}
		env, err := events.Decode(m.Payload)
		require.NoError(t, err)
		var p events.TransferRequested
		require.NoError(t, env.DecodePayload(&p))
		out = append(out, p)
	}
	return out
}

func TestService_Initiate(t *testing.T) {
	ctx := context.Background()
	svc, store, clk := newTestService(t)

	tx, err := svc.Initiate(ctx, transfer(40))
	require.NoError(t, err)
	assert.NotEmpty(t, tx.TransactionID)
	assert.Equal(t, models.TransactionInitiated, tx.Status)
	assert.True(t, tx.ExpiresAt.Equal(clk.Now().Add(10*time.Minute)))

	got, err := svc.Get(ctx, tx.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionInitiated, got.Status)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "rent", got.Purpose)

	reqs := pendingRequests(t, store)
	require.Len(t, reqs, 1)
	assert.Equal(t, tx.TransactionID, reqs[0].TransactionID)
	assert.Equal(t, "acct-a", reqs[0].SenderAccount)
	assert.Equal(t, "acct-b", reqs[0].ReceiverAccount)
	require.NotNil(t, reqs[0].ExpiresAt)
	assert.True(t, reqs[0].ExpiresAt.Equal(tx.ExpiresAt))
}

func TestService_Initiate_Invalid(t *testing.T) {
	svc, store, _ := newTestService(t)

	tests := []struct {
		name string
		req  TransferRequest
	}{
		{name: "missing sender", req: TransferRequest{ReceiverAccount: "acct-b", Amount: decimal.NewFromInt(1)}},
		{name: "missing receiver", req: TransferRequest{SenderAccount: "acct-a", Amount: decimal.NewFromInt(1)}},
		{name: "self transfer", req: TransferRequest{SenderAccount: "acct-a", ReceiverAccount: "acct-a", Amount: decimal.NewFromInt(1)}},
		{name: "zero amount", req: transfer(0)},
		{name: "negative amount", req: transfer(-3)},
		{name: "more than four decimal places", req: TransferRequest{
			SenderAccount: "acct-a", ReceiverAccount: "acct-b", Amount: decimal.RequireFromString("0.00001"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Initiate(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	pending, err := store.Outbox().CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestService_ApplySettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("settled succeeds", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		tx, err := svc.Initiate(ctx, transfer(40))
		require.NoError(t, err)

		res, err := svc.ApplySettlement(ctx, "e-1", events.TransferSettled{TransactionID: tx.TransactionID, Status: events.StatusSettled})
		require.NoError(t, err)
		assert.Equal(t, ResultApplied, res)

		got, err := svc.Get(ctx, tx.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionSucceeded, got.Status)
		assert.Empty(t, got.StatusMessage)
	})

	t.Run("rejected fails with reason", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		tx, err := svc.Initiate(ctx, transfer(40))
		require.NoError(t, err)

		res, err := svc.ApplySettlement(ctx, "e-1", events.TransferSettled{
			TransactionID: tx.TransactionID, Status: events.StatusRejected, StatusMessage: events.ReasonInsufficientFunds,
		})
		require.NoError(t, err)
		assert.Equal(t, ResultApplied, res)

		got, err := svc.Get(ctx, tx.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionFailed, got.Status)
		assert.Equal(t, events.ReasonInsufficientFunds, got.StatusMessage)
	})

	t.Run("duplicate outcome is a no-op", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		tx, err := svc.Initiate(ctx, transfer(40))
		require.NoError(t, err)

		outcome := events.TransferSettled{TransactionID: tx.TransactionID, Status: events.StatusSettled}
		_, err = svc.ApplySettlement(ctx, "e-1", outcome)
		require.NoError(t, err)

		res, err := svc.ApplySettlement(ctx, "e-2", outcome)
		require.NoError(t, err)
		assert.Equal(t, ResultDuplicate, res)
	})

	t.Run("terminal state is never left", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		tx, err := svc.Initiate(ctx, transfer(40))
		require.NoError(t, err)
		require.NoError(t, svc.Expire(ctx, tx.TransactionID, events.ReasonTimeout))

		res, err := svc.ApplySettlement(ctx, "e-1", events.TransferSettled{TransactionID: tx.TransactionID, Status: events.StatusSettled})
		require.NoError(t, err)
		assert.Equal(t, ResultConflict, res)

		got, err := svc.Get(ctx, tx.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionFailed, got.Status)
		assert.Equal(t, events.ReasonTimeout, got.StatusMessage)

		rec, err := store.Idempotency().Get(ctx, tx.TransactionID, OperationApplySettlement)
		require.NoError(t, err)
		assert.Equal(t, string(ResultConflict), rec.Outcome)
		assert.Contains(t, rec.Reason, events.ReasonTimeout)
	})

	t.Run("rejection after failure is already final", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		tx, err := svc.Initiate(ctx, transfer(40))
		require.NoError(t, err)
		require.NoError(t, svc.Expire(ctx, tx.TransactionID, events.ReasonTimeout))

		res, err := svc.ApplySettlement(ctx, "e-1", events.TransferSettled{
			TransactionID: tx.TransactionID, Status: events.StatusRejected, StatusMessage: events.ReasonExpired,
		})
		require.NoError(t, err)
		assert.Equal(t, ResultAlreadyFinal, res)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		_, err := svc.ApplySettlement(ctx, "e-1", events.TransferSettled{TransactionID: "missing", Status: events.StatusSettled})
		assert.ErrorIs(t, err, ErrTransactionNotFound)

		// the claim rolls back with the rest of the transaction
		_, err = store.Idempotency().Get(ctx, "missing", OperationApplySettlement)
		assert.Error(t, err)
	})

	t.Run("invalid status", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.ApplySettlement(ctx, "e-1", events.TransferSettled{TransactionID: "tx", Status: "PENDING"})
		assert.ErrorIs(t, err, ErrInvalidOutcome)
	})
}

func TestService_ListByAccount(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newTestService(t)

	var ids []string
	for i := 0; i < 5; i++ {
		tx, err := svc.Initiate(ctx, transfer(int64(i+1)))
		require.NoError(t, err)
		ids = append(ids, tx.TransactionID)
		clk.Advance(time.Minute)
	}
	_, err := svc.Initiate(ctx, TransferRequest{SenderAccount: "acct-c", ReceiverAccount: "acct-a", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	page, err := svc.ListByAccount(ctx, "acct-a", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Items, 2)
	// newest first
	assert.Equal(t, ids[4], page.Items[0].TransactionID)
	assert.Equal(t, ids[3], page.Items[1].TransactionID)

	page, err = svc.ListByAccount(ctx, "acct-a", 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[0], page.Items[0].TransactionID)
	assert.Equal(t, 3, page.Page)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestService_Reconciliation(t *testing.T) {
	ctx := context.Background()
	svc, store, clk := newTestService(t)

	stale, err := svc.Initiate(ctx, transfer(1))
	require.NoError(t, err)
	done, err := svc.Initiate(ctx, transfer(2))
	require.NoError(t, err)
	_, err = svc.ApplySettlement(ctx, "e-1", events.TransferSettled{TransactionID: done.TransactionID, Status: events.StatusSettled})
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	fresh, err := svc.Initiate(ctx, transfer(3))
	require.NoError(t, err)

	list, err := svc.ListStale(ctx, time.Minute, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stale.TransactionID, list[0].TransactionID)

	t.Run("redrive re-enqueues the request", func(t *testing.T) {
		require.NoError(t, svc.Redrive(ctx, stale.TransactionID))

		got, err := svc.Get(ctx, stale.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.RedriveCount)
		assert.True(t, got.LastDrivenAt.Equal(clk.Now()))

		var count int
		for _, r := range pendingRequests(t, store) {
			if r.TransactionID == stale.TransactionID {
				count++
			}
		}
		assert.Equal(t, 2, count)

		list, err := svc.ListStale(ctx, time.Minute, 0)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("terminal transfers are not redriven", func(t *testing.T) {
		assert.ErrorIs(t, svc.Redrive(ctx, done.TransactionID), ErrNotInitiated)
		assert.ErrorIs(t, svc.Redrive(ctx, "missing"), ErrTransactionNotFound)
	})

	t.Run("expire", func(t *testing.T) {
		require.NoError(t, svc.Expire(ctx, fresh.TransactionID, events.ReasonTimeout))
		assert.ErrorIs(t, svc.Expire(ctx, fresh.TransactionID, events.ReasonTimeout), ErrNotInitiated)
		assert.ErrorIs(t, svc.Expire(ctx, done.TransactionID, events.ReasonTimeout), ErrNotInitiated)
	})
}

func TestRegisterHandlers(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	reg := dispatch.NewRegistry()
	require.NoError(t, RegisterHandlers(reg, svc))
	assert.Equal(t, []string{events.TopicTransferSettled}, reg.Topics())

	handle := func(typ events.Type, payload events.TransferSettled) error {
		env, err := events.New(typ, payload.TransactionID, config.WalletService, payload)
		require.NoError(t, err)
		h, ok := reg.Get(typ)
		require.True(t, ok)
		return h.Handle(ctx, env)
	}

	var ids []string
	for i := 0; i < 2; i++ {
		tx, err := svc.Initiate(ctx, transfer(1))
		require.NoError(t, err)
		ids = append(ids, tx.TransactionID)
	}

	require.NoError(t, handle(events.TypeTransferSettled, events.TransferSettled{TransactionID: ids[0], Status: events.StatusSettled}))
	require.NoError(t, handle(events.TypeTransferRejected, events.TransferSettled{
		TransactionID: ids[1], Status: events.StatusRejected, StatusMessage: events.ReasonAccountNotFound,
	}))

	for i, want := range []models.TransactionStatus{models.TransactionSucceeded, models.TransactionFailed} {
		got, err := svc.Get(ctx, ids[i])
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, fmt.Sprintf("transaction %d", i))
	}

	err := handle(events.TypeTransferSettled, events.TransferSettled{TransactionID: "unknown", Status: events.StatusSettled})
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.True(t, dispatch.IsPermanent(err))

	// a rejection envelope claiming success is refused and changes nothing
	pending, err := svc.Initiate(ctx, transfer(1))
	require.NoError(t, err)
	contradictory := events.Envelope{
		EventID:       "0b7c4a55-9a0e-4a8e-9d8a-0c6a2f1f1b11",
		EventType:     events.TypeTransferRejected,
		TransactionID: pending.TransactionID,
		Producer:      config.WalletService,
		OccurredAt:    time.Now(),
		Payload:       []byte(`{"transactionId":"` + pending.TransactionID + `","status":"SETTLED"}`),
	}
	h, ok := reg.Get(events.TypeTransferRejected)
	require.True(t, ok)
	assert.ErrorIs(t, h.Handle(ctx, contradictory), events.ErrInvalidPayload)

	got, err := svc.Get(ctx, pending.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionInitiated, got.Status)
}

func TestService_Initiate_KeepsStoredScale(t *testing.T) {
	svc, _, _ := newTestService(t)

	tx, err := svc.Initiate(context.Background(), TransferRequest{
		SenderAccount: "acct-a", ReceiverAccount: "acct-b", Amount: decimal.RequireFromString("12.3400"),
	})
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("12.34")))
}
