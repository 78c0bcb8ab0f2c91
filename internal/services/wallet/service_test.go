package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wallettx/internal/config"
	"wallettx/internal/events"
	"wallettx/internal/models"
	"wallettx/internal/repositories"
	"wallettx/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordOutcome(status, reason string) { m.Called(status, reason) }
func (m *MockMetrics) RecordDuplicate(operation string)    { m.Called(operation) }
func (m *MockMetrics) RecordProvisioned()                  { m.Called() }

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, metrics MetricsCollector) (Ledger, repositories.Store) {
	t.Helper()
	store := repositories.NewStore(testutil.NewDB(t, config.WalletService))
	l := NewLedger(store, Config{
		InitialAmount: decimal.NewFromInt(100),
		Now:           func() time.Time { return fixedNow },
	}, nil, metrics)
	return l, store
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func provision(t *testing.T, l Ledger, id, phone string, balance int64) {
	t.Helper()
	b := d(balance)
	_, err := l.Provision(context.Background(), Account{AccountID: id, OwnerPhoneNo: phone, InitialBalance: &b})
	require.NoError(t, err)
}

func balance(t *testing.T, l Ledger, id string) decimal.Decimal {
	t.Helper()
	b, err := l.Balance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func outboxOutcomes(t *testing.T, store repositories.Store) []events.TransferSettled {
	t.Helper()
	msgs, err := store.Outbox().ListPending(context.Background(), 100)
	require.NoError(t, err)

	out := make([]events.TransferSettled, 0, len(msgs))
	for _, m := range msgs {
		env, err := events.Decode(m.Payload)
		require.NoError(t, err)
		var p events.TransferSettled
		require.NoError(t, env.DecodePayload(&p))
		out = append(out, p)
	}
	return out
}

func TestLedger_ApplyTransfer(t *testing.T) {
	expired := fixedNow.Add(-time.Second)
	future := fixedNow.Add(time.Minute)

	tests := []struct {
		name         string
		req          TransferRequest
		want         Outcome
		wantSender   int64
		wantReceiver int64
	}{
		{
			name:         "settles",
			req:          TransferRequest{TransactionID: "tx-1", Sender: "acct-a", Receiver: "acct-b", Amount: d(40), ExpiresAt: &future},
			want:         Settled(),
			wantSender:   60,
			wantReceiver: 50,
		},
		{
			name:         "whole balance",
			req:          TransferRequest{TransactionID: "tx-2", Sender: "acct-a", Receiver: "acct-b", Amount: d(100)},
			want:         Settled(),
			wantSender:   0,
			wantReceiver: 110,
		},
		{
			name:         "insufficient funds",
			req:          TransferRequest{TransactionID: "tx-3", Sender: "acct-a", Receiver: "acct-b", Amount: d(101)},
			want:         Rejected(events.ReasonInsufficientFunds),
			wantSender:   100,
			wantReceiver: 10,
		},
		{
			name:         "unknown receiver",
			req:          TransferRequest{TransactionID: "tx-4", Sender: "acct-a", Receiver: "acct-x", Amount: d(1)},
			want:         Rejected(events.ReasonAccountNotFound),
			wantSender:   100,
			wantReceiver: 10,
		},
		{
			name:         "unknown sender",
			req:          TransferRequest{TransactionID: "tx-5", Sender: "acct-x", Receiver: "acct-b", Amount: d(1)},
			want:         Rejected(events.ReasonAccountNotFound),
			wantSender:   100,
			wantReceiver: 10,
		},
		{
			name:         "past deadline",
			req:          TransferRequest{TransactionID: "tx-6", Sender: "acct-a", Receiver: "acct-b", Amount: d(1), ExpiresAt: &expired},
			want:         Rejected(events.ReasonExpired),
			wantSender:   100,
			wantReceiver: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, store := newTestLedger(t, nil)
			provision(t, l, "acct-a", "+15550100", 100)
			provision(t, l, "acct-b", "+15550101", 10)

			got, err := l.ApplyTransfer(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			assert.True(t, balance(t, l, "acct-a").Equal(d(tt.wantSender)), "sender balance")
			assert.True(t, balance(t, l, "acct-b").Equal(d(tt.wantReceiver)), "receiver balance")

			// the outcome is always reported, rejection included
			outcomes := outboxOutcomes(t, store)
			require.Len(t, outcomes, 1)
			assert.Equal(t, tt.req.TransactionID, outcomes[0].TransactionID)
			assert.Equal(t, tt.want.Status, outcomes[0].Status)
			assert.Equal(t, tt.want.Reason, outcomes[0].StatusMessage)

			rec, err := store.Idempotency().Get(context.Background(), tt.req.TransactionID, OperationApplyTransfer)
			require.NoError(t, err)
			assert.Equal(t, string(tt.want.Status), rec.Outcome)
		})
	}
}

func TestLedger_ApplyTransfer_InvalidRequest(t *testing.T) {
	l, _ := newTestLedger(t, nil)

	tests := []struct {
		name string
		req  TransferRequest
	}{
		{name: "missing id", req: TransferRequest{Sender: "a", Receiver: "b", Amount: d(1)}},
		{name: "missing sender", req: TransferRequest{TransactionID: "tx", Receiver: "b", Amount: d(1)}},
		{name: "same account", req: TransferRequest{TransactionID: "tx", Sender: "a", Receiver: "a", Amount: d(1)}},
		{name: "zero amount", req: TransferRequest{TransactionID: "tx", Sender: "a", Receiver: "b", Amount: decimal.Zero}},
		{name: "negative amount", req: TransferRequest{TransactionID: "tx", Sender: "a", Receiver: "b", Amount: d(-5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ApplyTransfer(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidTransfer)
		})
	}
}

func TestLedger_ApplyTransfer_Duplicate(t *testing.T) {
	metrics := new(MockMetrics)
	metrics.On("RecordProvisioned").Return()
	metrics.On("RecordOutcome", "SETTLED", "").Return().Once()
	metrics.On("RecordDuplicate", OperationApplyTransfer).Return().Twice()

	l, store := newTestLedger(t, metrics)
	provision(t, l, "acct-a", "+15550100", 100)
	provision(t, l, "acct-b", "+15550101", 10)

	req := TransferRequest{TransactionID: "tx-1", EventID: "e-1", Sender: "acct-a", Receiver: "acct-b", Amount: d(40)}
	first, err := l.ApplyTransfer(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	for i := 0; i < 2; i++ {
		// a redelivery carries the same transaction id, possibly a new event id
		req.EventID = fmt.Sprintf("e-dup-%d", i)
		again, err := l.ApplyTransfer(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, again.Duplicate)
		assert.Equal(t, first.Status, again.Status)
	}

	assert.True(t, balance(t, l, "acct-a").Equal(d(60)))
	assert.True(t, balance(t, l, "acct-b").Equal(d(50)))

	entries, err := l.Entries(context.Background(), "acct-a", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// every delivery re-emits the stored outcome
	outcomes := outboxOutcomes(t, store)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, events.StatusSettled, o.Status)
	}
	metrics.AssertExpectations(t)
}

func TestLedger_ApplyTransfer_DuplicateRejection(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	provision(t, l, "acct-a", "+15550100", 5)
	provision(t, l, "acct-b", "+15550101", 50)

	req := TransferRequest{TransactionID: "tx-1", Sender: "acct-a", Receiver: "acct-b", Amount: d(40)}
	first, err := l.ApplyTransfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Rejected(events.ReasonInsufficientFunds), first)

	// funds arriving later do not turn a recorded rejection into a settlement
	req2 := TransferRequest{TransactionID: "tx-topup", Sender: "acct-b", Receiver: "acct-a", Amount: d(40)}
	topup, err := l.ApplyTransfer(context.Background(), req2)
	require.NoError(t, err)
	require.Equal(t, Settled(), topup)

	again, err := l.ApplyTransfer(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, events.StatusRejected, again.Status)
	assert.Equal(t, events.ReasonInsufficientFunds, again.Reason)
}

func TestLedger_ApplyTransfer_ConcurrentDuplicates(t *testing.T) {
	l, _ := newTestLedger(t, nil)
	provision(t, l, "acct-a", "+15550100", 100)
	provision(t, l, "acct-b", "+15550101", 10)

	const deliveries = 8
	results := make([]Outcome, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := l.ApplyTransfer(context.Background(), TransferRequest{
				TransactionID: "tx-1", Sender: "acct-a", Receiver: "acct-b", Amount: d(40),
			})
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, r := range results {
		assert.Equal(t, events.StatusSettled, r.Status)
		if !r.Duplicate {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.True(t, balance(t, l, "acct-a").Equal(d(60)))
	assert.True(t, balance(t, l, "acct-b").Equal(d(50)))
}

func TestLedger_ApplyTransfer_ConservesMoney(t *testing.T) {
	l, store := newTestLedger(t, nil)
	accounts := []string{"acct-a", "acct-b", "acct-c", "acct-d"}
	for i, id := range accounts {
		provision(t, l, id, fmt.Sprintf("+1555010%d", i), 50)
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.ApplyTransfer(context.Background(), TransferRequest{
				TransactionID: fmt.Sprintf("tx-%d", i),
				Sender:        accounts[i%4],
				Receiver:      accounts[(i+1)%4],
				Amount:        d(int64(i%7 + 1)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total, err := store.Wallets().GetTotalBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, total.Equal(d(200)), "total %s", total)
	for _, id := range accounts {
		assert.False(t, balance(t, l, id).IsNegative())
	}
}

func TestLedger_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("configured default balance", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		created, err := l.Provision(ctx, Account{AccountID: "acct-a", OwnerPhoneNo: "+15550100"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, balance(t, l, "acct-a").Equal(d(100)))
	})

	t.Run("explicit balance", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		provision(t, l, "acct-a", "+15550100", 7)
		assert.True(t, balance(t, l, "acct-a").Equal(d(7)))
	})

	t.Run("duplicate never resets balance", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		provision(t, l, "acct-a", "+15550100", 100)
		provision(t, l, "acct-b", "+15550101", 0)

		_, err := l.ApplyTransfer(ctx, TransferRequest{TransactionID: "tx-1", Sender: "acct-a", Receiver: "acct-b", Amount: d(30)})
		require.NoError(t, err)

		created, err := l.Provision(ctx, Account{AccountID: "acct-a", OwnerPhoneNo: "+15550100"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.True(t, balance(t, l, "acct-a").Equal(d(70)))
	})

	t.Run("owner already has another account", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		provision(t, l, "acct-a", "+15550100", 100)

		_, err := l.Provision(ctx, Account{AccountID: "acct-z", OwnerPhoneNo: "+15550100"})
		assert.ErrorIs(t, err, ErrOwnerConflict)
	})

	t.Run("invalid", func(t *testing.T) {
		l, _ := newTestLedger(t, nil)
		_, err := l.Provision(ctx, Account{AccountID: "acct-a"})
		assert.ErrorIs(t, err, ErrInvalidAccount)

		neg := d(-1)
		_, err = l.Provision(ctx, Account{AccountID: "acct-a", OwnerPhoneNo: "+15550100", InitialBalance: &neg})
		assert.ErrorIs(t, err, ErrInvalidAccount)
	})
}

func TestLedger_Lookups(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, nil)
	provision(t, l, "acct-a", "+15550100", 100)
	provision(t, l, "acct-b", "+15550101", 0)

	acct, err := l.ResolveOwner(ctx, "+15550100")
	require.NoError(t, err)
	assert.Equal(t, "acct-a", acct)

	_, err = l.ResolveOwner(ctx, "+19999999")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = l.ResolveOwner(ctx, "")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = l.GetWallet(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = l.ApplyTransfer(ctx, TransferRequest{TransactionID: "tx-1", Sender: "acct-a", Receiver: "acct-b", Amount: d(25)})
	require.NoError(t, err)

	entries, err := l.Entries(ctx, "acct-b", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryCredit, entries[0].Direction)
	assert.True(t, entries[0].BalanceAfter.Equal(d(25)))
}
