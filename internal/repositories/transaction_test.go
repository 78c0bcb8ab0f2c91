package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wallettx/internal/config"
	"wallettx/internal/models"
	"wallettx/internal/repositories"
	"wallettx/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransaction(id, sender string, created time.Time) *models.Transaction {
	return &models.Transaction{
		TransactionID:   id,
		SenderAccount:   sender,
		ReceiverAccount: "acct-receiver",
		Amount:          decimal.NewFromInt(10),
		Status:          models.TransactionInitiated,
		LastDrivenAt:    created,
		ExpiresAt:       created.Add(30 * time.Minute),
		CreatedAt:       created,
	}
}

func TestTransactionRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTransactionRepository(testutil.NewDB(t, config.TransactionService))

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, newTransaction("tx-1", "acct-a", now)))

	got, err := repo.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-a", got.SenderAccount)
	assert.Equal(t, models.TransactionInitiated, got.Status)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(10)))

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrTransactionNotFound)

	locked, err := repo.GetForUpdate(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", locked.TransactionID)
}

func TestTransactionRepository_Finalize(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTransactionRepository(testutil.NewDB(t, config.TransactionService))
	require.NoError(t, repo.Create(ctx, newTransaction("tx-1", "acct-a", time.Now().UTC())))

	require.NoError(t, repo.Finalize(ctx, "tx-1", models.TransactionSucceeded, ""))

	got, err := repo.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionSucceeded, got.Status)

	// terminal states are immutable
	err = repo.Finalize(ctx, "tx-1", models.TransactionFailed, "timeout")
	assert.ErrorIs(t, err, repositories.ErrNotInitiated)

	got, err = repo.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionSucceeded, got.Status)

	assert.Error(t, repo.Finalize(ctx, "tx-1", models.TransactionInitiated, ""))
	assert.ErrorIs(t, repo.Finalize(ctx, "missing", models.TransactionFailed, "x"), repositories.ErrNotInitiated)
}

func TestTransactionRepository_ListBySender(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTransactionRepository(testutil.NewDB(t, config.TransactionService))

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newTransaction(fmt.Sprintf("tx-%d", i), "acct-a", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, newTransaction("tx-other", "acct-b", base)))

	page, total, err := repo.ListBySender(ctx, "acct-a", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "tx-4", page[0].TransactionID)
	assert.Equal(t, "tx-3", page[1].TransactionID)

	page, _, err = repo.ListBySender(ctx, "acct-a", 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "tx-0", page[0].TransactionID)

	page, total, err = repo.ListBySender(ctx, "nobody", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestTransactionRepository_ListStaleAndRedrive(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTransactionRepository(testutil.NewDB(t, config.TransactionService))

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newTransaction("tx-old", "acct-a", base)))
	require.NoError(t, repo.Create(ctx, newTransaction("tx-new", "acct-a", base.Add(10*time.Minute))))
	require.NoError(t, repo.Create(ctx, newTransaction("tx-done", "acct-a", base)))
	require.NoError(t, repo.Finalize(ctx, "tx-done", models.TransactionSucceeded, ""))

	stale, err := repo.ListStale(ctx, base.Add(5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "tx-old", stale[0].TransactionID)

	require.NoError(t, repo.MarkRedriven(ctx, "tx-old", base.Add(20*time.Minute)))
	got, err := repo.GetByID(ctx, "tx-old")
	require.NoError(t, err)
	assert.Equal(t, 1, got.RedriveCount)

	stale, err = repo.ListStale(ctx, base.Add(5*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	assert.ErrorIs(t, repo.MarkRedriven(ctx, "tx-done", base), repositories.ErrNotInitiated)
}

func TestTransactionRepository_CountByStatus(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewTransactionRepository(testutil.NewDB(t, config.TransactionService))

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, newTransaction("tx-1", "a", now)))
	require.NoError(t, repo.Create(ctx, newTransaction("tx-2", "a", now)))
	require.NoError(t, repo.Finalize(ctx, "tx-2", models.TransactionFailed, "insufficient_funds"))

	n, err := repo.CountByStatus(ctx, models.TransactionInitiated)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.CountByStatus(ctx, models.TransactionFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
