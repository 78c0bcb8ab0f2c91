package repositories_test

import (
	"context"
	"testing"

	"wallettx/internal/config"
	"wallettx/internal/models"
	"wallettx/internal/repositories"
	"wallettx/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletRepository_Create(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewWalletRepository(testutil.NewDB(t, config.WalletService))

	require.NoError(t, repo.Create(ctx, &models.Wallet{AccountID: "acct-a", OwnerPhoneNo: "+15550100", Balance: decimal.NewFromInt(100)}))

	t.Run("same account", func(t *testing.T) {
		err := repo.Create(ctx, &models.Wallet{AccountID: "acct-a", OwnerPhoneNo: "+15550199", Balance: decimal.Zero})
		assert.ErrorIs(t, err, repositories.ErrDuplicateWallet)
	})

	t.Run("same owner", func(t *testing.T) {
		err := repo.Create(ctx, &models.Wallet{AccountID: "acct-z", OwnerPhoneNo: "+15550100", Balance: decimal.Zero})
		assert.ErrorIs(t, err, repositories.ErrDuplicateWallet)
	})

	t.Run("negative balance", func(t *testing.T) {
		err := repo.Create(ctx, &models.Wallet{AccountID: "acct-n", OwnerPhoneNo: "+15550101", Balance: decimal.NewFromInt(-1)})
		assert.ErrorIs(t, err, models.ErrNegativeBalance)
	})

	got, err := repo.GetByID(ctx, "acct-a")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))

	byOwner, err := repo.GetByOwnerPhone(ctx, "+15550100")
	require.NoError(t, err)
	assert.Equal(t, "acct-a", byOwner.AccountID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrWalletNotFound)
	_, err = repo.GetByOwnerPhone(ctx, "+19999999")
	assert.ErrorIs(t, err, repositories.ErrWalletNotFound)
}

func TestWalletRepository_UpdateBalance(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewWalletRepository(testutil.NewDB(t, config.WalletService))
	require.NoError(t, repo.Create(ctx, &models.Wallet{AccountID: "acct-a", OwnerPhoneNo: "+15550100", Balance: decimal.NewFromInt(100)}))

	require.NoError(t, repo.UpdateBalance(ctx, "acct-a", decimal.NewFromInt(60)))
	got, err := repo.GetForUpdate(ctx, "acct-a")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(60)))

	assert.ErrorIs(t, repo.UpdateBalance(ctx, "acct-a", decimal.NewFromInt(-1)), models.ErrNegativeBalance)
	assert.ErrorIs(t, repo.UpdateBalance(ctx, "missing", decimal.NewFromInt(1)), repositories.ErrWalletNotFound)
}

func TestWalletRepository_Entries(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewWalletRepository(testutil.NewDB(t, config.WalletService))

	require.NoError(t, repo.AddEntries(ctx,
		&models.LedgerEntry{TransactionID: "tx-1", AccountID: "acct-a", Direction: models.EntryDebit, Amount: decimal.NewFromInt(40), BalanceAfter: decimal.NewFromInt(60)},
		&models.LedgerEntry{TransactionID: "tx-1", AccountID: "acct-b", Direction: models.EntryCredit, Amount: decimal.NewFromInt(40), BalanceAfter: decimal.NewFromInt(50)},
	))
	require.NoError(t, repo.AddEntries(ctx))

	entries, err := repo.ListEntries(ctx, "acct-a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntryDebit, entries[0].Direction)
	assert.True(t, entries[0].BalanceAfter.Equal(decimal.NewFromInt(60)))

	// one entry per transaction, account and direction
	err = repo.AddEntries(ctx, &models.LedgerEntry{TransactionID: "tx-1", AccountID: "acct-a", Direction: models.EntryDebit, Amount: decimal.NewFromInt(40), BalanceAfter: decimal.NewFromInt(20)})
	assert.Error(t, err)
}

func TestWalletRepository_GetTotalBalance(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewWalletRepository(testutil.NewDB(t, config.WalletService))

	total, err := repo.GetTotalBalance(ctx)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	require.NoError(t, repo.Create(ctx, &models.Wallet{AccountID: "a", OwnerPhoneNo: "+15550100", Balance: decimal.NewFromInt(100)}))
	require.NoError(t, repo.Create(ctx, &models.Wallet{AccountID: "b", OwnerPhoneNo: "+15550101", Balance: decimal.NewFromInt(10)}))

	total, err = repo.GetTotalBalance(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(110)))
}
