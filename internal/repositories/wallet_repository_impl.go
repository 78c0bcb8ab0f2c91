package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallettx/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{
		db: db,
	}
}

func (r *walletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(wallet)
	if result.Error != nil {
		return fmt.Errorf("failed to create wallet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateWallet
	}
	return nil
}

func (r *walletRepository) GetByID(ctx context.Context, accountID string) (*models.Wallet, error) {
	return r.first(r.db.WithContext(ctx).Where("account_id = ?", accountID))
}

func (r *walletRepository) GetByOwnerPhone(ctx context.Context, phone string) (*models.Wallet, error) {
	return r.first(r.db.WithContext(ctx).Where("owner_phone_no = ?", phone))
}

func (r *walletRepository) GetForUpdate(ctx context.Context, accountID string) (*models.Wallet, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID))
}

func (r *walletRepository) first(q *gorm.DB) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := q.First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return models.ErrNegativeBalance
	}
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"balance":    balance,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update wallet balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (r *walletRepository) AddEntries(ctx context.Context, entries ...*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(entries).Error; err != nil {
		return fmt.Errorf("failed to write ledger entries: %w", err)
	}
	return nil
}

func (r *walletRepository) ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func (r *walletRepository) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	var wallets []models.Wallet
	if err := r.db.WithContext(ctx).Select("balance").Find(&wallets).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to get total balance: %w", err)
	}
	total := decimal.Zero
	for _, w := range wallets {
		total = total.Add(w.Balance)
	}
	return total, nil
}
