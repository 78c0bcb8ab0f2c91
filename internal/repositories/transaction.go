package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallettx/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotInitiated        = errors.New("transaction is no longer initiated")
)

// TransactionRepository persists transfer records.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	// GetForUpdate reads the record under a row lock held until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Transaction, error)
	ListBySender(ctx context.Context, sender string, limit, offset int) ([]models.Transaction, int64, error)
	// ListStale returns INITIATED records last driven before cutoff, oldest first.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
	// Finalize moves an INITIATED record to a terminal status. It returns
	// ErrNotInitiated when the record already left INITIATED.
	Finalize(ctx context.Context, id string, status models.TransactionStatus, message string) error
	// MarkRedriven bumps the redrive counter of an INITIATED record.
	MarkRedriven(ctx context.Context, id string, at time.Time) error
	CountByStatus(ctx context.Context, status models.TransactionStatus) (int64, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *transactionRepository) GetForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *transactionRepository) get(db *gorm.DB, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := db.Where("transaction_id = ?", id).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) ListBySender(ctx context.Context, sender string, limit, offset int) ([]models.Transaction, int64, error) {
	var (
		txs   []models.Transaction
		total int64
	)
	q := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("sender_account = ?", sender).
		Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	err := q.Order("created_at DESC").Order("transaction_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, total, nil
}

func (r *transactionRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_driven_at < ?", models.TransactionInitiated, cutoff).
		Order("last_driven_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	return txs, nil
}

func (r *transactionRepository) Finalize(ctx context.Context, id string, status models.TransactionStatus, message string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize %s: %s is not a terminal status", id, status)
	}
	result := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("transaction_id = ? AND status = ?", id, models.TransactionInitiated).
		Updates(map[string]interface{}{
			"status":         status,
			"status_message": message,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotInitiated
	}
	return nil
}

func (r *transactionRepository) MarkRedriven(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("transaction_id = ? AND status = ?", id, models.TransactionInitiated).
		Updates(map[string]interface{}{
			"redrive_count":  gorm.Expr("redrive_count + ?", 1),
			"last_driven_at": at,
			"updated_at":     at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark transaction redriven: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotInitiated
	}
	return nil
}

func (r *transactionRepository) CountByStatus(ctx context.Context, status models.TransactionStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("status = ?", status).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
