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

var ErrNotProcessed = errors.New("event not processed")

// IdempotencyRepository records which (correlation id, operation) pairs have
// already been applied.
type IdempotencyRepository interface {
	// Claim inserts rec unless the pair is already recorded and reports whether
	// this call inserted it. A concurrent claimant blocks until the first commits.
	Claim(ctx context.Context, rec *models.ProcessedEvent) (bool, error)
	// Complete stores the outcome of a claimed pair.
	Complete(ctx context.Context, correlationID, operation, outcome, reason string) error
	Get(ctx context.Context, correlationID, operation string) (*models.ProcessedEvent, error)
}

type idempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) Claim(ctx context.Context, rec *models.ProcessedEvent) (bool, error) {
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record processed event: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, correlationID, operation, outcome, reason string) error {
	result := r.db.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("correlation_id = ? AND operation = ?", correlationID, operation).
		Updates(map[string]interface{}{
			"outcome": outcome,
			"reason":  reason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete processed event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotProcessed
	}
	return nil
}

func (r *idempotencyRepository) Get(ctx context.Context, correlationID, operation string) (*models.ProcessedEvent, error) {
	var rec models.ProcessedEvent
	err := r.db.WithContext(ctx).
		Where("correlation_id = ? AND operation = ?", correlationID, operation).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotProcessed
		}
		return nil, fmt.Errorf("failed to get processed event: %w", err)
	}
	return &rec, nil
}
