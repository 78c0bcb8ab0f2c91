package repositories

import (
	"context"
	"fmt"
	"time"

	"wallettx/internal/events"
	"wallettx/internal/models"

	"gorm.io/gorm"
)

// OutboxRepository stores envelopes that must reach the bus after the local
// transaction that produced them commits.
type OutboxRepository interface {
	// Enqueue writes env as a pending row. Call it with the Store of the
	// transaction that performs the mutation the envelope reports.
	Enqueue(ctx context.Context, env events.Envelope) (*models.OutboxMessage, error)
	// ListPending returns pending rows in creation order.
	ListPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkPublished(ctx context.Context, id uint, at time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	CountPending(ctx context.Context) (int64, error)
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Enqueue(ctx context.Context, env events.Envelope) (*models.OutboxMessage, error) {
	body, err := events.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	msg := &models.OutboxMessage{
		EventID:      env.EventID,
		Topic:        env.Topic(),
		PartitionKey: env.Key(),
		EventType:    string(env.EventType),
		Payload:      body,
		Status:       models.OutboxPending,
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue outbox message: %w", err)
	}
	return msg, nil
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var msgs []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", models.OutboxPending).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outbox messages: %w", err)
	}
	return msgs, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.OutboxPublished,
			"published_at": at,
			"last_error":   "",
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark outbox message published: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	if len(reason) > 512 {
		reason = reason[:512]
	}
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("status = ?", models.OutboxPending).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox messages: %w", err)
	}
	return count, nil
}
