package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallettx/internal/models"
	"wallettx/internal/repositories"

	"go.uber.org/zap"
)

func (s *service) ListStale(ctx context.Context, threshold time.Duration, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = DefaultStaleLimit
	}
	return s.store.Transactions().ListStale(ctx, s.now().Add(-threshold), limit)
}

func (s *service) Redrive(ctx context.Context, id string) error {
	err := s.store.ExecuteInTransaction(ctx, func(st repositories.Store) error {
		tx, err := st.Transactions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if tx.Status != models.TransactionInitiated {
			return ErrNotInitiated
		}
		if err := st.Transactions().MarkRedriven(ctx, id, s.now()); err != nil {
			return err
		}
		return s.enqueueRequest(ctx, st, tx)
	})
	if err != nil {
		return fmt.Errorf("redrive %s: %w", id, mapRepoErr(err))
	}
	s.logger.Info("transfer redriven", zap.String("transaction_id", id))
	return nil
}

func (s *service) Expire(ctx context.Context, id string, reason string) error {
	err := s.store.Transactions().Finalize(ctx, id, models.TransactionFailed, reason)
	if err != nil {
		return fmt.Errorf("expire %s: %w", id, mapRepoErr(err))
	}
	s.logger.Warn("transfer failed by reconciliation", zap.String("transaction_id", id), zap.String("reason", reason))
	return nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repositories.ErrTransactionNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, repositories.ErrNotInitiated):
		return ErrNotInitiated
	default:
		return err
	}
}
