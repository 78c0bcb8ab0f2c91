package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallettx/internal/config"
	"wallettx/internal/events"
	"wallettx/internal/logging"
	"wallettx/internal/models"
	"wallettx/internal/repositories"
	"wallettx/internal/utils/pagination"
	"wallettx/internal/utils/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type service struct {
	store  repositories.Store
	config Config
	logger *zap.Logger
}

func NewService(store repositories.Store, cfg Config, logger *zap.Logger) Service {
	if store == nil {
		panic("store is required")
	}
	if cfg.TransferTTL <= 0 {
		cfg.TransferTTL = DefaultTransferTTL
	}
	if cfg.Producer == "" {
		cfg.Producer = config.TransactionService
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &service{
		store:  store,
		config: cfg,
		logger: logging.OrNop(logger).Named("transactions"),
	}
}

func (s *service) now() time.Time {
	return s.config.Now().UTC()
}

func (s *service) Initiate(ctx context.Context, req TransferRequest) (*models.Transaction, error) {
	if err := validation.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := validation.Amount("amount", req.Amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	now := s.now()
	tx := &models.Transaction{
		TransactionID:   uuid.NewString(),
		SenderAccount:   req.SenderAccount,
		ReceiverAccount: req.ReceiverAccount,
		Amount:          req.Amount,
		Purpose:         req.Purpose,
		Status:          models.TransactionInitiated,
		LastDrivenAt:    now,
		ExpiresAt:       now.Add(s.config.TransferTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.store.ExecuteInTransaction(ctx, func(st repositories.Store) error {
		if err := st.Transactions().Create(ctx, tx); err != nil {
			return err
		}
		return s.enqueueRequest(ctx, st, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("initiate transfer: %w", err)
	}

	s.logger.Info("transfer initiated",
		zap.String("transaction_id", tx.TransactionID),
		zap.String("sender", tx.SenderAccount),
		zap.String("receiver", tx.ReceiverAccount),
		zap.String("amount", tx.Amount.String()))
	return tx, nil
}

func (s *service) enqueueRequest(ctx context.Context, st repositories.Store, tx *models.Transaction) error {
	expiresAt := tx.ExpiresAt
	env, err := events.New(events.TypeTransferRequested, tx.TransactionID, s.config.Producer, events.TransferRequested{
		TransactionID:   tx.TransactionID,
		SenderAccount:   tx.SenderAccount,
		ReceiverAccount: tx.ReceiverAccount,
		Amount:          tx.Amount,
		ExpiresAt:       &expiresAt,
	})
	if err != nil {
		return err
	}
	_, err = st.Outbox().Enqueue(ctx, env)
	return err
}

func (s *service) ApplySettlement(ctx context.Context, eventID string, outcome events.TransferSettled) (SettlementResult, error) {
	var target models.TransactionStatus
	switch outcome.Status {
	case events.StatusSettled:
		target = models.TransactionSucceeded
	case events.StatusRejected:
		target = models.TransactionFailed
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome.Status)
	}

	var result SettlementResult
	err := s.store.ExecuteInTransaction(ctx, func(st repositories.Store) error {
		claimed, err := st.Idempotency().Claim(ctx, &models.ProcessedEvent{
			CorrelationID: outcome.TransactionID,
			Operation:     OperationApplySettlement,
			EventID:       eventID,
		})
		if err != nil {
			return err
		}
		if !claimed {
			result = ResultDuplicate
			return nil
		}

		tx, err := st.Transactions().GetForUpdate(ctx, outcome.TransactionID)
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}

		reason := outcome.StatusMessage
		switch {
		case tx.Status == models.TransactionInitiated:
			if err := st.Transactions().Finalize(ctx, tx.TransactionID, target, statusMessage(target, reason)); err != nil {
				return err
			}
			result = ResultApplied
		case tx.Status == models.TransactionFailed && target == models.TransactionSucceeded:
			result = ResultConflict
			reason = fmt.Sprintf("settled after %s", tx.StatusMessage)
		default:
			result = ResultAlreadyFinal
		}
		return st.Idempotency().Complete(ctx, outcome.TransactionID, OperationApplySettlement, string(result), reason)
	})
	if err != nil {
		return "", fmt.Errorf("apply settlement %s: %w", outcome.TransactionID, err)
	}

	log := s.logger.With(
		zap.String("transaction_id", outcome.TransactionID),
		zap.String("event_id", eventID),
		zap.String("outcome", string(outcome.Status)),
		zap.String("result", string(result)))
	switch result {
	case ResultApplied:
		log.Info("settlement applied", zap.String("status", string(target)), zap.String("reason", outcome.StatusMessage))
	case ResultConflict:
		log.Error("reconciliation conflict: ledger settled a transfer already failed")
	default:
		log.Info("settlement ignored")
	}
	return result, nil
}

func statusMessage(status models.TransactionStatus, reason string) string {
	if status == models.TransactionSucceeded {
		return ""
	}
	return reason
}

func (s *service) Get(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := s.store.Transactions().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrTransactionNotFound) {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func (s *service) ListByAccount(ctx context.Context, sender string, page, size int) (Page, error) {
	p := pagination.New(page, size)
	items, total, err := s.store.Transactions().ListBySender(ctx, sender, p.Limit, p.Offset)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: p.Page, Size: p.Limit}, nil
}
