package wallet

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

	"go.uber.org/zap"
)

type ledger struct {
	store   repositories.Store
	config  Config
	logger  *zap.Logger
	metrics MetricsCollector
}

// NewLedger creates the wallet ledger over store.
func NewLedger(store repositories.Store, cfg Config, logger *zap.Logger, metrics MetricsCollector) Ledger {
	if store == nil {
		panic("store is required")
	}
	if cfg.Producer == "" {
		cfg.Producer = config.WalletService
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	// Metrics is optional, create no-op collector if nil
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}

	return &ledger{
		store:   store,
		config:  cfg,
		logger:  logging.OrNop(logger).Named("ledger"),
		metrics: metrics,
	}
}

func (l *ledger) ApplyTransfer(ctx context.Context, req TransferRequest) (Outcome, error) {
	if err := validateTransfer(req); err != nil {
		return Outcome{}, err
	}

	var outcome Outcome
	err := l.store.ExecuteInTransaction(ctx, func(s repositories.Store) error {
		claimed, err := s.Idempotency().Claim(ctx, &models.ProcessedEvent{
			CorrelationID: req.TransactionID,
			Operation:     OperationApplyTransfer,
			EventID:       req.EventID,
		})
		if err != nil {
			return err
		}

		if !claimed {
			rec, err := s.Idempotency().Get(ctx, req.TransactionID, OperationApplyTransfer)
			if err != nil {
				return err
			}
			outcome = Outcome{
				Status:    events.SettlementStatus(rec.Outcome),
				Reason:    rec.Reason,
				Duplicate: true,
			}
			return l.enqueueOutcome(ctx, s, req.TransactionID, outcome)
		}

		outcome, err = l.settle(ctx, s, req)
		if err != nil {
			return err
		}
		if err := s.Idempotency().Complete(ctx, req.TransactionID, OperationApplyTransfer, string(outcome.Status), outcome.Reason); err != nil {
			return err
		}
		return l.enqueueOutcome(ctx, s, req.TransactionID, outcome)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("apply transfer %s: %w", req.TransactionID, err)
	}

	if outcome.Duplicate {
		l.metrics.RecordDuplicate(OperationApplyTransfer)
		l.logger.Info("transfer already applied, outcome re-emitted",
			zap.String("transaction_id", req.TransactionID),
			zap.String("status", string(outcome.Status)))
	} else {
		l.metrics.RecordOutcome(string(outcome.Status), outcome.Reason)
		l.logger.Info("transfer applied",
			zap.String("transaction_id", req.TransactionID),
			zap.String("status", string(outcome.Status)),
			zap.String("reason", outcome.Reason))
	}
	return outcome, nil
}

func (l *ledger) enqueueOutcome(ctx context.Context, s repositories.Store, transactionID string, outcome Outcome) error {
	env, err := events.New(outcome.EventType(), transactionID, l.config.Producer, events.TransferSettled{
		TransactionID: transactionID,
		Status:        outcome.Status,
		StatusMessage: outcome.Reason,
	})
	if err != nil {
		return err
	}
	_, err = s.Outbox().Enqueue(ctx, env)
	return err
}

func (l *ledger) Provision(ctx context.Context, acct Account) (bool, error) {
	if acct.AccountID == "" || acct.OwnerPhoneNo == "" {
		return false, fmt.Errorf("%w: account id and owner are required", ErrInvalidAccount)
	}
	initial := l.config.InitialAmount
	if acct.InitialBalance != nil {
		initial = *acct.InitialBalance
	}
	if initial.IsNegative() {
		return false, fmt.Errorf("%w: negative initial balance", ErrInvalidAccount)
	}

	var created bool
	err := l.store.ExecuteInTransaction(ctx, func(s repositories.Store) error {
		claimed, err := s.Idempotency().Claim(ctx, &models.ProcessedEvent{
			CorrelationID: acct.AccountID,
			Operation:     OperationProvision,
		})
		if err != nil || !claimed {
			return err
		}

		outcome := ProvisionCreated
		err = s.Wallets().Create(ctx, &models.Wallet{
			AccountID:    acct.AccountID,
			OwnerPhoneNo: acct.OwnerPhoneNo,
			Balance:      initial,
		})
		switch {
		case err == nil:
			created = true
		case errors.Is(err, repositories.ErrDuplicateWallet):
			existing, getErr := s.Wallets().GetByID(ctx, acct.AccountID)
			if getErr != nil || existing.OwnerPhoneNo != acct.OwnerPhoneNo {
				return fmt.Errorf("%w: %s", ErrOwnerConflict, acct.OwnerPhoneNo)
			}
			outcome = ProvisionExists
		default:
			return err
		}
		return s.Idempotency().Complete(ctx, acct.AccountID, OperationProvision, outcome, "")
	})
	if err != nil {
		return false, fmt.Errorf("provision %s: %w", acct.AccountID, err)
	}

	if created {
		l.metrics.RecordProvisioned()
		l.logger.Info("wallet provisioned",
			zap.String("account_id", acct.AccountID),
			zap.String("initial_balance", initial.String()))
	} else {
		l.metrics.RecordDuplicate(OperationProvision)
	}
	return created, nil
}
