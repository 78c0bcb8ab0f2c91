// Package reconcile finds transfers stuck in INITIATED and drives them to a
// terminal state: first by publishing their request again, and once the
// redrive budget is spent and the deadline has passed, by failing them with
// reason "timeout".
package reconcile

import (
	"context"
	"errors"
	"time"

	"wallettx/internal/config"
	"wallettx/internal/events"
	"wallettx/internal/logging"
	"wallettx/internal/services/transaction"

	"go.uber.org/zap"
)

// LockKey is the redis key the sweepers of a cluster compete for.
const LockKey = "wallettx:reconcile:leader"

// Report summarizes one sweep.
type Report struct {
	// Skipped is set when another process held the sweep lock.
	Skipped  bool
	Scanned  int
	Redriven int
	Expired  int
	Waiting  int
}

type Sweeper struct {
	svc    transaction.Service
	locker Locker
	cfg    config.ReconcileConfig
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(svc transaction.Service, locker Locker, cfg config.ReconcileConfig, logger *zap.Logger, opts ...Option) *Sweeper {
	if locker == nil {
		locker = LocalLocker{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = transaction.DefaultStaleLimit
	}
	s := &Sweeper{
		svc:    svc,
		locker: locker,
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("reconcile"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("reconciliation sweeper started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce handles one batch of stale transfers if this process wins the lock.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	var report Report

	unlock, acquired, err := s.locker.TryLock(ctx, LockKey)
	if err != nil {
		return report, err
	}
	if !acquired {
		report.Skipped = true
		s.logger.Debug("another sweeper holds the lock")
		return report, nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	stale, err := s.svc.ListStale(ctx, s.cfg.StaleAfter, s.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	var errs []error
	now := s.now()
	for _, tx := range stale {
		report.Scanned++
		log := s.logger.With(
			zap.String("transaction_id", tx.TransactionID),
			zap.Int("redrive_count", tx.RedriveCount),
			zap.Time("expires_at", tx.ExpiresAt))

		switch {
		case tx.RedriveCount < s.cfg.MaxRedrives:
			err = s.svc.Redrive(ctx, tx.TransactionID)
			if err == nil {
				report.Redriven++
			}
		case now.After(tx.ExpiresAt.Add(s.cfg.SettlementGrace)):
			err = s.svc.Expire(ctx, tx.TransactionID, events.ReasonTimeout)
			if err == nil {
				report.Expired++
			}
		default:
			report.Waiting++
			log.Debug("redrives exhausted, waiting for deadline")
			continue
		}

		if errors.Is(err, transaction.ErrNotInitiated) {
			// settled between listing and handling
			continue
		}
		if err != nil {
			log.Error("failed to reconcile transfer", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if report.Scanned > 0 {
		s.logger.Info("sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("redriven", report.Redriven),
			zap.Int("expired", report.Expired),
			zap.Int("waiting", report.Waiting))
	}
	return report, errors.Join(errs...)
}
