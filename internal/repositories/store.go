package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that take part in one atomic unit of work.
type Store interface {
	Transactions() TransactionRepository
	Wallets() WalletRepository
	Outbox() OutboxRepository
	Idempotency() IdempotencyRepository

	// ExecuteInTransaction runs fn against a Store bound to a single database
	// transaction. fn's error rolls everything back.
	ExecuteInTransaction(ctx context.Context, fn func(Store) error) error
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) Transactions() TransactionRepository {
	return NewTransactionRepository(s.db)
}

func (s *store) Wallets() WalletRepository {
	return NewWalletRepository(s.db)
}

func (s *store) Outbox() OutboxRepository {
	return NewOutboxRepository(s.db)
}

func (s *store) Idempotency() IdempotencyRepository {
	return NewIdempotencyRepository(s.db)
}

func (s *store) ExecuteInTransaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{db: tx})
	})
}
