package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

// Store is the Postgres implementation of domain.LedgerStore. It hands out
// repositories bound to either the pool or an open transaction.
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

// Account returns an AccountRepository using the current executor
func (s *Store) Account() *AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

// Transaction returns a TransactionRepository using the current executor
func (s *Store) Transaction() *TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	// Only sql.DB can begin transactions
	db, ok := s.executor.(*sql.DB)
	if !ok {
		return errors.NewAppError(errors.InternalError, "cannot begin nested transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txStore := &Store{
		executor: &TxWrapper{Tx: tx},
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *Store) LoadAccounts(ctx context.Context) ([]*domain.Account, error) {
	return s.Account().ListAccounts(ctx)
}

func (s *Store) SaveAccounts(ctx context.Context, accounts []*domain.Account) error {
	return s.WithTransaction(ctx, func(tx *Store) error {
		return tx.Account().ReplaceAccounts(ctx, accounts)
	})
}

func (s *Store) AppendTransactions(ctx context.Context, records ...domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(tx *Store) error {
		for i := range records {
			if err := tx.Transaction().CreateTransaction(ctx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ReadTransactions(ctx context.Context, accountNumber *int64) ([]domain.TransactionRecord, error) {
	return s.Transaction().ListTransactions(ctx, accountNumber)
}

var _ domain.LedgerStore = (*Store)(nil)
