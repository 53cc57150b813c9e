package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

type TransactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TransactionRepository) CreateTransaction(ctx context.Context, rec *domain.TransactionRecord) error {
	query := `
		INSERT INTO transactions
		(id, version, created_at, account_number, operation, amount, balance_after, reference, counterparty, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	// Handle optional columns
	var amount interface{}
	if rec.Amount != nil {
		amount = rec.Amount.String()
	}
	var reference interface{}
	if rec.Reference != nil {
		reference = *rec.Reference
	}

	_, err := r.db.ExecContext(ctx,
		query,
		rec.ID,
		rec.Version,
		rec.Timestamp,
		rec.AccountNumber,
		string(rec.Operation),
		amount,
		rec.BalanceAfter.String(),
		reference,
		rec.Counterparty,
		rec.Detail,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" && pqErr.Constraint == "idx_transactions_id" { // unique_violation
				r.logger.Warn("Duplicate transaction record", "transaction_id", rec.ID)
				return errors.NewAppError(errors.PersistenceFault, "transaction record already written")
			}
		}
		r.logger.Error("Failed to append transaction",
			"account_number", rec.AccountNumber,
			"operation", rec.Operation,
			"error", err)
		return errors.NewAppError(errors.PersistenceFault, "failed to append transaction").WithDetails(err.Error())
	}

	return nil
}

func (r *TransactionRepository) ListTransactions(ctx context.Context, accountNumber *int64) ([]domain.TransactionRecord, error) {
	query := `
		SELECT id, version, created_at, account_number, operation, amount, balance_after, reference, counterparty, detail
		FROM transactions
	`
	var args []interface{}
	if accountNumber != nil {
		query += ` WHERE account_number = $1`
		args = append(args, *accountNumber)
	}
	query += ` ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to read transactions", "error", err)
		return nil, errors.NewAppError(errors.PersistenceFault, "failed to read transactions").WithDetails(err.Error())
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.PersistenceFault, "failed to read transactions").WithDetails(err.Error())
	}

	return records, nil
}

func scanTransaction(rows *sql.Rows) (domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	var operation string
	var amountStr sql.NullString
	var balanceStr string
	var reference uuid.NullUUID

	err := rows.Scan(
		&rec.ID,
		&rec.Version,
		&rec.Timestamp,
		&rec.AccountNumber,
		&operation,
		&amountStr,
		&balanceStr,
		&reference,
		&rec.Counterparty,
		&rec.Detail,
	)
	if err != nil {
		return rec, errors.NewAppError(errors.PersistenceFault, "failed to scan transaction").WithDetails(err.Error())
	}

	rec.Operation = domain.OperationKind(operation)

	if amountStr.Valid {
		amount, err := decimal.NewFromString(amountStr.String)
		if err != nil {
			return rec, errors.NewAppError(errors.PersistenceFault, "failed to parse amount").WithDetails(err.Error())
		}
		rec.Amount = &amount
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return rec, errors.NewAppError(errors.PersistenceFault, "failed to parse balance").WithDetails(err.Error())
	}
	rec.BalanceAfter = balance

	if reference.Valid {
		ref := reference.UUID
		rec.Reference = &ref
	}

	return rec, nil
}
