package repository

import (
	"context"
	"log/slog"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

var accountColumns = []string{
	"account_number", "holder_name", "age", "account_type", "balance",
	"status", "pin", "failed_attempts", "created_at", "updated_at",
}

type AccountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *AccountRepository) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	query := `
		SELECT account_number, holder_name, age, account_type, balance,
		       status, pin, failed_attempts, created_at, updated_at
		FROM accounts ORDER BY account_number
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list accounts", "error", err)
		return nil, errors.NewAppError(errors.PersistenceFault, "failed to load accounts").WithDetails(err.Error())
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var account domain.Account
		var balanceStr string

		if err := rows.Scan(
			&account.Number,
			&account.HolderName,
			&account.Age,
			&account.Type,
			&balanceStr,
			&account.Status,
			&account.PIN,
			&account.FailedAttempts,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			r.logger.Error("Failed to scan account", "error", err)
			return nil, errors.NewAppError(errors.PersistenceFault, "failed to load accounts").WithDetails(err.Error())
		}

		balance, err := decimal.NewFromString(balanceStr)
		if err != nil {
			r.logger.Error("Failed to parse balance", "account_number", account.Number, "balance_str", balanceStr, "error", err)
			return nil, errors.NewAppError(errors.PersistenceFault, "failed to parse balance").WithDetails(err.Error())
		}
		account.Balance = balance
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.PersistenceFault, "failed to load accounts").WithDetails(err.Error())
	}

	return accounts, nil
}

// ReplaceAccounts overwrites the accounts table with the given snapshot.
// It must run inside a transaction so readers never observe a half-written table.
func (r *AccountRepository) ReplaceAccounts(ctx context.Context, accounts []*domain.Account) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		r.logger.Error("Failed to clear accounts", "error", err)
		return errors.NewAppError(errors.PersistenceFault, "failed to save accounts").WithDetails(err.Error())
	}

	stmt, err := r.db.PrepareContext(ctx, pq.CopyIn("accounts", accountColumns...))
	if err != nil {
		r.logger.Error("Failed to prepare account copy", "error", err)
		return errors.NewAppError(errors.PersistenceFault, "failed to save accounts").WithDetails(err.Error())
	}
	defer stmt.Close()

	for _, account := range accounts {
		if _, err := stmt.ExecContext(ctx,
			account.Number,
			account.HolderName,
			account.Age,
			string(account.Type),
			account.Balance.String(),
			string(account.Status),
			account.PIN,
			account.FailedAttempts,
			account.CreatedAt,
			account.UpdatedAt,
		); err != nil {
			r.logger.Error("Failed to copy account", "account_number", account.Number, "error", err)
			return errors.NewAppError(errors.PersistenceFault, "failed to save accounts").WithDetails(err.Error())
		}
	}

	// flush buffered rows
	if _, err := stmt.ExecContext(ctx); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			r.logger.Warn("Duplicate account number in snapshot", "constraint", pqErr.Constraint)
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to flush account copy", "error", err)
		return errors.NewAppError(errors.PersistenceFault, "failed to save accounts").WithDetails(err.Error())
	}

	r.logger.Info("Accounts snapshot saved", "count", len(accounts))
	return nil
}
