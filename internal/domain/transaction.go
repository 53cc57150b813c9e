package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OperationKind string

const (
	OpCreate        OperationKind = "CREATE"
	OpDeposit       OperationKind = "DEPOSIT"
	OpWithdraw      OperationKind = "WITHDRAW"
	OpTransferOut   OperationKind = "TRANSFER_OUT"
	OpTransferIn    OperationKind = "TRANSFER_IN"
	OpFixedDeposit  OperationKind = "FIXED_DEPOSIT"
	OpLoanDisbursal OperationKind = "LOAN_DISBURSAL"
	OpClose         OperationKind = "CLOSE"
	OpReopen        OperationKind = "REOPEN"
	OpRename        OperationKind = "RENAME"
	OpUpgrade       OperationKind = "UPGRADE"
	OpDelete        OperationKind = "DELETE"
	OpPINSet        OperationKind = "PIN_SET"
	OpPINChange     OperationKind = "PIN_CHANGE"
	OpLock          OperationKind = "LOCK"
	OpUnlock        OperationKind = "UNLOCK"
	OpImport        OperationKind = "IMPORT"
)

// RecordVersion is written into every audit record so readers can tell
// which tags to expect.
const RecordVersion = 1

// TimestampLayout is the audit timestamp format (YYYY-MM-DD HH:MM:SS).
const TimestampLayout = "2006-01-02 15:04:05"

// TransactionRecord is one immutable audit log entry.
type TransactionRecord struct {
	ID            uuid.UUID        `json:"id"`
	Version       int              `json:"version"`
	Timestamp     time.Time        `json:"timestamp"`
	AccountNumber int64            `json:"account_number"`
	Operation     OperationKind    `json:"operation"`
	Amount        *decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal  `json:"balance_after"`
	Reference     *uuid.UUID       `json:"reference,omitempty"`
	Counterparty  int64            `json:"counterparty,omitempty"`
	Detail        string           `json:"detail,omitempty"`
}

// IsMonetary reports whether the record moved money in or out of the account.
func (r TransactionRecord) IsMonetary() bool {
	return r.Amount != nil && r.Operation != OpCreate && r.Operation != OpImport
}

// LedgerStore is the persistence port consumed by the ledger engine.
type LedgerStore interface {
	// LoadAccounts returns the full snapshot; a missing source yields no accounts.
	LoadAccounts(ctx context.Context) ([]*Account, error)
	// SaveAccounts atomically overwrites the snapshot.
	SaveAccounts(ctx context.Context, accounts []*Account) error
	// AppendTransactions appends all records or none of them.
	AppendTransactions(ctx context.Context, records ...TransactionRecord) error
	// ReadTransactions returns records in chronological order; a nil account
	// number returns every record.
	ReadTransactions(ctx context.Context, accountNumber *int64) ([]TransactionRecord, error)
}

// UsageTracker keeps the per-account, per-day amount moved.
type UsageTracker interface {
	Used(ctx context.Context, accountNumber int64, day time.Time) (decimal.Decimal, error)
	Add(ctx context.Context, accountNumber int64, day time.Time, amount decimal.Decimal) error
}
