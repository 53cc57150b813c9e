package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"retail-ledger/internal/config"
	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

// FirstAccountNumber is the number given to the first account of an empty ledger.
const FirstAccountNumber int64 = 1001

// Ledger owns the account registry, the number allocator and the daily
// usage table. Every operation holds mu for its whole run, so operations
// never interleave.
type Ledger struct {
	mu         sync.Mutex
	store      domain.LedgerStore
	usage      domain.UsageTracker
	policy     config.Policy
	logger     *slog.Logger
	accounts   map[int64]*domain.Account
	nextNumber int64
	dirty      bool
	now        func() time.Time
}

// AccountResult pairs the affected account with a human-readable outcome.
type AccountResult struct {
	Account *domain.Account `json:"account,omitempty"`
	Message string          `json:"message"`
}

func NewLedger(
	ctx context.Context,
	store domain.LedgerStore,
	usage domain.UsageTracker,
	policy config.Policy,
	logger *slog.Logger,
) (*Ledger, error) {
	l := &Ledger{
		store:      store,
		usage:      usage,
		policy:     policy,
		logger:     logger,
		accounts:   make(map[int64]*domain.Account),
		nextNumber: FirstAccountNumber,
		now:        time.Now,
	}

	accounts, err := store.LoadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		l.accounts[a.Number] = a
		if a.Number >= l.nextNumber {
			l.nextNumber = a.Number + 1
		}
	}

	// Deleted accounts only survive in the audit log; their numbers stay retired.
	records, err := store.ReadTransactions(ctx, nil)
	if err != nil {
		return nil, err
	}
	if issued := highestIssuedNumber(records); issued >= l.nextNumber {
		l.nextNumber = issued + 1
	}

	logger.Info("Ledger loaded", "accounts", len(l.accounts), "next_account_number", l.nextNumber)
	return l, nil
}

// highestIssuedNumber scans the audit log in order. A delete-all batch
// resets numbering, so only numbers issued after the last one count.
func highestIssuedNumber(records []domain.TransactionRecord) int64 {
	var highest int64
	for _, rec := range records {
		if rec.Operation == domain.OpDelete && rec.Detail == deleteAllDetail {
			highest = 0
			continue
		}
		if rec.AccountNumber > highest {
			highest = rec.AccountNumber
		}
	}
	return highest
}

// Dirty reports whether the last snapshot write failed and a Flush is pending.
func (l *Ledger) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// Flush re-saves the registry snapshot. It is the recovery path after a
// persistence fault and the last call before a clean shutdown.
func (l *Ledger) Flush(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.persist(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("All %d account(s) saved", len(l.accounts)), nil
}

func (l *Ledger) lookup(number int64) (*domain.Account, error) {
	if number <= 0 {
		return nil, errors.ErrInvalidAccountID
	}
	acc, ok := l.accounts[number]
	if !ok {
		return nil, errors.NewAppErrorf(errors.AccountNotFound, "account %d not found", number)
	}
	return acc, nil
}

// sortedAccounts returns registry pointers in ascending account number order.
func (l *Ledger) sortedAccounts() []*domain.Account {
	out := make([]*domain.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (l *Ledger) newRecord(acc *domain.Account, op domain.OperationKind, amount *decimal.Decimal, detail string) domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:            uuid.New(),
		Version:       domain.RecordVersion,
		Timestamp:     l.now(),
		AccountNumber: acc.Number,
		Operation:     op,
		Amount:        amount,
		BalanceAfter:  acc.Balance,
		Detail:        detail,
	}
}

// apply appends the audit records and, only if that succeeds, swaps the
// staged accounts into the registry.
func (l *Ledger) apply(ctx context.Context, records []domain.TransactionRecord, staged ...*domain.Account) error {
	if err := l.store.AppendTransactions(ctx, records...); err != nil {
		l.logger.Error("Audit append failed, mutation discarded", "error", err)
		return errors.AsAppError(err)
	}
	now := l.now()
	for _, acc := range staged {
		acc.UpdatedAt = now
		l.accounts[acc.Number] = acc
	}
	return nil
}

// persist rewrites the registry snapshot. On failure the in-memory state
// is ahead of the snapshot until a later persist or Flush succeeds.
func (l *Ledger) persist(ctx context.Context) error {
	snapshot := l.sortedAccounts()
	if err := l.store.SaveAccounts(ctx, snapshot); err != nil {
		l.dirty = true
		l.logger.Error("Snapshot save failed, ledger marked dirty", "error", err)
		return errors.ErrPersistenceFault.WithDetails(
			"the operation was applied and logged but the account snapshot was not saved; retry with flush")
	}
	l.dirty = false
	return nil
}

func (l *Ledger) commit(ctx context.Context, records []domain.TransactionRecord, staged ...*domain.Account) error {
	if err := l.apply(ctx, records, staged...); err != nil {
		return err
	}
	return l.persist(ctx)
}

// stageProtected resolves an account for a PIN-protected operation and runs
// one step of the authentication state machine against a staged copy.
func (l *Ledger) stageProtected(ctx context.Context, number int64, pin string) (*domain.Account, error) {
	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive() {
		return nil, errors.NewAppErrorf(errors.AccountInactive, "account %d is not active", number)
	}
	if acc.IsLocked() {
		return nil, errors.ErrAccountLocked
	}
	staged := acc.Clone()
	if err := l.authenticate(ctx, staged, pin); err != nil {
		return nil, err
	}
	return staged, nil
}

// authenticate is one transition of the PIN state machine. Accounts without
// a PIN pass unchallenged. A correct PIN resets the counter on the staged
// copy, so the reset is kept only if the surrounding operation commits.
// A wrong PIN is committed immediately, even though the operation fails.
func (l *Ledger) authenticate(ctx context.Context, staged *domain.Account, pin string) error {
	if !staged.HasPIN() {
		return nil
	}
	if staged.IsLocked() {
		return errors.ErrAccountLocked
	}
	if pin == "" {
		return errors.ErrPINRequired
	}
	if staged.PINMatches(pin) {
		staged.RegisterSuccessfulPIN()
		return nil
	}
	return l.registerFailedPIN(ctx, staged.Number)
}

func (l *Ledger) registerFailedPIN(ctx context.Context, number int64) error {
	staged := l.accounts[number].Clone()
	wasLocked := staged.IsLocked()
	staged.RegisterFailedPIN()

	var records []domain.TransactionRecord
	justLocked := !wasLocked && staged.IsLocked()
	if justLocked {
		records = append(records, l.newRecord(staged, domain.OpLock,
			nil, fmt.Sprintf("locked after %d failed PIN attempts", domain.MaxPINAttempts)))
	}
	if err := l.commit(ctx, records, staged); err != nil {
		return err
	}

	l.logger.Warn("Failed PIN attempt", "account_number", number, "failed_attempts", staged.FailedAttempts)
	switch {
	case justLocked:
		return errors.NewAppErrorf(errors.AccountLocked,
			"incorrect PIN, account locked after %d failed attempts", domain.MaxPINAttempts)
	case wasLocked:
		return errors.NewAppError(errors.PINMismatch, "incorrect PIN, account remains locked")
	default:
		return errors.NewAppErrorf(errors.PINMismatch,
			"incorrect PIN, %d attempt(s) remaining", domain.MaxPINAttempts-staged.FailedAttempts)
	}
}

func (l *Ledger) checkDailyLimit(ctx context.Context, number int64, amount decimal.Decimal) error {
	used, err := l.usage.Used(ctx, number, l.now())
	if err != nil {
		return errors.AsAppError(err)
	}
	if used.Add(amount).GreaterThan(l.policy.DailyLimit) {
		return errors.NewAppErrorf(errors.DailyLimitExceeded,
			"daily limit of %s exceeded for account %d: used %s today, requested %s",
			l.policy.DailyLimit.StringFixed(2), number, used.StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

// recordUsage runs after the mutation is applied, so a tracker failure is
// logged rather than reported as a failed operation.
func (l *Ledger) recordUsage(ctx context.Context, number int64, amount decimal.Decimal) {
	if err := l.usage.Add(ctx, number, l.now(), amount); err != nil {
		l.logger.Error("Failed to record daily usage", "account_number", number, "amount", amount, "error", err)
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
