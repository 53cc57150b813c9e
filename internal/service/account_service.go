package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

type CreateAccountRequest struct {
	HolderName     string
	Age            int
	Type           string
	InitialDeposit decimal.Decimal
	PIN            string
}

func (l *Ledger) CreateAccount(ctx context.Context, req CreateAccountRequest) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("Creating account", "holder_name", req.HolderName, "account_type", req.Type, "initial_deposit", req.InitialDeposit)

	name, err := domain.ValidateHolderName(req.HolderName)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateAge(req.Age); err != nil {
		return nil, err
	}
	accountType, err := domain.ParseAccountType(req.Type)
	if err != nil {
		return nil, err
	}
	if req.PIN != "" {
		if err := domain.ValidatePIN(req.PIN); err != nil {
			return nil, err
		}
	}

	if err := domain.ValidatePrecision(req.InitialDeposit); err != nil {
		return nil, err
	}
	floor := decimal.Max(accountType.MinBalance(), l.policy.GlobalMinBalance)
	if req.InitialDeposit.LessThan(floor) {
		return nil, errors.NewAppErrorf(errors.InsufficientBalance,
			"minimum initial deposit for %s account is %s", accountType, money(floor))
	}

	now := l.now()
	acc := &domain.Account{
		Number:     l.nextNumber,
		HolderName: name,
		Age:        req.Age,
		Type:       accountType,
		Balance:    req.InitialDeposit,
		Status:     domain.StatusActive,
		PIN:        req.PIN,
		CreatedAt:  now,
	}

	deposit := req.InitialDeposit
	records := []domain.TransactionRecord{l.newRecord(acc, domain.OpCreate, &deposit, "account opened")}
	if acc.HasPIN() {
		records = append(records, l.newRecord(acc, domain.OpPINSet, nil, "PIN set at account opening"))
	}

	// The allocator only advances once the creation is recorded.
	if err := l.apply(ctx, records, acc); err != nil {
		return nil, err
	}
	l.nextNumber++

	l.logger.Info("Account created successfully", "account_number", acc.Number)
	result := &AccountResult{
		Account: acc.Clone(),
		Message: fmt.Sprintf("Account created successfully. Account number: %d", acc.Number),
	}
	if err := l.persist(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// CloseAccount is idempotent: closing an Inactive account succeeds without a new record.
func (l *Ledger) CloseAccount(ctx context.Context, number int64) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive() {
		return &AccountResult{Account: acc.Clone(), Message: "Account already closed"}, nil
	}

	staged := acc.Clone()
	staged.Status = domain.StatusInactive
	rec := l.newRecord(staged, domain.OpClose, nil, "")
	if err := l.commit(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}

	l.logger.Info("Account closed", "account_number", number)
	return &AccountResult{Account: staged.Clone(), Message: "Account closed successfully"}, nil
}

func (l *Ledger) ReopenAccount(ctx context.Context, number int64) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if acc.IsActive() {
		return nil, errors.NewAppErrorf(errors.AccountActive, "account %d is already active", number)
	}

	staged := acc.Clone()
	staged.Status = domain.StatusActive
	rec := l.newRecord(staged, domain.OpReopen, nil, "")
	if err := l.commit(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}

	l.logger.Info("Account reopened", "account_number", number)
	return &AccountResult{Account: staged.Clone(), Message: "Account reopened successfully"}, nil
}

func (l *Ledger) RenameHolder(ctx context.Context, number int64, newName string) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	name, err := domain.ValidateHolderName(newName)
	if err != nil {
		return nil, err
	}
	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive() {
		return nil, errors.NewAppErrorf(errors.AccountInactive, "account %d is not active", number)
	}

	staged := acc.Clone()
	oldName := staged.HolderName
	staged.HolderName = name
	rec := l.newRecord(staged, domain.OpRename, nil, fmt.Sprintf("Name changed from '%s' to '%s'", oldName, name))
	if err := l.commit(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}

	return &AccountResult{Account: staged.Clone(), Message: "Name updated successfully"}, nil
}

// UpgradeType switches the account type. The balance must already satisfy
// the new type's floor.
func (l *Ledger) UpgradeType(ctx context.Context, number int64, newType string) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	target, err := domain.ParseAccountType(newType)
	if err != nil {
		return nil, err
	}
	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive() {
		return nil, errors.NewAppErrorf(errors.AccountInactive, "account %d is not active", number)
	}
	if acc.Type == target {
		return nil, errors.NewAppErrorf(errors.InvalidInput, "account is already a %s account", target)
	}
	floor := decimal.Max(target.MinBalance(), l.policy.GlobalMinBalance)
	if acc.Balance.LessThan(floor) {
		return nil, errors.NewAppErrorf(errors.InsufficientBalance,
			"balance %s is below the %s minimum of %s", money(acc.Balance), target, money(floor))
	}

	staged := acc.Clone()
	oldType := staged.Type
	staged.Type = target
	rec := l.newRecord(staged, domain.OpUpgrade, nil, fmt.Sprintf("Type changed from %s to %s", oldType, target))
	if err := l.commit(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}

	return &AccountResult{Account: staged.Clone(), Message: fmt.Sprintf("Account upgraded to %s", target)}, nil
}

// DeleteAccount removes the account from the registry. Its number is never reissued,
// not even after a restart; only DeleteAllAccounts resets numbering.
func (l *Ledger) DeleteAccount(ctx context.Context, number int64) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}

	rec := l.newRecord(acc, domain.OpDelete, nil, fmt.Sprintf("account of %s deleted", acc.HolderName))
	if err := l.store.AppendTransactions(ctx, rec); err != nil {
		return nil, errors.AsAppError(err)
	}
	delete(l.accounts, number)
	if err := l.persist(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("Account deleted", "account_number", number)
	return &AccountResult{Account: acc.Clone(), Message: fmt.Sprintf("Account %d deleted", number)}, nil
}

// DeleteAllAccounts empties the registry and resets numbering to FirstAccountNumber.
const deleteAllDetail = "all accounts deleted"

func (l *Ledger) DeleteAllAccounts(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.accounts) == 0 {
		return "", errors.NewAppError(errors.AccountNotFound, "no accounts to delete")
	}

	accounts := l.sortedAccounts()
	records := make([]domain.TransactionRecord, 0, len(accounts))
	for _, acc := range accounts {
		records = append(records, l.newRecord(acc, domain.OpDelete, nil, deleteAllDetail))
	}
	if err := l.store.AppendTransactions(ctx, records...); err != nil {
		return "", errors.AsAppError(err)
	}

	l.accounts = make(map[int64]*domain.Account)
	l.nextNumber = FirstAccountNumber
	if err := l.persist(ctx); err != nil {
		return "", err
	}

	l.logger.Warn("All accounts deleted", "count", len(accounts))
	return fmt.Sprintf("Deleted %d account(s)", len(accounts)), nil
}

func (l *Ledger) SetPIN(ctx context.Context, number int64, pin string) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := domain.ValidatePIN(pin); err != nil {
		return nil, err
	}
	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if acc.HasPIN() {
		return nil, errors.NewAppError(errors.PINAlreadySet, "PIN already set, use change PIN instead")
	}

	staged := acc.Clone()
	staged.PIN = pin
	staged.FailedAttempts = 0
	rec := l.newRecord(staged, domain.OpPINSet, nil, "")
	if err := l.commit(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}

	return &AccountResult{Account: staged.Clone(), Message: "PIN set successfully"}, nil
}

func (l *Ledger) ChangePIN(ctx context.Context, number int64, oldPIN, newPIN string) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := domain.ValidatePIN(newPIN); err != nil {
		return nil, err
	}
	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if !acc.HasPIN() {
		return nil, errors.NewAppError(errors.InvalidInput, "no PIN set for this account, set one first")
	}

	staged := acc.Clone()
	if err := l.authenticate(ctx, staged, oldPIN); err != nil {
		return nil, err
	}
	staged.PIN = newPIN
	rec := l.newRecord(staged, domain.OpPINChange, nil, "")
	if err := l.commit(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}

	return &AccountResult{Account: staged.Clone(), Message: "PIN changed successfully"}, nil
}

// VerifyPIN checks a PIN without performing any other operation. Failed
// checks count toward the lockout like any other attempt.
func (l *Ledger) VerifyPIN(ctx context.Context, number int64, pin string) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if !acc.HasPIN() {
		return &AccountResult{Account: acc.Clone(), Message: "No PIN set for this account"}, nil
	}

	staged := acc.Clone()
	if err := l.authenticate(ctx, staged, pin); err != nil {
		return nil, err
	}
	if staged.FailedAttempts != acc.FailedAttempts {
		if err := l.commit(ctx, nil, staged); err != nil {
			return nil, err
		}
	}

	return &AccountResult{Account: staged.Clone(), Message: "PIN verified"}, nil
}

// Unlock clears a lockout when the correct PIN is presented. A wrong PIN
// is counted and the account stays locked.
func (l *Ledger) Unlock(ctx context.Context, number int64, pin string) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	if !acc.HasPIN() {
		return &AccountResult{Account: acc.Clone(), Message: "No PIN set for this account"}, nil
	}
	if pin == "" {
		return nil, errors.ErrPINRequired
	}
	if !acc.PINMatches(pin) {
		return nil, l.registerFailedPIN(ctx, number)
	}
	if !acc.IsLocked() {
		staged := acc.Clone()
		staged.RegisterSuccessfulPIN()
		if staged.FailedAttempts != acc.FailedAttempts {
			if err := l.commit(ctx, nil, staged); err != nil {
				return nil, err
			}
		}
		return &AccountResult{Account: staged.Clone(), Message: "Account is not locked"}, nil
	}

	staged := acc.Clone()
	staged.RegisterSuccessfulPIN()
	rec := l.newRecord(staged, domain.OpUnlock, nil, "")
	if err := l.commit(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}

	l.logger.Info("Account unlocked", "account_number", number)
	return &AccountResult{Account: staged.Clone(), Message: "Account unlocked successfully"}, nil
}
