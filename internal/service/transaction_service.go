package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

type TransferRequest struct {
	From   int64
	To     int64
	Amount decimal.Decimal
	PIN    string
}

type TransferResult struct {
	Reference uuid.UUID       `json:"reference"`
	From      *domain.Account `json:"from"`
	To        *domain.Account `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
}

func (l *Ledger) Deposit(ctx context.Context, number int64, amount decimal.Decimal, pin string) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("Processing deposit", "account_number", number, "amount", amount)

	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	staged, err := l.stageProtected(ctx, number, pin)
	if err != nil {
		return nil, err
	}
	if err := l.checkDailyLimit(ctx, number, amount); err != nil {
		return nil, err
	}
	if err := staged.Deposit(amount); err != nil {
		return nil, err
	}

	rec := l.newRecord(staged, domain.OpDeposit, &amount, "")
	if err := l.apply(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}
	l.recordUsage(ctx, number, amount)
	if err := l.persist(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("Deposit completed successfully", "account_number", number, "balance", staged.Balance)
	return &AccountResult{
		Account: staged.Clone(),
		Message: fmt.Sprintf("Deposit successful. New balance: %s", money(staged.Balance)),
	}, nil
}

func (l *Ledger) Withdraw(ctx context.Context, number int64, amount decimal.Decimal, pin string) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("Processing withdrawal", "account_number", number, "amount", amount)

	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	staged, err := l.stageProtected(ctx, number, pin)
	if err != nil {
		return nil, err
	}
	if err := l.checkDailyLimit(ctx, number, amount); err != nil {
		return nil, err
	}
	if err := staged.Withdraw(amount, l.policy.GlobalMinBalance); err != nil {
		return nil, err
	}

	rec := l.newRecord(staged, domain.OpWithdraw, &amount, "")
	if err := l.apply(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}
	l.recordUsage(ctx, number, amount)
	if err := l.persist(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("Withdrawal completed successfully", "account_number", number, "balance", staged.Balance)
	return &AccountResult{
		Account: staged.Clone(),
		Message: fmt.Sprintf("Withdrawal successful. New balance: %s", money(staged.Balance)),
	}, nil
}

// Transfer moves funds between two Active, unlocked accounts. The PIN is
// checked against the source only. Both legs share one reference and are
// appended to the audit log in a single batch.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("Processing transfer",
		"from_account", req.From,
		"to_account", req.To,
		"amount", req.Amount)

	if req.From == req.To {
		return nil, errors.ErrSameAccountTransfer
	}
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, err
	}

	src, err := l.lookup(req.From)
	if err != nil {
		return nil, err
	}
	dst, err := l.lookup(req.To)
	if err != nil {
		return nil, err
	}
	for _, acc := range []*domain.Account{src, dst} {
		if !acc.IsActive() {
			return nil, errors.NewAppErrorf(errors.AccountInactive, "account %d is not active", acc.Number)
		}
		if acc.IsLocked() {
			return nil, errors.NewAppErrorf(errors.AccountLocked, "account %d is locked", acc.Number)
		}
	}

	srcStaged := src.Clone()
	if err := l.authenticate(ctx, srcStaged, req.PIN); err != nil {
		return nil, err
	}
	if err := l.checkDailyLimit(ctx, req.From, req.Amount); err != nil {
		return nil, err
	}
	if err := l.checkDailyLimit(ctx, req.To, req.Amount); err != nil {
		return nil, err
	}

	dstStaged := dst.Clone()
	if err := srcStaged.Withdraw(req.Amount, l.policy.GlobalMinBalance); err != nil {
		return nil, err
	}
	if err := dstStaged.Credit(req.Amount); err != nil {
		return nil, err
	}

	ref := uuid.New()
	out := l.newRecord(srcStaged, domain.OpTransferOut, &req.Amount, fmt.Sprintf("transfer to %d", req.To))
	out.Reference, out.Counterparty = &ref, req.To
	in := l.newRecord(dstStaged, domain.OpTransferIn, &req.Amount, fmt.Sprintf("transfer from %d", req.From))
	in.Reference, in.Counterparty = &ref, req.From

	if err := l.apply(ctx, []domain.TransactionRecord{out, in}, srcStaged, dstStaged); err != nil {
		l.logger.Error("Transfer failed", "reference", ref, "error", err)
		return nil, err
	}
	l.recordUsage(ctx, req.From, req.Amount)
	l.recordUsage(ctx, req.To, req.Amount)
	if err := l.persist(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("Transfer completed successfully", "reference", ref)
	return &TransferResult{
		Reference: ref,
		From:      srcStaged.Clone(),
		To:        dstStaged.Clone(),
		Amount:    req.Amount,
		Message: fmt.Sprintf("Transferred %s from %d to %d. Reference: %s",
			money(req.Amount), req.From, req.To, ref),
	}, nil
}
