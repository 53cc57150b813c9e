package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

const (
	MinFixedDepositYears = 1
	MaxFixedDepositYears = 10

	DefaultLoanTenureMonths = 12
	MaxLoanTenureMonths     = 360
)

type InterestQuote struct {
	AccountNumber int64           `json:"account_number"`
	Principal     decimal.Decimal `json:"principal"`
	Rate          decimal.Decimal `json:"rate"`
	Years         decimal.Decimal `json:"years"`
	Interest      decimal.Decimal `json:"interest"`
	Total         decimal.Decimal `json:"total"`
	Message       string          `json:"message"`
}

type FixedDepositQuote struct {
	Account        *domain.Account `json:"account"`
	Principal      decimal.Decimal `json:"principal"`
	Rate           decimal.Decimal `json:"rate"`
	TenureYears    int             `json:"tenure_years"`
	Interest       decimal.Decimal `json:"interest"`
	MaturityAmount decimal.Decimal `json:"maturity_amount"`
	Message        string          `json:"message"`
}

type LoanRequest struct {
	// Amount of zero asks for the maximum the account qualifies for.
	Amount       decimal.Decimal
	TenureMonths int
}

type LoanOffer struct {
	Account      *domain.Account `json:"account"`
	Principal    decimal.Decimal `json:"principal"`
	Cap          decimal.Decimal `json:"cap"`
	AnnualRate   decimal.Decimal `json:"annual_rate"`
	TenureMonths int             `json:"tenure_months"`
	EMI          decimal.Decimal `json:"emi"`
	TotalPayable decimal.Decimal `json:"total_payable"`
	Message      string          `json:"message"`
}

// SimpleInterest quotes interest on the current balance. Nothing is credited.
func (l *Ledger) SimpleInterest(_ context.Context, number int64, years decimal.Decimal) (*InterestQuote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !years.IsPositive() {
		return nil, errors.NewAppError(errors.InvalidInput, "years must be positive")
	}
	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}

	rate := l.policy.InterestRate
	interest := acc.Balance.Mul(rate).Mul(years).Round(2)
	total := acc.Balance.Add(interest)
	return &InterestQuote{
		AccountNumber: number,
		Principal:     acc.Balance,
		Rate:          rate,
		Years:         years,
		Interest:      interest,
		Total:         total,
		Message: fmt.Sprintf("Interest for %s year(s) at %s%%: %s. Total: %s",
			years, rate.Mul(decimal.NewFromInt(100)), money(interest), money(total)),
	}, nil
}

// FixedDeposit moves amount out of the account into a term deposit and quotes
// its maturity value. The account floor applies as for a withdrawal.
func (l *Ledger) FixedDeposit(ctx context.Context, number int64, amount decimal.Decimal, tenureYears int, pin string) (*FixedDepositQuote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("Processing fixed deposit", "account_number", number, "amount", amount, "tenure_years", tenureYears)

	if tenureYears < MinFixedDepositYears || tenureYears > MaxFixedDepositYears {
		return nil, errors.NewAppErrorf(errors.InvalidInput,
			"tenure must be between %d and %d years", MinFixedDepositYears, MaxFixedDepositYears)
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	staged, err := l.stageProtected(ctx, number, pin)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(staged.Balance) {
		return nil, errors.ErrInsufficientBalance
	}
	if err := l.checkDailyLimit(ctx, number, amount); err != nil {
		return nil, err
	}
	if err := staged.Withdraw(amount, l.policy.GlobalMinBalance); err != nil {
		return nil, err
	}

	rate := l.policy.InterestRate
	interest := amount.Mul(rate).Mul(decimal.NewFromInt(int64(tenureYears))).Round(2)
	maturity := amount.Add(interest)

	rec := l.newRecord(staged, domain.OpFixedDeposit, &amount,
		fmt.Sprintf("%d year(s) at %s, maturity %s", tenureYears, rate, money(maturity)))
	if err := l.apply(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}
	l.recordUsage(ctx, number, amount)
	if err := l.persist(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("Fixed deposit opened", "account_number", number, "maturity_amount", maturity)
	return &FixedDepositQuote{
		Account:        staged.Clone(),
		Principal:      amount,
		Rate:           rate,
		TenureYears:    tenureYears,
		Interest:       interest,
		MaturityAmount: maturity,
		Message: fmt.Sprintf("Fixed deposit of %s opened for %d year(s). Maturity amount: %s",
			money(amount), tenureYears, money(maturity)),
	}, nil
}

// LendLoan disburses a loan into a Savings account. Disbursals are credits,
// so neither the single-deposit ceiling nor the daily limit applies.
func (l *Ledger) LendLoan(ctx context.Context, number int64, req LoanRequest, pin string) (*LoanOffer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("Processing loan", "account_number", number, "amount", req.Amount, "tenure_months", req.TenureMonths)

	if req.Amount.IsNegative() {
		return nil, errors.ErrInvalidAmount
	}
	if err := domain.ValidatePrecision(req.Amount); err != nil {
		return nil, err
	}
	tenure := req.TenureMonths
	if tenure == 0 {
		tenure = DefaultLoanTenureMonths
	}
	if tenure < 1 || tenure > MaxLoanTenureMonths {
		return nil, errors.NewAppErrorf(errors.InvalidInput,
			"tenure must be between 1 and %d months", MaxLoanTenureMonths)
	}

	staged, err := l.stageProtected(ctx, number, pin)
	if err != nil {
		return nil, err
	}
	if staged.Type != domain.Savings {
		return nil, errors.NewAppError(errors.NotEligible, "loans are only available for Savings accounts")
	}
	if staged.Balance.LessThan(l.policy.LoanMinBalance) {
		return nil, errors.NewAppErrorf(errors.NotEligible,
			"minimum balance of %s required for a loan", money(l.policy.LoanMinBalance))
	}

	limit := staged.Balance.Mul(l.policy.LoanMultiplier).Truncate(domain.MoneyPlaces)
	principal := req.Amount
	if principal.IsZero() || principal.GreaterThan(limit) {
		principal = limit
	}
	if err := staged.Credit(principal); err != nil {
		return nil, err
	}

	emi := monthlyInstalment(principal, l.policy.LoanRate, tenure)
	total := emi.Mul(decimal.NewFromInt(int64(tenure)))

	rec := l.newRecord(staged, domain.OpLoanDisbursal, &principal,
		fmt.Sprintf("tenure %d months, EMI %s", tenure, money(emi)))
	if err := l.commit(ctx, []domain.TransactionRecord{rec}, staged); err != nil {
		return nil, err
	}

	l.logger.Info("Loan disbursed", "account_number", number, "principal", principal, "emi", emi)
	return &LoanOffer{
		Account:      staged.Clone(),
		Principal:    principal,
		Cap:          limit,
		AnnualRate:   l.policy.LoanRate,
		TenureMonths: tenure,
		EMI:          emi,
		TotalPayable: total,
		Message: fmt.Sprintf("Loan of %s disbursed. EMI: %s for %d months",
			money(principal), money(emi), tenure),
	}, nil
}

// monthlyInstalment is the standard amortized EMI, rounded to cents.
func monthlyInstalment(principal, annualRate decimal.Decimal, months int) decimal.Decimal {
	n := decimal.NewFromInt(int64(months))
	r := annualRate.Div(decimal.NewFromInt(12))
	if r.IsZero() {
		return principal.Div(n).Round(2)
	}
	growth := decimal.NewFromInt(1).Add(r).Pow(n)
	return principal.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1))).Round(2)
}
