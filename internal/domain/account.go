package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retail-ledger/internal/errors"
)

type AccountType string

const (
	Savings AccountType = "Savings"
	Current AccountType = "Current"
)

type AccountStatus string

const (
	StatusActive   AccountStatus = "Active"
	StatusInactive AccountStatus = "Inactive"
)

const (
	MinAge         = 18
	MaxAge         = 150
	MaxPINAttempts = 3
	PINLength      = 4

	// MoneyPlaces is the precision balances and audit amounts are stored at.
	MoneyPlaces = 2
)

var (
	MaxSingleDeposit = decimal.NewFromInt(100_000)

	typeFloors = map[AccountType]decimal.Decimal{
		Savings: decimal.NewFromInt(500),
		Current: decimal.NewFromInt(1000),
	}
)

// ParseAccountType accepts any casing of a known type name.
func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "savings":
		return Savings, nil
	case "current":
		return Current, nil
	}
	return "", errors.NewAppErrorf(errors.InvalidAccountType,
		"invalid account type %q, choose from [Savings Current]", s)
}

// MinBalance is the floor an Active account of this type must keep.
func (t AccountType) MinBalance() decimal.Decimal {
	return typeFloors[t]
}

func (t AccountType) Valid() bool {
	_, ok := typeFloors[t]
	return ok
}

type Account struct {
	Number         int64           `json:"account_number"`
	HolderName     string          `json:"holder_name"`
	Age            int             `json:"age"`
	Type           AccountType     `json:"account_type"`
	Balance        decimal.Decimal `json:"balance"`
	Status         AccountStatus   `json:"status"`
	PIN            string          `json:"-"`
	FailedAttempts int             `json:"failed_attempts"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (a *Account) String() string {
	return fmt.Sprintf("[%d] %s (%s) - Balance: %s - %s",
		a.Number, a.HolderName, a.Type, a.Balance.StringFixed(2), a.Status)
}

func (a *Account) Clone() *Account {
	cp := *a
	return &cp
}

func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// Floor returns the greater of the type floor and the global floor.
func (a *Account) Floor(globalFloor decimal.Decimal) decimal.Decimal {
	return decimal.Max(a.Type.MinBalance(), globalFloor)
}

func (a *Account) Deposit(amount decimal.Decimal) error {
	if !a.IsActive() {
		return errors.ErrAccountInactive
	}
	if !amount.IsPositive() {
		return errors.NewAppError(errors.InvalidAmount, "deposit must be positive")
	}
	if err := ValidatePrecision(amount); err != nil {
		return err
	}
	if amount.GreaterThan(MaxSingleDeposit) {
		return errors.NewAppErrorf(errors.DepositLimitExceeded,
			"deposit exceeds single-deposit limit %s", MaxSingleDeposit.StringFixed(2))
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

func (a *Account) Withdraw(amount, globalFloor decimal.Decimal) error {
	if !a.IsActive() {
		return errors.ErrAccountInactive
	}
	if !amount.IsPositive() {
		return errors.NewAppError(errors.InvalidAmount, "withdrawal must be positive")
	}
	if err := ValidatePrecision(amount); err != nil {
		return err
	}
	floor := a.Floor(globalFloor)
	if a.Balance.Sub(amount).LessThan(floor) {
		return errors.NewAppErrorf(errors.InsufficientBalance,
			"insufficient funds, minimum required balance for %s: %s", a.Type, floor.StringFixed(2))
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Credit adds funds without the single-deposit ceiling. Used for transfer
// legs and loan disbursals, which are not customer cash deposits.
func (a *Account) Credit(amount decimal.Decimal) error {
	if !a.IsActive() {
		return errors.ErrAccountInactive
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

func (a *Account) HasPIN() bool {
	return a.PIN != ""
}

func (a *Account) PINMatches(pin string) bool {
	return a.HasPIN() && a.PIN == pin
}

func (a *Account) RegisterFailedPIN() {
	a.FailedAttempts++
}

func (a *Account) RegisterSuccessfulPIN() {
	a.FailedAttempts = 0
}

func (a *Account) IsLocked() bool {
	return a.FailedAttempts >= MaxPINAttempts
}

// ValidateAmount accepts positive amounts with at most two decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	return ValidatePrecision(amount)
}

// ValidatePrecision rejects values that cannot be stored in whole cents.
func ValidatePrecision(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(MoneyPlaces)) {
		return errors.NewAppErrorf(errors.InvalidAmount,
			"amount %s has more than %d decimal places", amount, MoneyPlaces)
	}
	return nil
}

func ValidatePIN(pin string) error {
	if len(pin) != PINLength {
		return errors.ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return errors.ErrInvalidPIN
		}
	}
	return nil
}

func ValidateHolderName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.NewAppError(errors.InvalidInput, "name cannot be empty")
	}
	return trimmed, nil
}

func ValidateAge(age int) error {
	if age < MinAge || age > MaxAge {
		return errors.NewAppErrorf(errors.InvalidAge, "age must be between %d and %d", MinAge, MaxAge)
	}
	return nil
}
