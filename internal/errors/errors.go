package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	// validation
	InvalidInput       ErrorCode = "invalid_input"
	InvalidAmount      ErrorCode = "invalid_amount"
	InvalidAccountID   ErrorCode = "invalid_account_id"
	InvalidAge         ErrorCode = "invalid_age"
	InvalidAccountType ErrorCode = "invalid_account_type"
	InvalidPIN         ErrorCode = "invalid_pin"
	SameAccount        ErrorCode = "same_account_transfer"

	// policy
	AccountInactive      ErrorCode = "account_inactive"
	AccountActive        ErrorCode = "account_active"
	AccountLocked        ErrorCode = "account_locked"
	PINRequired          ErrorCode = "pin_required"
	PINMismatch          ErrorCode = "pin_mismatch"
	PINAlreadySet        ErrorCode = "pin_already_set"
	InsufficientBalance  ErrorCode = "insufficient_balance"
	DepositLimitExceeded ErrorCode = "deposit_limit_exceeded"
	DailyLimitExceeded   ErrorCode = "daily_limit_exceeded"
	NotEligible          ErrorCode = "not_eligible"

	// lookup
	AccountNotFound  ErrorCode = "account_not_found"
	DuplicateAccount ErrorCode = "duplicate_account"

	// infrastructure
	PersistenceFault ErrorCode = "persistence_fault"
	InternalError    ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any AppError carrying the same code, so callers can compare
// against the predefined errors below with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy so the predefined errors are never mutated.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InvalidAccountID, InvalidAge,
		InvalidAccountType, InvalidPIN, SameAccount:
		return http.StatusBadRequest
	case AccountNotFound:
		return http.StatusNotFound
	case DuplicateAccount, AccountActive, PINAlreadySet:
		return http.StatusConflict
	case AccountLocked, PINRequired, PINMismatch:
		return http.StatusForbidden
	case AccountInactive, InsufficientBalance, DepositLimitExceeded,
		DailyLimitExceeded, NotEligible:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError converts any error into an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").WithDetails(err.Error())
}

// Predefined errors for common cases
var (
	ErrAccountNotFound     = NewAppError(AccountNotFound, "account not found")
	ErrDuplicateAccount    = NewAppError(DuplicateAccount, "account already exists")
	ErrInvalidAmount       = NewAppError(InvalidAmount, "amount must be positive")
	ErrInvalidAccountID    = NewAppError(InvalidAccountID, "invalid account number")
	ErrSameAccountTransfer = NewAppError(SameAccount, "source and destination accounts must differ")
	ErrAccountInactive     = NewAppError(AccountInactive, "account is not active")
	ErrAccountLocked       = NewAppError(AccountLocked, "account is locked after too many failed PIN attempts")
	ErrPINRequired         = NewAppError(PINRequired, "PIN required for this account")
	ErrPINMismatch         = NewAppError(PINMismatch, "incorrect PIN")
	ErrInvalidPIN          = NewAppError(InvalidPIN, "PIN must be exactly 4 digits")
	ErrInsufficientBalance = NewAppError(InsufficientBalance, "insufficient funds")
	ErrDailyLimitExceeded  = NewAppError(DailyLimitExceeded, "daily transaction limit exceeded")
	ErrPersistenceFault    = NewAppError(PersistenceFault, "failed to persist ledger state")
)
