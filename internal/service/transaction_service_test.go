package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "Asha", "Savings", "1000", "")
	b := f.create(t, "Ravi", "Current", "2000", "")

	// 2000 - 1500 would leave the Current account below its floor
	_, err := f.ledger.Transfer(ctx, TransferRequest{From: b.Number, To: a.Number, Amount: dec("1500")})
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
	assertDecimal(t, "1000", f.balance(t, a.Number))
	assertDecimal(t, "2000", f.balance(t, b.Number))

	res, err := f.ledger.Transfer(ctx, TransferRequest{From: b.Number, To: a.Number, Amount: dec("500")})
	require.NoError(t, err)
	assertDecimal(t, "1500", res.To.Balance)
	assertDecimal(t, "1500", res.From.Balance)
	assertDecimal(t, "1500", f.balance(t, a.Number))
	assertDecimal(t, "1500", f.balance(t, b.Number))

	records := f.records(t)
	out, in := records[len(records)-2], records[len(records)-1]
	assert.Equal(t, domain.OpTransferOut, out.Operation)
	assert.Equal(t, domain.OpTransferIn, in.Operation)
	require.NotNil(t, out.Reference)
	require.NotNil(t, in.Reference)
	assert.Equal(t, res.Reference, *out.Reference)
	assert.Equal(t, *out.Reference, *in.Reference)
	assert.Equal(t, a.Number, out.Counterparty)
	assert.Equal(t, b.Number, in.Counterparty)
	assertDecimal(t, "1500", out.BalanceAfter)
}

func TestTransferValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "Asha", "Savings", "5000", "1234")
	b := f.create(t, "Ravi", "Savings", "5000", "")
	closed := f.create(t, "Meera", "Savings", "5000", "")
	_, err := f.ledger.CloseAccount(ctx, closed.Number)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  TransferRequest
		want *errors.AppError
	}{
		{"same account", TransferRequest{From: a.Number, To: a.Number, Amount: dec("10"), PIN: "1234"}, errors.ErrSameAccountTransfer},
		{"zero amount", TransferRequest{From: a.Number, To: b.Number, Amount: dec("0"), PIN: "1234"}, errors.ErrInvalidAmount},
		{"negative amount", TransferRequest{From: a.Number, To: b.Number, Amount: dec("-1"), PIN: "1234"}, errors.ErrInvalidAmount},
		{"unknown destination", TransferRequest{From: a.Number, To: 4242, Amount: dec("10"), PIN: "1234"}, errors.ErrAccountNotFound},
		{"inactive destination", TransferRequest{From: a.Number, To: closed.Number, Amount: dec("10"), PIN: "1234"}, errors.ErrAccountInactive},
		{"missing source pin", TransferRequest{From: a.Number, To: b.Number, Amount: dec("10")}, errors.ErrPINRequired},
		{"wrong source pin", TransferRequest{From: a.Number, To: b.Number, Amount: dec("10"), PIN: "4321"}, errors.ErrPINMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Transfer(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assertDecimal(t, "5000", f.balance(t, a.Number))
			assertDecimal(t, "5000", f.balance(t, b.Number))
		})
	}

	// the destination's PIN is never asked for
	_, err = f.ledger.Transfer(ctx, TransferRequest{From: b.Number, To: a.Number, Amount: dec("10")})
	require.NoError(t, err)
}

func TestTransferToLockedAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "Asha", "Savings", "5000", "")
	b := f.create(t, "Ravi", "Savings", "5000", "1234")
	for _, pin := range []string{"0000", "0001", "0002"} {
		_, err := f.ledger.VerifyPIN(ctx, b.Number, pin)
		require.Error(t, err)
	}

	_, err := f.ledger.Transfer(ctx, TransferRequest{From: a.Number, To: b.Number, Amount: dec("10")})
	assert.ErrorIs(t, err, errors.ErrAccountLocked)
	assertDecimal(t, "5000", f.balance(t, a.Number))
}

func TestDailyLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "Asha", "Savings", "1000", "")
	b := f.create(t, "Ravi", "Savings", "1000", "")

	_, err := f.ledger.Deposit(ctx, a.Number, dec("30000"), "")
	require.NoError(t, err)
	_, err = f.ledger.Deposit(ctx, a.Number, dec("20000"), "")
	require.NoError(t, err, "exactly reaching the limit is allowed")

	_, err = f.ledger.Withdraw(ctx, a.Number, dec("0.01"), "")
	assert.ErrorIs(t, err, errors.ErrDailyLimitExceeded)
	assertDecimal(t, "51000", f.balance(t, a.Number))

	// incoming transfers count against the destination too
	_, err = f.ledger.Transfer(ctx, TransferRequest{From: b.Number, To: a.Number, Amount: dec("100")})
	assert.ErrorIs(t, err, errors.ErrDailyLimitExceeded)

	// a new day starts a fresh allowance
	f.clock = f.clock.Add(24 * time.Hour)
	_, err = f.ledger.Withdraw(ctx, a.Number, dec("10000"), "")
	require.NoError(t, err)
}

func TestFailedOperationsDoNotCountTowardLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "Asha", "Savings", "1000", "")

	_, err := f.ledger.Withdraw(ctx, a.Number, dec("900"), "")
	require.Error(t, err)

	used, err := f.usage.Used(ctx, a.Number, testDay)
	require.NoError(t, err)
	assert.True(t, used.IsZero())
}

func TestSimpleInterest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "Asha", "Savings", "10000", "")

	quote, err := f.ledger.SimpleInterest(ctx, a.Number, dec("2"))
	require.NoError(t, err)
	assertDecimal(t, "800", quote.Interest)
	assertDecimal(t, "10800", quote.Total)
	assertDecimal(t, "10000", f.balance(t, a.Number))

	_, err = f.ledger.SimpleInterest(ctx, a.Number, dec("0"))
	assert.ErrorIs(t, err, errors.NewAppError(errors.InvalidInput, ""))
}

func TestFixedDeposit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "Asha", "Savings", "10000", "1234")

	quote, err := f.ledger.FixedDeposit(ctx, a.Number, dec("5000"), 3, "1234")
	require.NoError(t, err)
	assertDecimal(t, "600", quote.Interest)
	assertDecimal(t, "5600", quote.MaturityAmount)
	assertDecimal(t, "5000", quote.Account.Balance)

	records := f.records(t)
	last := records[len(records)-1]
	assert.Equal(t, domain.OpFixedDeposit, last.Operation)
	assertDecimal(t, "5000", *last.Amount)

	_, err = f.ledger.FixedDeposit(ctx, a.Number, dec("4600"), 1, "1234")
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance, "floor still applies")

	_, err = f.ledger.FixedDeposit(ctx, a.Number, dec("6000"), 1, "1234")
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)

	_, err = f.ledger.FixedDeposit(ctx, a.Number, dec("100"), 11, "1234")
	assert.ErrorIs(t, err, errors.NewAppError(errors.InvalidInput, ""))

	_, err = f.ledger.FixedDeposit(ctx, a.Number, dec("100"), 1, "")
	assert.ErrorIs(t, err, errors.ErrPINRequired)

	used, err := f.usage.Used(ctx, a.Number, testDay)
	require.NoError(t, err)
	assertDecimal(t, "5000", used)
}

func TestLendLoan(t *testing.T) {
	ctx := context.Background()

	t.Run("caps at five times balance", func(t *testing.T) {
		f := newFixture(t)
		a := f.create(t, "Asha", "Savings", "6000", "")

		offer, err := f.ledger.LendLoan(ctx, a.Number, LoanRequest{Amount: dec("50000")}, "")
		require.NoError(t, err)
		assertDecimal(t, "30000", offer.Principal)
		assertDecimal(t, "30000", offer.Cap)
		assert.Equal(t, DefaultLoanTenureMonths, offer.TenureMonths)
		assertDecimal(t, "36000", offer.Account.Balance)
		assert.True(t, offer.EMI.IsPositive())

		records := f.records(t)
		assert.Equal(t, domain.OpLoanDisbursal, records[len(records)-1].Operation)

		used, err := f.usage.Used(ctx, a.Number, testDay)
		require.NoError(t, err)
		assert.True(t, used.IsZero(), "disbursals do not count toward the daily limit")
	})

	t.Run("zero amount asks for the cap", func(t *testing.T) {
		f := newFixture(t)
		a := f.create(t, "Asha", "Savings", "5000", "")

		offer, err := f.ledger.LendLoan(ctx, a.Number, LoanRequest{TenureMonths: 24}, "")
		require.NoError(t, err)
		assertDecimal(t, "25000", offer.Principal)
		assert.Equal(t, 24, offer.TenureMonths)
	})

	t.Run("eligibility", func(t *testing.T) {
		f := newFixture(t)
		current := f.create(t, "Ravi", "Current", "20000", "")
		poor := f.create(t, "Meera", "Savings", "4999", "")

		_, err := f.ledger.LendLoan(ctx, current.Number, LoanRequest{}, "")
		assert.ErrorIs(t, err, errors.NewAppError(errors.NotEligible, ""))

		_, err = f.ledger.LendLoan(ctx, poor.Number, LoanRequest{}, "")
		assert.ErrorIs(t, err, errors.NewAppError(errors.NotEligible, ""))

		_, err = f.ledger.LendLoan(ctx, poor.Number, LoanRequest{TenureMonths: 361}, "")
		assert.ErrorIs(t, err, errors.NewAppError(errors.InvalidInput, ""))
	})
}

func TestMonthlyInstalment(t *testing.T) {
	// 100000 at 10% over 12 months
	emi := monthlyInstalment(dec("100000"), dec("0.10"), 12)
	assertDecimal(t, "8791.59", emi)

	assertDecimal(t, "1000", monthlyInstalment(dec("12000"), dec("0"), 12))
}
