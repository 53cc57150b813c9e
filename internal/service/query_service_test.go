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

func seedAges(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	people := []struct {
		name    string
		age     int
		typ     string
		deposit string
	}{
		{"Asha Rao", 34, "Savings", "2500"},
		{"Ravi Kumar", 22, "Current", "9000"},
		{"Meera Rao", 22, "Savings", "9000"},
		{"Old Timer", 80, "Savings", "700"},
	}
	for _, p := range people {
		_, err := f.ledger.CreateAccount(ctx, CreateAccountRequest{
			HolderName: p.name, Age: p.age, Type: p.typ, InitialDeposit: dec(p.deposit),
		})
		require.NoError(t, err)
	}
}

func numbers(accounts []*domain.Account) []int64 {
	out := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Number)
	}
	return out
}

func TestQueriesOnEmptyLedger(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 0, f.ledger.CountActive())
	assert.True(t, f.ledger.AverageBalance().IsZero())
	assert.Empty(t, f.ledger.TopByBalance(3))
	assert.Empty(t, f.ledger.ListActive())

	_, err := f.ledger.Youngest()
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
	_, err = f.ledger.Oldest()
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}

func TestAnalytics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedAges(t, f)
	_, err := f.ledger.CloseAccount(ctx, 1004)
	require.NoError(t, err)

	assert.Equal(t, 3, f.ledger.CountActive())
	assert.Equal(t, []int64{1001, 1002, 1003}, numbers(f.ledger.ListActive()))
	assert.Equal(t, []int64{1004}, numbers(f.ledger.ListInactive()))

	youngest, err := f.ledger.Youngest()
	require.NoError(t, err)
	assert.Equal(t, int64(1002), youngest.Number, "ties go to the lowest number")

	oldest, err := f.ledger.Oldest()
	require.NoError(t, err)
	assert.Equal(t, int64(1004), oldest.Number)

	// (2500 + 9000 + 9000 + 700) / 4
	assertDecimal(t, "5300", f.ledger.AverageBalance())

	assert.Equal(t, []int64{1002, 1003}, numbers(f.ledger.TopByBalance(2)))
	assert.Equal(t, []int64{1002, 1003, 1001, 1004}, numbers(f.ledger.TopByBalance(0)))
	assert.Equal(t, []int64{1002, 1003, 1001, 1004}, numbers(f.ledger.TopByBalance(99)))
}

func TestSearchByName(t *testing.T) {
	f := newFixture(t)
	seedAges(t, f)

	found, err := f.ledger.SearchByName("rao")
	require.NoError(t, err)
	assert.Equal(t, []int64{1001, 1003}, numbers(found))

	found, err = f.ledger.SearchByName("nobody")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = f.ledger.SearchByName("  ")
	assert.ErrorIs(t, err, errors.NewAppError(errors.InvalidInput, ""))
}

func TestQueriesReturnCopies(t *testing.T) {
	f := newFixture(t)
	acc := f.create(t, "Asha", "Savings", "1000", "")

	found, err := f.ledger.FindByNumber(acc.Number)
	require.NoError(t, err)
	found.Balance = dec("1")

	assertDecimal(t, "1000", f.balance(t, acc.Number))
}

func TestBalanceInquiry(t *testing.T) {
	f := newFixture(t)
	acc := f.create(t, "Asha", "Savings", "1234.5", "")

	res, err := f.ledger.BalanceInquiry(acc.Number)
	require.NoError(t, err)
	assert.Equal(t, "Current balance: 1234.50", res.Message)

	_, err = f.ledger.BalanceInquiry(0)
	assert.ErrorIs(t, err, errors.ErrInvalidAccountID)
	_, err = f.ledger.BalanceInquiry(77)
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}

func TestHistoryAndStatement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.create(t, "Asha", "Savings", "1000", "")

	f.clock = testDay.AddDate(0, 0, 1)
	_, err := f.ledger.Deposit(ctx, acc.Number, dec("500"), "")
	require.NoError(t, err)
	f.clock = testDay.AddDate(0, 0, 2)
	_, err = f.ledger.Withdraw(ctx, acc.Number, dec("200"), "")
	require.NoError(t, err)
	f.clock = testDay.AddDate(0, 0, 5)
	_, err = f.ledger.Deposit(ctx, acc.Number, dec("50"), "")
	require.NoError(t, err)

	history, err := f.ledger.History(ctx, acc.Number)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, domain.OpCreate, history[0].Operation)
	assert.Equal(t, domain.OpDeposit, history[3].Operation)

	from := testDay.AddDate(0, 0, 1).Truncate(time.Hour)
	to := testDay.AddDate(0, 0, 3)
	st, err := f.ledger.Statement(ctx, acc.Number, from, to)
	require.NoError(t, err)
	assert.Len(t, st.Records, 2)
	assertDecimal(t, "1000", st.OpeningBalance)
	assertDecimal(t, "1300", st.ClosingBalance)
	assertDecimal(t, "500", st.TotalCredits)
	assertDecimal(t, "200", st.TotalDebits)

	_, err = f.ledger.Statement(ctx, acc.Number, to, from)
	assert.ErrorIs(t, err, errors.NewAppError(errors.InvalidInput, ""))

	_, err = f.ledger.History(ctx, 5555)
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
}
