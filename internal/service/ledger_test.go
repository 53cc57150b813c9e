package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-ledger/internal/config"
	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
	"retail-ledger/internal/repository"
)

var testDay = time.Date(2024, 7, 1, 10, 0, 0, 0, time.Local)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ledger *Ledger
	store  *repository.MemoryStore
	usage  *repository.MemoryUsageTracker
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, repository.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, store *repository.MemoryStore) *fixture {
	t.Helper()
	f := &fixture{
		store: store,
		usage: repository.NewMemoryUsageTracker(),
		clock: testDay,
	}
	ledger, err := NewLedger(context.Background(), store, f.usage, config.DefaultPolicy(), discardLogger())
	require.NoError(t, err)
	ledger.now = func() time.Time { return f.clock }
	f.ledger = ledger
	return f
}

func (f *fixture) create(t *testing.T, name, typ, deposit, pin string) *domain.Account {
	t.Helper()
	res, err := f.ledger.CreateAccount(context.Background(), CreateAccountRequest{
		HolderName:     name,
		Age:            30,
		Type:           typ,
		InitialDeposit: dec(deposit),
		PIN:            pin,
	})
	require.NoError(t, err)
	return res.Account
}

func (f *fixture) balance(t *testing.T, number int64) decimal.Decimal {
	t.Helper()
	acc, err := f.ledger.FindByNumber(number)
	require.NoError(t, err)
	return acc.Balance
}

func (f *fixture) records(t *testing.T) []domain.TransactionRecord {
	t.Helper()
	records, err := f.store.ReadTransactions(context.Background(), nil)
	require.NoError(t, err)
	return records
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestNewLedgerContinuesNumbering(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.SaveAccounts(ctx, []*domain.Account{
		{Number: 1001, HolderName: "A", Age: 20, Type: domain.Savings, Balance: dec("600"), Status: domain.StatusActive},
		{Number: 1042, HolderName: "B", Age: 20, Type: domain.Savings, Balance: dec("600"), Status: domain.StatusActive},
	}))

	f := newFixtureWithStore(t, store)
	acc := f.create(t, "C", "Savings", "500", "")
	assert.Equal(t, int64(1043), acc.Number)
}

func TestDeletedNumbersStayRetiredAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	f := newFixtureWithStore(t, store)
	f.create(t, "Asha", "Savings", "1000", "")
	gone := f.create(t, "Gone", "Savings", "9000", "")
	_, err := f.ledger.DeleteAccount(ctx, gone.Number)
	require.NoError(t, err)

	restarted := newFixtureWithStore(t, store)
	acc := restarted.create(t, "Meera", "Savings", "700", "")
	assert.Equal(t, int64(1003), acc.Number)

	history, err := restarted.ledger.History(ctx, gone.Number)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.OpCreate, history[0].Operation)
	assert.Equal(t, domain.OpDelete, history[1].Operation)
}

func TestDeleteAllResetsNumberingAcrossRestart(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	f := newFixtureWithStore(t, store)
	f.create(t, "Asha", "Savings", "1000", "")
	f.create(t, "Ravi", "Current", "2000", "")
	_, err := f.ledger.DeleteAllAccounts(ctx)
	require.NoError(t, err)

	restarted := newFixtureWithStore(t, store)
	first := restarted.create(t, "Meera", "Savings", "700", "")
	assert.Equal(t, FirstAccountNumber, first.Number)

	// numbers issued after the reset are retired again once deleted
	second := restarted.create(t, "Kiran", "Savings", "700", "")
	_, err = restarted.ledger.DeleteAccount(ctx, second.Number)
	require.NoError(t, err)

	again := newFixtureWithStore(t, store)
	assert.Equal(t, int64(1003), again.create(t, "Latha", "Savings", "700", "").Number)
}

func TestSubCentAmountsNeverReachTheLog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := repository.NewFileStore(
		filepath.Join(dir, "accounts.json"),
		filepath.Join(dir, "transactions.log"),
		discardLogger(),
	)
	require.NoError(t, err)
	ledger, err := NewLedger(ctx, store, repository.NewMemoryUsageTracker(), config.DefaultPolicy(), discardLogger())
	require.NoError(t, err)

	_, err = ledger.CreateAccount(ctx, CreateAccountRequest{
		HolderName: "Asha", Age: 30, Type: "Savings", InitialDeposit: dec("1000.005"),
	})
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	res, err := ledger.CreateAccount(ctx, CreateAccountRequest{
		HolderName: "Asha", Age: 30, Type: "Savings", InitialDeposit: dec("1000"),
	})
	require.NoError(t, err)
	a := res.Account.Number
	res, err = ledger.CreateAccount(ctx, CreateAccountRequest{
		HolderName: "Ravi", Age: 40, Type: "Savings", InitialDeposit: dec("6000"),
	})
	require.NoError(t, err)
	b := res.Account.Number

	_, err = ledger.Deposit(ctx, a, dec("0.004"), "")
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)
	_, err = ledger.Withdraw(ctx, a, dec("10.125"), "")
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)
	_, err = ledger.Transfer(ctx, TransferRequest{From: b, To: a, Amount: dec("0.333")})
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)
	_, err = ledger.FixedDeposit(ctx, b, dec("100.001"), 1, "")
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)
	_, err = ledger.LendLoan(ctx, b, LoanRequest{Amount: dec("500.555")}, "")
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	acc, err := ledger.FindByNumber(a)
	require.NoError(t, err)
	assertDecimal(t, "1000", acc.Balance)

	records, err := store.ReadTransactions(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2, "only the two creates were committed")

	discrepancies, err := ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestAppendFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.create(t, "Asha", "Savings", "1000", "")

	f.store.AppendErr = fmt.Errorf("disk full")
	_, err := f.ledger.Deposit(ctx, acc.Number, dec("100"), "")
	require.Error(t, err)
	assertDecimal(t, "1000", f.balance(t, acc.Number))

	used, err := f.usage.Used(ctx, acc.Number, testDay)
	require.NoError(t, err)
	assert.True(t, used.IsZero(), "usage only counts committed operations")

	_, err = f.ledger.CreateAccount(ctx, CreateAccountRequest{
		HolderName: "Ravi", Age: 40, Type: "Current", InitialDeposit: dec("1000"),
	})
	require.Error(t, err)

	f.store.AppendErr = nil
	next := f.create(t, "Ravi", "Current", "1000", "")
	assert.Equal(t, acc.Number+1, next.Number, "failed create does not consume a number")
}

func TestSaveFailureMarksDirtyUntilFlush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.create(t, "Asha", "Savings", "1000", "")

	f.store.SaveErr = fmt.Errorf("read-only filesystem")
	_, err := f.ledger.Deposit(ctx, acc.Number, dec("250"), "")
	assert.ErrorIs(t, err, errors.ErrPersistenceFault)
	assert.True(t, f.ledger.Dirty())

	// the mutation was applied and logged
	assertDecimal(t, "1250", f.balance(t, acc.Number))
	records := f.records(t)
	assert.Equal(t, domain.OpDeposit, records[len(records)-1].Operation)

	_, err = f.ledger.Flush(ctx)
	assert.ErrorIs(t, err, errors.ErrPersistenceFault)

	f.store.SaveErr = nil
	msg, err := f.ledger.Flush(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg, "1 account(s)")
	assert.False(t, f.ledger.Dirty())

	saved, err := f.store.LoadAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assertDecimal(t, "1250", saved[0].Balance)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, "Asha", "Savings", "1000", "")
	b := f.create(t, "Ravi", "Current", "2000", "")
	_, err := f.ledger.Deposit(ctx, a.Number, dec("10"), "")
	require.NoError(t, err)

	discrepancies, err := f.ledger.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)

	// an out-of-band balance change shows up
	f.ledger.accounts[b.Number].Balance = dec("1")
	discrepancies, err = f.ledger.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.Equal(t, b.Number, discrepancies[0].AccountNumber)
	require.NotNil(t, discrepancies[0].LoggedBalance)
	assertDecimal(t, "2000", *discrepancies[0].LoggedBalance)
}
