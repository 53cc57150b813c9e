package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

func TestExportAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, "Asha, Rao", "Savings", "1000", "1234")
	b := f.create(t, "Ravi", "Current", "2500.5", "")
	_, err := f.ledger.CloseAccount(ctx, b.Number)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := f.ledger.ExportAccounts(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	expected := "Account Number,Name,Age,Account Type,Balance,Status\n" +
		"1001,\"Asha, Rao\",30,Savings,1000.00,Active\n" +
		"1002,Ravi,30,Current,2500.50,Inactive\n"
	assert.Equal(t, expected, buf.String())
	assert.NotContains(t, buf.String(), "1234", "PINs are never exported")
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	src.create(t, "Asha", "Savings", "1000", "")
	src.create(t, "Ravi", "Current", "2500", "")

	var buf bytes.Buffer
	_, err := src.ledger.ExportAccounts(&buf)
	require.NoError(t, err)

	dst := newFixture(t)
	report, err := dst.ledger.ImportAccounts(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, []int64{1001, 1002}, report.Imported)
	assert.Empty(t, report.Skipped)

	acc, err := dst.ledger.FindByNumber(1002)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", acc.HolderName)
	assert.Equal(t, domain.Current, acc.Type)
	assertDecimal(t, "2500", acc.Balance)

	for _, rec := range dst.records(t) {
		assert.Equal(t, domain.OpImport, rec.Operation)
	}

	next := dst.create(t, "Meera", "Savings", "500", "")
	assert.Equal(t, int64(1003), next.Number)
}

func TestImportSkipsBadRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, "Existing", "Savings", "1000", "")

	csv := strings.Join([]string{
		"account number,name,age,account type,balance,status",
		"1001,Clash,40,Savings,900,Active",
		"2001,Young,17,Savings,900,Active",
		"2002,Typo,40,Gold,900,Active",
		"2003,Negative,40,Savings,-5,Active",
		"2004,Good One,40,Current,1500,Inactive",
		"2004,Again,40,Current,1500,Active",
		"abc,Bad Number,40,Savings,900,Active",
		"2005,Below Floor,40,Savings,10,Active",
		"2006,Sub Cent,40,Savings,900.005,Active",
		"2007,Dormant,40,Current,10,Inactive",
		"3000,Good Two,55,savings,800.25,",
	}, "\n")

	report, err := f.ledger.ImportAccounts(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []int64{2004, 2007, 3000}, report.Imported)
	require.Len(t, report.Skipped, 8)
	assert.Equal(t, 2, report.Skipped[0].Line)
	assert.Contains(t, report.Skipped[0].Reason, "already exists")
	assert.Equal(t, 9, report.Skipped[6].Line)
	assert.Contains(t, report.Skipped[6].Reason, "below the Savings minimum")
	assert.Equal(t, 10, report.Skipped[7].Line)

	_, err = f.ledger.FindByNumber(2005)
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)

	acc, err := f.ledger.FindByNumber(2004)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, acc.Status)

	acc, err = f.ledger.FindByNumber(3000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, acc.Status)

	next := f.create(t, "After Import", "Savings", "500", "")
	assert.Equal(t, int64(3001), next.Number)
}

func TestImportRejectsBadHeader(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.ImportAccounts(context.Background(), strings.NewReader("Number,Name\n1,A\n"))
	assert.ErrorIs(t, err, errors.NewAppError(errors.InvalidInput, ""))

	_, err = f.ledger.ImportAccounts(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, errors.NewAppError(errors.InvalidInput, ""))
}

func TestImportStopsOnReadError(t *testing.T) {
	f := newFixture(t)
	r := io.MultiReader(
		strings.NewReader("Account Number,Name,Age,Account Type,Balance,Status\n"),
		iotest.ErrReader(assert.AnError),
	)

	_, err := f.ledger.ImportAccounts(context.Background(), r)
	assert.ErrorIs(t, err, errors.NewAppError(errors.InvalidInput, ""))
	assert.Empty(t, f.ledger.ListAccounts())
}
