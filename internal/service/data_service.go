package service

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

var csvHeader = []string{"Account Number", "Name", "Age", "Account Type", "Balance", "Status"}

type ImportReport struct {
	Imported []int64      `json:"imported"`
	Skipped  []SkippedRow `json:"skipped"`
	Message  string       `json:"message"`
}

type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ExportAccounts writes every account as CSV. PINs are never exported.
func (l *Ledger) ExportAccounts(w io.Writer) (int, error) {
	l.mu.Lock()
	accounts := l.filter(func(*domain.Account) bool { return true })
	l.mu.Unlock()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, errors.NewAppError(errors.InternalError, "failed to write export").WithDetails(err.Error())
	}
	for _, a := range accounts {
		row := []string{
			strconv.FormatInt(a.Number, 10),
			a.HolderName,
			strconv.Itoa(a.Age),
			string(a.Type),
			money(a.Balance),
			string(a.Status),
		}
		if err := cw.Write(row); err != nil {
			return 0, errors.NewAppError(errors.InternalError, "failed to write export").WithDetails(err.Error())
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, errors.NewAppError(errors.InternalError, "failed to write export").WithDetails(err.Error())
	}
	return len(accounts), nil
}

// ImportAccounts adds the accounts described by a CSV export. Rows that fail
// validation or reuse an existing number are skipped and reported; the rest
// are committed together.
func (l *Ledger) ImportAccounts(ctx context.Context, r io.Reader) (*ImportReport, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewAppError(errors.InvalidInput, "import file is empty")
	}
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "failed to read import header").WithDetails(err.Error())
	}
	columns, err := headerColumns(header)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	report := &ImportReport{Imported: []int64{}, Skipped: []SkippedRow{}}
	seen := make(map[int64]bool)
	var staged []*domain.Account
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if !stderrors.As(err, &parseErr) {
				return nil, errors.NewAppError(errors.InvalidInput, "failed to read import file").WithDetails(err.Error())
			}
			report.Skipped = append(report.Skipped, SkippedRow{Line: line, Reason: err.Error()})
			continue
		}

		acc, err := parseImportRow(row, columns, l.policy.GlobalMinBalance)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedRow{Line: line, Reason: errors.AsAppError(err).Message})
			continue
		}
		if _, exists := l.accounts[acc.Number]; exists || seen[acc.Number] {
			report.Skipped = append(report.Skipped, SkippedRow{
				Line:   line,
				Reason: fmt.Sprintf("account %d already exists", acc.Number),
			})
			continue
		}
		seen[acc.Number] = true
		acc.CreatedAt = l.now()
		staged = append(staged, acc)
	}

	if len(staged) == 0 {
		report.Message = fmt.Sprintf("No accounts imported, %d row(s) skipped", len(report.Skipped))
		return report, nil
	}

	records := make([]domain.TransactionRecord, 0, len(staged))
	for _, acc := range staged {
		balance := acc.Balance
		records = append(records, l.newRecord(acc, domain.OpImport, &balance, "imported from CSV"))
	}
	if err := l.apply(ctx, records, staged...); err != nil {
		return nil, err
	}
	for _, acc := range staged {
		report.Imported = append(report.Imported, acc.Number)
		if acc.Number >= l.nextNumber {
			l.nextNumber = acc.Number + 1
		}
	}
	if err := l.persist(ctx); err != nil {
		return nil, err
	}

	l.logger.Info("Accounts imported", "imported", len(report.Imported), "skipped", len(report.Skipped))
	report.Message = fmt.Sprintf("Imported %d account(s), %d row(s) skipped", len(report.Imported), len(report.Skipped))
	return report, nil
}

func headerColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range csvHeader {
		if _, ok := columns[strings.ToLower(want)]; !ok {
			return nil, errors.NewAppErrorf(errors.InvalidInput, "import header is missing column %q", want)
		}
	}
	return columns, nil
}

func parseImportRow(row []string, columns map[string]int, globalFloor decimal.Decimal) (*domain.Account, error) {
	field := func(name string) string {
		i := columns[strings.ToLower(name)]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	number, err := strconv.ParseInt(field("Account Number"), 10, 64)
	if err != nil || number <= 0 {
		return nil, errors.ErrInvalidAccountID
	}
	name, err := domain.ValidateHolderName(field("Name"))
	if err != nil {
		return nil, err
	}
	age, err := strconv.Atoi(field("Age"))
	if err != nil {
		return nil, errors.NewAppErrorf(errors.InvalidAge, "age %q is not a number", field("Age"))
	}
	if err := domain.ValidateAge(age); err != nil {
		return nil, err
	}
	accountType, err := domain.ParseAccountType(field("Account Type"))
	if err != nil {
		return nil, err
	}
	balance, err := decimal.NewFromString(field("Balance"))
	if err != nil || balance.IsNegative() {
		return nil, errors.NewAppErrorf(errors.InvalidAmount, "invalid balance %q", field("Balance"))
	}
	if err := domain.ValidatePrecision(balance); err != nil {
		return nil, err
	}

	status := domain.StatusActive
	switch strings.ToLower(field("Status")) {
	case "", "active":
	case "inactive", "closed":
		status = domain.StatusInactive
	default:
		return nil, errors.NewAppErrorf(errors.InvalidInput, "invalid status %q", field("Status"))
	}

	acc := &domain.Account{
		Number:     number,
		HolderName: name,
		Age:        age,
		Type:       accountType,
		Balance:    balance,
		Status:     status,
	}
	if acc.IsActive() && balance.LessThan(acc.Floor(globalFloor)) {
		return nil, errors.NewAppErrorf(errors.InsufficientBalance,
			"balance %s is below the %s minimum of %s", money(balance), accountType, money(acc.Floor(globalFloor)))
	}
	return acc, nil
}
