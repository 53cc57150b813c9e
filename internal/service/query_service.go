package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	"retail-ledger/internal/errors"
)

// Queries never mutate the registry. Results are copies, and every listing
// is ordered by ascending account number.

type Statement struct {
	AccountNumber  int64                      `json:"account_number"`
	From           time.Time                  `json:"from"`
	To             time.Time                  `json:"to"`
	OpeningBalance decimal.Decimal            `json:"opening_balance"`
	ClosingBalance decimal.Decimal            `json:"closing_balance"`
	TotalCredits   decimal.Decimal            `json:"total_credits"`
	TotalDebits    decimal.Decimal            `json:"total_debits"`
	Records        []domain.TransactionRecord `json:"records"`
}

// Discrepancy is an account whose balance disagrees with its audit trail.
type Discrepancy struct {
	AccountNumber   int64            `json:"account_number"`
	Balance         decimal.Decimal  `json:"balance"`
	LoggedBalance   *decimal.Decimal `json:"logged_balance"`
	LastOperation   string           `json:"last_operation,omitempty"`
	LastRecordStamp *time.Time       `json:"last_record_at,omitempty"`
}

func (l *Ledger) FindByNumber(number int64) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

func (l *Ledger) BalanceInquiry(number int64) (*AccountResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	return &AccountResult{
		Account: acc.Clone(),
		Message: fmt.Sprintf("Current balance: %s", money(acc.Balance)),
	}, nil
}

// SearchByName matches a case-insensitive substring of the holder name.
func (l *Ledger) SearchByName(query string) ([]*domain.Account, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "search name cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter(func(a *domain.Account) bool {
		return strings.Contains(strings.ToLower(a.HolderName), q)
	}), nil
}

func (l *Ledger) ListAccounts() []*domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter(func(*domain.Account) bool { return true })
}

func (l *Ledger) ListActive() []*domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter((*domain.Account).IsActive)
}

func (l *Ledger) ListInactive() []*domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter(func(a *domain.Account) bool { return !a.IsActive() })
}

func (l *Ledger) ListLocked() []*domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter((*domain.Account).IsLocked)
}

func (l *Ledger) CountActive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.filter((*domain.Account).IsActive))
}

func (l *Ledger) Youngest() (*domain.Account, error) {
	return l.pickByAge(func(candidate, best int) bool { return candidate < best })
}

func (l *Ledger) Oldest() (*domain.Account, error) {
	return l.pickByAge(func(candidate, best int) bool { return candidate > best })
}

// pickByAge keeps the first account in number order when ages tie.
func (l *Ledger) pickByAge(better func(candidate, best int) bool) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var best *domain.Account
	for _, a := range l.sortedAccounts() {
		if best == nil || better(a.Age, best.Age) {
			best = a
		}
	}
	if best == nil {
		return nil, errors.NewAppError(errors.AccountNotFound, "no accounts found")
	}
	return best.Clone(), nil
}

// TopByBalance returns the n highest balances. n outside 1..count means all accounts.
func (l *Ledger) TopByBalance(n int) []*domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts := l.filter(func(*domain.Account) bool { return true })
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Balance.GreaterThan(accounts[j].Balance)
	})
	if n <= 0 || n > len(accounts) {
		n = len(accounts)
	}
	return accounts[:n]
}

// AverageBalance is zero for an empty ledger.
func (l *Ledger) AverageBalance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.accounts) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, a := range l.accounts {
		total = total.Add(a.Balance)
	}
	return total.Div(decimal.NewFromInt(int64(len(l.accounts)))).Round(2)
}

// History returns an account's audit records in chronological order. Records
// of a deleted account remain readable.
func (l *Ledger) History(ctx context.Context, number int64) ([]domain.TransactionRecord, error) {
	if number <= 0 {
		return nil, errors.ErrInvalidAccountID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.ReadTransactions(ctx, &number)
	if err != nil {
		return nil, errors.AsAppError(err)
	}
	if len(records) == 0 {
		if _, ok := l.accounts[number]; !ok {
			return nil, errors.NewAppErrorf(errors.AccountNotFound, "account %d not found", number)
		}
	}
	return records, nil
}

// Statement summarizes the records in [from, to). The opening balance is the
// balance after the last record before from.
func (l *Ledger) Statement(ctx context.Context, number int64, from, to time.Time) (*Statement, error) {
	if !to.After(from) {
		return nil, errors.NewAppError(errors.InvalidInput, "statement end must be after its start")
	}
	records, err := l.History(ctx, number)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		AccountNumber:  number,
		From:           from,
		To:             to,
		OpeningBalance: decimal.Zero,
		TotalCredits:   decimal.Zero,
		TotalDebits:    decimal.Zero,
		Records:        []domain.TransactionRecord{},
	}
	for _, rec := range records {
		switch {
		case rec.Timestamp.Before(from):
			st.OpeningBalance = rec.BalanceAfter
		case rec.Timestamp.Before(to):
			st.Records = append(st.Records, rec)
			if !rec.IsMonetary() {
				continue
			}
			if isCredit(rec.Operation) {
				st.TotalCredits = st.TotalCredits.Add(*rec.Amount)
			} else {
				st.TotalDebits = st.TotalDebits.Add(*rec.Amount)
			}
		}
	}

	st.ClosingBalance = st.OpeningBalance
	if n := len(st.Records); n > 0 {
		st.ClosingBalance = st.Records[n-1].BalanceAfter
	}
	return st, nil
}

// Reconcile compares every account with the last balance its audit trail
// recorded. An account with no records at all is reported too.
func (l *Ledger) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.ReadTransactions(ctx, nil)
	if err != nil {
		return nil, errors.AsAppError(err)
	}
	last := make(map[int64]domain.TransactionRecord, len(l.accounts))
	for _, rec := range records {
		last[rec.AccountNumber] = rec
	}

	discrepancies := []Discrepancy{}
	for _, acc := range l.sortedAccounts() {
		rec, ok := last[acc.Number]
		if !ok {
			discrepancies = append(discrepancies, Discrepancy{AccountNumber: acc.Number, Balance: acc.Balance})
			continue
		}
		if rec.BalanceAfter.Equal(acc.Balance) {
			continue
		}
		logged, stamp := rec.BalanceAfter, rec.Timestamp
		discrepancies = append(discrepancies, Discrepancy{
			AccountNumber:   acc.Number,
			Balance:         acc.Balance,
			LoggedBalance:   &logged,
			LastOperation:   string(rec.Operation),
			LastRecordStamp: &stamp,
		})
	}
	return discrepancies, nil
}

func (l *Ledger) filter(keep func(*domain.Account) bool) []*domain.Account {
	out := []*domain.Account{}
	for _, a := range l.sortedAccounts() {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

func isCredit(op domain.OperationKind) bool {
	switch op {
	case domain.OpDeposit, domain.OpTransferIn, domain.OpLoanDisbursal:
		return true
	}
	return false
}
