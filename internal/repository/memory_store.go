package repository

import (
	"context"
	"sync"

	"retail-ledger/internal/domain"
)

// MemoryStore is an in-process LedgerStore. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts []*domain.Account
	records  []domain.TransactionRecord

	// failure injection for exercising persistence faults
	SaveErr   error
	AppendErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadAccounts(_ context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *MemoryStore) SaveAccounts(_ context.Context, accounts []*domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.accounts = make([]*domain.Account, 0, len(accounts))
	for _, a := range accounts {
		s.accounts = append(s.accounts, a.Clone())
	}
	return nil
}

func (s *MemoryStore) AppendTransactions(_ context.Context, records ...domain.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *MemoryStore) ReadTransactions(_ context.Context, accountNumber *int64) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TransactionRecord
	for _, rec := range s.records {
		if accountNumber == nil || rec.AccountNumber == *accountNumber {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ domain.LedgerStore = (*MemoryStore)(nil)
