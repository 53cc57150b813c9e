package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"retail-ledger/internal/domain"
	apperrors "retail-ledger/internal/errors"
)

const snapshotVersion = 1

// snapshotMeta describes the snapshot format so later versions can migrate it.
type snapshotMeta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// persistAccount is the serialized form of an account. It carries the PIN,
// which the API representation of domain.Account never exposes.
type persistAccount struct {
	AccountNumber  int64           `json:"account_number"`
	Name           string          `json:"name"`
	Age            int             `json:"age"`
	Balance        decimal.Decimal `json:"balance"`
	AccountType    string          `json:"account_type"`
	Status         string          `json:"status"`
	PIN            string          `json:"pin"`
	FailedAttempts int             `json:"failed_attempts"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type snapshot struct {
	Meta     snapshotMeta     `json:"_meta"`
	Accounts []persistAccount `json:"accounts"`
}

// FileStore keeps the account registry as a JSON snapshot and the audit
// trail as an append-only tagged log file.
type FileStore struct {
	mu               sync.Mutex
	accountsPath     string
	transactionsPath string
	logger           *slog.Logger
}

func NewFileStore(accountsPath, transactionsPath string, logger *slog.Logger) (*FileStore, error) {
	for _, p := range []string{accountsPath, transactionsPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return &FileStore{
		accountsPath:     accountsPath,
		transactionsPath: transactionsPath,
		logger:           logger,
	}, nil
}

func (s *FileStore) LoadAccounts(_ context.Context) ([]*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.accountsPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("No account snapshot found, starting empty", "path", s.accountsPath)
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.PersistenceFault, "failed to open account snapshot").WithDetails(err.Error())
	}
	defer f.Close()

	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, apperrors.NewAppError(apperrors.PersistenceFault, "failed to decode account snapshot").WithDetails(err.Error())
	}

	accounts := make([]*domain.Account, 0, len(snap.Accounts))
	for _, pa := range snap.Accounts {
		accountType, err := domain.ParseAccountType(pa.AccountType)
		if err != nil {
			return nil, apperrors.NewAppErrorf(apperrors.PersistenceFault,
				"account %d has invalid type %q", pa.AccountNumber, pa.AccountType)
		}
		accounts = append(accounts, &domain.Account{
			Number:         pa.AccountNumber,
			HolderName:     pa.Name,
			Age:            pa.Age,
			Type:           accountType,
			Balance:        pa.Balance,
			Status:         domain.AccountStatus(pa.Status),
			PIN:            pa.PIN,
			FailedAttempts: pa.FailedAttempts,
			CreatedAt:      pa.CreatedAt,
			UpdatedAt:      pa.UpdatedAt,
		})
	}
	return accounts, nil
}

// SaveAccounts writes to a temporary file and renames it over the snapshot,
// so a crash mid-write leaves the previous snapshot intact.
func (s *FileStore) SaveAccounts(_ context.Context, accounts []*domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		Meta: snapshotMeta{
			Storage:   "json_snapshot",
			Version:   snapshotVersion,
			Timestamp: time.Now(),
		},
		Accounts: make([]persistAccount, 0, len(accounts)),
	}
	for _, a := range accounts {
		snap.Accounts = append(snap.Accounts, persistAccount{
			AccountNumber:  a.Number,
			Name:           a.HolderName,
			Age:            a.Age,
			Balance:        a.Balance,
			AccountType:    string(a.Type),
			Status:         string(a.Status),
			PIN:            a.PIN,
			FailedAttempts: a.FailedAttempts,
			CreatedAt:      a.CreatedAt,
			UpdatedAt:      a.UpdatedAt,
		})
	}

	tmp := s.accountsPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return s.saveFault(err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return s.saveFault(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return s.saveFault(err)
	}
	if err := f.Close(); err != nil {
		return s.saveFault(err)
	}

	if err := os.Rename(tmp, s.accountsPath); err != nil {
		return s.saveFault(err)
	}
	return nil
}

func (s *FileStore) saveFault(err error) error {
	s.logger.Error("Failed to save account snapshot", "path", s.accountsPath, "error", err)
	return apperrors.NewAppError(apperrors.PersistenceFault, "failed to save accounts").WithDetails(err.Error())
}

// AppendTransactions writes every record with a single write call so a batch
// is never split by another writer.
func (s *FileStore) AppendTransactions(_ context.Context, records ...domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, rec := range records {
		b.WriteString(EncodeRecord(rec))
		b.WriteByte('\n')
	}

	f, err := os.OpenFile(s.transactionsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return s.appendFault(err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return s.appendFault(err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return s.appendFault(err)
	}
	if err := f.Close(); err != nil {
		return s.appendFault(err)
	}
	return nil
}

func (s *FileStore) appendFault(err error) error {
	s.logger.Error("Failed to append transaction log", "path", s.transactionsPath, "error", err)
	return apperrors.NewAppError(apperrors.PersistenceFault, "failed to append transaction").WithDetails(err.Error())
}

func (s *FileStore) ReadTransactions(_ context.Context, accountNumber *int64) ([]domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.transactionsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.PersistenceFault, "failed to open transaction log").WithDetails(err.Error())
	}
	defer f.Close()

	var records []domain.TransactionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := DecodeRecord(line)
		if err != nil {
			s.logger.Warn("Skipping unreadable transaction log line", "line", lineNo, "error", err)
			continue
		}
		if accountNumber != nil && rec.AccountNumber != *accountNumber {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.NewAppError(apperrors.PersistenceFault, "failed to read transaction log").WithDetails(err.Error())
	}
	return records, nil
}

var _ domain.LedgerStore = (*FileStore)(nil)
