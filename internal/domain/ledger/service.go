package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/infrastructure/monitoring"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

type LedgerService interface {
	CreateAccount(ctx context.Context, code, name string, accountType AccountType) (*GLAccount, error)

	GetAccounts(ctx context.Context) ([]GLAccount, error)

	// GetBalance derives the account balance by replaying its journal lines
	// under the standard sign convention.
	GetBalance(ctx context.Context, accountCode string) (Money, error)

	// PostEntry validates the balance invariant and persists the entry
	// atomically. Manual operator entries and loan-driven entries share this
	// path; there is no bypass.
	PostEntry(ctx context.Context, referenceNo, description string, entryDate time.Time, lines []JournalLine) (*JournalEntry, error)

	// PostEntryInTx is PostEntry joining a caller-owned transaction.
	PostEntryInTx(ctx context.Context, tx pgx.Tx, entry *JournalEntry) (*JournalEntry, error)

	GetEntries(ctx context.Context, limit int) ([]JournalEntry, error)
}

type ledgerServiceImpl struct {
	repo   Repository
	logger *slog.Logger
}

func NewLedgerService(repo Repository, logger *slog.Logger) LedgerService {
	return &ledgerServiceImpl{repo: repo, logger: logger.With("component", "LedgerService")}
}

func (s *ledgerServiceImpl) CreateAccount(ctx context.Context, code, name string, accountType AccountType) (*GLAccount, error) {
	if code == "" {
		return nil, apperrors.NewValidationError("code", "account code is required")
	}
	if name == "" {
		return nil, apperrors.NewValidationError("name", "account name is required")
	}
	if !accountType.Valid() {
		return nil, apperrors.NewValidationError("type", fmt.Sprintf("unknown account type '%s'", accountType))
	}

	account, err := s.repo.CreateAccount(ctx, &GLAccount{Code: code, Name: name, Type: accountType})
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			s.logger.WarnContext(ctx, "Account code already exists", "code", code)
			return nil, fmt.Errorf("%w: account code '%s' already exists", apperrors.ErrAlreadyExists, code)
		}
		s.logger.ErrorContext(ctx, "Failed to create GL account", "code", code, "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "GL account created", "code", code, "type", accountType)
	return account, nil
}

func (s *ledgerServiceImpl) GetAccounts(ctx context.Context) ([]GLAccount, error) {
	return s.repo.ListAccounts(ctx)
}

func (s *ledgerServiceImpl) GetBalance(ctx context.Context, accountCode string) (Money, error) {
	account, err := s.repo.GetAccountByCode(ctx, accountCode)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 0, fmt.Errorf("%w: GL account '%s' not found", apperrors.ErrNotFound, accountCode)
		}
		return 0, err
	}

	debits, credits, err := s.repo.SumLinesByAccount(ctx, accountCode)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to sum journal lines", "code", accountCode, "error", err)
		return 0, err
	}

	line := JournalLine{Debit: debits, Credit: credits}
	return roundTo(line.SignedAmount(account.Type), 2), nil
}

func (s *ledgerServiceImpl) PostEntry(ctx context.Context, referenceNo, description string, entryDate time.Time, lines []JournalLine) (*JournalEntry, error) {
	entry, err := NewJournalEntry(referenceNo, description, entryDate, lines)
	if err != nil {
		monitoring.RecordJournalEntry("rejected")
		s.logger.WarnContext(ctx, "Journal entry rejected before posting", "reference_no", referenceNo, "error", err)
		return nil, err
	}

	posted, err := s.repo.InsertEntry(ctx, entry)
	if err != nil {
		monitoring.RecordJournalEntry("failure")
		s.logger.ErrorContext(ctx, "Failed to persist journal entry", "reference_no", referenceNo, "error", err)
		return nil, err
	}
	monitoring.RecordJournalEntry("success")
	s.logger.InfoContext(ctx, "Journal entry posted", "reference_no", posted.ReferenceNo, "amount", posted.TotalDebits())
	return posted, nil
}

func (s *ledgerServiceImpl) PostEntryInTx(ctx context.Context, tx pgx.Tx, entry *JournalEntry) (*JournalEntry, error) {
	if err := entry.Validate(); err != nil {
		monitoring.RecordJournalEntry("rejected")
		return nil, err
	}
	posted, err := s.repo.InsertEntryInTx(ctx, tx, entry)
	if err != nil {
		monitoring.RecordJournalEntry("failure")
		return nil, err
	}
	monitoring.RecordJournalEntry("success")
	return posted, nil
}

func (s *ledgerServiceImpl) GetEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListEntries(ctx, limit)
}
