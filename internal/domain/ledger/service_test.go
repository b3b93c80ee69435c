package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"lending-engine/internal/domain/ledger"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) CreateAccount(ctx context.Context, account *ledger.GLAccount) (*ledger.GLAccount, error) {
	args := m.Called(ctx, account)
	if a, ok := args.Get(0).(*ledger.GLAccount); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerRepository) GetAccountByCode(ctx context.Context, code string) (*ledger.GLAccount, error) {
	args := m.Called(ctx, code)
	if a, ok := args.Get(0).(*ledger.GLAccount); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerRepository) ListAccounts(ctx context.Context) ([]ledger.GLAccount, error) {
	args := m.Called(ctx)
	if accounts, ok := args.Get(0).([]ledger.GLAccount); ok {
		return accounts, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerRepository) InsertEntry(ctx context.Context, entry *ledger.JournalEntry) (*ledger.JournalEntry, error) {
	args := m.Called(ctx, entry)
	if e, ok := args.Get(0).(*ledger.JournalEntry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerRepository) InsertEntryInTx(ctx context.Context, tx pgx.Tx, entry *ledger.JournalEntry) (*ledger.JournalEntry, error) {
	args := m.Called(ctx, tx, entry)
	if e, ok := args.Get(0).(*ledger.JournalEntry); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerRepository) ListEntries(ctx context.Context, limit int) ([]ledger.JournalEntry, error) {
	args := m.Called(ctx, limit)
	if entries, ok := args.Get(0).([]ledger.JournalEntry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerRepository) SumLinesByAccount(ctx context.Context, accountCode string) (ledger.Money, ledger.Money, error) {
	args := m.Called(ctx, accountCode)
	return args.Get(0).(ledger.Money), args.Get(1).(ledger.Money), args.Error(2)
}

func newTestLedgerService(repo *MockLedgerRepository) ledger.LedgerService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ledger.NewLedgerService(repo, logger)
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a valid account", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		repo.On("CreateAccount", ctx, mock.AnythingOfType("*ledger.GLAccount")).
			Return(&ledger.GLAccount{ID: 1, Code: "1000", Name: "Cash", Type: ledger.AccountAsset}, nil)

		account, err := svc.CreateAccount(ctx, "1000", "Cash", ledger.AccountAsset)
		require.NoError(t, err)
		assert.Equal(t, "1000", account.Code)
		repo.AssertExpectations(t)
	})

	t.Run("should reject a duplicate code", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		repo.On("CreateAccount", ctx, mock.Anything).Return(nil, apperrors.ErrAlreadyExists)

		_, err := svc.CreateAccount(ctx, "1000", "Cash", ledger.AccountAsset)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	t.Run("should validate code, name and type before touching the repository", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		_, err := svc.CreateAccount(ctx, "", "Cash", ledger.AccountAsset)
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = svc.CreateAccount(ctx, "1000", "", ledger.AccountAsset)
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = svc.CreateAccount(ctx, "1000", "Cash", ledger.AccountType("revenue"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		repo.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
	})
}

func TestGetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("asset balance should grow with debits", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		repo.On("GetAccountByCode", ctx, "1200").
			Return(&ledger.GLAccount{Code: "1200", Type: ledger.AccountAsset}, nil)
		repo.On("SumLinesByAccount", ctx, "1200").
			Return(ledger.Money(100_000), ledger.Money(25_000), nil)

		balance, err := svc.GetBalance(ctx, "1200")
		require.NoError(t, err)
		assert.Equal(t, ledger.Money(75_000), balance)
	})

	t.Run("income balance should grow with credits", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		repo.On("GetAccountByCode", ctx, "4100").
			Return(&ledger.GLAccount{Code: "4100", Type: ledger.AccountIncome}, nil)
		repo.On("SumLinesByAccount", ctx, "4100").
			Return(ledger.Money(0), ledger.Money(1_234.56), nil)

		balance, err := svc.GetBalance(ctx, "4100")
		require.NoError(t, err)
		assert.Equal(t, ledger.Money(1_234.56), balance)
	})

	t.Run("should surface an unknown account", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		repo.On("GetAccountByCode", ctx, "9999").Return(nil, apperrors.ErrNotFound)

		_, err := svc.GetBalance(ctx, "9999")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		repo.AssertNotCalled(t, "SumLinesByAccount", mock.Anything, mock.Anything)
	})
}

func TestPostEntry(t *testing.T) {
	ctx := context.Background()
	entryDate := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	t.Run("should persist a balanced entry", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		repo.On("InsertEntry", ctx, mock.AnythingOfType("*ledger.JournalEntry")).
			Return(&ledger.JournalEntry{ID: 1, ReferenceNo: "JE-manual-1"}, nil)

		posted, err := svc.PostEntry(ctx, "JE-manual-1", "Opening balance", entryDate, []ledger.JournalLine{
			{AccountCode: "1000", Debit: 5_000},
			{AccountCode: "3000", Credit: 5_000},
		})
		require.NoError(t, err)
		assert.Equal(t, "JE-manual-1", posted.ReferenceNo)
		repo.AssertExpectations(t)
	})

	t.Run("should reject an unbalanced entry without persisting anything", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		_, err := svc.PostEntry(ctx, "JE-manual-2", "broken", entryDate, []ledger.JournalLine{
			{AccountCode: "1000", Debit: 5_000},
			{AccountCode: "3000", Credit: 4_000},
		})
		assert.ErrorIs(t, err, apperrors.ErrUnbalancedEntry)
		repo.AssertNotCalled(t, "InsertEntry", mock.Anything, mock.Anything)
	})
}

func TestGetEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("should clamp the limit to sane bounds", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		repo.On("ListEntries", ctx, 100).Return([]ledger.JournalEntry{}, nil)

		_, err := svc.GetEntries(ctx, 0)
		require.NoError(t, err)
		_, err = svc.GetEntries(ctx, 10_000)
		require.NoError(t, err)
		repo.AssertNumberOfCalls(t, "ListEntries", 2)
	})

	t.Run("should pass through an explicit limit", func(t *testing.T) {
		repo := new(MockLedgerRepository)
		svc := newTestLedgerService(repo)

		repo.On("ListEntries", ctx, 25).Return([]ledger.JournalEntry{{ID: 1}}, nil)

		entries, err := svc.GetEntries(ctx, 25)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
