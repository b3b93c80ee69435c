package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	CreateAccount(ctx context.Context, account *GLAccount) (*GLAccount, error)

	GetAccountByCode(ctx context.Context, code string) (*GLAccount, error)

	ListAccounts(ctx context.Context) ([]GLAccount, error)

	// InsertEntry persists the entry header and all lines atomically in its
	// own transaction.
	InsertEntry(ctx context.Context, entry *JournalEntry) (*JournalEntry, error)

	// InsertEntryInTx persists the entry inside a caller-owned transaction so
	// loan operations can post ledger entries atomically with their own
	// writes.
	InsertEntryInTx(ctx context.Context, tx pgx.Tx, entry *JournalEntry) (*JournalEntry, error)

	ListEntries(ctx context.Context, limit int) ([]JournalEntry, error)

	// SumLinesByAccount returns the raw debit and credit totals for an
	// account; sign convention is applied by the caller.
	SumLinesByAccount(ctx context.Context, accountCode string) (debits Money, credits Money, err error)
}
