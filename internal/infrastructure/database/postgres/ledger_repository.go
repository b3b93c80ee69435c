package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/ledger"
	"lending-engine/internal/infrastructure/monitoring"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

type LedgerRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewLedgerRepository(db DBPool, logger *slog.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger.With("component", "LedgerRepository")}
}

func (r *LedgerRepository) CreateAccount(ctx context.Context, account *ledger.GLAccount) (*ledger.GLAccount, error) {
	sql := `
        INSERT INTO gl_accounts (code, name, account_type, created_at)
        VALUES ($1, $2, $3, NOW())
        RETURNING id, code, name, account_type, created_at`

	var created ledger.GLAccount
	err := r.db.QueryRow(ctx, sql, account.Code, account.Name, account.Type).Scan(
		&created.ID, &created.Code, &created.Name, &created.Type, &created.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert GL account", "code", account.Code, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	r.logger.InfoContext(ctx, "GL account created in DB", "code", created.Code)
	return &created, nil
}

func (r *LedgerRepository) GetAccountByCode(ctx context.Context, code string) (*ledger.GLAccount, error) {
	query := `SELECT id, code, name, account_type, created_at FROM gl_accounts WHERE code = $1`

	var account ledger.GLAccount
	err := r.db.QueryRow(ctx, query, code).Scan(
		&account.ID, &account.Code, &account.Name, &account.Type, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: GL account '%s'", apperrors.ErrNotFound, code)
		}
		r.logger.ErrorContext(ctx, "Failed to get GL account", "code", code, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	return &account, nil
}

func (r *LedgerRepository) ListAccounts(ctx context.Context) ([]ledger.GLAccount, error) {
	query := `SELECT id, code, name, account_type, created_at FROM gl_accounts ORDER BY code ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query GL accounts", "error", err)
		return nil, translateDBError(err, r.logger)
	}
	defer rows.Close()

	accounts := make([]ledger.GLAccount, 0)
	for rows.Next() {
		var account ledger.GLAccount
		if err := rows.Scan(&account.ID, &account.Code, &account.Name, &account.Type, &account.CreatedAt); err != nil {
			return nil, translateDBError(err, r.logger)
		}
		accounts = append(accounts, account)
	}
	if err = rows.Err(); err != nil {
		return nil, translateDBError(err, r.logger)
	}
	return accounts, nil
}

func (r *LedgerRepository) InsertEntry(ctx context.Context, entry *ledger.JournalEntry) (*ledger.JournalEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer func() {
		rollbackErr := tx.Rollback(ctx)
		if rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			r.logger.ErrorContext(ctx, "Failed to rollback entry transaction", "error", rollbackErr)
		}
	}()

	posted, err := r.InsertEntryInTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit journal entry", "reference_no", entry.ReferenceNo, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	return posted, nil
}

// InsertEntryInTx writes the entry header and all lines inside the caller's
// transaction; either every line lands or none do.
func (r *LedgerRepository) InsertEntryInTx(ctx context.Context, tx pgx.Tx, entry *ledger.JournalEntry) (*ledger.JournalEntry, error) {
	entrySQL := `
        INSERT INTO journal_entries (reference_no, description, entry_date, created_at)
        VALUES ($1, $2, $3, NOW())
        RETURNING id, reference_no, description, entry_date, created_at`

	var posted ledger.JournalEntry
	err := tx.QueryRow(ctx, entrySQL, entry.ReferenceNo, entry.Description, entry.EntryDate).Scan(
		&posted.ID, &posted.ReferenceNo, &posted.Description, &posted.EntryDate, &posted.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert journal entry", "reference_no", entry.ReferenceNo, "error", err)
		return nil, translateDBError(err, r.logger)
	}

	lineSQL := `
        INSERT INTO journal_lines (entry_id, account_code, debit, credit, description)
        VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, line := range entry.Lines {
		batch.Queue(lineSQL, posted.ID, line.AccountCode, line.Debit, line.Credit, line.Description)
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < len(entry.Lines); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.logger.ErrorContext(ctx, "Failed executing journal line batch insert", "error", err, "line_index", i, "reference_no", entry.ReferenceNo)
			return nil, fmt.Errorf("%w: failed inserting journal line %d: %w", apperrors.ErrDatabase, i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		r.logger.ErrorContext(ctx, "Failed closing journal line batch results", "error", err, "reference_no", entry.ReferenceNo)
		return nil, fmt.Errorf("%w: closing batch results failed: %w", apperrors.ErrDatabase, err)
	}

	posted.Lines = make([]ledger.JournalLine, len(entry.Lines))
	copy(posted.Lines, entry.Lines)
	for i := range posted.Lines {
		posted.Lines[i].EntryID = posted.ID
	}
	return &posted, nil
}

func (r *LedgerRepository) ListEntries(ctx context.Context, limit int) ([]ledger.JournalEntry, error) {
	query := `
        SELECT e.id, e.reference_no, e.description, e.entry_date, e.created_at,
               l.id, l.entry_id, l.account_code, l.debit, l.credit, l.description
        FROM journal_entries e
        JOIN journal_lines l ON l.entry_id = e.id
        WHERE e.id IN (SELECT id FROM journal_entries ORDER BY created_at DESC LIMIT $1)
        ORDER BY e.created_at DESC, l.id ASC`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query journal entries", "error", err)
		return nil, translateDBError(err, r.logger)
	}
	defer rows.Close()

	entries := make([]ledger.JournalEntry, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var e ledger.JournalEntry
		var line ledger.JournalLine
		err := rows.Scan(
			&e.ID, &e.ReferenceNo, &e.Description, &e.EntryDate, &e.CreatedAt,
			&line.ID, &line.EntryID, &line.AccountCode, &line.Debit, &line.Credit, &line.Description,
		)
		if err != nil {
			return nil, translateDBError(err, r.logger)
		}
		pos, seen := index[e.ID]
		if !seen {
			entries = append(entries, e)
			pos = len(entries) - 1
			index[e.ID] = pos
		}
		entries[pos].Lines = append(entries[pos].Lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, translateDBError(err, r.logger)
	}
	return entries, nil
}

func (r *LedgerRepository) SumLinesByAccount(ctx context.Context, accountCode string) (ledger.Money, ledger.Money, error) {
	query := `
        SELECT COALESCE(SUM(debit), 0.00), COALESCE(SUM(credit), 0.00)
        FROM journal_lines
        WHERE account_code = $1`
	status := "success"
	startTime := time.Now()

	var debits, credits ledger.Money
	err := r.db.QueryRow(ctx, query, accountCode).Scan(&debits, &credits)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("SumLinesByAccount", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to sum journal lines", "account_code", accountCode, "error", err)
		return 0, 0, translateDBError(err, r.logger)
	}
	return debits, credits, nil
}
