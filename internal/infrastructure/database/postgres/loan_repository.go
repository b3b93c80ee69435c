package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/loan"
	"lending-engine/internal/infrastructure/monitoring"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

const loanColumns = `id, borrower_id, product_id, principal, approved_principal, approved_rate,
        term_months, method, status, reject_reason, write_off_reason, created_at, disbursed_at, updated_at`

const installmentColumns = `id, loan_id, installment_number, due_date,
        principal_due, interest_due, penalty_due, principal_paid, interest_paid, penalty_paid,
        status, payment_date, created_at, updated_at`

type LoanRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewLoanRepository(db DBPool, logger *slog.Logger) *LoanRepository {
	return &LoanRepository{db: db, logger: logger.With("component", "LoanRepository")}
}

func (r *LoanRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return tx, nil
}

func (r *LoanRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return translateDBError(err, r.logger)
	}
	return nil
}

func (r *LoanRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *LoanRepository) CreateLoan(ctx context.Context, newLoan *loan.Loan) (*loan.Loan, error) {
	sql := `
        INSERT INTO loans (borrower_id, product_id, principal, term_months, method, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        RETURNING ` + loanColumns

	created, err := r.scanLoan(r.db.QueryRow(ctx, sql,
		newLoan.BorrowerID, newLoan.ProductID, newLoan.Principal,
		newLoan.TermMonths, newLoan.Method, newLoan.Status,
	))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert loan", "error", err)
		return nil, translateDBError(err, r.logger)
	}
	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", created.ID)
	return created, nil
}

func (r *LoanRepository) GetLoanByID(ctx context.Context, loanID int64) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	status := "success"
	startTime := time.Now()

	l, err := r.scanLoan(r.db.QueryRow(ctx, query, loanID))
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetLoanByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found", "loan_id", loanID)
			return nil, fmt.Errorf("%w: loan %d", apperrors.ErrNotFound, loanID)
		}
		r.logger.ErrorContext(ctx, "Failed to get loan by ID", "loan_id", loanID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	return l, nil
}

func (r *LoanRepository) GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`

	l, err := r.scanLoan(tx.QueryRow(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: loan %d", apperrors.ErrNotFound, loanID)
		}
		r.logger.ErrorContext(ctx, "Failed to lock loan row", "loan_id", loanID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	return l, nil
}

func (r *LoanRepository) UpdateLoan(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	sql := loanUpdateSQL + ` RETURNING ` + loanColumns

	updated, err := r.scanLoan(r.db.QueryRow(ctx, sql, loanUpdateArgs(l)...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: loan %d", apperrors.ErrNotFound, l.ID)
		}
		r.logger.ErrorContext(ctx, "Failed to update loan", "loan_id", l.ID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	return updated, nil
}

func (r *LoanRepository) UpdateLoanInTx(ctx context.Context, tx pgx.Tx, l *loan.Loan) error {
	cmdTag, err := tx.Exec(ctx, loanUpdateSQL, loanUpdateArgs(l)...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan in tx", "loan_id", l.ID, "error", err)
		return translateDBError(err, r.logger)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("%w: loan update affected zero rows", apperrors.ErrDatabase)
	}
	return nil
}

const loanUpdateSQL = `
        UPDATE loans
        SET approved_principal = $1, approved_rate = $2, status = $3,
            reject_reason = $4, write_off_reason = $5, disbursed_at = $6, updated_at = NOW()
        WHERE id = $7`

func loanUpdateArgs(l *loan.Loan) []any {
	return []any{
		l.ApprovedPrincipal, l.ApprovedRate, l.Status,
		l.RejectReason, l.WriteOffReason, l.DisbursedAt, l.ID,
	}
}

func (r *LoanRepository) GetProductByID(ctx context.Context, productID int64) (*loan.LoanProduct, error) {
	query := `
        SELECT id, name, annual_rate_percent, min_principal, max_principal, min_term_months, max_term_months, created_at
        FROM loan_products
        WHERE id = $1`

	var p loan.LoanProduct
	err := r.db.QueryRow(ctx, query, productID).Scan(
		&p.ID, &p.Name, &p.AnnualRatePercent, &p.MinPrincipal, &p.MaxPrincipal,
		&p.MinTermMonths, &p.MaxTermMonths, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: loan product %d", apperrors.ErrNotFound, productID)
		}
		r.logger.ErrorContext(ctx, "Failed to get loan product", "product_id", productID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	return &p, nil
}

func (r *LoanRepository) InsertInstallmentsInTx(ctx context.Context, tx pgx.Tx, loanID int64, installments []loan.Installment) error {
	sql := `
        INSERT INTO installments (loan_id, installment_number, due_date,
            principal_due, interest_due, penalty_due, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	batch := &pgx.Batch{}
	for _, inst := range installments {
		batch.Queue(sql, loanID, inst.Number, inst.DueDate,
			inst.PrincipalDue, inst.InterestDue, inst.PenaltyDue, inst.Status)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < len(installments); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.logger.ErrorContext(ctx, "Failed executing installment batch insert", "error", err, "entry_index", i, "loan_id", loanID)
			return fmt.Errorf("%w: failed inserting installment %d: %w", apperrors.ErrDatabase, i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		r.logger.ErrorContext(ctx, "Failed closing installment batch results", "error", err, "loan_id", loanID)
		return fmt.Errorf("%w: closing batch results failed: %w", apperrors.ErrDatabase, err)
	}
	r.logger.InfoContext(ctx, "Installment schedule created in DB", "loan_id", loanID, "num_entries", len(installments))
	return nil
}

func (r *LoanRepository) GetScheduleByLoanID(ctx context.Context, loanID int64) ([]loan.Installment, error) {
	query := `SELECT ` + installmentColumns + `
        FROM installments
        WHERE loan_id = $1
        ORDER BY installment_number ASC`

	rows, err := r.db.Query(ctx, query, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query installment schedule", "loan_id", loanID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	defer rows.Close()

	return r.collectInstallments(rows, loanID)
}

func (r *LoanRepository) GetUnpaidInstallmentsForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) ([]loan.Installment, error) {
	query := `SELECT ` + installmentColumns + `
        FROM installments
        WHERE loan_id = $1 AND status != 'paid'
        ORDER BY installment_number ASC
        FOR UPDATE`

	rows, err := tx.Query(ctx, query, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to lock unpaid installments", "loan_id", loanID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	defer rows.Close()

	return r.collectInstallments(rows, loanID)
}

func (r *LoanRepository) UpdateInstallmentInTx(ctx context.Context, tx pgx.Tx, inst *loan.Installment) error {
	sql := `
        UPDATE installments
        SET principal_paid = $1, interest_paid = $2, penalty_paid = $3,
            status = $4, payment_date = $5, updated_at = NOW()
        WHERE id = $6 AND loan_id = $7`

	cmdTag, err := tx.Exec(ctx, sql,
		inst.PrincipalPaid, inst.InterestPaid, inst.PenaltyPaid,
		inst.Status, inst.PaymentDate, inst.ID, inst.LoanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update installment", "installment_id", inst.ID, "loan_id", inst.LoanID, "error", err)
		return translateDBError(err, r.logger)
	}
	if cmdTag.RowsAffected() != 1 {
		r.logger.ErrorContext(ctx, "Installment update affected zero rows", "installment_id", inst.ID, "loan_id", inst.LoanID)
		return fmt.Errorf("%w: installment update affected zero rows", apperrors.ErrDatabase)
	}
	return nil
}

func (r *LoanRepository) InsertTransactionInTx(ctx context.Context, tx pgx.Tx, txn *loan.Transaction) error {
	sql := `
        INSERT INTO loan_transactions (id, loan_id, transaction_type, amount, journal_entry_ref, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, sql, txn.ID, txn.LoanID, txn.Type, txn.Amount, txn.JournalEntryRef, txn.Description, txn.CreatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert loan transaction", "loan_id", txn.LoanID, "error", err)
		return translateDBError(err, r.logger)
	}
	return nil
}

func (r *LoanRepository) GetTransactionsByLoanID(ctx context.Context, loanID int64) ([]loan.Transaction, error) {
	query := `
        SELECT id, loan_id, transaction_type, amount, journal_entry_ref, description, created_at
        FROM loan_transactions
        WHERE loan_id = $1
        ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, loanID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query loan transactions", "loan_id", loanID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	defer rows.Close()

	transactions := make([]loan.Transaction, 0)
	for rows.Next() {
		var txn loan.Transaction
		if err := rows.Scan(&txn.ID, &txn.LoanID, &txn.Type, &txn.Amount, &txn.JournalEntryRef, &txn.Description, &txn.CreatedAt); err != nil {
			return nil, translateDBError(err, r.logger)
		}
		transactions = append(transactions, txn)
	}
	if err = rows.Err(); err != nil {
		return nil, translateDBError(err, r.logger)
	}
	return transactions, nil
}

func (r *LoanRepository) MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error) {
	sql := `
        UPDATE installments
        SET status = 'overdue', updated_at = NOW()
        WHERE due_date < $1 AND status IN ('pending', 'partial')`

	cmdTag, err := r.db.Exec(ctx, sql, asOf)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark overdue installments", "error", err)
		return 0, translateDBError(err, r.logger)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *LoanRepository) GetDefaultCandidateLoanIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	query := `
        SELECT DISTINCT i.loan_id
        FROM installments i
        JOIN loans l ON l.id = i.loan_id
        WHERE l.status = 'active' AND i.status != 'paid' AND i.due_date < $1
        ORDER BY i.loan_id`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query default candidates", "error", err)
		return nil, translateDBError(err, r.logger)
	}
	defer rows.Close()

	loanIDs := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, translateDBError(err, r.logger)
		}
		loanIDs = append(loanIDs, id)
	}
	if err = rows.Err(); err != nil {
		return nil, translateDBError(err, r.logger)
	}
	return loanIDs, nil
}

func (r *LoanRepository) scanLoan(row pgx.Row) (*loan.Loan, error) {
	var l loan.Loan
	err := row.Scan(
		&l.ID, &l.BorrowerID, &l.ProductID, &l.Principal, &l.ApprovedPrincipal, &l.ApprovedRate,
		&l.TermMonths, &l.Method, &l.Status, &l.RejectReason, &l.WriteOffReason,
		&l.CreatedAt, &l.DisbursedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LoanRepository) collectInstallments(rows pgx.Rows, loanID int64) ([]loan.Installment, error) {
	schedule := make([]loan.Installment, 0)
	for rows.Next() {
		var inst loan.Installment
		err := rows.Scan(
			&inst.ID, &inst.LoanID, &inst.Number, &inst.DueDate,
			&inst.PrincipalDue, &inst.InterestDue, &inst.PenaltyDue,
			&inst.PrincipalPaid, &inst.InterestPaid, &inst.PenaltyPaid,
			&inst.Status, &inst.PaymentDate, &inst.CreatedAt, &inst.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan installment row", "loan_id", loanID, "error", err)
			return nil, translateDBError(err, r.logger)
		}
		schedule = append(schedule, inst)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating installment rows", "loan_id", loanID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	return schedule, nil
}
