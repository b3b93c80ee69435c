package postgres

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"lending-engine/internal/domain/loan"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pgxmockExpectationsNotMetMsg = "not all pgxmock expectations were met"

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var loanRowColumns = []string{
	"id", "borrower_id", "product_id", "principal", "approved_principal", "approved_rate",
	"term_months", "method", "status", "reject_reason", "write_off_reason",
	"created_at", "disbursed_at", "updated_at",
}

var installmentRowColumns = []string{
	"id", "loan_id", "installment_number", "due_date",
	"principal_due", "interest_due", "penalty_due", "principal_paid", "interest_paid", "penalty_paid",
	"status", "payment_date", "created_at", "updated_at",
}

func setupLoanRepo(t *testing.T) (context.Context, *LoanRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}
	return context.Background(), NewLoanRepository(mockPool, testLogger), mockPool
}

func draftLoanRow(now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(loanRowColumns).AddRow(
		int64(42), int64(7), int64(1), 100_000.0, nil, nil,
		24, loan.MethodDecliningBalance, loan.StatusDraft, "", "",
		now, nil, now,
	)
}

func TestLoanRepositoryCreateLoan(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	newLoan := &loan.Loan{
		BorrowerID: 7,
		ProductID:  1,
		Principal:  100_000,
		TermMonths: 24,
		Method:     loan.MethodDecliningBalance,
		Status:     loan.StatusDraft,
	}

	mockPool.ExpectQuery(regexp.QuoteMeta("INSERT INTO loans")).
		WithArgs(newLoan.BorrowerID, newLoan.ProductID, newLoan.Principal,
			newLoan.TermMonths, newLoan.Method, newLoan.Status).
		WillReturnRows(draftLoanRow(time.Now()))

	created, err := repo.CreateLoan(ctx, newLoan)
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)
	assert.Equal(t, loan.StatusDraft, created.Status)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestLoanRepositoryGetLoanByID(t *testing.T) {
	t.Run("should scan the loan row", func(t *testing.T) {
		ctx, repo, mockPool := setupLoanRepo(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(draftLoanRow(time.Now()))

		l, err := repo.GetLoanByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), l.ID)
		assert.Equal(t, 100_000.0, l.Principal)
		assert.Nil(t, l.ApprovedPrincipal)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("should translate no rows into not found", func(t *testing.T) {
		ctx, repo, mockPool := setupLoanRepo(t)
		defer mockPool.Close()

		mockPool.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1")).
			WithArgs(int64(99)).
			WillReturnRows(pgxmock.NewRows(loanRowColumns))

		_, err := repo.GetLoanByID(ctx, 99)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestLoanRepositoryGetLoanForUpdate(t *testing.T) {
	t.Run("should lock and scan the loan row", func(t *testing.T) {
		ctx, repo, mockPool := setupLoanRepo(t)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1 FOR UPDATE")).
			WithArgs(int64(42)).
			WillReturnRows(draftLoanRow(time.Now()))

		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)

		l, err := repo.GetLoanForUpdate(ctx, tx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), l.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("should translate a serialization failure into a concurrency conflict", func(t *testing.T) {
		ctx, repo, mockPool := setupLoanRepo(t)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1 FOR UPDATE")).
			WithArgs(int64(42)).
			WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})

		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)

		_, err = repo.GetLoanForUpdate(ctx, tx, 42)
		assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
	})

	t.Run("should translate a lock timeout into a concurrency conflict", func(t *testing.T) {
		ctx, repo, mockPool := setupLoanRepo(t)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1 FOR UPDATE")).
			WithArgs(int64(42)).
			WillReturnError(&pgconn.PgError{Code: "55P03", Message: "lock not available"})

		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)

		_, err = repo.GetLoanForUpdate(ctx, tx, 42)
		assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
	})
}

func TestLoanRepositoryUpdateLoanInTx(t *testing.T) {
	t.Run("should update exactly one row", func(t *testing.T) {
		ctx, repo, mockPool := setupLoanRepo(t)
		defer mockPool.Close()

		principal, rate := 100_000.0, 8.0
		l := &loan.Loan{ID: 42, ApprovedPrincipal: &principal, ApprovedRate: &rate, Status: loan.StatusApproved}

		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta("UPDATE loans")).
			WithArgs(l.ApprovedPrincipal, l.ApprovedRate, l.Status,
				l.RejectReason, l.WriteOffReason, l.DisbursedAt, l.ID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)

		require.NoError(t, repo.UpdateLoanInTx(ctx, tx, l))
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("should fail when no row matched", func(t *testing.T) {
		ctx, repo, mockPool := setupLoanRepo(t)
		defer mockPool.Close()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta("UPDATE loans")).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)

		err = repo.UpdateLoanInTx(ctx, tx, &loan.Loan{ID: 99})
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
	})
}

func TestLoanRepositoryInsertInstallmentsInTx(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	due := time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC)
	installments := []loan.Installment{
		{Number: 1, DueDate: due, PrincipalDue: 800, InterestDue: 150, Status: loan.InstallmentPending},
		{Number: 2, DueDate: due.AddDate(0, 1, 0), PrincipalDue: 820, InterestDue: 130, Status: loan.InstallmentPending},
	}

	mockPool.ExpectBegin()
	batch := mockPool.ExpectBatch()
	for _, inst := range installments {
		batch.ExpectExec(regexp.QuoteMeta("INSERT INTO installments")).
			WithArgs(int64(42), inst.Number, inst.DueDate,
				inst.PrincipalDue, inst.InterestDue, inst.PenaltyDue, inst.Status).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	tx, err := mockPool.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.InsertInstallmentsInTx(ctx, tx, 42, installments))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestLoanRepositoryGetUnpaidInstallmentsForUpdate(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	now := time.Now()
	due := time.Date(2026, time.April, 15, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(installmentRowColumns).
		AddRow(int64(1), int64(42), 1, due,
			800.0, 150.0, 0.0, 0.0, 0.0, 0.0,
			loan.InstallmentOverdue, nil, now, now).
		AddRow(int64(2), int64(42), 2, due.AddDate(0, 1, 0),
			820.0, 130.0, 0.0, 0.0, 0.0, 0.0,
			loan.InstallmentPending, nil, now, now)

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta("status != 'paid'")).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	tx, err := mockPool.Begin(ctx)
	require.NoError(t, err)

	unpaid, err := repo.GetUnpaidInstallmentsForUpdate(ctx, tx, 42)
	require.NoError(t, err)
	require.Len(t, unpaid, 2)
	assert.Equal(t, loan.InstallmentOverdue, unpaid[0].Status)
	assert.Equal(t, 2, unpaid[1].Number)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestLoanRepositoryUpdateInstallmentInTx(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	paymentDate := time.Now()
	inst := &loan.Installment{
		ID: 1, LoanID: 42, Number: 1,
		PrincipalPaid: 800, InterestPaid: 150,
		Status: loan.InstallmentPaid, PaymentDate: &paymentDate,
	}

	mockPool.ExpectBegin()
	mockPool.ExpectExec(regexp.QuoteMeta("UPDATE installments")).
		WithArgs(inst.PrincipalPaid, inst.InterestPaid, inst.PenaltyPaid,
			inst.Status, inst.PaymentDate, inst.ID, inst.LoanID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mockPool.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateInstallmentInTx(ctx, tx, inst))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestLoanRepositoryInsertTransactionInTx(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	txn := &loan.Transaction{
		ID:              "f8a7e3d2-1111-2222-3333-444455556666",
		LoanID:          42,
		Type:            loan.TransactionRepayment,
		Amount:          1000,
		JournalEntryRef: "JE-abc",
		Description:     "Repayment of 1000.00",
		CreatedAt:       time.Now(),
	}

	mockPool.ExpectBegin()
	mockPool.ExpectExec(regexp.QuoteMeta("INSERT INTO loan_transactions")).
		WithArgs(txn.ID, txn.LoanID, txn.Type, txn.Amount, txn.JournalEntryRef, txn.Description, txn.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mockPool.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.InsertTransactionInTx(ctx, tx, txn))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestLoanRepositoryMarkOverdueInstallments(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	asOf := time.Date(2026, time.September, 1, 2, 0, 0, 0, time.UTC)

	mockPool.ExpectExec(regexp.QuoteMeta("SET status = 'overdue'")).
		WithArgs(asOf).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	flagged, err := repo.MarkOverdueInstallments(ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), flagged)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestLoanRepositoryGetDefaultCandidateLoanIDs(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	cutoff := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"loan_id"}).AddRow(int64(42)).AddRow(int64(43))

	mockPool.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT i.loan_id")).
		WithArgs(cutoff).
		WillReturnRows(rows)

	ids, err := repo.GetDefaultCandidateLoanIDs(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 43}, ids)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestLoanRepositoryGetProductByID(t *testing.T) {
	ctx, repo, mockPool := setupLoanRepo(t)
	defer mockPool.Close()

	rows := pgxmock.NewRows([]string{
		"id", "name", "annual_rate_percent", "min_principal", "max_principal",
		"min_term_months", "max_term_months", "created_at",
	}).AddRow(int64(1), "Working Capital", 8.0, 5_000.0, 500_000.0, 3, 36, time.Now())

	mockPool.ExpectQuery(regexp.QuoteMeta("FROM loan_products")).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	product, err := repo.GetProductByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Working Capital", product.Name)
	assert.Equal(t, 8.0, product.AnnualRatePercent)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}
