package loan

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CommitTx(ctx context.Context, tx pgx.Tx) error
	RollbackTx(ctx context.Context, tx pgx.Tx) error

	CreateLoan(ctx context.Context, newLoan *Loan) (*Loan, error)
	GetLoanByID(ctx context.Context, loanID int64) (*Loan, error)
	UpdateLoan(ctx context.Context, l *Loan) (*Loan, error)
	GetProductByID(ctx context.Context, productID int64) (*LoanProduct, error)

	// GetLoanForUpdate locks the loan row for the duration of the
	// transaction; it is the per-loan mutual exclusion point for every
	// mutating operation.
	GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*Loan, error)
	UpdateLoanInTx(ctx context.Context, tx pgx.Tx, l *Loan) error

	InsertInstallmentsInTx(ctx context.Context, tx pgx.Tx, loanID int64, installments []Installment) error
	GetScheduleByLoanID(ctx context.Context, loanID int64) ([]Installment, error)
	GetUnpaidInstallmentsForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) ([]Installment, error)
	UpdateInstallmentInTx(ctx context.Context, tx pgx.Tx, installment *Installment) error

	InsertTransactionInTx(ctx context.Context, tx pgx.Tx, txn *Transaction) error
	GetTransactionsByLoanID(ctx context.Context, loanID int64) ([]Transaction, error)

	// MarkOverdueInstallments flags unpaid installments whose due date has
	// passed and returns how many rows changed.
	MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error)

	// GetDefaultCandidateLoanIDs returns active loans whose oldest unpaid
	// installment fell due before the cutoff.
	GetDefaultCandidateLoanIDs(ctx context.Context, cutoff time.Time) ([]int64, error)
}
