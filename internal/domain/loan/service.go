package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/borrower"
	"lending-engine/internal/domain/ledger"
	"lending-engine/internal/event"
	"lending-engine/internal/infrastructure/monitoring"
	"lending-engine/internal/pkg/apperrors"

	"github.com/google/uuid"
)

// OverpaymentPolicy decides what happens to payment surplus once every
// outstanding installment is covered.
type OverpaymentPolicy string

const (
	// OverpaymentReject fails the whole payment with
	// apperrors.ErrInsufficientSchedule before any mutation.
	OverpaymentReject OverpaymentPolicy = "reject"
	// OverpaymentCredit accepts the payment and books the surplus against an
	// overpayment liability account.
	OverpaymentCredit OverpaymentPolicy = "credit"
)

// GLAccounts maps loan processing events to chart-of-account codes. The
// mapping is configuration, not engine logic.
type GLAccounts struct {
	LoansReceivable      string
	Cash                 string
	InterestIncome       string
	PenaltyIncome        string
	LoanLossExpense      string
	OverpaymentLiability string
}

// RepaymentReceipt is everything one accepted payment produced.
type RepaymentReceipt struct {
	Installments []Installment
	Transaction  *Transaction
	Entry        *ledger.JournalEntry
	LoanStatus   LoanStatus
}

type LoanService interface {
	CreateLoan(ctx context.Context, borrowerID, productID int64, principal Money, termMonths int, method AmortizationMethod) (*Loan, error)

	// PreviewSchedule runs the amortization engine without touching any
	// state, anchored at the current date.
	PreviewSchedule(ctx context.Context, principal, annualRatePercent Money, termMonths int, method AmortizationMethod) ([]Installment, error)

	Submit(ctx context.Context, loanID int64) (*Loan, error)
	Review(ctx context.Context, loanID int64) (*Loan, error)
	Approve(ctx context.Context, loanID int64, approvedPrincipal, approvedRate *Money) (*Loan, error)
	Reject(ctx context.Context, loanID int64, reason string) (*Loan, error)
	Disburse(ctx context.Context, loanID int64) (*Loan, error)
	WriteOff(ctx context.Context, loanID int64, reason string) (*Loan, error)

	Repay(ctx context.Context, loanID int64, amount Money, paymentDate time.Time) (*RepaymentReceipt, error)

	GetLoan(ctx context.Context, loanID int64) (*Loan, error)
	GetSchedule(ctx context.Context, loanID int64) ([]Installment, error)
	GetTransactions(ctx context.Context, loanID int64) ([]Transaction, error)

	// MarkDefaulted is invoked by the aging job, not by API callers.
	MarkDefaulted(ctx context.Context, loanID int64) error
}

type loanServiceImpl struct {
	repo              Repository
	borrowerService   borrower.BorrowerService
	ledgerService     ledger.LedgerService
	publisher         event.Publisher
	accounts          GLAccounts
	overpaymentPolicy OverpaymentPolicy
	logger            *slog.Logger
}

func NewLoanService(
	repo Repository,
	borrowerService borrower.BorrowerService,
	ledgerService ledger.LedgerService,
	publisher event.Publisher,
	accounts GLAccounts,
	overpaymentPolicy OverpaymentPolicy,
	logger *slog.Logger,
) LoanService {
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	if overpaymentPolicy != OverpaymentCredit {
		overpaymentPolicy = OverpaymentReject
	}
	return &loanServiceImpl{
		repo:              repo,
		borrowerService:   borrowerService,
		ledgerService:     ledgerService,
		publisher:         publisher,
		accounts:          accounts,
		overpaymentPolicy: overpaymentPolicy,
		logger:            logger.With("component", "LoanService"),
	}
}

func (s *loanServiceImpl) CreateLoan(ctx context.Context, borrowerID, productID int64, principal Money, termMonths int, method AmortizationMethod) (*Loan, error) {
	b, err := s.borrowerService.GetBorrower(ctx, borrowerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: borrower %d not found", apperrors.ErrValidation, borrowerID)
		}
		return nil, fmt.Errorf("failed to verify borrower: %w", err)
	}
	if !b.Active {
		return nil, fmt.Errorf("%w: borrower %d is not active", apperrors.ErrValidation, borrowerID)
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan product %d not found", apperrors.ErrValidation, productID)
		}
		return nil, err
	}

	newLoan, err := NewLoan(borrowerID, product, principal, termMonths, method)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateLoan(ctx, newLoan)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save loan", "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "Loan created", "loan_id", created.ID, "borrower_id", borrowerID, "principal", principal)
	return created, nil
}

func (s *loanServiceImpl) PreviewSchedule(ctx context.Context, principal, annualRatePercent Money, termMonths int, method AmortizationMethod) ([]Installment, error) {
	return BuildSchedule(principal, annualRatePercent, termMonths, method, time.Now())
}

func (s *loanServiceImpl) Submit(ctx context.Context, loanID int64) (*Loan, error) {
	return s.transition(ctx, loanID, StatusSubmitted)
}

func (s *loanServiceImpl) Review(ctx context.Context, loanID int64) (*Loan, error) {
	return s.transition(ctx, loanID, StatusReviewing)
}

func (s *loanServiceImpl) transition(ctx context.Context, loanID int64, next LoanStatus) (*Loan, error) {
	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := l.TransitionTo(next); err != nil {
		s.logger.WarnContext(ctx, "Rejected loan transition", "loan_id", loanID, "to", next, "error", err)
		return nil, err
	}
	updated, err := s.repo.UpdateLoan(ctx, l)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Loan transitioned", "loan_id", loanID, "status", next)
	return updated, nil
}

func (s *loanServiceImpl) Approve(ctx context.Context, loanID int64, approvedPrincipal, approvedRate *Money) (*Loan, error) {
	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	product, err := s.repo.GetProductByID(ctx, l.ProductID)
	if err != nil {
		return nil, err
	}
	if err := l.Approve(product, approvedPrincipal, approvedRate); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateLoan(ctx, l)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Loan approved", "loan_id", loanID,
		"approved_principal", *updated.ApprovedPrincipal, "approved_rate", *updated.ApprovedRate)
	return updated, nil
}

func (s *loanServiceImpl) Reject(ctx context.Context, loanID int64, reason string) (*Loan, error) {
	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := l.Reject(reason); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateLoan(ctx, l)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Loan rejected", "loan_id", loanID, "reason", reason)
	return updated, nil
}

// Disburse moves an approved loan to active in a single transaction:
// generate and persist the installment table, stamp the disbursement time,
// and post the disbursement journal entry. Any failure rolls everything
// back and the loan stays approved.
func (s *loanServiceImpl) Disburse(ctx context.Context, loanID int64) (l *Loan, err error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		} else if err != nil {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	l, err = s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if err = l.TransitionTo(StatusActive); err != nil {
		return nil, err
	}
	if l.ApprovedPrincipal == nil || l.ApprovedRate == nil {
		return nil, fmt.Errorf("%w: loan %d has no approved terms", apperrors.ErrInternalServer, loanID)
	}

	now := time.Now()
	schedule, err := BuildSchedule(*l.ApprovedPrincipal, *l.ApprovedRate, l.TermMonths, l.Method, now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schedule: %w", err)
	}
	if err = s.repo.InsertInstallmentsInTx(ctx, tx, l.ID, schedule); err != nil {
		return nil, err
	}

	l.DisbursedAt = &now
	if err = s.repo.UpdateLoanInTx(ctx, tx, l); err != nil {
		return nil, err
	}

	refNo := newReferenceNo()
	entry, err := ledger.NewJournalEntry(refNo,
		fmt.Sprintf("Disbursement of loan %d", l.ID), now,
		[]ledger.JournalLine{
			{AccountCode: s.accounts.LoansReceivable, Debit: *l.ApprovedPrincipal, Description: "Loan principal receivable"},
			{AccountCode: s.accounts.Cash, Credit: *l.ApprovedPrincipal, Description: "Cash disbursed"},
		})
	if err != nil {
		return nil, err
	}
	postedEntry, err := s.ledgerService.PostEntryInTx(ctx, tx, entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "Disbursement ledger posting failed, rolling back", "loan_id", loanID, "error", err)
		return nil, err
	}

	txn := &Transaction{
		ID:              uuid.NewString(),
		LoanID:          l.ID,
		Type:            TransactionDisbursement,
		Amount:          *l.ApprovedPrincipal,
		JournalEntryRef: postedEntry.ReferenceNo,
		Description:     fmt.Sprintf("Disbursement of %.2f", *l.ApprovedPrincipal),
		CreatedAt:       now,
	}
	if err = s.repo.InsertTransactionInTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: could not commit disbursement: %v", apperrors.ErrInternalServer, err)
	}

	monitoring.RecordDisbursement()
	l.Installments = schedule
	s.logger.InfoContext(ctx, "Loan disbursed", "loan_id", l.ID, "principal", *l.ApprovedPrincipal, "reference_no", refNo)

	if pubErr := s.publisher.PublishLoanDisbursed(ctx, event.LoanDisbursedEvent{
		LoanID:      l.ID,
		BorrowerID:  l.BorrowerID,
		Principal:   *l.ApprovedPrincipal,
		DisbursedAt: now,
	}); pubErr != nil {
		s.logger.WarnContext(ctx, "Failed to publish disbursement event", "loan_id", l.ID, "error", pubErr)
	}
	return l, nil
}

// WriteOff moves an active loan to written_off and posts a loan-loss entry
// for the outstanding principal, atomically.
func (s *loanServiceImpl) WriteOff(ctx context.Context, loanID int64, reason string) (l *Loan, err error) {
	if reason == "" {
		return nil, apperrors.NewValidationError("reason", "write-off reason is required")
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}
	defer func() {
		if err != nil {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	l, err = s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if err = l.TransitionTo(StatusWrittenOff); err != nil {
		return nil, err
	}
	l.WriteOffReason = reason

	unpaid, err := s.repo.GetUnpaidInstallmentsForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	var outstanding Money
	for _, inst := range unpaid {
		outstanding += inst.PrincipalDue - inst.PrincipalPaid
	}
	outstanding = roundTo(outstanding, 2)

	now := time.Now()
	if outstanding > 0 {
		entry, entryErr := ledger.NewJournalEntry(newReferenceNo(),
			fmt.Sprintf("Write-off of loan %d: %s", l.ID, reason), now,
			[]ledger.JournalLine{
				{AccountCode: s.accounts.LoanLossExpense, Debit: outstanding, Description: "Loan loss provision"},
				{AccountCode: s.accounts.LoansReceivable, Credit: outstanding, Description: "Receivable written off"},
			})
		if entryErr != nil {
			err = entryErr
			return nil, err
		}
		if _, err = s.ledgerService.PostEntryInTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err = s.repo.UpdateLoanInTx(ctx, tx, l); err != nil {
		return nil, err
	}
	if err = s.repo.CommitTx(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: could not commit write-off: %v", apperrors.ErrInternalServer, err)
	}

	monitoring.RecordLoanWrittenOff()
	s.logger.InfoContext(ctx, "Loan written off", "loan_id", l.ID, "outstanding_principal", outstanding, "reason", reason)

	if pubErr := s.publisher.PublishLoanWrittenOff(ctx, event.LoanWrittenOffEvent{
		LoanID:    l.ID,
		Amount:    outstanding,
		Reason:    reason,
		Timestamp: now,
	}); pubErr != nil {
		s.logger.WarnContext(ctx, "Failed to publish write-off event", "loan_id", l.ID, "error", pubErr)
	}
	return l, nil
}

// Repay runs one payment through the waterfall under the loan's row lock.
// Installment updates, the transaction record and the journal entry commit
// together or not at all.
func (s *loanServiceImpl) Repay(ctx context.Context, loanID int64, amount Money, paymentDate time.Time) (receipt *RepaymentReceipt, err error) {
	defer func() {
		if err != nil {
			monitoring.RecordPayment(paymentFailureStatus(err))
		}
	}()

	if amount <= 0 {
		err = apperrors.NewValidationError("amount", "payment amount must be greater than zero")
		return nil, err
	}
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		} else if err != nil {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	l, err := s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if l.Status != StatusActive {
		err = fmt.Errorf("%w: loan %d is '%s', repayments require an active loan", apperrors.ErrValidation, loanID, l.Status)
		return nil, err
	}

	unpaid, err := s.repo.GetUnpaidInstallmentsForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}

	allocation, err := Allocate(unpaid, amount, paymentDate)
	if err != nil {
		return nil, err
	}
	if allocation.Surplus > 0 && s.overpaymentPolicy == OverpaymentReject {
		err = fmt.Errorf("%w: payment %.2f exceeds outstanding obligation by %.2f",
			apperrors.ErrInsufficientSchedule, amount, allocation.Surplus)
		return nil, err
	}

	for i := range allocation.Touched {
		if err = s.repo.UpdateInstallmentInTx(ctx, tx, &allocation.Touched[i]); err != nil {
			return nil, err
		}
	}

	entry, err := s.buildRepaymentEntry(l.ID, amount, allocation, paymentDate)
	if err != nil {
		return nil, err
	}
	postedEntry, err := s.ledgerService.PostEntryInTx(ctx, tx, entry)
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:              uuid.NewString(),
		LoanID:          l.ID,
		Type:            TransactionRepayment,
		Amount:          amount,
		JournalEntryRef: postedEntry.ReferenceNo,
		Description:     fmt.Sprintf("Repayment of %.2f", amount),
		CreatedAt:       paymentDate,
	}
	if err = s.repo.InsertTransactionInTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	paidOff := allFullyPaid(unpaid, allocation.Touched)
	if paidOff {
		if err = l.TransitionTo(StatusPaid); err != nil {
			return nil, err
		}
		if err = s.repo.UpdateLoanInTx(ctx, tx, l); err != nil {
			return nil, err
		}
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: could not commit repayment: %v", apperrors.ErrInternalServer, err)
	}

	monitoring.RecordPayment("success")
	s.logger.InfoContext(ctx, "Repayment processed", "loan_id", l.ID, "amount", amount,
		"penalty", allocation.Applied.Penalty, "interest", allocation.Applied.Interest,
		"principal", allocation.Applied.Principal, "surplus", allocation.Surplus, "paid_off", paidOff)

	if pubErr := s.publisher.PublishPaymentReceived(ctx, event.PaymentReceivedEvent{
		LoanID:        l.ID,
		TransactionID: txn.ID,
		Amount:        amount,
		PaymentDate:   paymentDate,
		LoanPaidOff:   paidOff,
	}); pubErr != nil {
		s.logger.WarnContext(ctx, "Failed to publish payment event", "loan_id", l.ID, "error", pubErr)
	}

	return &RepaymentReceipt{
		Installments: allocation.Touched,
		Transaction:  txn,
		Entry:        postedEntry,
		LoanStatus:   l.Status,
	}, nil
}

// buildRepaymentEntry splits the cash debit into penalty-income,
// interest-income and receivable-reduction credits, plus an overpayment
// liability credit when the policy keeps the surplus. Zero buckets get no
// line.
func (s *loanServiceImpl) buildRepaymentEntry(loanID int64, amount Money, allocation *AllocationResult, paymentDate time.Time) (*ledger.JournalEntry, error) {
	lines := []ledger.JournalLine{
		{AccountCode: s.accounts.Cash, Debit: amount, Description: "Repayment received"},
	}
	if allocation.Applied.Penalty > 0 {
		lines = append(lines, ledger.JournalLine{
			AccountCode: s.accounts.PenaltyIncome, Credit: allocation.Applied.Penalty, Description: "Penalty income",
		})
	}
	if allocation.Applied.Interest > 0 {
		lines = append(lines, ledger.JournalLine{
			AccountCode: s.accounts.InterestIncome, Credit: allocation.Applied.Interest, Description: "Interest income",
		})
	}
	if allocation.Applied.Principal > 0 {
		lines = append(lines, ledger.JournalLine{
			AccountCode: s.accounts.LoansReceivable, Credit: allocation.Applied.Principal, Description: "Principal repaid",
		})
	}
	if allocation.Surplus > 0 {
		lines = append(lines, ledger.JournalLine{
			AccountCode: s.accounts.OverpaymentLiability, Credit: allocation.Surplus, Description: "Overpayment credit",
		})
	}
	return ledger.NewJournalEntry(newReferenceNo(),
		fmt.Sprintf("Repayment on loan %d", loanID), paymentDate, lines)
}

// allFullyPaid merges the updated rows over the locked snapshot and reports
// whether anything is still owed.
func allFullyPaid(snapshot, touched []Installment) bool {
	updated := make(map[int]Installment, len(touched))
	for _, inst := range touched {
		updated[inst.Number] = inst
	}
	for _, inst := range snapshot {
		if u, ok := updated[inst.Number]; ok {
			inst = u
		}
		if !inst.Settled() {
			return false
		}
	}
	return true
}

func paymentFailureStatus(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return "failure_validation"
	case errors.Is(err, apperrors.ErrInsufficientSchedule):
		return "failure_overpayment"
	case errors.Is(err, apperrors.ErrConcurrencyConflict):
		return "failure_conflict"
	default:
		return "failure_internal"
	}
}

func (s *loanServiceImpl) GetLoan(ctx context.Context, loanID int64) (*Loan, error) {
	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.DisbursedAt != nil {
		schedule, schedErr := s.repo.GetScheduleByLoanID(ctx, loanID)
		if schedErr != nil {
			s.logger.ErrorContext(ctx, "Failed to load schedule for disbursed loan", "loan_id", loanID, "error", schedErr)
		} else {
			l.Installments = schedule
		}
	}
	return l, nil
}

func (s *loanServiceImpl) GetSchedule(ctx context.Context, loanID int64) ([]Installment, error) {
	l, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.DisbursedAt == nil {
		return nil, fmt.Errorf("%w: loan %d has no persisted schedule before disbursement", apperrors.ErrValidation, loanID)
	}
	return s.repo.GetScheduleByLoanID(ctx, loanID)
}

func (s *loanServiceImpl) GetTransactions(ctx context.Context, loanID int64) ([]Transaction, error) {
	return s.repo.GetTransactionsByLoanID(ctx, loanID)
}

// MarkDefaulted applies the aging job's active -> defaulted transition under
// the loan's row lock. Loans no longer active are skipped silently so the
// job can race repayments safely.
func (s *loanServiceImpl) MarkDefaulted(ctx context.Context, loanID int64) (err error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}
	defer func() {
		if err != nil {
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	l, err := s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return err
	}
	if l.Status != StatusActive {
		_ = s.repo.RollbackTx(ctx, tx)
		return nil
	}
	if err = l.TransitionTo(StatusDefaulted); err != nil {
		return err
	}
	if err = s.repo.UpdateLoanInTx(ctx, tx, l); err != nil {
		return err
	}
	if err = s.repo.CommitTx(ctx, tx); err != nil {
		return fmt.Errorf("%w: could not commit default transition: %v", apperrors.ErrInternalServer, err)
	}

	monitoring.RecordLoanDefaulted()
	s.logger.InfoContext(ctx, "Loan marked defaulted", "loan_id", loanID)
	return nil
}

func newReferenceNo() string {
	return "JE-" + uuid.NewString()
}
