package loan

import (
	"fmt"
	"math"
	"time"

	"lending-engine/internal/pkg/apperrors"
)

type Money = float64

type AmortizationMethod string

const (
	MethodDecliningBalance AmortizationMethod = "declining_balance"
	MethodFlatRate         AmortizationMethod = "flat_rate"
	MethodBalloonPayment   AmortizationMethod = "balloon_payment"
	// MethodInterestOnly computes the same schedule as MethodBalloonPayment.
	// It stays a separate method name so product catalogs can distinguish them.
	MethodInterestOnly AmortizationMethod = "interest_only"
)

func (m AmortizationMethod) Valid() bool {
	switch m {
	case MethodDecliningBalance, MethodFlatRate, MethodBalloonPayment, MethodInterestOnly:
		return true
	}
	return false
}

type LoanStatus string

const (
	StatusDraft      LoanStatus = "draft"
	StatusSubmitted  LoanStatus = "submitted"
	StatusReviewing  LoanStatus = "reviewing"
	StatusApproved   LoanStatus = "approved"
	StatusRejected   LoanStatus = "rejected"
	StatusActive     LoanStatus = "active"
	StatusPaid       LoanStatus = "paid"
	StatusDefaulted  LoanStatus = "defaulted"
	StatusWrittenOff LoanStatus = "written_off"
)

// allowedTransitions is the full lifecycle graph. rejected, paid, defaulted
// and written_off are terminal and therefore absent as sources.
var allowedTransitions = map[LoanStatus][]LoanStatus{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusReviewing},
	StatusReviewing: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusActive},
	StatusActive:    {StatusPaid, StatusDefaulted, StatusWrittenOff},
}

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// LoanProduct is an immutable lending template. Loans reference it but never
// mutate it.
type LoanProduct struct {
	ID                int64
	Name              string
	AnnualRatePercent Money
	MinPrincipal      Money
	MaxPrincipal      Money
	MinTermMonths     int
	MaxTermMonths     int
	CreatedAt         time.Time
}

type Loan struct {
	ID                int64
	BorrowerID        int64
	ProductID         int64
	Principal         Money
	ApprovedPrincipal *Money
	ApprovedRate      *Money
	TermMonths        int
	Method            AmortizationMethod
	Status            LoanStatus
	RejectReason      string
	WriteOffReason    string
	CreatedAt         time.Time
	DisbursedAt       *time.Time
	UpdatedAt         time.Time
	Installments      []Installment
}

type Installment struct {
	ID            int64
	LoanID        int64
	Number        int
	DueDate       time.Time
	PrincipalDue  Money
	InterestDue   Money
	PenaltyDue    Money
	PrincipalPaid Money
	InterestPaid  Money
	PenaltyPaid   Money
	Status        InstallmentStatus
	PaymentDate   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type TransactionType string

const (
	TransactionDisbursement TransactionType = "disbursement"
	TransactionRepayment    TransactionType = "repayment"
)

// Transaction is the loan-level audit record for every money-moving event,
// linked to the balanced journal entry that recorded it. Append-only.
type Transaction struct {
	ID              string
	LoanID          int64
	Type            TransactionType
	Amount          Money
	JournalEntryRef string
	Description     string
	CreatedAt       time.Time
}

// NewLoan builds a draft loan against a product. Principal and term must fall
// inside the product's configured bounds.
func NewLoan(borrowerID int64, product *LoanProduct, principal Money, termMonths int, method AmortizationMethod) (*Loan, error) {
	if product == nil {
		return nil, fmt.Errorf("%w: loan product is required", apperrors.ErrValidation)
	}
	if principal <= 0 {
		return nil, apperrors.NewValidationError("principal", "must be greater than zero")
	}
	if principal < product.MinPrincipal || principal > product.MaxPrincipal {
		return nil, apperrors.NewValidationError("principal",
			fmt.Sprintf("must be between %.2f and %.2f for product '%s'", product.MinPrincipal, product.MaxPrincipal, product.Name))
	}
	if termMonths < product.MinTermMonths || termMonths > product.MaxTermMonths {
		return nil, apperrors.NewValidationError("termMonths",
			fmt.Sprintf("must be between %d and %d for product '%s'", product.MinTermMonths, product.MaxTermMonths, product.Name))
	}
	if !method.Valid() {
		return nil, apperrors.NewValidationError("method", fmt.Sprintf("unknown amortization method '%s'", method))
	}

	now := time.Now()
	return &Loan{
		BorrowerID: borrowerID,
		ProductID:  product.ID,
		Principal:  principal,
		TermMonths: termMonths,
		Method:     method,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (l *Loan) CanTransition(next LoanStatus) bool {
	for _, allowed := range allowedTransitions[l.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the loan to the next status or fails without mutating
// anything, naming current and attempted states.
func (l *Loan) TransitionTo(next LoanStatus) error {
	if !l.CanTransition(next) {
		return apperrors.NewInvalidTransitionError(string(l.Status), string(next))
	}
	l.Status = next
	l.UpdatedAt = time.Now()
	return nil
}

// Approve applies the reviewing -> approved transition with optional
// principal and rate overrides. Omitted overrides default to the requested
// principal and the product rate. Overrides above the product maximum are
// allowed but remain the caller's policy decision.
func (l *Loan) Approve(product *LoanProduct, approvedPrincipal, approvedRate *Money) error {
	principal := l.Principal
	if approvedPrincipal != nil {
		principal = *approvedPrincipal
	}
	rate := product.AnnualRatePercent
	if approvedRate != nil {
		rate = *approvedRate
	}
	if principal <= 0 {
		return apperrors.NewValidationError("approvedPrincipal", "must be greater than zero")
	}
	if rate < 0 {
		return apperrors.NewValidationError("approvedRate", "must not be negative")
	}

	if err := l.TransitionTo(StatusApproved); err != nil {
		return err
	}
	l.ApprovedPrincipal = &principal
	l.ApprovedRate = &rate
	return nil
}

// Reject applies reviewing -> rejected. A reason is mandatory and stored.
func (l *Loan) Reject(reason string) error {
	if reason == "" {
		return apperrors.NewValidationError("reason", "rejection reason is required")
	}
	if err := l.TransitionTo(StatusRejected); err != nil {
		return err
	}
	l.RejectReason = reason
	return nil
}

// TotalDue is the sum of the installment's three buckets.
func (i *Installment) TotalDue() Money {
	return roundTo(i.PenaltyDue+i.InterestDue+i.PrincipalDue, 2)
}

func (i *Installment) TotalPaid() Money {
	return roundTo(i.PenaltyPaid+i.InterestPaid+i.PrincipalPaid, 2)
}

// Outstanding is what remains unpaid across all three buckets.
func (i *Installment) Outstanding() Money {
	return roundTo(i.TotalDue()-i.TotalPaid(), 2)
}

// Settled reports whether every bucket is paid in full, to the cent.
func (i *Installment) Settled() bool {
	return settledAmount(i.PenaltyPaid, i.PenaltyDue) &&
		settledAmount(i.InterestPaid, i.InterestDue) &&
		settledAmount(i.PrincipalPaid, i.PrincipalDue)
}

func settledAmount(paid, due Money) bool {
	return math.Abs(due-paid) < centTolerance
}

// centTolerance covers float comparison noise below a cent.
const centTolerance = 0.005

func roundTo(n Money, decimals int) Money {
	pow := math.Pow(10, float64(decimals))
	return math.Round(n*pow) / pow
}
