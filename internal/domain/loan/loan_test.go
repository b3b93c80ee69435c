package loan

import (
	"errors"
	"testing"

	"lending-engine/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProduct() *LoanProduct {
	return &LoanProduct{
		ID:                1,
		Name:              "Working Capital",
		AnnualRatePercent: 8,
		MinPrincipal:      5_000,
		MaxPrincipal:      500_000,
		MinTermMonths:     3,
		MaxTermMonths:     36,
	}
}

func TestNewLoan(t *testing.T) {
	t.Run("should create a draft loan inside product bounds", func(t *testing.T) {
		l, err := NewLoan(7, testProduct(), 100_000, 24, MethodDecliningBalance)
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, l.Status)
		assert.Equal(t, int64(7), l.BorrowerID)
		assert.Equal(t, int64(1), l.ProductID)
		assert.Nil(t, l.ApprovedPrincipal)
		assert.Nil(t, l.ApprovedRate)
	})

	t.Run("should reject principal outside product bounds", func(t *testing.T) {
		_, err := NewLoan(7, testProduct(), 1_000, 24, MethodDecliningBalance)
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = NewLoan(7, testProduct(), 600_000, 24, MethodDecliningBalance)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("should reject term outside product bounds", func(t *testing.T) {
		_, err := NewLoan(7, testProduct(), 100_000, 2, MethodDecliningBalance)
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = NewLoan(7, testProduct(), 100_000, 48, MethodDecliningBalance)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("should reject an unknown method and a missing product", func(t *testing.T) {
		_, err := NewLoan(7, testProduct(), 100_000, 24, AmortizationMethod("bullet"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = NewLoan(7, nil, 100_000, 24, MethodDecliningBalance)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestLoanTransitions(t *testing.T) {
	t.Run("should walk the happy path to paid", func(t *testing.T) {
		l := &Loan{Status: StatusDraft}
		for _, next := range []LoanStatus{StatusSubmitted, StatusReviewing, StatusApproved, StatusActive, StatusPaid} {
			require.NoError(t, l.TransitionTo(next))
			assert.Equal(t, next, l.Status)
		}
	})

	t.Run("should reject skipping states", func(t *testing.T) {
		l := &Loan{Status: StatusDraft}
		err := l.TransitionTo(StatusActive)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
		assert.Equal(t, StatusDraft, l.Status, "failed transition must not mutate the loan")

		var transitionErr *apperrors.InvalidTransitionError
		require.True(t, errors.As(err, &transitionErr))
		assert.Equal(t, "draft", transitionErr.From)
		assert.Equal(t, "active", transitionErr.To)
	})

	t.Run("terminal states should have no way out", func(t *testing.T) {
		targets := []LoanStatus{StatusDraft, StatusSubmitted, StatusReviewing, StatusApproved,
			StatusRejected, StatusActive, StatusPaid, StatusDefaulted, StatusWrittenOff}

		for _, terminal := range []LoanStatus{StatusRejected, StatusPaid, StatusDefaulted, StatusWrittenOff} {
			l := &Loan{Status: terminal}
			for _, next := range targets {
				assert.False(t, l.CanTransition(next), "%s -> %s should not be allowed", terminal, next)
			}
		}
	})

	t.Run("active should branch into paid, defaulted and written off only", func(t *testing.T) {
		l := &Loan{Status: StatusActive}
		assert.True(t, l.CanTransition(StatusPaid))
		assert.True(t, l.CanTransition(StatusDefaulted))
		assert.True(t, l.CanTransition(StatusWrittenOff))
		assert.False(t, l.CanTransition(StatusApproved))
		assert.False(t, l.CanTransition(StatusDraft))
	})
}

func TestLoanApprove(t *testing.T) {
	t.Run("should default to requested principal and product rate", func(t *testing.T) {
		l := &Loan{Status: StatusReviewing, Principal: 100_000}
		require.NoError(t, l.Approve(testProduct(), nil, nil))

		assert.Equal(t, StatusApproved, l.Status)
		require.NotNil(t, l.ApprovedPrincipal)
		require.NotNil(t, l.ApprovedRate)
		assert.Equal(t, Money(100_000), *l.ApprovedPrincipal)
		assert.Equal(t, Money(8), *l.ApprovedRate)
	})

	t.Run("should apply overrides when provided", func(t *testing.T) {
		l := &Loan{Status: StatusReviewing, Principal: 100_000}
		principal, rate := Money(80_000), Money(9.5)
		require.NoError(t, l.Approve(testProduct(), &principal, &rate))

		assert.Equal(t, Money(80_000), *l.ApprovedPrincipal)
		assert.Equal(t, Money(9.5), *l.ApprovedRate)
	})

	t.Run("should fail outside the reviewing state", func(t *testing.T) {
		l := &Loan{Status: StatusDraft, Principal: 100_000}
		err := l.Approve(testProduct(), nil, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
		assert.Nil(t, l.ApprovedPrincipal)
	})

	t.Run("should reject invalid overrides before transitioning", func(t *testing.T) {
		l := &Loan{Status: StatusReviewing, Principal: 100_000}
		bad := Money(-5)
		err := l.Approve(testProduct(), &bad, nil)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Equal(t, StatusReviewing, l.Status)
	})
}

func TestLoanReject(t *testing.T) {
	t.Run("should store the mandatory reason", func(t *testing.T) {
		l := &Loan{Status: StatusReviewing}
		require.NoError(t, l.Reject("insufficient collateral"))
		assert.Equal(t, StatusRejected, l.Status)
		assert.Equal(t, "insufficient collateral", l.RejectReason)
	})

	t.Run("should fail without a reason", func(t *testing.T) {
		l := &Loan{Status: StatusReviewing}
		err := l.Reject("")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Equal(t, StatusReviewing, l.Status)
	})
}

func TestInstallmentSettled(t *testing.T) {
	t.Run("should tolerate sub cent float noise", func(t *testing.T) {
		inst := Installment{PrincipalDue: 100, PrincipalPaid: 99.999, InterestDue: 10, InterestPaid: 10.001}
		assert.True(t, inst.Settled())
	})

	t.Run("should not settle a cent short", func(t *testing.T) {
		inst := Installment{PrincipalDue: 100, PrincipalPaid: 99.99}
		assert.False(t, inst.Settled())
	})

	t.Run("outstanding should cover all three buckets", func(t *testing.T) {
		inst := Installment{PrincipalDue: 800, InterestDue: 150, PenaltyDue: 50, InterestPaid: 100}
		assert.Equal(t, Money(900), inst.Outstanding())
		assert.Equal(t, Money(1000), inst.TotalDue())
		assert.Equal(t, Money(100), inst.TotalPaid())
	})
}
