package loan

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumPrincipal(schedule []Installment) Money {
	total := Money(0)
	for _, inst := range schedule {
		total += inst.PrincipalDue
	}
	return roundTo(total, 2)
}

func TestBuildSchedule(t *testing.T) {
	anchor := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	t.Run("should reject invalid inputs", func(t *testing.T) {
		_, err := BuildSchedule(0, 8, 12, MethodDecliningBalance, anchor)
		assert.Error(t, err)

		_, err = BuildSchedule(10_000, -1, 12, MethodDecliningBalance, anchor)
		assert.Error(t, err)

		_, err = BuildSchedule(10_000, 101, 12, MethodDecliningBalance, anchor)
		assert.Error(t, err)

		_, err = BuildSchedule(10_000, 8, 0, MethodDecliningBalance, anchor)
		assert.Error(t, err)

		_, err = BuildSchedule(10_000, 8, 12, AmortizationMethod("bullet"), anchor)
		assert.Error(t, err)
	})

	t.Run("should number installments and set monthly due dates", func(t *testing.T) {
		schedule, err := BuildSchedule(12_000, 10, 6, MethodFlatRate, anchor)
		require.NoError(t, err)
		require.Len(t, schedule, 6)

		for i, inst := range schedule {
			assert.Equal(t, i+1, inst.Number)
			assert.Equal(t, InstallmentPending, inst.Status)
			assert.Equal(t, addMonthsClamped(anchor, i+1), inst.DueDate)
		}
	})

	t.Run("declining balance principal column should sum to the disbursed amount", func(t *testing.T) {
		schedule, err := BuildSchedule(100_000, 8, 24, MethodDecliningBalance, anchor)
		require.NoError(t, err)
		require.Len(t, schedule, 24)

		assert.InDelta(t, 100_000, sumPrincipal(schedule), 0.01)
	})

	t.Run("declining balance should follow the level payment annuity formula", func(t *testing.T) {
		principal, rate, term := Money(100_000), Money(8), 24
		schedule, err := BuildSchedule(principal, rate, term, MethodDecliningBalance, anchor)
		require.NoError(t, err)

		monthlyRate := rate / 100 / 12
		growth := math.Pow(1+monthlyRate, float64(term))
		payment := principal * monthlyRate * growth / (growth - 1)

		for _, inst := range schedule[:term-1] {
			assert.InDelta(t, payment, inst.PrincipalDue+inst.InterestDue, 0.02,
				"installment %d payment drifted from the annuity", inst.Number)
		}

		// interest declines period over period
		for i := 1; i < term; i++ {
			assert.Less(t, schedule[i].InterestDue, schedule[i-1].InterestDue)
		}

		// first period interest accrues on the full principal
		assert.InDelta(t, roundTo(principal*monthlyRate, 2), schedule[0].InterestDue, 0.001)
	})

	t.Run("flat rate should charge constant interest on the original principal", func(t *testing.T) {
		schedule, err := BuildSchedule(12_000, 12, 12, MethodFlatRate, anchor)
		require.NoError(t, err)

		expectedInterest := roundTo(12_000*0.12/12, 2)
		for _, inst := range schedule {
			assert.Equal(t, expectedInterest, inst.InterestDue)
			assert.Equal(t, Money(1000), inst.PrincipalDue)
		}
		assert.InDelta(t, 12_000, sumPrincipal(schedule), 0.01)
	})

	t.Run("balloon payment should defer the whole principal to the final period", func(t *testing.T) {
		schedule, err := BuildSchedule(50_000, 6, 12, MethodBalloonPayment, anchor)
		require.NoError(t, err)
		require.Len(t, schedule, 12)

		expectedInterest := roundTo(50_000*0.06/12, 2)
		for i, inst := range schedule {
			assert.Equal(t, expectedInterest, inst.InterestDue)
			if i < 11 {
				assert.Zero(t, inst.PrincipalDue)
			}
		}
		assert.Equal(t, Money(50_000), schedule[11].PrincipalDue)
	})

	t.Run("interest only should produce the same cash flows as balloon payment", func(t *testing.T) {
		balloon, err := BuildSchedule(50_000, 6, 12, MethodBalloonPayment, anchor)
		require.NoError(t, err)
		interestOnly, err := BuildSchedule(50_000, 6, 12, MethodInterestOnly, anchor)
		require.NoError(t, err)

		for i := range balloon {
			assert.Equal(t, balloon[i].PrincipalDue, interestOnly[i].PrincipalDue)
			assert.Equal(t, balloon[i].InterestDue, interestOnly[i].InterestDue)
		}
	})

	t.Run("zero rate declining balance should degenerate to straight line", func(t *testing.T) {
		schedule, err := BuildSchedule(9_000, 0, 4, MethodDecliningBalance, anchor)
		require.NoError(t, err)
		require.Len(t, schedule, 4)

		for _, inst := range schedule {
			assert.Zero(t, inst.InterestDue)
			assert.Equal(t, Money(2250), inst.PrincipalDue)
		}
	})

	t.Run("final straight line installment should absorb rounding drift", func(t *testing.T) {
		schedule, err := BuildSchedule(1_000.03, 0, 3, MethodFlatRate, anchor)
		require.NoError(t, err)

		assert.InDelta(t, 1_000.03, sumPrincipal(schedule), 0.001)
		assert.NotEqual(t, schedule[0].PrincipalDue, schedule[2].PrincipalDue)
	})

	t.Run("should be deterministic for identical inputs", func(t *testing.T) {
		first, err := BuildSchedule(75_000, 9.5, 18, MethodDecliningBalance, anchor)
		require.NoError(t, err)
		second, err := BuildSchedule(75_000, 9.5, 18, MethodDecliningBalance, anchor)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestAddMonthsClamped(t *testing.T) {
	t.Run("should keep the day when the target month is long enough", func(t *testing.T) {
		anchor := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC), addMonthsClamped(anchor, 1))
		assert.Equal(t, time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC), addMonthsClamped(anchor, 6))
	})

	t.Run("should clamp Jan 31 to the end of February", func(t *testing.T) {
		anchor := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), addMonthsClamped(anchor, 1))
	})

	t.Run("should clamp to Feb 29 in leap years", func(t *testing.T) {
		anchor := time.Date(2028, time.January, 31, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC), addMonthsClamped(anchor, 1))
	})

	t.Run("should not drift after passing a short month", func(t *testing.T) {
		anchor := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), addMonthsClamped(anchor, 2))
		assert.Equal(t, time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC), addMonthsClamped(anchor, 3))
	})

	t.Run("should cross year boundaries", func(t *testing.T) {
		anchor := time.Date(2026, time.November, 30, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2027, time.January, 30, 0, 0, 0, 0, time.UTC), addMonthsClamped(anchor, 2))
	})
}
