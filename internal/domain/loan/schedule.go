package loan

import (
	"fmt"
	"math"
	"time"

	"lending-engine/internal/pkg/apperrors"
)

// BuildSchedule produces the full installment table for the given terms. It
// is a pure function: the same inputs always yield the same schedule, so the
// pre-disbursement preview and the persisted post-disbursement schedule are
// provably the same algorithm.
//
// Amounts are rounded to two decimals per period and rounding drift is not
// redistributed across periods; the final installment absorbs whatever is
// left so the principal column always sums to the disbursed principal.
func BuildSchedule(principal, annualRatePercent Money, termMonths int, method AmortizationMethod, anchor time.Time) ([]Installment, error) {
	if principal <= 0 {
		return nil, apperrors.NewValidationError("principal", "must be greater than zero")
	}
	if annualRatePercent < 0 || annualRatePercent > 100 {
		return nil, apperrors.NewValidationError("annualRatePercent", "must be between 0 and 100")
	}
	if termMonths < 1 {
		return nil, apperrors.NewValidationError("termMonths", "must be at least 1")
	}
	if !method.Valid() {
		return nil, apperrors.NewValidationError("method", fmt.Sprintf("unknown amortization method '%s'", method))
	}
	if anchor.IsZero() {
		anchor = time.Now().Truncate(24 * time.Hour)
	}

	monthlyRate := annualRatePercent / 100 / 12

	var schedule []Installment
	switch method {
	case MethodDecliningBalance:
		schedule = decliningBalanceSchedule(principal, monthlyRate, termMonths)
	case MethodFlatRate:
		schedule = flatRateSchedule(principal, monthlyRate, termMonths)
	case MethodBalloonPayment, MethodInterestOnly:
		schedule = interestOnlySchedule(principal, monthlyRate, termMonths)
	}

	for i := range schedule {
		schedule[i].Number = i + 1
		schedule[i].DueDate = addMonthsClamped(anchor, i+1)
		schedule[i].Status = InstallmentPending
	}
	return schedule, nil
}

// decliningBalanceSchedule is the level-payment annuity: each period's
// interest accrues on the remaining balance and the payment stays constant.
// A zero rate degenerates to straight-line principal with no interest.
func decliningBalanceSchedule(principal, monthlyRate Money, termMonths int) []Installment {
	schedule := make([]Installment, 0, termMonths)

	if monthlyRate == 0 {
		return straightLineSchedule(principal, termMonths)
	}

	growth := math.Pow(1+monthlyRate, float64(termMonths))
	payment := principal * monthlyRate * growth / (growth - 1)

	balance := principal
	for period := 1; period <= termMonths; period++ {
		interest := roundTo(balance*monthlyRate, 2)
		principalPart := roundTo(payment-interest, 2)
		if period == termMonths || principalPart > balance {
			// final period clears the balance exactly
			principalPart = roundTo(balance, 2)
		}
		balance = roundTo(balance-principalPart, 2)
		if balance < 0 {
			balance = 0
		}
		schedule = append(schedule, Installment{
			PrincipalDue: principalPart,
			InterestDue:  interest,
		})
	}
	return schedule
}

// flatRateSchedule charges interest on the original principal every period,
// so both components, and therefore the total payment, are constant.
func flatRateSchedule(principal, monthlyRate Money, termMonths int) []Installment {
	schedule := straightLineSchedule(principal, termMonths)
	interest := roundTo(principal*monthlyRate, 2)
	for i := range schedule {
		schedule[i].InterestDue = interest
	}
	return schedule
}

// interestOnlySchedule defers the whole principal to the final period and
// charges interest on the full principal until then.
func interestOnlySchedule(principal, monthlyRate Money, termMonths int) []Installment {
	schedule := make([]Installment, 0, termMonths)
	interest := roundTo(principal*monthlyRate, 2)
	for period := 1; period <= termMonths; period++ {
		entry := Installment{InterestDue: interest}
		if period == termMonths {
			entry.PrincipalDue = roundTo(principal, 2)
		}
		schedule = append(schedule, entry)
	}
	return schedule
}

func straightLineSchedule(principal Money, termMonths int) []Installment {
	schedule := make([]Installment, 0, termMonths)
	monthlyPrincipal := roundTo(principal/Money(termMonths), 2)
	accumulated := Money(0)
	for period := 1; period <= termMonths; period++ {
		part := monthlyPrincipal
		if period == termMonths {
			part = roundTo(principal-accumulated, 2)
		}
		accumulated = roundTo(accumulated+part, 2)
		schedule = append(schedule, Installment{PrincipalDue: part})
	}
	return schedule
}

// addMonthsClamped advances the anchor by whole calendar months, keeping the
// anchor's day-of-month and clamping it to the last day of shorter months:
// Jan 31 + 1 month is Feb 28 (29 in leap years), never Mar 3. This is the one
// rollover rule used everywhere.
func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
