package loan

import (
	"sort"
	"time"

	"lending-engine/internal/pkg/apperrors"
)

// BucketSplit carries how much of a payment landed in each waterfall bucket.
type BucketSplit struct {
	Penalty   Money
	Interest  Money
	Principal Money
}

func (b BucketSplit) Total() Money {
	return roundTo(b.Penalty+b.Interest+b.Principal, 2)
}

// AllocationResult is the outcome of running a payment through the
// waterfall: the mutated copies of every installment the payment touched,
// the bucket split of the applied amount, and whatever was left over once
// every due was covered.
type AllocationResult struct {
	Touched []Installment
	Applied BucketSplit
	Surplus Money
}

// Allocate runs amount through the waterfall over the given installments:
// oldest unpaid installment first, and within an installment penalty before
// interest before principal. A bucket is filled completely before the next
// one sees a cent, and an installment is settled completely before the next
// installment is touched.
//
// The input slice is not modified; updated copies of touched installments
// are returned. Installments already settled are skipped.
func Allocate(installments []Installment, amount Money, paymentDate time.Time) (*AllocationResult, error) {
	if amount <= 0 {
		return nil, apperrors.NewValidationError("amount", "payment amount must be greater than zero")
	}

	ordered := make([]Installment, len(installments))
	copy(ordered, installments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	result := &AllocationResult{}
	remaining := roundTo(amount, 2)

	for idx := range ordered {
		if remaining <= 0 {
			break
		}
		inst := ordered[idx]
		if inst.Settled() {
			continue
		}

		applied := Money(0)
		applied += fill(&inst.PenaltyPaid, inst.PenaltyDue, &remaining, &result.Applied.Penalty)
		applied += fill(&inst.InterestPaid, inst.InterestDue, &remaining, &result.Applied.Interest)
		applied += fill(&inst.PrincipalPaid, inst.PrincipalDue, &remaining, &result.Applied.Principal)

		if applied <= 0 {
			continue
		}
		if inst.PaymentDate == nil {
			stamped := paymentDate
			inst.PaymentDate = &stamped
		}
		if inst.Settled() {
			inst.Status = InstallmentPaid
		} else {
			inst.Status = InstallmentPartial
		}
		inst.UpdatedAt = time.Now()
		result.Touched = append(result.Touched, inst)
	}

	result.Surplus = roundTo(remaining, 2)
	return result, nil
}

// fill pours from remaining into a single bucket up to its due amount and
// returns how much moved.
func fill(paid *Money, due Money, remaining *Money, bucketTotal *Money) Money {
	open := roundTo(due-*paid, 2)
	if open <= 0 || *remaining <= 0 {
		return 0
	}
	take := open
	if *remaining < open {
		take = *remaining
	}
	take = roundTo(take, 2)
	*paid = roundTo(*paid+take, 2)
	*remaining = roundTo(*remaining-take, 2)
	*bucketTotal = roundTo(*bucketTotal+take, 2)
	return take
}
