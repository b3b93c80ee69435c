package ledger

import (
	"fmt"
	"math"
	"time"

	"lending-engine/internal/pkg/apperrors"
)

type Money = float64

type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountIncome    AccountType = "income"
	AccountExpense   AccountType = "expense"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountIncome, AccountExpense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase this account type. Asset and
// expense accounts grow on the debit side; liability, equity and income
// accounts grow on the credit side.
func (t AccountType) DebitNormal() bool {
	return t == AccountAsset || t == AccountExpense
}

// GLAccount is one node in the chart of accounts. Its balance is never
// stored; it is always derived by replaying journal lines.
type GLAccount struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	CreatedAt time.Time
}

// JournalLine is a single debit or credit against one account. Exactly one
// of Debit/Credit is nonzero.
type JournalLine struct {
	ID          int64
	EntryID     int64
	AccountCode string
	Debit       Money
	Credit      Money
	Description string
}

// SignedAmount applies the standard accounting sign convention for the
// owning account's type.
func (l JournalLine) SignedAmount(accountType AccountType) Money {
	if accountType.DebitNormal() {
		return l.Debit - l.Credit
	}
	return l.Credit - l.Debit
}

// JournalEntry is one balanced, immutable posting. Corrections are new
// reversing entries, never edits.
type JournalEntry struct {
	ID          int64
	ReferenceNo string
	Description string
	EntryDate   time.Time
	Lines       []JournalLine
	CreatedAt   time.Time
}

const centTolerance = 0.005

// NewJournalEntry builds an entry and enforces the balance invariant before
// anything can be persisted.
func NewJournalEntry(referenceNo, description string, entryDate time.Time, lines []JournalLine) (*JournalEntry, error) {
	if referenceNo == "" {
		return nil, apperrors.NewValidationError("referenceNo", "reference number is required")
	}
	if entryDate.IsZero() {
		entryDate = time.Now()
	}
	entry := &JournalEntry{
		ReferenceNo: referenceNo,
		Description: description,
		EntryDate:   entryDate,
		Lines:       lines,
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Validate checks the hard ledger invariant: at least one line, every line
// carries exactly one nonzero side and no negative amounts, total debits
// equal total credits, and the entry moves a nonzero amount.
func (e *JournalEntry) Validate() error {
	if len(e.Lines) == 0 {
		return apperrors.NewValidationError("lines", "journal entry requires at least one line")
	}

	var totalDebits, totalCredits Money
	for i, line := range e.Lines {
		if line.AccountCode == "" {
			return apperrors.NewValidationError("lines", fmt.Sprintf("line %d is missing an account code", i+1))
		}
		if line.Debit < 0 || line.Credit < 0 {
			return apperrors.NewValidationError("lines", fmt.Sprintf("line %d has a negative amount", i+1))
		}
		debitSet := line.Debit > 0
		creditSet := line.Credit > 0
		if debitSet == creditSet {
			return apperrors.NewValidationError("lines",
				fmt.Sprintf("line %d must have exactly one of debit or credit set", i+1))
		}
		totalDebits += line.Debit
		totalCredits += line.Credit
	}

	totalDebits = roundTo(totalDebits, 2)
	totalCredits = roundTo(totalCredits, 2)

	if math.Abs(totalDebits-totalCredits) > centTolerance || totalDebits <= 0 {
		return &apperrors.UnbalancedEntryError{
			ReferenceNo:  e.ReferenceNo,
			TotalDebits:  totalDebits,
			TotalCredits: totalCredits,
		}
	}
	return nil
}

// TotalDebits is the entry's debit-side sum, which equals the credit side
// for any entry that passed validation.
func (e *JournalEntry) TotalDebits() Money {
	var total Money
	for _, line := range e.Lines {
		total += line.Debit
	}
	return roundTo(total, 2)
}

func roundTo(n Money, decimals int) Money {
	pow := math.Pow(10, float64(decimals))
	return math.Round(n*pow) / pow
}
