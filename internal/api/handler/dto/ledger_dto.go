package dto

import (
	"fmt"
	"time"

	"lending-engine/internal/domain/ledger"
)

type CreateAccountRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (r *CreateAccountRequest) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("code is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !ledger.AccountType(r.Type).Valid() {
		return fmt.Errorf("unknown account type '%s'", r.Type)
	}
	return nil
}

type JournalLineRequest struct {
	AccountCode string  `json:"accountCode"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description,omitempty"`
}

type PostEntryRequest struct {
	ReferenceNo string               `json:"referenceNo"`
	Description string               `json:"description"`
	EntryDate   string               `json:"entryDate,omitempty"`
	Lines       []JournalLineRequest `json:"lines"`
}

func (r *PostEntryRequest) Validate() error {
	if r.ReferenceNo == "" {
		return fmt.Errorf("referenceNo is required")
	}
	if len(r.Lines) == 0 {
		return fmt.Errorf("at least one journal line is required")
	}
	if r.EntryDate != "" {
		if _, err := time.Parse(time.RFC3339[:10], r.EntryDate); err != nil {
			return fmt.Errorf("invalid entryDate format (use YYYY-MM-DD): %w", err)
		}
	}
	return nil
}

func (r *PostEntryRequest) ToLines() []ledger.JournalLine {
	lines := make([]ledger.JournalLine, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = ledger.JournalLine{
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		}
	}
	return lines
}

type AccountResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

type BalanceResponse struct {
	AccountCode string `json:"accountCode"`
	Balance     string `json:"balance"`
}

type JournalLineResponse struct {
	AccountCode string `json:"accountCode"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description,omitempty"`
}

type JournalEntryResponse struct {
	ReferenceNo string                `json:"referenceNo"`
	Description string                `json:"description"`
	EntryDate   time.Time             `json:"entryDate"`
	Lines       []JournalLineResponse `json:"lines"`
}

func NewAccountResponse(account *ledger.GLAccount) AccountResponse {
	return AccountResponse{
		Code:      account.Code,
		Name:      account.Name,
		Type:      string(account.Type),
		CreatedAt: account.CreatedAt,
	}
}

func NewJournalEntryResponse(entry *ledger.JournalEntry) JournalEntryResponse {
	lines := make([]JournalLineResponse, len(entry.Lines))
	for i, l := range entry.Lines {
		lines[i] = JournalLineResponse{
			AccountCode: l.AccountCode,
			Debit:       formatMoney(l.Debit),
			Credit:      formatMoney(l.Credit),
			Description: l.Description,
		}
	}
	return JournalEntryResponse{
		ReferenceNo: entry.ReferenceNo,
		Description: entry.Description,
		EntryDate:   entry.EntryDate,
		Lines:       lines,
	}
}
