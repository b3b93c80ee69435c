package dto

import (
	"fmt"
	"strconv"
	"time"

	"lending-engine/internal/domain/loan"

	"github.com/shopspring/decimal"
)

type CreateLoanRequest struct {
	BorrowerID int64   `json:"borrowerId"`
	ProductID  int64   `json:"productId"`
	Principal  float64 `json:"principal"`
	TermMonths int     `json:"termMonths"`
	Method     string  `json:"method"`
}

func (r *CreateLoanRequest) Validate() error {
	if r.BorrowerID <= 0 {
		return fmt.Errorf("borrowerId must be positive")
	}
	if r.ProductID <= 0 {
		return fmt.Errorf("productId must be positive")
	}
	if r.Principal <= 0 {
		return fmt.Errorf("principal must be greater than zero")
	}
	if r.TermMonths <= 0 {
		return fmt.Errorf("termMonths must be positive")
	}
	if !loan.AmortizationMethod(r.Method).Valid() {
		return fmt.Errorf("unknown amortization method '%s'", r.Method)
	}
	return nil
}

type PreviewScheduleRequest struct {
	Principal         float64 `json:"principal"`
	AnnualRatePercent float64 `json:"annualRatePercent"`
	TermMonths        int     `json:"termMonths"`
	Method            string  `json:"method"`
}

func (r *PreviewScheduleRequest) Validate() error {
	if r.Principal <= 0 {
		return fmt.Errorf("principal must be greater than zero")
	}
	if r.AnnualRatePercent < 0 || r.AnnualRatePercent > 100 {
		return fmt.Errorf("annualRatePercent must be between 0 and 100")
	}
	if r.TermMonths <= 0 {
		return fmt.Errorf("termMonths must be positive")
	}
	if !loan.AmortizationMethod(r.Method).Valid() {
		return fmt.Errorf("unknown amortization method '%s'", r.Method)
	}
	return nil
}

type ApproveLoanRequest struct {
	ApprovedPrincipal *float64 `json:"approvedPrincipal,omitempty"`
	ApprovedRate      *float64 `json:"approvedRate,omitempty"`
}

func (r *ApproveLoanRequest) Validate() error {
	if r.ApprovedPrincipal != nil && *r.ApprovedPrincipal <= 0 {
		return fmt.Errorf("approvedPrincipal must be greater than zero")
	}
	if r.ApprovedRate != nil && *r.ApprovedRate < 0 {
		return fmt.Errorf("approvedRate must not be negative")
	}
	return nil
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r *ReasonRequest) Validate() error {
	if r.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

type RepayLoanRequest struct {
	Amount      string `json:"amount"`
	PaymentDate string `json:"paymentDate,omitempty"`
}

func (r *RepayLoanRequest) Validate() error {
	d, err := decimal.NewFromString(r.Amount)
	if err != nil || r.Amount == "" {
		return fmt.Errorf("invalid payment amount: %w", err)
	}
	if !d.IsPositive() {
		return fmt.Errorf("payment amount must be greater than zero")
	}
	if r.PaymentDate != "" {
		if _, err := time.Parse(time.RFC3339[:10], r.PaymentDate); err != nil {
			return fmt.Errorf("invalid paymentDate format (use YYYY-MM-DD): %w", err)
		}
	}
	return nil
}

type LoanResponse struct {
	ID                string                `json:"id"`
	BorrowerID        string                `json:"borrowerId"`
	ProductID         string                `json:"productId"`
	Principal         string                `json:"principal"`
	ApprovedPrincipal *string               `json:"approvedPrincipal,omitempty"`
	ApprovedRate      *string               `json:"approvedRate,omitempty"`
	TermMonths        int                   `json:"termMonths"`
	Method            string                `json:"method"`
	Status            string                `json:"status"`
	RejectReason      string                `json:"rejectReason,omitempty"`
	WriteOffReason    string                `json:"writeOffReason,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	DisbursedAt       *time.Time            `json:"disbursedAt,omitempty"`
	Installments      []InstallmentResponse `json:"installments,omitempty"`
}

type InstallmentResponse struct {
	Number        int        `json:"number"`
	DueDate       string     `json:"dueDate"`
	PrincipalDue  string     `json:"principalDue"`
	InterestDue   string     `json:"interestDue"`
	PenaltyDue    string     `json:"penaltyDue"`
	PrincipalPaid string     `json:"principalPaid"`
	InterestPaid  string     `json:"interestPaid"`
	PenaltyPaid   string     `json:"penaltyPaid"`
	Status        string     `json:"status"`
	PaymentDate   *time.Time `json:"paymentDate,omitempty"`
}

type TransactionResponse struct {
	ID              string    `json:"id"`
	LoanID          string    `json:"loanId"`
	Type            string    `json:"type"`
	Amount          string    `json:"amount"`
	JournalEntryRef string    `json:"journalEntryRef"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"createdAt"`
}

type RepaymentReceiptResponse struct {
	LoanStatus   string                `json:"loanStatus"`
	Installments []InstallmentResponse `json:"installments"`
	Transaction  TransactionResponse   `json:"transaction"`
	JournalEntry JournalEntryResponse  `json:"journalEntry"`
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type TokenRequest struct {
	Username string `json:"username"`
}

func formatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func NewLoanResponse(l *loan.Loan) LoanResponse {
	resp := LoanResponse{
		ID:             strconv.FormatInt(l.ID, 10),
		BorrowerID:     strconv.FormatInt(l.BorrowerID, 10),
		ProductID:      strconv.FormatInt(l.ProductID, 10),
		Principal:      formatMoney(l.Principal),
		TermMonths:     l.TermMonths,
		Method:         string(l.Method),
		Status:         string(l.Status),
		RejectReason:   l.RejectReason,
		WriteOffReason: l.WriteOffReason,
		CreatedAt:      l.CreatedAt,
		DisbursedAt:    l.DisbursedAt,
	}
	if l.ApprovedPrincipal != nil {
		s := formatMoney(*l.ApprovedPrincipal)
		resp.ApprovedPrincipal = &s
	}
	if l.ApprovedRate != nil {
		s := decimal.NewFromFloat(*l.ApprovedRate).String()
		resp.ApprovedRate = &s
	}
	if len(l.Installments) > 0 {
		resp.Installments = NewInstallmentResponses(l.Installments)
	}
	return resp
}

func NewInstallmentResponses(installments []loan.Installment) []InstallmentResponse {
	out := make([]InstallmentResponse, len(installments))
	for i, inst := range installments {
		out[i] = InstallmentResponse{
			Number:        inst.Number,
			DueDate:       inst.DueDate.Format(time.RFC3339[:10]),
			PrincipalDue:  formatMoney(inst.PrincipalDue),
			InterestDue:   formatMoney(inst.InterestDue),
			PenaltyDue:    formatMoney(inst.PenaltyDue),
			PrincipalPaid: formatMoney(inst.PrincipalPaid),
			InterestPaid:  formatMoney(inst.InterestPaid),
			PenaltyPaid:   formatMoney(inst.PenaltyPaid),
			Status:        string(inst.Status),
			PaymentDate:   inst.PaymentDate,
		}
	}
	return out
}

func NewTransactionResponse(txn *loan.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:              txn.ID,
		LoanID:          strconv.FormatInt(txn.LoanID, 10),
		Type:            string(txn.Type),
		Amount:          formatMoney(txn.Amount),
		JournalEntryRef: txn.JournalEntryRef,
		Description:     txn.Description,
		CreatedAt:       txn.CreatedAt,
	}
}

func NewRepaymentReceiptResponse(receipt *loan.RepaymentReceipt) RepaymentReceiptResponse {
	return RepaymentReceiptResponse{
		LoanStatus:   string(receipt.LoanStatus),
		Installments: NewInstallmentResponses(receipt.Installments),
		Transaction:  NewTransactionResponse(receipt.Transaction),
		JournalEntry: NewJournalEntryResponse(receipt.Entry),
	}
}
