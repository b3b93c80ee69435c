package event

import "time"

type LoanDisbursedEvent struct {
	LoanID      int64     `json:"loanId"`
	BorrowerID  int64     `json:"borrowerId"`
	Principal   float64   `json:"principal"`
	DisbursedAt time.Time `json:"disbursedAt"`
}

type PaymentReceivedEvent struct {
	LoanID        int64     `json:"loanId"`
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	PaymentDate   time.Time `json:"paymentDate"`
	LoanPaidOff   bool      `json:"loanPaidOff"`
}

type LoanWrittenOffEvent struct {
	LoanID    int64     `json:"loanId"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
