package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lending-engine/internal/api/handler/dto"
	"lending-engine/internal/domain/loan"
	"lending-engine/internal/pkg/apperrors"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type LoanHandler struct {
	service loan.LoanService
	logger  *slog.Logger
}

func NewLoanHandler(service loan.LoanService, logger *slog.Logger) *LoanHandler {
	return &LoanHandler{service: service, logger: logger.With("component", "LoanHandler")}
}

// CreateLoan godoc
// @Summary Create a loan application
// @Description Registers a new loan application in draft status for an active borrower.
// @Tags loans
// @Accept json
// @Produce json
// @Param loan body dto.CreateLoanRequest true "Loan application"
// @Success 201 {object} dto.LoanResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid request payload"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /loans [post]
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}

	created, err := h.service.CreateLoan(r.Context(), req.BorrowerID, req.ProductID,
		req.Principal, req.TermMonths, loan.AmortizationMethod(req.Method))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, dto.NewLoanResponse(created))
}

// GetLoan godoc
// @Summary Get loan details
// @Description Returns a loan with its repayment schedule once disbursed.
// @Tags loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid loan ID"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Security BearerAuth
// @Router /loans/{loanID} [get]
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r, h.logger)
	if !ok {
		return
	}
	l, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.NewLoanResponse(l))
}

// GetSchedule godoc
// @Summary Get the repayment schedule
// @Description Returns the persisted installment schedule of a disbursed loan.
// @Tags loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {array} dto.InstallmentResponse
// @Failure 400 {object} dto.ErrorResponse "Loan not yet disbursed"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Security BearerAuth
// @Router /loans/{loanID}/schedule [get]
func (h *LoanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r, h.logger)
	if !ok {
		return
	}
	schedule, err := h.service.GetSchedule(r.Context(), loanID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.NewInstallmentResponses(schedule))
}

// GetTransactions godoc
// @Summary List loan transactions
// @Description Returns the disbursement and repayment transactions of a loan, newest first.
// @Tags loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {array} dto.TransactionResponse
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Security BearerAuth
// @Router /loans/{loanID}/transactions [get]
func (h *LoanHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r, h.logger)
	if !ok {
		return
	}
	txns, err := h.service.GetTransactions(r.Context(), loanID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]dto.TransactionResponse, len(txns))
	for i := range txns {
		out[i] = dto.NewTransactionResponse(&txns[i])
	}
	respondJSON(w, h.logger, http.StatusOK, out)
}

// PreviewSchedule godoc
// @Summary Preview an amortization schedule
// @Description Computes an installment schedule for the given terms without creating a loan.
// @Tags schedules
// @Accept json
// @Produce json
// @Param terms body dto.PreviewScheduleRequest true "Loan terms"
// @Success 200 {array} dto.InstallmentResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid terms"
// @Security BearerAuth
// @Router /schedules/preview [post]
func (h *LoanHandler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req dto.PreviewScheduleRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}
	schedule, err := h.service.PreviewSchedule(r.Context(), req.Principal, req.AnnualRatePercent,
		req.TermMonths, loan.AmortizationMethod(req.Method))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.NewInstallmentResponses(schedule))
}

// SubmitLoan godoc
// @Summary Submit a draft loan
// @Description Moves a draft loan into the submitted state.
// @Tags loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Transition not allowed from current status"
// @Security BearerAuth
// @Router /loans/{loanID}/submit [post]
func (h *LoanHandler) SubmitLoan(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Submit)
}

// ReviewLoan godoc
// @Summary Start reviewing a loan
// @Description Moves a submitted loan into the reviewing state.
// @Tags loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Transition not allowed from current status"
// @Security BearerAuth
// @Router /loans/{loanID}/review [post]
func (h *LoanHandler) ReviewLoan(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Review)
}

func (h *LoanHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, loanID int64) (*loan.Loan, error)) {
	loanID, ok := parseLoanID(w, r, h.logger)
	if !ok {
		return
	}
	l, err := op(r.Context(), loanID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.NewLoanResponse(l))
}

// ApproveLoan godoc
// @Summary Approve a loan under review
// @Description Approves a loan, optionally overriding principal and rate within product bounds. Omitted fields default to the requested principal and the product rate.
// @Tags loans
// @Accept json
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param approval body dto.ApproveLoanRequest false "Approved terms"
// @Success 200 {object} dto.LoanResponse
// @Failure 400 {object} dto.ErrorResponse "Approved terms outside product bounds"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Transition not allowed from current status"
// @Security BearerAuth
// @Router /loans/{loanID}/approve [post]
func (h *LoanHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r, h.logger)
	if !ok {
		return
	}
	var req dto.ApproveLoanRequest
	if r.ContentLength > 0 {
		if !decodeAndValidate(w, r, h.logger, &req) {
			return
		}
	}
	l, err := h.service.Approve(r.Context(), loanID, req.ApprovedPrincipal, req.ApprovedRate)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.NewLoanResponse(l))
}

// RejectLoan godoc
// @Summary Reject a loan under review
// @Description Rejects a loan with a mandatory reason.
// @Tags loans
// @Accept json
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param rejection body dto.ReasonRequest true "Rejection reason"
// @Success 200 {object} dto.LoanResponse
// @Failure 400 {object} dto.ErrorResponse "Missing reason"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Transition not allowed from current status"
// @Security BearerAuth
// @Router /loans/{loanID}/reject [post]
func (h *LoanHandler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r, h.logger)
	if !ok {
		return
	}
	var req dto.ReasonRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}
	l, err := h.service.Reject(r.Context(), loanID, req.Reason)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.NewLoanResponse(l))
}

// DisburseLoan godoc
// @Summary Disburse an approved loan
// @Description Activates the loan, generates and persists its installment schedule and posts the disbursement journal entry in one transaction.
// @Tags loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Transition not allowed from current status"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /loans/{loanID}/disburse [post]
func (h *LoanHandler) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Disburse)
}

// WriteOffLoan godoc
// @Summary Write off an active loan
// @Description Writes off the loan and books the outstanding principal as loan loss, atomically.
// @Tags loans
// @Accept json
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param writeoff body dto.ReasonRequest true "Write-off reason"
// @Success 200 {object} dto.LoanResponse
// @Failure 400 {object} dto.ErrorResponse "Missing reason"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Transition not allowed from current status"
// @Security BearerAuth
// @Router /loans/{loanID}/writeoff [post]
func (h *LoanHandler) WriteOffLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r, h.logger)
	if !ok {
		return
	}
	var req dto.ReasonRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}
	l, err := h.service.WriteOff(r.Context(), loanID, req.Reason)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.NewLoanResponse(l))
}

// MakePayment godoc
// @Summary Record a repayment
// @Description Applies a payment through the penalty, interest, principal waterfall and posts the matching journal entry atomically.
// @Tags payments
// @Accept json
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param payment body dto.RepayLoanRequest true "Payment"
// @Success 200 {object} dto.RepaymentReceiptResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid amount or payment exceeds outstanding obligation"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Concurrent payment conflict"
// @Security BearerAuth
// @Router /loans/{loanID}/payments [post]
func (h *LoanHandler) MakePayment(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r, h.logger)
	if !ok {
		return
	}
	var req dto.RepayLoanRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}

	amountDec, _ := decimal.NewFromString(req.Amount)
	amount, _ := amountDec.Float64()

	paymentDate := time.Now()
	if req.PaymentDate != "" {
		paymentDate, _ = time.Parse(time.RFC3339[:10], req.PaymentDate)
	}

	receipt, err := h.service.Repay(r.Context(), loanID, amount, paymentDate)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.NewRepaymentReceiptResponse(receipt))
}

func parseLoanID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int64, bool) {
	idStr := chi.URLParam(r, "loanID")
	loanID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || loanID <= 0 {
		respondErrorMessage(w, logger, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid loan ID format")
		return 0, false
	}
	return loanID, true
}

type validatable interface {
	Validate() error
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, req validatable) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondErrorMessage(w, logger, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body")
		return false
	}
	if err := req.Validate(); err != nil {
		respondErrorMessage(w, logger, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response body", "error", err)
	}
}

func respondErrorMessage(w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	respondJSON(w, logger, status, dto.ErrorResponse{Error: dto.ErrorDetail{Code: code, Message: message}})
}

// respondError maps the error taxonomy onto HTTP statuses. Lifecycle and
// concurrency conflicts are 409; everything the caller can fix is 400.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "INTERNAL_ERROR"
		msg    = "an unexpected internal error occurred"
	)

	var validationErr *apperrors.ValidationError
	var transitionErr *apperrors.InvalidTransitionError
	var unbalancedErr *apperrors.UnbalancedEntryError

	switch {
	case errors.As(err, &validationErr):
		status, code, msg = http.StatusBadRequest, "VALIDATION_FAILED", validationErr.Error()
	case errors.As(err, &transitionErr):
		status, code, msg = http.StatusConflict, "INVALID_TRANSITION", transitionErr.Error()
	case errors.As(err, &unbalancedErr):
		status, code, msg = http.StatusBadRequest, "UNBALANCED_ENTRY", unbalancedErr.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		status, code, msg = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrInvalidArgument):
		status, code, msg = http.StatusBadRequest, "VALIDATION_FAILED", err.Error()
	case errors.Is(err, apperrors.ErrInvalidTransition):
		status, code, msg = http.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, apperrors.ErrUnbalancedEntry):
		status, code, msg = http.StatusBadRequest, "UNBALANCED_ENTRY", err.Error()
	case errors.Is(err, apperrors.ErrInsufficientSchedule):
		status, code, msg = http.StatusBadRequest, "OVERPAYMENT_REJECTED", err.Error()
	case errors.Is(err, apperrors.ErrAlreadyExists):
		status, code, msg = http.StatusConflict, "ALREADY_EXISTS", err.Error()
	case errors.Is(err, apperrors.ErrConcurrencyConflict), errors.Is(err, apperrors.ErrConflict):
		status, code, msg = http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, apperrors.ErrUnauthorized):
		status, code, msg = http.StatusUnauthorized, "UNAUTHORIZED", err.Error()
	case errors.Is(err, apperrors.ErrForbidden):
		status, code, msg = http.StatusForbidden, "FORBIDDEN", err.Error()
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	respondJSON(w, logger, status, dto.ErrorResponse{Error: dto.ErrorDetail{Code: code, Message: msg}})
}
