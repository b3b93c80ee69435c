package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lending-engine/internal/api/handler/dto"
	"lending-engine/internal/domain/ledger"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type LedgerHandler struct {
	service ledger.LedgerService
	logger  *slog.Logger
}

func NewLedgerHandler(service ledger.LedgerService, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{service: service, logger: logger.With("component", "LedgerHandler")}
}

// CreateAccount godoc
// @Summary Create a GL account
// @Description Registers a new general ledger account in the chart of accounts.
// @Tags ledger
// @Accept json
// @Produce json
// @Param account body dto.CreateAccountRequest true "Account"
// @Success 201 {object} dto.AccountResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid account data"
// @Failure 409 {object} dto.ErrorResponse "Account code already exists"
// @Security BearerAuth
// @Router /ledger/accounts [post]
func (h *LedgerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}
	account, err := h.service.CreateAccount(r.Context(), req.Code, req.Name, ledger.AccountType(req.Type))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, dto.NewAccountResponse(account))
}

// ListAccounts godoc
// @Summary List GL accounts
// @Description Returns the chart of accounts ordered by code.
// @Tags ledger
// @Produce json
// @Success 200 {array} dto.AccountResponse
// @Security BearerAuth
// @Router /ledger/accounts [get]
func (h *LedgerHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.GetAccounts(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]dto.AccountResponse, len(accounts))
	for i := range accounts {
		out[i] = dto.NewAccountResponse(&accounts[i])
	}
	respondJSON(w, h.logger, http.StatusOK, out)
}

// GetBalance godoc
// @Summary Get an account balance
// @Description Derives the balance of a GL account from its journal lines under the standard sign convention.
// @Tags ledger
// @Produce json
// @Param code path string true "Account code"
// @Success 200 {object} dto.BalanceResponse
// @Failure 404 {object} dto.ErrorResponse "Account not found"
// @Security BearerAuth
// @Router /ledger/accounts/{code}/balance [get]
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	balance, err := h.service.GetBalance(r.Context(), code)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, dto.BalanceResponse{
		AccountCode: code,
		Balance:     decimal.NewFromFloat(balance).StringFixed(2),
	})
}

// PostEntry godoc
// @Summary Post a manual journal entry
// @Description Validates and persists a balanced journal entry. Unbalanced entries are rejected with nothing persisted.
// @Tags ledger
// @Accept json
// @Produce json
// @Param entry body dto.PostEntryRequest true "Journal entry"
// @Success 201 {object} dto.JournalEntryResponse
// @Failure 400 {object} dto.ErrorResponse "Unbalanced or malformed entry"
// @Failure 409 {object} dto.ErrorResponse "Reference number already exists"
// @Security BearerAuth
// @Router /ledger/entries [post]
func (h *LedgerHandler) PostEntry(w http.ResponseWriter, r *http.Request) {
	var req dto.PostEntryRequest
	if !decodeAndValidate(w, r, h.logger, &req) {
		return
	}

	entryDate := time.Now()
	if req.EntryDate != "" {
		entryDate, _ = time.Parse(time.RFC3339[:10], req.EntryDate)
	}

	entry, err := h.service.PostEntry(r.Context(), req.ReferenceNo, req.Description, entryDate, req.ToLines())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, dto.NewJournalEntryResponse(entry))
}

// ListEntries godoc
// @Summary List journal entries
// @Description Returns the most recent journal entries with their lines.
// @Tags ledger
// @Produce json
// @Param limit query int false "Maximum number of entries (default 100, max 500)"
// @Success 200 {array} dto.JournalEntryResponse
// @Security BearerAuth
// @Router /ledger/entries [get]
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.GetEntries(r.Context(), limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	out := make([]dto.JournalEntryResponse, len(entries))
	for i := range entries {
		out[i] = dto.NewJournalEntryResponse(&entries[i])
	}
	respondJSON(w, h.logger, http.StatusOK, out)
}
