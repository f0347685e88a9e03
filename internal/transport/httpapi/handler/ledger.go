package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// LedgerHandler serves the ledger HTTP surface
type LedgerHandler struct {
	service *ledger.Service
	logger  *logger.Logger
}

func NewLedgerHandler(service *ledger.Service, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{service: service, logger: log}
}

// CreateAccountRequest is the POST /ledger/account/ body
type CreateAccountRequest struct {
	Currency string                 `json:"currency"`
	Type     string                 `json:"type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AccountResponse is the wire shape of an account
type AccountResponse struct {
	ID        uuid.UUID              `json:"id"`
	Currency  string                 `json:"currency"`
	Type      string                 `json:"type"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// BalanceResponse is the wire shape of a balance row
type BalanceResponse struct {
	AccountID        uuid.UUID       `json:"account_id"`
	Currency         string          `json:"currency"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	LastUpdated      time.Time       `json:"last_updated"`
	Version          int64           `json:"version"`
}

// TransferRequest is the POST /ledger/transfer/ body
type TransferRequest struct {
	SourceAccountID      uuid.UUID              `json:"source_account_id"`
	DestinationAccountID uuid.UUID              `json:"destination_account_id"`
	Amount               decimal.Decimal        `json:"amount"`
	Currency             string                 `json:"currency"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// TransferSuccessResponse is returned when a transfer commits
type TransferSuccessResponse struct {
	Message       string    `json:"message"`
	TransactionID uuid.UUID `json:"transaction_id"`
	EventsCreated int       `json:"events_created"`
}

// TransferFailureResponse is returned when validation or funds fail
type TransferFailureResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// EventResponse is the wire shape of one ledger event
type EventResponse struct {
	ID                   uuid.UUID              `json:"id"`
	TransactionID        uuid.UUID              `json:"transaction_id"`
	Timestamp            time.Time              `json:"timestamp"`
	SourceAccountID      *uuid.UUID             `json:"source_account_id"`
	DestinationAccountID *uuid.UUID             `json:"destination_account_id"`
	Amount               decimal.Decimal        `json:"amount"`
	Currency             string                 `json:"currency"`
	EventType            string                 `json:"event_type"`
	Status               string                 `json:"status"`
	Metadata             map[string]interface{} `json:"metadata"`
}

// CreateAccount handles POST /ledger/account/
func (h *LedgerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req.Currency, req.Type, req.Metadata)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, AccountResponse{
		ID:        account.ID,
		Currency:  account.Currency,
		Type:      account.Type,
		Metadata:  account.Metadata,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}, http.StatusCreated)
}

// GetAccount handles GET /ledger/account/{id}
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid account id", http.StatusBadRequest)
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, AccountResponse{
		ID:        account.ID,
		Currency:  account.Currency,
		Type:      account.Type,
		Metadata:  account.Metadata,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}, http.StatusOK)
}

// GetBalance handles GET /ledger/account/{id}/balance
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid account id", http.StatusBadRequest)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, BalanceResponse{
		AccountID:        balance.AccountID,
		Currency:         balance.Currency,
		AvailableBalance: balance.Available,
		PendingBalance:   balance.Pending,
		LastUpdated:      balance.LastUpdated,
		Version:          balance.Version,
	}, http.StatusOK)
}

// Transfer handles POST /ledger/transfer/
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Transfer(r.Context(), &ledger.TransferRequest{
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Metadata:             req.Metadata,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	if !result.Success {
		respondJSON(w, TransferFailureResponse{
			Message: "Transfer failed",
			Errors:  result.Errors,
		}, http.StatusBadRequest)
		return
	}

	respondJSON(w, TransferSuccessResponse{
		Message:       "Transfer completed successfully",
		TransactionID: result.TransactionID,
		EventsCreated: len(result.Events),
	}, http.StatusOK)
}

// GetEvents handles GET /ledger/events/?account_id=…&limit=…
func (h *LedgerHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.URL.Query().Get("account_id"))
	if err != nil {
		respondError(w, "invalid or missing account_id", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	events, err := h.service.EventsByAccount(r.Context(), accountID, limit)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, toEventResponses(events), http.StatusOK)
}

// GetTransactionEvents handles GET /ledger/transactions/{id}/events,
// returning the paired DEBIT/CREDIT rows of one transaction.
func (h *LedgerHandler) GetTransactionEvents(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	events, err := h.service.EventsByTransaction(r.Context(), transactionID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, toEventResponses(events), http.StatusOK)
}

func toEventResponses(events []*ledger.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, EventResponse{
			ID:                   ev.ID,
			TransactionID:        ev.TransactionID,
			Timestamp:            ev.Timestamp,
			SourceAccountID:      ev.SourceAccountID,
			DestinationAccountID: ev.DestinationAccountID,
			Amount:               ev.Amount,
			Currency:             ev.Currency,
			EventType:            string(ev.EventType),
			Status:               string(ev.Status),
			Metadata:             ev.Metadata,
		})
	}
	return out
}
