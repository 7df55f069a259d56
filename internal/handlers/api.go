package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/logger"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/middleware"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
)

// ReadStore is the read side of the store used by the API handlers.
type ReadStore interface {
	ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error)
	GetStatement(ctx context.Context, id string) (*domain.Statement, error)
	ListStatements(ctx context.Context, userID string) ([]*domain.Statement, error)
	ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error)
}

// APIHandler handles API requests
type APIHandler struct {
	store ReadStore
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(st ReadStore) *APIHandler {
	return &APIHandler{store: st}
}

// GetAccounts handles GET /api/accounts
func (h *APIHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	accounts, err := h.store.ListAccounts(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err, "Failed to fetch accounts")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(accounts))
}

// GetStatements handles GET /api/statements
func (h *APIHandler) GetStatements(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	statements, err := h.store.ListStatements(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err, "Failed to fetch statements")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(statements))
}

// GetStatement handles GET /api/statements/{id}
func (h *APIHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	stmt, err := h.store.GetStatement(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Statement not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "Failed to fetch statement")
		return
	}
	if stmt.UserID != userID {
		middleware.WriteError(w, http.StatusForbidden, "Forbidden")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, stmt)
}

// GetTransactions handles GET /api/transactions, optionally narrowed by ?accountId=
func (h *APIHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	transactions, err := h.store.ListTransactions(r.Context(), store.TransactionFilter{
		UserID:    userID,
		AccountID: r.URL.Query().Get("accountId"),
	})
	if err != nil {
		h.internalError(w, r, err, "Failed to fetch transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, nonNil(transactions))
}

func (h *APIHandler) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Msg(msg)
	middleware.WriteError(w, http.StatusInternalServerError, msg)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
