package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/ingest"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/logger"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/middleware"
)

// maxRequestBody bounds the JSON body of process-statement requests.
const maxRequestBody = 64 << 10

// Ingester runs statement ingestion. *ingest.Service satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Summary, error)
}

// ProcessStatementRequest is the body of POST /api/process-statement.
// BankAccountID is accepted as an alias for AccountID. BankFormatTag is the
// legacy account-less shape and is rejected.
type ProcessStatementRequest struct {
	StoragePath   string `json:"storagePath"`
	AccountID     string `json:"accountId"`
	BankAccountID string `json:"bankAccountId"`
	BankFormatTag string `json:"bankFormatTag"`
}

// ProcessStatementResponse is the success body of POST /api/process-statement.
type ProcessStatementResponse struct {
	Message          string       `json:"message"`
	Details          string       `json:"details"`
	BankType         string       `json:"bankType"`
	TransactionCount int          `json:"transactionCount"`
	StatementID      string       `json:"statementId"`
	Counts           ingest.Tally `json:"counts"`
}

// StatementHandler serves statement ingestion.
type StatementHandler struct {
	ingester Ingester
}

// NewStatementHandler creates a new statement handler
func NewStatementHandler(ingester Ingester) *StatementHandler {
	return &StatementHandler{ingester: ingester}
}

// ProcessStatement handles POST /api/process-statement
func (h *StatementHandler) ProcessStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	log := logger.FromContext(r.Context())

	var body ProcessStatementRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accountID := strings.TrimSpace(body.AccountID)
	if accountID == "" {
		accountID = strings.TrimSpace(body.BankAccountID)
	}
	if accountID == "" && body.BankFormatTag != "" {
		middleware.WriteError(w, http.StatusBadRequest, "accountId is required; bankFormatTag is no longer supported")
		return
	}
	if accountID == "" || strings.TrimSpace(body.StoragePath) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Missing storagePath or accountId")
		return
	}

	summary, err := h.ingester.Ingest(r.Context(), ingest.Request{
		UserID:      userID,
		AccountID:   accountID,
		StoragePath: body.StoragePath,
	})
	if err != nil {
		status := statusFor(err)
		ev := log.Warn()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Err(err).Int("status", status).Str("storage_path", body.StoragePath).Msg("Statement processing failed")
		middleware.WriteError(w, status, clientMessage(err, status))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, ProcessStatementResponse{
		Message:          fmt.Sprintf("Statement processing finished for %s.", body.StoragePath),
		Details:          summary.Details(),
		BankType:         summary.BankFormat,
		TransactionCount: summary.Inserted,
		StatementID:      summary.StatementID,
		Counts:           summary.Tally,
	})
}
