package handlers

import (
	"errors"
	"net/http"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/ingest"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parser"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/storage"
)

// clientMessage returns the error text sent with status. Server-side failures
// get a fixed message; their detail stays in the log.
func clientMessage(err error, status int) string {
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	var storageErr *ingest.StorageError
	if errors.As(err, &storageErr) {
		return "Failed to download file from storage"
	}
	return "Failed to process statement"
}

// statusFor maps an ingestion error to its HTTP status code.
func statusFor(err error) int {
	var formatErr *parser.FormatError
	var storageErr *ingest.StorageError
	var persistErr *ingest.PersistenceError

	switch {
	case errors.Is(err, ingest.ErrInvalidRequest),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.As(err, &formatErr):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &storageErr):
		if errors.Is(err, storage.ErrTooLarge) || errors.Is(err, storage.ErrInvalidPath) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError
	case errors.Is(err, ingest.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
