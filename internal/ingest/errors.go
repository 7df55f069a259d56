package ingest

import (
	"errors"
	"fmt"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
)

// Sentinel errors for request-level failures. None of them leaves a statement
// behind: they are all detected before the first write.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = fmt.Errorf("bank account %w", store.ErrNotFound)
	ErrForbidden         = errors.New("bank account belongs to another user")
	ErrUnsupportedFormat = errors.New("unsupported bank format")
)

// StorageError is returned when the uploaded file cannot be fetched.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to fetch statement file %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned when a store operation fails mid-run.
// Committed is the number of transactions already written when it happened.
type PersistenceError struct {
	Op        string
	Committed int
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
