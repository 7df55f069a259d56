// Package parser defines the contract between bank statement formats and the
// ingestion pipeline.
package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
)

// Parser turns the bytes of one statement file into candidate transactions.
//
// Rows performs file-level decoding and fails with *FormatError when the file
// cannot be read as the expected layout. Normalize handles a single row and
// reports problems through the returned Outcome instead of an error, so one bad
// row never aborts a file. Implementations must be safe for concurrent use.
type Parser interface {
	// Format returns the bank format this parser handles.
	Format() domain.BankFormat

	// Rows decodes the file into data rows keyed by header name.
	Rows(ctx context.Context, data []byte) ([]Row, error)

	// Normalize converts one row into a candidate, a skip, or a row error.
	Normalize(row Row, rc RowContext) Outcome
}

// Row is a single data row from a statement file.
type Row struct {
	Line   int // 1-based line (CSV) or row (XLSX) number in the source file
	Values map[string]string
}

// Get returns the trimmed value for a header, or "" when the column is absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// Has reports whether the row carries a non-blank value for the column.
func (r Row) Has(column string) bool {
	return r.Get(column) != ""
}

// RowContext carries the identifiers stamped onto every candidate.
type RowContext struct {
	UserID       string
	AccountID    string
	StatementID  string
	SourceID     string
	HomeCurrency string // account currency, used when the row carries none
}

// Candidate returns a candidate pre-filled with the context identifiers.
func (rc RowContext) Candidate() *domain.Candidate {
	return &domain.Candidate{
		UserID:      rc.UserID,
		AccountID:   rc.AccountID,
		StatementID: rc.StatementID,
		SourceID:    rc.SourceID,
	}
}

// OutcomeKind classifies what happened to a row.
type OutcomeKind string

const (
	Accepted            OutcomeKind = "accepted"
	SkippedNonCompleted OutcomeKind = "skipped_non_completed"
	SkippedDuplicate    OutcomeKind = "skipped_duplicate"
	RowError            OutcomeKind = "row_error"
)

// Outcome is the result of normalizing one row. Candidate is set only for
// Accepted; Reason is set for every other kind.
type Outcome struct {
	Kind      OutcomeKind
	Candidate *domain.Candidate
	Reason    string
}

// Accept returns an Accepted outcome.
func Accept(c *domain.Candidate) Outcome {
	return Outcome{Kind: Accepted, Candidate: c}
}

// Skip returns a SkippedNonCompleted outcome.
func Skip(reason string) Outcome {
	return Outcome{Kind: SkippedNonCompleted, Reason: reason}
}

// Reject returns a RowError outcome with a formatted reason.
func Reject(format string, args ...interface{}) Outcome {
	return Outcome{Kind: RowError, Reason: fmt.Sprintf(format, args...)}
}

// Safe calls p.Normalize and converts a panic into a RowError outcome.
func Safe(p Parser, row Row, rc RowContext) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Reject("normalizer panic on line %d: %v", row.Line, r)
		}
	}()
	out = p.Normalize(row, rc)
	if out.Kind == Accepted && out.Candidate == nil {
		return Reject("normalizer accepted line %d without a candidate", row.Line)
	}
	return out
}

// FormatError reports a file that cannot be decoded as the expected format.
type FormatError struct {
	Format domain.BankFormat
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s statement: %v", e.Format, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError wraps a formatted message in a *FormatError.
func NewFormatError(format domain.BankFormat, msg string, args ...interface{}) *FormatError {
	return &FormatError{Format: format, Err: fmt.Errorf(msg, args...)}
}
