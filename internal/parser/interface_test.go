package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
)

type stubParser struct {
	normalize func(Row, RowContext) Outcome
}

func (s stubParser) Format() domain.BankFormat { return domain.BankFormatOther }

func (s stubParser) Rows(ctx context.Context, data []byte) ([]Row, error) { return nil, nil }

func (s stubParser) Normalize(row Row, rc RowContext) Outcome { return s.normalize(row, rc) }

// TestSafe_RecoversPanic tests that a panicking normalizer yields a row error
func TestSafe_RecoversPanic(t *testing.T) {
	p := stubParser{normalize: func(Row, RowContext) Outcome {
		var m map[string]int
		m["boom"]++
		return Outcome{}
	}}

	out := Safe(p, Row{Line: 7}, RowContext{})
	if out.Kind != RowError {
		t.Fatalf("Expected RowError, got: %s", out.Kind)
	}
	if !strings.Contains(out.Reason, "line 7") {
		t.Errorf("Expected reason to mention the line, got: %s", out.Reason)
	}
}

// TestSafe_AcceptedWithoutCandidate tests that an inconsistent outcome is rejected
func TestSafe_AcceptedWithoutCandidate(t *testing.T) {
	p := stubParser{normalize: func(Row, RowContext) Outcome {
		return Outcome{Kind: Accepted}
	}}

	if out := Safe(p, Row{Line: 2}, RowContext{}); out.Kind != RowError {
		t.Errorf("Expected RowError, got: %s", out.Kind)
	}
}

// TestSafe_PassesThrough tests that ordinary outcomes are returned unchanged
func TestSafe_PassesThrough(t *testing.T) {
	rc := RowContext{UserID: "u1", AccountID: "a1", StatementID: "s1", SourceID: "u1/f.csv"}
	p := stubParser{normalize: func(_ Row, rc RowContext) Outcome {
		c := rc.Candidate()
		c.Description = "ok"
		return Accept(c)
	}}

	out := Safe(p, Row{Line: 2}, rc)
	if out.Kind != Accepted {
		t.Fatalf("Expected Accepted, got: %s", out.Kind)
	}
	if out.Candidate.UserID != "u1" || out.Candidate.StatementID != "s1" || out.Candidate.SourceID != "u1/f.csv" {
		t.Errorf("Expected context identifiers on candidate, got: %+v", out.Candidate)
	}
}

func TestRow_Get(t *testing.T) {
	row := Row{Values: map[string]string{"Amount": "  -4.50 ", "Empty": "   "}}

	if got := row.Get("Amount"); got != "-4.50" {
		t.Errorf("Expected trimmed value, got: %q", got)
	}
	if row.Has("Empty") {
		t.Error("Expected blank column to be absent")
	}
	if row.Has("Missing") {
		t.Error("Expected missing column to be absent")
	}
}

func TestFormatError(t *testing.T) {
	err := NewFormatError(domain.BankFormatBPI, "header row %d missing %q", 16, "Data Mov.")

	var fe *FormatError
	if !errors.As(error(err), &fe) {
		t.Fatal("Expected *FormatError")
	}
	if fe.Format != domain.BankFormatBPI {
		t.Errorf("Expected format bpi, got: %s", fe.Format)
	}
	want := `malformed bpi statement: header row 16 missing "Data Mov."`
	if err.Error() != want {
		t.Errorf("Expected %q, got: %q", want, err.Error())
	}
}
