package domain

import "fmt"

// StatementStatus is the lifecycle state of a Statement.
type StatementStatus string

const (
	StatementStatusUploaded StatementStatus = "uploaded"
	StatementStatusParsing  StatementStatus = "parsing"
	StatementStatusParsed   StatementStatus = "parsed"
	StatementStatusError    StatementStatus = "error"
)

// StatementTransition represents a valid state transition
type StatementTransition struct {
	From StatementStatus
	To   StatementStatus
}

// validTransitions defines the statement lifecycle. There is no way back out of
// parsed or error: a failed run is retried by uploading again.
var validTransitions = map[StatementTransition]bool{
	{StatementStatusUploaded, StatementStatusParsing}: true,
	{StatementStatusParsing, StatementStatusParsed}:   true,
	{StatementStatusParsing, StatementStatusError}:    true,
}

// ValidateStatementTransition checks if a state transition is valid
func ValidateStatementTransition(from, to StatementStatus) error {
	if !validTransitions[StatementTransition{From: from, To: to}] {
		return fmt.Errorf("invalid statement transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal reports whether no further transitions are possible from s.
func (s StatementStatus) IsTerminal() bool {
	return s == StatementStatusParsed || s == StatementStatusError
}

// Valid reports whether s is a known status.
func (s StatementStatus) Valid() bool {
	switch s {
	case StatementStatusUploaded, StatementStatusParsing, StatementStatusParsed, StatementStatusError:
		return true
	}
	return false
}
