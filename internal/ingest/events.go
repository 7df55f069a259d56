package ingest

import (
	"fmt"

	"github.com/rs/zerolog"
)

// EventKind is the final disposition of one data row.
type EventKind string

const (
	EventInserted     EventKind = "inserted"
	EventDuplicate    EventKind = "duplicate"
	EventNonCompleted EventKind = "non_completed"
	EventRowError     EventKind = "row_error"
)

// Event reports what happened to one row of a statement. Exactly one event
// is emitted per data row.
type Event struct {
	StatementID   string    `json:"statementId"`
	Line          int       `json:"line"`
	Kind          EventKind `json:"kind"`
	Reason        string    `json:"reason,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
}

// EventSink receives row events. Implementations are called from the
// ingesting goroutine and must not block for long.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Emit calls f(e).
func (f EventSinkFunc) Emit(e Event) { f(e) }

// Tally counts events by kind.
type Tally struct {
	Processed    int `json:"processed"`
	Inserted     int `json:"inserted"`
	Duplicates   int `json:"duplicates"`
	NonCompleted int `json:"nonCompleted"`
	Errors       int `json:"errors"`
}

// Emit implements EventSink.
func (t *Tally) Emit(e Event) {
	t.Processed++
	switch e.Kind {
	case EventInserted:
		t.Inserted++
	case EventDuplicate:
		t.Duplicates++
	case EventNonCompleted:
		t.NonCompleted++
	case EventRowError:
		t.Errors++
	}
}

// multiSink fans an event out to several sinks in order.
type multiSink []EventSink

func (m multiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// logSink writes every event to a request-scoped logger at debug level and
// row errors at warn.
type logSink struct {
	log *zerolog.Logger
}

func (s logSink) Emit(e Event) {
	ev := s.log.Debug()
	if e.Kind == EventRowError {
		ev = s.log.Warn()
	}
	ev.Str("statement_id", e.StatementID).
		Int("line", e.Line).
		Str("kind", string(e.Kind)).
		Str("reason", e.Reason).
		Msg("row processed")
}

// Summary is the outcome of one ingestion run.
type Summary struct {
	StatementID string `json:"statementId"`
	BankFormat  string `json:"bankType"`
	Tally
	Status string `json:"status"`
}

// Details renders the counts for the HTTP response.
func (s *Summary) Details() string {
	return fmt.Sprintf("%d rows processed, %d inserted, %d duplicates skipped, %d errors",
		s.Processed, s.Inserted, s.Duplicates, s.Errors)
}
