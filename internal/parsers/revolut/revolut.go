// Package revolut parses Revolut account statement CSV exports.
package revolut

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parse"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parser"
)

// Column headers used by the Revolut export.
const (
	ColCompleted   = "Date completed (UTC)"
	ColDescription = "Description"
	ColAmount      = "Amount"
	ColCurrency    = "Payment currency"
	ColState       = "State"
)

// StateCompleted is the only state whose rows become transactions.
const StateCompleted = "COMPLETED"

var requiredColumns = []string{ColCompleted, ColDescription, ColAmount, ColCurrency, ColState}

// Parser implements the Revolut CSV format. It holds no state and is safe for
// concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared Revolut parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Format returns the bank format tag handled by this parser.
func (p *Parser) Format() domain.BankFormat {
	return domain.BankFormatRevolut
}

// Rows reads the CSV header and returns every non-empty data row keyed by column name.
func (p *Parser) Rows(ctx context.Context, data []byte) ([]parser.Row, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	text, err := parser.Decode(data)
	if err != nil {
		return nil, &parser.FormatError{Format: p.Format(), Err: err}
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, parser.NewFormatError(p.Format(), "file is empty")
	}
	if err != nil {
		return nil, parser.NewFormatError(p.Format(), "failed to read header: %v", err)
	}
	columns := normalizeHeader(header)
	if missing := missingColumns(columns); len(missing) > 0 {
		return nil, parser.NewFormatError(p.Format(), "missing required columns: %s", strings.Join(missing, ", "))
	}

	var rows []parser.Row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parser.NewFormatError(p.Format(), "failed to read CSV content: %v", err)
		}
		if blank(record) {
			continue
		}

		line, _ := r.FieldPos(0)
		values := make(map[string]string, len(columns))
		for i, name := range columns {
			if name == "" || i >= len(record) {
				continue
			}
			if _, seen := values[name]; seen {
				continue
			}
			values[name] = record[i]
		}
		rows = append(rows, parser.Row{Line: line, Values: values})
	}
	return rows, nil
}

// Normalize converts one Revolut row. Rows whose state is not COMPLETED are
// skipped before any other field is looked at.
func (p *Parser) Normalize(row parser.Row, rc parser.RowContext) parser.Outcome {
	state := row.Get(ColState)
	if !strings.EqualFold(state, StateCompleted) {
		return parser.Skip("state " + quoteOrEmpty(state))
	}

	completed := row.Get(ColCompleted)
	if completed == "" {
		return parser.Reject("line %d: missing completed date", row.Line)
	}
	date, err := parse.Date(completed, parse.ISODate)
	if err != nil {
		return parser.Reject("line %d: %v", row.Line, err)
	}

	money, err := parse.Amount(row.Get(ColAmount), parse.PointDecimal)
	if err != nil {
		return parser.Reject("line %d: %v", row.Line, err)
	}

	currency := strings.ToUpper(row.Get(ColCurrency))
	if currency == "" {
		return parser.Reject("line %d: missing currency", row.Line)
	}
	if !domain.ValidCurrency(currency) {
		return parser.Reject("line %d: invalid currency %q", row.Line, currency)
	}
	if money.Currency != "" && money.Currency != currency {
		return parser.Reject("line %d: amount currency %s does not match %s", row.Line, money.Currency, currency)
	}

	c := rc.Candidate()
	c.Date = date
	c.Description = row.Get(ColDescription)
	c.Amount = money.Value
	c.Currency = currency
	return parser.Accept(c)
}

func normalizeHeader(header []string) []string {
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}
	return columns
}

func missingColumns(columns []string) []string {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}
