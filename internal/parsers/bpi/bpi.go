// Package bpi parses BPI account movement exports (XLSX).
package bpi

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parse"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parser"
)

// Column headers used by the BPI export.
const (
	ColDate        = "Data Mov."
	ColDescription = "Descrição do Movimento"
	ColAmount      = "Montante"
	ColDebit       = "Débito"
	ColCredit      = "Crédito"
	ColAmountEUR   = "Valor em EUR"
)

// HeaderRowOffset is the zero-based index of the header row. The rows above
// it hold account metadata.
const HeaderRowOffset = 15

// HomeCurrency is used when neither the row nor the account provides one.
const HomeCurrency = "EUR"

const dmyLayout = "02-01-2006"

var (
	dateColumns   = map[string]bool{ColDate: true}
	amountColumns = map[string]bool{ColAmount: true, ColDebit: true, ColCredit: true, ColAmountEUR: true}
)

// Parser implements the BPI XLSX format. It holds no state and is safe for
// concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared BPI parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Format returns the bank format tag handled by this parser.
func (p *Parser) Format() domain.BankFormat {
	return domain.BankFormatBPI
}

// Rows reads the first sheet. The header is the 16th row and every
// non-empty row below it is data.
func (p *Parser) Rows(ctx context.Context, data []byte) ([]parser.Row, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, parser.NewFormatError(p.Format(), "failed to open workbook: %v", err)
	}
	defer xl.Close()

	sheet := xl.GetSheetName(0)
	if sheet == "" {
		return nil, parser.NewFormatError(p.Format(), "workbook has no sheets")
	}
	grid, err := xl.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, parser.NewFormatError(p.Format(), "failed to read sheet %q: %v", sheet, err)
	}
	if len(grid) <= HeaderRowOffset {
		return nil, parser.NewFormatError(p.Format(), "header row %d not found", HeaderRowOffset+1)
	}

	columns := make([]string, len(grid[HeaderRowOffset]))
	hasDate := false
	for i, h := range grid[HeaderRowOffset] {
		columns[i] = norm.NFC.String(strings.TrimSpace(h))
		if columns[i] == ColDate {
			hasDate = true
		}
	}
	if !hasDate {
		return nil, parser.NewFormatError(p.Format(), "header row %d has no %q column", HeaderRowOffset+1, ColDate)
	}

	var rows []parser.Row
	for idx := HeaderRowOffset + 1; idx < len(grid); idx++ {
		record := grid[idx]
		if blank(record) {
			continue
		}
		line := idx + 1
		values := make(map[string]string, len(columns))
		for i, name := range columns {
			if name == "" || i >= len(record) {
				continue
			}
			if _, seen := values[name]; seen {
				continue
			}
			values[name] = p.cellText(xl, sheet, name, i+1, line, record[i])
		}
		rows = append(rows, parser.Row{Line: line, Values: values})
	}
	return rows, nil
}

// cellText turns raw numeric cells into the text the bank would print: dates
// as DD-MM-YYYY and amounts with a decimal comma. Text cells pass through.
func (p *Parser) cellText(xl *excelize.File, sheet, column string, col, line int, raw string) string {
	raw = norm.NFC.String(raw)
	if !dateColumns[column] && !amountColumns[column] {
		return raw
	}
	ref, err := excelize.CoordinatesToCellName(col, line)
	if err != nil {
		return raw
	}
	typ, err := xl.GetCellType(sheet, ref)
	if err != nil || (typ != excelize.CellTypeNumber && typ != excelize.CellTypeUnset) {
		return raw
	}

	if dateColumns[column] {
		serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return raw
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return raw
		}
		return t.Format(dmyLayout)
	}

	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return strings.Replace(d.String(), ".", ",", 1)
}

// Normalize converts one BPI row. The amount comes from Montante, then the
// Débito/Crédito pair, then Valor em EUR.
func (p *Parser) Normalize(row parser.Row, rc parser.RowContext) parser.Outcome {
	rawDate := row.Get(ColDate)
	if rawDate == "" {
		return parser.Reject("line %d: missing date", row.Line)
	}
	date, err := parse.Date(rawDate, parse.DMYDate)
	if err != nil {
		return parser.Reject("line %d: %v", row.Line, err)
	}

	amount, currency, reason := p.amount(row)
	if reason != "" {
		return parser.Reject("line %d: %s", row.Line, reason)
	}
	if currency == "" {
		currency = defaultCurrency(rc.HomeCurrency)
	}

	c := rc.Candidate()
	c.Date = date
	c.Description = row.Get(ColDescription)
	c.Amount = amount
	c.Currency = currency
	return parser.Accept(c)
}

// amount returns the signed amount and any explicit currency, or a reason the
// row carries no usable amount.
func (p *Parser) amount(row parser.Row) (decimal.Decimal, string, string) {
	var failures []string

	if raw := row.Get(ColAmount); raw != "" {
		m, err := parse.Amount(raw, parse.CommaDecimal)
		if err == nil {
			return m.Value, m.Currency, ""
		}
		failures = append(failures, err.Error())
	}

	debit, credit := row.Get(ColDebit), row.Get(ColCredit)
	switch {
	case debit != "" && credit != "":
		return decimal.Zero, "", "both debit and credit are set"
	case debit != "":
		m, err := parse.Amount(debit, parse.CommaDecimal)
		if err == nil {
			return m.Value.Abs().Neg(), m.Currency, ""
		}
		failures = append(failures, err.Error())
	case credit != "":
		m, err := parse.Amount(credit, parse.CommaDecimal)
		if err == nil {
			return m.Value.Abs(), m.Currency, ""
		}
		failures = append(failures, err.Error())
	}

	if raw := row.Get(ColAmountEUR); raw != "" {
		m, err := parse.Amount(raw, parse.CommaDecimal)
		if err == nil {
			return m.Value, HomeCurrency, ""
		}
		failures = append(failures, err.Error())
	}

	if len(failures) == 0 {
		return decimal.Zero, "", "no amount"
	}
	return decimal.Zero, "", "unparseable amount: " + strings.Join(failures, "; ")
}

func defaultCurrency(account string) string {
	if domain.ValidCurrency(account) {
		return account
	}
	return HomeCurrency
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
