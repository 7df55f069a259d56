// Package output renders CLI results with colour.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/ingest"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)
)

// Printer writes formatted CLI output to w.
type Printer struct {
	w io.Writer
}

// New creates a printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Header prints a formatted header
func (p *Printer) Header(text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(p.w, "\n%s\n", line)
	green.Fprintf(p.w, "%-60s\n", center(text, 60))
	green.Fprintf(p.w, "%s\n\n", line)
}

// Step prints a step indicator
func (p *Printer) Step(stepNum, totalSteps int, text string) {
	yellow.Fprintf(p.w, "[%d/%d] %s\n", stepNum, totalSteps, text)
}

// Success prints a success message
func (p *Printer) Success(text string) {
	green.Fprintf(p.w, "  → %s\n", text)
}

// Info prints an info message
func (p *Printer) Info(text string) {
	fmt.Fprintf(p.w, "  → %s\n", text)
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	yellow.Fprintf(p.w, "  ⚠ %s\n", text)
}

// Error prints an error message
func (p *Printer) Error(text string) {
	red.Fprintf(p.w, "Error: %s\n", text)
}

// Summary prints the outcome of one ingestion run.
func (p *Printer) Summary(s *ingest.Summary) {
	if s.Status == string(domain.StatementStatusError) {
		p.Warning(fmt.Sprintf("statement %s finished with status %s", s.StatementID, s.Status))
	} else {
		p.Success(fmt.Sprintf("statement %s %s (%s)", s.StatementID, s.Status, s.BankFormat))
	}
	p.Info(s.Details())
	if s.NonCompleted > 0 {
		p.Info(fmt.Sprintf("%d non-completed rows skipped", s.NonCompleted))
	}
}

// Event prints a row event. Only problems are shown.
func (p *Printer) Event(e ingest.Event) {
	if e.Kind == ingest.EventRowError {
		p.Warning(fmt.Sprintf("line %d: %s", e.Line, e.Reason))
	}
}

// Accounts prints a table of bank accounts.
func (p *Printer) Accounts(accounts []*domain.BankAccount) {
	if len(accounts) == 0 {
		p.Info("no accounts")
		return
	}
	blue.Fprintf(p.w, "%-38s %-24s %-12s %s\n", "ID", "NAME", "FORMAT", "CURRENCY")
	for _, a := range accounts {
		fmt.Fprintf(p.w, "%-38s %-24s %-12s %s\n", a.ID, a.Name, a.BankFormat, a.Currency)
	}
}

// center centers text within a given width
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
