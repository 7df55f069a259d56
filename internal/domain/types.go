package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BankFormat identifies which statement layout an account's files use.
// Use ParseBankFormat to validate user input.
type BankFormat string

const (
	BankFormatRevolut    BankFormat = "revolut"
	BankFormatBPI        BankFormat = "bpi"
	BankFormatCGD        BankFormat = "cgd"
	BankFormatMillennium BankFormat = "millennium"
	BankFormatSantander  BankFormat = "santander"
	BankFormatNovoBanco  BankFormat = "novobanco"
	BankFormatBankinter  BankFormat = "bankinter"
	BankFormatWise       BankFormat = "wise"
	BankFormatOther      BankFormat = "other"
)

// MatchStatus represents whether a transaction has been reconciled against an invoice.
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusIgnored   MatchStatus = "ignored"
)

var (
	validBankFormats = map[BankFormat]struct{}{
		BankFormatRevolut: {}, BankFormatBPI: {}, BankFormatCGD: {},
		BankFormatMillennium: {}, BankFormatSantander: {}, BankFormatNovoBanco: {},
		BankFormatBankinter: {}, BankFormatWise: {}, BankFormatOther: {},
	}

	validMatchStatuses = map[MatchStatus]struct{}{
		MatchStatusUnmatched: {}, MatchStatusMatched: {}, MatchStatusIgnored: {},
	}

	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ParseBankFormat normalises s and checks it against the known bank tags.
func ParseBankFormat(s string) (BankFormat, error) {
	f := BankFormat(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validBankFormats[f]; !ok {
		return "", fmt.Errorf("unknown bank format %q", s)
	}
	return f, nil
}

// ValidateMatchStatus checks if a match status is valid
func ValidateMatchStatus(s MatchStatus) bool {
	_, ok := validMatchStatuses[s]
	return ok
}

// ValidCurrency reports whether code is a three-letter uppercase ISO 4217 code.
func ValidCurrency(code string) bool {
	return currencyPattern.MatchString(code)
}

// BankAccount is a funding source owned by a user. BankFormat is fixed at creation.
type BankAccount struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	BankName   string     `json:"bankName,omitempty"`
	Last4      string     `json:"last4,omitempty"`
	BankFormat BankFormat `json:"bankType"`
	Currency   string     `json:"currency"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Validate checks if the BankAccount has valid data
func (a *BankAccount) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account ID is required")
	}
	if a.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account name is required")
	}
	if _, ok := validBankFormats[a.BankFormat]; !ok {
		return fmt.Errorf("invalid bank format %q", a.BankFormat)
	}
	if !ValidCurrency(a.Currency) {
		return fmt.Errorf("invalid currency %q", a.Currency)
	}
	return nil
}

// Statement is one ingestion run over an uploaded file.
type Statement struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	AccountID         string          `json:"accountId"`
	StoragePath       string          `json:"storagePath"`
	Filename          string          `json:"filename"`
	BankFormat        BankFormat      `json:"sourceBank"`
	Status            StatementStatus `json:"status"`
	TransactionsCount int             `json:"transactionsCount"`
	Error             string          `json:"error,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Candidate is a normalized transaction that has not been persisted yet.
type Candidate struct {
	Date        time.Time       `json:"date"` // UTC midnight
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // Negative = debit/outflow, positive = credit/inflow
	Currency    string          `json:"currency"`
	UserID      string          `json:"userId"`
	AccountID   string          `json:"accountId"`
	StatementID string          `json:"statementId"`
	SourceID    string          `json:"sourceId"` // storage path of the originating file
	VendorGuess string          `json:"vendorGuess,omitempty"`
}

// DateString returns the candidate's calendar date as YYYY-MM-DD.
func (c *Candidate) DateString() string {
	return c.Date.Format("2006-01-02")
}

// Validate checks the candidate invariants.
func (c *Candidate) Validate() error {
	if c.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if c.Date.Hour() != 0 || c.Date.Minute() != 0 || c.Date.Second() != 0 || c.Date.Nanosecond() != 0 {
		return fmt.Errorf("date must not carry a time of day")
	}
	if !ValidCurrency(c.Currency) {
		return fmt.Errorf("invalid currency %q", c.Currency)
	}
	if c.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if c.AccountID == "" {
		return fmt.Errorf("account ID is required")
	}
	return nil
}

// Transaction is a persisted candidate plus the fields users fill in afterwards.
type Transaction struct {
	ID          string          `json:"id"`
	NaturalKey  string          `json:"-"`
	UserID      string          `json:"userId"`
	AccountID   string          `json:"accountId"`
	StatementID string          `json:"statementId"`
	Date        string          `json:"date"` // ISO format YYYY-MM-DD
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	SourceID    string          `json:"sourceId"`
	SourceBank  BankFormat      `json:"sourceBank"`
	VendorGuess string          `json:"vendorGuess,omitempty"`
	CategoryID  *string         `json:"categoryId"`
	VendorID    *string         `json:"vendorId"`
	InvoiceID   *string         `json:"invoiceId"`
	Status      MatchStatus     `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// NewTransaction builds an unmatched, uncategorised transaction from an accepted candidate.
// The natural key doubles as the transaction ID so the storage layer can reject repeats.
func NewTransaction(c *Candidate, naturalKey string, sourceBank BankFormat, now time.Time) (*Transaction, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid candidate: %w", err)
	}
	if naturalKey == "" {
		return nil, fmt.Errorf("natural key is required")
	}
	return &Transaction{
		ID:          naturalKey,
		NaturalKey:  naturalKey,
		UserID:      c.UserID,
		AccountID:   c.AccountID,
		StatementID: c.StatementID,
		Date:        c.DateString(),
		Description: c.Description,
		Amount:      c.Amount,
		Currency:    c.Currency,
		SourceID:    c.SourceID,
		SourceBank:  sourceBank,
		VendorGuess: c.VendorGuess,
		Status:      MatchStatusUnmatched,
		CreatedAt:   now,
	}, nil
}

// Validate checks if the Transaction has valid data
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	if !ValidCurrency(t.Currency) {
		return fmt.Errorf("invalid currency %q", t.Currency)
	}
	if !ValidateMatchStatus(t.Status) {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	return nil
}
