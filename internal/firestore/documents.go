package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
)

// accountDoc is the Firestore representation of a bank account.
type accountDoc struct {
	ID        string    `firestore:"id"`
	UserID    string    `firestore:"userId"`
	Name      string    `firestore:"name"`
	BankName  string    `firestore:"bankName"`
	Last4     string    `firestore:"last4"`
	BankType  string    `firestore:"bankType"`
	Currency  string    `firestore:"currency"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// statementDoc is the Firestore representation of a statement.
type statementDoc struct {
	ID                string    `firestore:"id"`
	UserID            string    `firestore:"userId"`
	AccountID         string    `firestore:"accountId"`
	StoragePath       string    `firestore:"storagePath"`
	Filename          string    `firestore:"filename"`
	SourceBank        string    `firestore:"sourceBank"`
	Status            string    `firestore:"status"`
	TransactionsCount int       `firestore:"transactionsCount"`
	Error             string    `firestore:"error"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// transactionDoc is the Firestore representation of a transaction. Amount is
// stored as a number for queries and as text for exact round trips.
type transactionDoc struct {
	ID          string    `firestore:"id"`
	NaturalKey  string    `firestore:"naturalKey"`
	UserID      string    `firestore:"userId"`
	AccountID   string    `firestore:"accountId"`
	StatementID string    `firestore:"statementId"`
	Date        string    `firestore:"date"`
	Description string    `firestore:"description"`
	Amount      float64   `firestore:"amount"`
	AmountText  string    `firestore:"amountText"`
	Currency    string    `firestore:"currency"`
	SourceID    string    `firestore:"sourceId"`
	SourceBank  string    `firestore:"sourceBank"`
	VendorGuess string    `firestore:"vendorGuess"`
	CategoryID  *string   `firestore:"categoryId"`
	VendorID    *string   `firestore:"vendorId"`
	InvoiceID   *string   `firestore:"invoiceId"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func toAccountDoc(a *domain.BankAccount) *accountDoc {
	return &accountDoc{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		BankName:  a.BankName,
		Last4:     a.Last4,
		BankType:  string(a.BankFormat),
		Currency:  a.Currency,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (d *accountDoc) toDomain() *domain.BankAccount {
	return &domain.BankAccount{
		ID:         d.ID,
		UserID:     d.UserID,
		Name:       d.Name,
		BankName:   d.BankName,
		Last4:      d.Last4,
		BankFormat: domain.BankFormat(d.BankType),
		Currency:   d.Currency,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func toStatementDoc(s *domain.Statement) *statementDoc {
	return &statementDoc{
		ID:                s.ID,
		UserID:            s.UserID,
		AccountID:         s.AccountID,
		StoragePath:       s.StoragePath,
		Filename:          s.Filename,
		SourceBank:        string(s.BankFormat),
		Status:            string(s.Status),
		TransactionsCount: s.TransactionsCount,
		Error:             s.Error,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (d *statementDoc) toDomain() *domain.Statement {
	return &domain.Statement{
		ID:                d.ID,
		UserID:            d.UserID,
		AccountID:         d.AccountID,
		StoragePath:       d.StoragePath,
		Filename:          d.Filename,
		BankFormat:        domain.BankFormat(d.SourceBank),
		Status:            domain.StatementStatus(d.Status),
		TransactionsCount: d.TransactionsCount,
		Error:             d.Error,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func toTransactionDoc(t *domain.Transaction) *transactionDoc {
	return &transactionDoc{
		ID:          t.ID,
		NaturalKey:  t.NaturalKey,
		UserID:      t.UserID,
		AccountID:   t.AccountID,
		StatementID: t.StatementID,
		Date:        t.Date,
		Description: t.Description,
		Amount:      t.Amount.InexactFloat64(),
		AmountText:  t.Amount.String(),
		Currency:    t.Currency,
		SourceID:    t.SourceID,
		SourceBank:  string(t.SourceBank),
		VendorGuess: t.VendorGuess,
		CategoryID:  t.CategoryID,
		VendorID:    t.VendorID,
		InvoiceID:   t.InvoiceID,
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
	}
}

func (d *transactionDoc) toDomain() (*domain.Transaction, error) {
	amount := decimal.NewFromFloat(d.Amount)
	if d.AmountText != "" {
		exact, err := decimal.NewFromString(d.AmountText)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: invalid amount %q: %w", d.ID, d.AmountText, err)
		}
		amount = exact
	}
	return &domain.Transaction{
		ID:          d.ID,
		NaturalKey:  d.NaturalKey,
		UserID:      d.UserID,
		AccountID:   d.AccountID,
		StatementID: d.StatementID,
		Date:        d.Date,
		Description: d.Description,
		Amount:      amount,
		Currency:    d.Currency,
		SourceID:    d.SourceID,
		SourceBank:  domain.BankFormat(d.SourceBank),
		VendorGuess: d.VendorGuess,
		CategoryID:  d.CategoryID,
		VendorID:    d.VendorID,
		InvoiceID:   d.InvoiceID,
		Status:      domain.MatchStatus(d.Status),
		CreatedAt:   d.CreatedAt,
	}, nil
}
