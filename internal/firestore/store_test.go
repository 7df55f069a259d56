package firestore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
)

func TestCollectionPrefix(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		pr       string
		branch   string
		want     string
	}{
		{"explicit wins", "test_", "123", "feature/x", "test_"},
		{"pr number", "", "123", "feature/x", "pr_123_"},
		{"branch sanitized", "", "", "Feature/Auth_Flow", "preview_feature-auth-flow_"},
		{"main branch", "", "", "main", ""},
		{"production", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PR_NUMBER", tt.pr)
			t.Setenv("BRANCH_NAME", tt.branch)
			assert.Equal(t, tt.want, CollectionPrefix(tt.explicit))
		})
	}
}

func TestCollectionPrefix_Truncates(t *testing.T) {
	t.Setenv("PR_NUMBER", "")
	t.Setenv("BRANCH_NAME", "a-very-long-branch-name-that-keeps-going-and-going-beyond-fifty")

	got := CollectionPrefix("")
	assert.Len(t, got, len("preview_")+50+len("_"))
}

func TestTransactionDocRoundTrip(t *testing.T) {
	category := "cat-1"
	txn := &domain.Transaction{
		ID:          "key-0",
		NaturalKey:  "key-0",
		UserID:      "user-1",
		AccountID:   "acc-1",
		StatementID: "stmt-1",
		Date:        "2024-03-01",
		Description: "Coffee",
		Amount:      decimal.RequireFromString("-0.10"),
		Currency:    "EUR",
		SourceID:    "user-1/file.csv",
		SourceBank:  domain.BankFormatRevolut,
		VendorGuess: "Coffee Co",
		CategoryID:  &category,
		Status:      domain.MatchStatusUnmatched,
		CreatedAt:   time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}

	doc := toTransactionDoc(txn)
	assert.Equal(t, -0.1, doc.Amount)
	assert.Equal(t, "-0.1", doc.AmountText)
	assert.Equal(t, "revolut", doc.SourceBank)

	back, err := doc.toDomain()
	require.NoError(t, err)
	assert.True(t, back.Amount.Equal(txn.Amount))
	assert.Equal(t, txn.CategoryID, back.CategoryID)
	assert.Nil(t, back.VendorID)
	assert.Equal(t, txn.SourceBank, back.SourceBank)

	// Documents written without the text field fall back to the number.
	doc.AmountText = ""
	back, err = doc.toDomain()
	require.NoError(t, err)
	assert.True(t, back.Amount.Equal(decimal.RequireFromString("-0.1")))

	doc.AmountText = "garbage"
	_, err = doc.toDomain()
	assert.Error(t, err)
}

func TestAccountAndStatementDocs(t *testing.T) {
	acc := &domain.BankAccount{ID: "acc-1", UserID: "user-1", Name: "Main", BankFormat: domain.BankFormatBPI, Currency: "EUR"}
	assert.Equal(t, acc, toAccountDoc(acc).toDomain())

	stmt := &domain.Statement{
		ID:                "stmt-1",
		UserID:            "user-1",
		AccountID:         "acc-1",
		StoragePath:       "user-1/a.xlsx",
		Filename:          "a.xlsx",
		BankFormat:        domain.BankFormatBPI,
		Status:            domain.StatementStatusError,
		TransactionsCount: 3,
		Error:             "boom",
	}
	assert.Equal(t, stmt, toStatementDoc(stmt).toDomain())
}

func TestErrorMapping(t *testing.T) {
	err := notFound("account", "acc-1", fmt.Errorf("get: %w", status.Error(codes.NotFound, "missing")))
	assert.True(t, errors.Is(err, store.ErrNotFound))

	err = notFound("account", "acc-1", status.Error(codes.Unavailable, "down"))
	assert.False(t, errors.Is(err, store.ErrNotFound))

	err = created("statement", "stmt-1", status.Error(codes.AlreadyExists, "exists"))
	assert.True(t, errors.Is(err, store.ErrAlreadyExists))

	assert.NoError(t, created("statement", "stmt-1", nil))
	assert.Error(t, created("statement", "stmt-1", errors.New("boom")))
}

func TestSorting(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	statements := []*domain.Statement{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(time.Hour)},
	}
	sortStatements(statements)
	assert.Equal(t, "new", statements[0].ID)

	txns := []*domain.Transaction{
		{ID: "b", Date: "2024-03-02", CreatedAt: base},
		{ID: "a2", Date: "2024-03-01", CreatedAt: base.Add(time.Minute)},
		{ID: "a1", Date: "2024-03-01", CreatedAt: base},
	}
	sortTransactions(txns)
	assert.Equal(t, []string{"a1", "a2", "b"}, []string{txns[0].ID, txns[1].ID, txns[2].ID})
}
