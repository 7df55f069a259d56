// Package store defines the persistence contract shared by the Firestore and
// SQLite backends.
package store

import (
	"context"
	"errors"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a record whose ID is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// MaxBatchSize is the largest number of transactions written in one
// InsertTransactions call. It matches the Firestore per-transaction write limit.
const MaxBatchSize = 500

// TransactionFilter selects a user's transactions. AccountID and SourceBank
// narrow the result when set.
type TransactionFilter struct {
	UserID     string
	AccountID  string
	SourceBank domain.BankFormat
}

// InsertResult reports how a batch was applied.
type InsertResult struct {
	Inserted  int
	Conflicts []string // IDs of rows whose natural key already existed
}

// AccountStore persists bank accounts. There is no update: the bank format of
// an account is fixed once created.
type AccountStore interface {
	CreateAccount(ctx context.Context, acc *domain.BankAccount) error
	GetAccount(ctx context.Context, id string) (*domain.BankAccount, error)
	ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error)
}

// StatementStore persists statements and their lifecycle.
type StatementStore interface {
	CreateStatement(ctx context.Context, stmt *domain.Statement) error
	UpdateStatement(ctx context.Context, stmt *domain.Statement) error
	GetStatement(ctx context.Context, id string) (*domain.Statement, error)
	ListStatements(ctx context.Context, userID string) ([]*domain.Statement, error)
}

// TransactionStore persists transactions. InsertTransactions applies a batch of
// at most MaxBatchSize rows atomically; rows whose natural key already exists
// are counted as conflicts and skipped.
type TransactionStore interface {
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error)
	InsertTransactions(ctx context.Context, txns []*domain.Transaction) (InsertResult, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	AccountStore
	StatementStore
	TransactionStore
	Close() error
}
