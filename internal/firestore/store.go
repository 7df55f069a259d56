// Package firestore implements store.Store on Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
)

// Store implements store.Store using Firestore collections. Transaction
// documents are keyed by natural key, so a repeated insert is detected as an
// existing document.
type Store struct {
	client *firestore.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Firestore-backed store. prefix is prepended to every
// collection name.
func NewStore(client *firestore.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) collection(base string) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + base)
}

// Close closes the underlying Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// CreateAccount creates a new account. It fails if the ID is taken.
func (s *Store) CreateAccount(ctx context.Context, acc *domain.BankAccount) error {
	if err := acc.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	_, err := s.collection(accountsCollectionBase).Doc(acc.ID).Create(ctx, toAccountDoc(acc))
	return created("account", acc.ID, err)
}

// GetAccount retrieves an account by ID
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.BankAccount, error) {
	doc, err := s.collection(accountsCollectionBase).Doc(id).Get(ctx)
	if err != nil {
		return nil, notFound("account", id, err)
	}
	var d accountDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse account: %w", err)
	}
	d.ID = doc.Ref.ID
	return d.toDomain(), nil
}

// ListAccounts retrieves all accounts for a user
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error) {
	iter := s.collection(accountsCollectionBase).
		Where("userId", "==", userID).
		Documents(ctx)
	defer iter.Stop()

	var accounts []*domain.BankAccount
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate accounts for user %s: %w", userID, err)
		}

		var d accountDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse account: %w", err)
		}
		d.ID = doc.Ref.ID
		accounts = append(accounts, d.toDomain())
	}

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Name != accounts[j].Name {
			return accounts[i].Name < accounts[j].Name
		}
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}

// CreateStatement creates a new statement
func (s *Store) CreateStatement(ctx context.Context, stmt *domain.Statement) error {
	if stmt.ID == "" {
		return fmt.Errorf("statement ID is required")
	}
	_, err := s.collection(statementsCollectionBase).Doc(stmt.ID).Create(ctx, toStatementDoc(stmt))
	return created("statement", stmt.ID, err)
}

// UpdateStatement writes status, count and error of an existing statement.
func (s *Store) UpdateStatement(ctx context.Context, stmt *domain.Statement) error {
	_, err := s.collection(statementsCollectionBase).Doc(stmt.ID).Update(ctx, []firestore.Update{
		{Path: "status", Value: string(stmt.Status)},
		{Path: "transactionsCount", Value: stmt.TransactionsCount},
		{Path: "error", Value: stmt.Error},
		{Path: "updatedAt", Value: stmt.UpdatedAt},
	})
	if err != nil {
		return notFound("statement", stmt.ID, err)
	}
	return nil
}

// GetStatement retrieves a statement by ID
func (s *Store) GetStatement(ctx context.Context, id string) (*domain.Statement, error) {
	doc, err := s.collection(statementsCollectionBase).Doc(id).Get(ctx)
	if err != nil {
		return nil, notFound("statement", id, err)
	}
	var d statementDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse statement: %w", err)
	}
	d.ID = doc.Ref.ID
	return d.toDomain(), nil
}

// ListStatements retrieves all statements for a user, newest first
func (s *Store) ListStatements(ctx context.Context, userID string) ([]*domain.Statement, error) {
	iter := s.collection(statementsCollectionBase).
		Where("userId", "==", userID).
		Documents(ctx)
	defer iter.Stop()

	var statements []*domain.Statement
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate statements for user %s: %w", userID, err)
		}

		var d statementDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse statement: %w", err)
		}
		d.ID = doc.Ref.ID
		statements = append(statements, d.toDomain())
	}

	sortStatements(statements)
	return statements, nil
}

// ListTransactions retrieves the transactions matching filter, ordered by date
func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	q := s.collection(transactionsCollectionBase).Where("userId", "==", filter.UserID)
	if filter.AccountID != "" {
		q = q.Where("accountId", "==", filter.AccountID)
	}
	if filter.SourceBank != "" {
		q = q.Where("sourceBank", "==", string(filter.SourceBank))
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var txns []*domain.Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions for user %s: %w", filter.UserID, err)
		}

		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		d.ID = doc.Ref.ID
		txn, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	sortTransactions(txns)
	return txns, nil
}

// InsertTransactions creates the batch inside one Firestore transaction.
// Documents that already exist are left untouched and counted as conflicts.
func (s *Store) InsertTransactions(ctx context.Context, txns []*domain.Transaction) (store.InsertResult, error) {
	var result store.InsertResult
	if len(txns) == 0 {
		return result, nil
	}
	if len(txns) > store.MaxBatchSize {
		return result, fmt.Errorf("batch of %d exceeds limit of %d", len(txns), store.MaxBatchSize)
	}

	col := s.collection(transactionsCollectionBase)
	refs := make([]*firestore.DocumentRef, len(txns))
	for i, t := range txns {
		if err := t.Validate(); err != nil {
			return result, fmt.Errorf("invalid transaction %s: %w", t.ID, err)
		}
		refs[i] = col.Doc(t.ID)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// The function may be retried, so counts start over on each attempt.
		attempt := store.InsertResult{}
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return fmt.Errorf("failed to read existing transactions: %w", err)
		}
		seen := make(map[string]bool, len(txns))
		for i, snap := range snaps {
			if snap.Exists() || seen[txns[i].ID] {
				attempt.Conflicts = append(attempt.Conflicts, txns[i].ID)
				continue
			}
			seen[txns[i].ID] = true
			if err := tx.Create(refs[i], toTransactionDoc(txns[i])); err != nil {
				return fmt.Errorf("failed to stage transaction %s: %w", txns[i].ID, err)
			}
			attempt.Inserted++
		}
		result = attempt
		return nil
	})
	if err != nil {
		return store.InsertResult{}, fmt.Errorf("failed to insert transactions: %w", err)
	}
	return result, nil
}

// notFound maps a Firestore NotFound error to store.ErrNotFound.
func notFound(kind, id string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}

// created maps a Firestore AlreadyExists error to store.ErrAlreadyExists.
func created(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrAlreadyExists)
	}
	return fmt.Errorf("failed to create %s %s: %w", kind, id, err)
}

func sortStatements(statements []*domain.Statement) {
	sort.SliceStable(statements, func(i, j int) bool {
		return statements[i].CreatedAt.After(statements[j].CreatedAt)
	})
}

func sortTransactions(txns []*domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if txns[i].Date != txns[j].Date {
			return txns[i].Date < txns[j].Date
		}
		return txns[i].CreatedAt.Before(txns[j].CreatedAt)
	})
}
