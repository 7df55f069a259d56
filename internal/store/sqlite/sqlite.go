// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
)

// Fixed-width so that timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bank_accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		bank_name TEXT NOT NULL DEFAULT '',
		last4 TEXT NOT NULL DEFAULT '',
		bank_format TEXT NOT NULL,
		currency TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bank_accounts_user ON bank_accounts(user_id)`,
	`CREATE TABLE IF NOT EXISTS statements (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		filename TEXT NOT NULL,
		bank_format TEXT NOT NULL,
		status TEXT NOT NULL,
		transactions_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_statements_user ON statements(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		natural_key TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		statement_id TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		source_id TEXT NOT NULL,
		source_bank TEXT NOT NULL,
		vendor_guess TEXT NOT NULL DEFAULT '',
		category_id TEXT,
		vendor_id TEXT,
		invoice_id TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(user_id, account_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_bank ON transactions(user_id, source_bank, date)`,
}

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount inserts a new bank account.
func (s *Store) CreateAccount(ctx context.Context, acc *domain.BankAccount) error {
	if err := acc.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, user_id, name, bank_name, last4, bank_format, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		acc.ID, acc.UserID, acc.Name, acc.BankName, acc.Last4, string(acc.BankFormat), acc.Currency,
		formatTime(acc.CreatedAt), formatTime(acc.UpdatedAt))
	return created("account", acc.ID, res, err)
}

const accountColumns = `id, user_id, name, bank_name, last4, bank_format, currency, created_at, updated_at`

// GetAccount returns the account with the given ID.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.BankAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id = ?`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	return acc, nil
}

// ListAccounts returns the user's accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for user %s: %w", userID, err)
	}
	defer rows.Close()

	var accounts []*domain.BankAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to parse account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// CreateStatement inserts a new statement.
func (s *Store) CreateStatement(ctx context.Context, stmt *domain.Statement) error {
	if stmt.ID == "" {
		return fmt.Errorf("statement ID is required")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO statements (id, user_id, account_id, storage_path, filename, bank_format, status, transactions_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		stmt.ID, stmt.UserID, stmt.AccountID, stmt.StoragePath, stmt.Filename, string(stmt.BankFormat),
		string(stmt.Status), stmt.TransactionsCount, stmt.Error, formatTime(stmt.CreatedAt), formatTime(stmt.UpdatedAt))
	return created("statement", stmt.ID, res, err)
}

// UpdateStatement writes the mutable statement fields: status, count and error.
func (s *Store) UpdateStatement(ctx context.Context, stmt *domain.Statement) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE statements SET status = ?, transactions_count = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		string(stmt.Status), stmt.TransactionsCount, stmt.Error, formatTime(stmt.UpdatedAt), stmt.ID)
	if err != nil {
		return fmt.Errorf("failed to update statement %s: %w", stmt.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update statement %s: %w", stmt.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("statement %s: %w", stmt.ID, store.ErrNotFound)
	}
	return nil
}

const statementColumns = `id, user_id, account_id, storage_path, filename, bank_format, status, transactions_count, error, created_at, updated_at`

// GetStatement returns the statement with the given ID.
func (s *Store) GetStatement(ctx context.Context, id string) (*domain.Statement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM statements WHERE id = ?`, id)
	stmt, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("statement %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load statement %s: %w", id, err)
	}
	return stmt, nil
}

// ListStatements returns the user's statements, newest first.
func (s *Store) ListStatements(ctx context.Context, userID string) ([]*domain.Statement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+statementColumns+` FROM statements WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list statements for user %s: %w", userID, err)
	}
	defer rows.Close()

	var statements []*domain.Statement
	for rows.Next() {
		stmt, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to parse statement: %w", err)
		}
		statements = append(statements, stmt)
	}
	return statements, rows.Err()
}

const transactionColumns = `id, natural_key, user_id, account_id, statement_id, date, description, amount, currency,
	source_id, source_bank, vendor_guess, category_id, vendor_id, invoice_id, status, created_at`

// ListTransactions returns the transactions matching filter ordered by date.
func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []interface{}{filter.UserID}
	if filter.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, filter.AccountID)
	}
	if filter.SourceBank != "" {
		query += ` AND source_bank = ?`
		args = append(args, string(filter.SourceBank))
	}
	query += ` ORDER BY date, created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %s: %w", filter.UserID, err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// InsertTransactions writes txns in one SQL transaction. Rows whose ID or
// natural key already exist are skipped and counted as conflicts.
func (s *Store) InsertTransactions(ctx context.Context, txns []*domain.Transaction) (store.InsertResult, error) {
	var result store.InsertResult
	if len(txns) == 0 {
		return result, nil
	}
	if len(txns) > store.MaxBatchSize {
		return result, fmt.Errorf("batch of %d exceeds limit of %d", len(txns), store.MaxBatchSize)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ins, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer ins.Close()

	for _, t := range txns {
		if err := t.Validate(); err != nil {
			return store.InsertResult{}, fmt.Errorf("invalid transaction %s: %w", t.ID, err)
		}
		res, err := ins.ExecContext(ctx,
			t.ID, t.NaturalKey, t.UserID, t.AccountID, t.StatementID, t.Date, t.Description,
			t.Amount.String(), t.Currency, t.SourceID, string(t.SourceBank), t.VendorGuess,
			nullString(t.CategoryID), nullString(t.VendorID), nullString(t.InvoiceID),
			string(t.Status), formatTime(t.CreatedAt))
		if err != nil {
			return store.InsertResult{}, fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return store.InsertResult{}, fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
		if n == 0 {
			result.Conflicts = append(result.Conflicts, t.ID)
		} else {
			result.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return store.InsertResult{}, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return result, nil
}

// created reports an insert that hit an existing ID as store.ErrAlreadyExists.
func created(kind, id string, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("failed to create %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrAlreadyExists)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (*domain.BankAccount, error) {
	var acc domain.BankAccount
	var format, created, updated string
	if err := row.Scan(&acc.ID, &acc.UserID, &acc.Name, &acc.BankName, &acc.Last4, &format, &acc.Currency, &created, &updated); err != nil {
		return nil, err
	}
	acc.BankFormat = domain.BankFormat(format)
	var err error
	if acc.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if acc.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &acc, nil
}

func scanStatement(row scanner) (*domain.Statement, error) {
	var stmt domain.Statement
	var format, status, created, updated string
	if err := row.Scan(&stmt.ID, &stmt.UserID, &stmt.AccountID, &stmt.StoragePath, &stmt.Filename, &format,
		&status, &stmt.TransactionsCount, &stmt.Error, &created, &updated); err != nil {
		return nil, err
	}
	stmt.BankFormat = domain.BankFormat(format)
	stmt.Status = domain.StatementStatus(status)
	var err error
	if stmt.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if stmt.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &stmt, nil
}

func scanTransaction(row scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount, sourceBank, status, created string
	var category, vendor, invoice sql.NullString
	if err := row.Scan(&t.ID, &t.NaturalKey, &t.UserID, &t.AccountID, &t.StatementID, &t.Date, &t.Description,
		&amount, &t.Currency, &t.SourceID, &sourceBank, &t.VendorGuess, &category, &vendor, &invoice,
		&status, &created); err != nil {
		return nil, err
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	t.SourceBank = domain.BankFormat(sourceBank)
	t.Status = domain.MatchStatus(status)
	t.CategoryID = stringPtr(category)
	t.VendorID = stringPtr(vendor)
	t.InvoiceID = stringPtr(invoice)
	return &t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
