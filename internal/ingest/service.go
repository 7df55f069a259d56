// Package ingest turns an uploaded statement file into persisted transactions.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/dedup"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/logger"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parser"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/registry"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/rules"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/storage"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
)

// EmptyResultPolicy decides the final status of a run that inserted nothing
// and hit row errors.
type EmptyResultPolicy string

const (
	EmptyResultParsed EmptyResultPolicy = "parsed"
	EmptyResultError  EmptyResultPolicy = "error"
)

// Request identifies the file to ingest and who is asking.
type Request struct {
	UserID      string
	AccountID   string
	StoragePath string
}

// Validate checks that all identifiers are present.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(r.AccountID) == "" {
		missing = append(missing, "accountId")
	}
	if strings.TrimSpace(r.StoragePath) == "" {
		missing = append(missing, "storagePath")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Scope       dedup.Scope
	EmptyResult EmptyResultPolicy
	Rules       *rules.Engine
	Sink        EventSink
	Locks       *AccountLocks
	BatchSize   int
	Now         func() time.Time
	NewID       func() string
}

// Service runs ingestion against a store and a file source.
type Service struct {
	store    store.Store
	files    storage.FileStore
	registry *registry.Registry
	opts     Options
}

// New creates a Service.
func New(st store.Store, files storage.FileStore, reg *registry.Registry, opts Options) *Service {
	if opts.Scope == "" {
		opts.Scope = dedup.ScopeAccount
	}
	if opts.EmptyResult == "" {
		opts.EmptyResult = EmptyResultParsed
	}
	if opts.Locks == nil {
		opts.Locks = NewAccountLocks()
	}
	if opts.BatchSize <= 0 || opts.BatchSize > store.MaxBatchSize {
		opts.BatchSize = store.MaxBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{store: st, files: files, registry: reg, opts: opts}
}

// run holds the state of one ingestion.
type run struct {
	req       Request
	account   *domain.BankAccount
	parser    parser.Parser
	statement *domain.Statement
	tally     Tally
	sink      EventSink
	log       *zerolog.Logger
}

func (r *run) emit(e Event) {
	e.StatementID = r.statement.ID
	r.sink.Emit(e)
}

// Ingest processes the file at req.StoragePath into req.AccountID.
//
// Request-level failures (ErrInvalidRequest, ErrNotFound, ErrForbidden,
// ErrUnsupportedFormat) happen before any write. Once the statement exists,
// every failure marks it error and the partial Summary is returned alongside
// the error.
func (s *Service) Ingest(ctx context.Context, req Request) (*Summary, error) {
	log := logger.FromContext(ctx)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	account, err := s.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.AccountID)
		}
		return nil, &PersistenceError{Op: "load bank account", Err: err}
	}
	if account.UserID != req.UserID {
		return nil, ErrForbidden
	}

	p, err := s.registry.Lookup(account.BankFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, account.BankFormat)
	}

	unlock := s.opts.Locks.Lock(account.ID)
	defer unlock()

	stmt, err := s.createStatement(ctx, req, account)
	if err != nil {
		return nil, err
	}

	runLog := log.With().
		Str("statement_id", stmt.ID).
		Str("account_id", account.ID).
		Str("bank_format", string(account.BankFormat)).
		Logger()

	r := &run{
		req:       req,
		account:   account,
		parser:    p,
		statement: stmt,
		log:       &runLog,
	}
	r.sink = multiSink{&r.tally, logSink{log: &runLog}, s.opts.Sink}

	runLog.Info().Str("storage_path", req.StoragePath).Msg("Statement ingestion started")

	if err := s.process(ctx, r); err != nil {
		s.fail(ctx, r, err)
		return s.summary(r), err
	}
	if err := s.finish(ctx, r); err != nil {
		s.fail(ctx, r, err)
		return s.summary(r), err
	}

	summary := s.summary(r)
	runLog.Info().
		Int("processed", summary.Processed).
		Int("inserted", summary.Inserted).
		Int("duplicates", summary.Duplicates).
		Int("non_completed", summary.NonCompleted).
		Int("errors", summary.Errors).
		Str("status", summary.Status).
		Msg("Statement ingestion finished")
	return summary, nil
}

func (s *Service) createStatement(ctx context.Context, req Request, account *domain.BankAccount) (*domain.Statement, error) {
	if err := domain.ValidateStatementTransition(domain.StatementStatusUploaded, domain.StatementStatusParsing); err != nil {
		return nil, err
	}
	now := s.opts.Now()
	stmt := &domain.Statement{
		ID:          s.opts.NewID(),
		UserID:      req.UserID,
		AccountID:   account.ID,
		StoragePath: req.StoragePath,
		Filename:    path.Base(req.StoragePath),
		BankFormat:  account.BankFormat,
		Status:      domain.StatementStatusParsing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateStatement(ctx, stmt); err != nil {
		return nil, &PersistenceError{Op: "create statement", Err: err}
	}
	return stmt, nil
}

func (s *Service) process(ctx context.Context, r *run) error {
	data, err := s.files.Fetch(ctx, r.req.StoragePath)
	if err != nil {
		return &StorageError{Path: r.req.StoragePath, Err: err}
	}

	filter := store.TransactionFilter{UserID: r.req.UserID}
	if s.opts.Scope == dedup.ScopeBankFormat {
		filter.SourceBank = r.account.BankFormat
	} else {
		filter.AccountID = r.account.ID
	}
	existing, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return &PersistenceError{Op: "load existing transactions", Err: err}
	}
	index := dedup.NewIndex(existing)

	rows, err := r.parser.Rows(ctx, data)
	if err != nil {
		return err
	}

	rc := parser.RowContext{
		UserID:       r.req.UserID,
		AccountID:    r.account.ID,
		StatementID:  r.statement.ID,
		SourceID:     r.req.StoragePath,
		HomeCurrency: r.account.Currency,
	}
	keyer := dedup.NewKeyer(s.opts.Scope, dedup.ScopeValue(s.opts.Scope, r.account), r.req.UserID)
	now := s.opts.Now()

	var pending []*domain.Transaction
	lines := make(map[string]int)

	for _, row := range rows {
		out := parser.Safe(r.parser, row, rc)
		switch out.Kind {
		case parser.Accepted:
			c := out.Candidate
			s.opts.Rules.Apply(c)
			key := keyer.Key(c)
			if index.IsDuplicate(c) {
				r.emit(Event{Line: row.Line, Kind: EventDuplicate, Reason: "matches an existing transaction", TransactionID: key})
				continue
			}
			txn, err := domain.NewTransaction(c, key, r.account.BankFormat, now)
			if err != nil {
				r.emit(Event{Line: row.Line, Kind: EventRowError, Reason: err.Error()})
				continue
			}
			pending = append(pending, txn)
			lines[txn.ID] = row.Line
		case parser.SkippedNonCompleted:
			r.emit(Event{Line: row.Line, Kind: EventNonCompleted, Reason: out.Reason})
		case parser.SkippedDuplicate:
			r.emit(Event{Line: row.Line, Kind: EventDuplicate, Reason: out.Reason})
		default:
			r.emit(Event{Line: row.Line, Kind: EventRowError, Reason: out.Reason})
		}
	}

	return s.insert(ctx, r, pending, lines)
}

// insert writes pending transactions in batches. Each batch is atomic; a
// failure leaves earlier batches committed.
func (s *Service) insert(ctx context.Context, r *run, pending []*domain.Transaction, lines map[string]int) error {
	for start := 0; start < len(pending); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(pending))
		batch := pending[start:end]

		if err := ctx.Err(); err != nil {
			return &PersistenceError{Op: "insert transactions", Committed: r.tally.Inserted, Err: err}
		}
		res, err := s.store.InsertTransactions(ctx, batch)
		if err != nil {
			return &PersistenceError{Op: "insert transactions", Committed: r.tally.Inserted, Err: err}
		}

		conflicts := make(map[string]bool, len(res.Conflicts))
		for _, id := range res.Conflicts {
			conflicts[id] = true
		}
		for _, txn := range batch {
			if conflicts[txn.ID] {
				r.emit(Event{Line: lines[txn.ID], Kind: EventDuplicate, Reason: "natural key already stored", TransactionID: txn.ID})
				continue
			}
			r.emit(Event{Line: lines[txn.ID], Kind: EventInserted, TransactionID: txn.ID})
		}

		r.log.Debug().Int("batch_start", start).Int("inserted", res.Inserted).Int("conflicts", len(res.Conflicts)).Msg("Batch committed")
	}
	return nil
}

// finish records the terminal status. It is the last write of a successful run.
func (s *Service) finish(ctx context.Context, r *run) error {
	to := domain.StatementStatusParsed
	var message string
	if s.opts.EmptyResult == EmptyResultError && r.tally.Inserted == 0 && r.tally.Errors > 0 {
		to = domain.StatementStatusError
		message = fmt.Sprintf("no transactions imported: %d rows failed to parse", r.tally.Errors)
	}
	if err := domain.ValidateStatementTransition(r.statement.Status, to); err != nil {
		return err
	}

	next := *r.statement
	next.Status = to
	next.Error = message
	next.TransactionsCount = r.tally.Inserted
	next.UpdatedAt = s.opts.Now()
	if err := s.store.UpdateStatement(ctx, &next); err != nil {
		return &PersistenceError{Op: "update statement", Committed: r.tally.Inserted, Err: err}
	}
	*r.statement = next
	return nil
}

// fail marks the statement error. The write is best effort and survives a
// cancelled request context.
func (s *Service) fail(ctx context.Context, r *run, cause error) {
	if err := domain.ValidateStatementTransition(r.statement.Status, domain.StatementStatusError); err != nil {
		r.log.Error().Err(err).Msg("Cannot mark statement as failed")
		return
	}

	next := *r.statement
	next.Status = domain.StatementStatusError
	next.Error = cause.Error()
	next.TransactionsCount = r.tally.Inserted
	next.UpdatedAt = s.opts.Now()

	if err := s.store.UpdateStatement(context.WithoutCancel(ctx), &next); err != nil {
		r.log.Error().Err(err).AnErr("cause", cause).Msg("Failed to mark statement as failed")
		return
	}
	*r.statement = next
	r.log.Warn().Err(cause).Int("committed", r.tally.Inserted).Msg("Statement ingestion failed")
}

func (s *Service) summary(r *run) *Summary {
	return &Summary{
		StatementID: r.statement.ID,
		BankFormat:  string(r.account.BankFormat),
		Tally:       r.tally,
		Status:      string(r.statement.Status),
	}
}
