package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/dedup"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parser"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/registry"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/rules"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/storage"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store/sqlite"
)

const revolutHeader = "Type,Product,Started Date,Date completed (UTC),Description,Amount,Fee,Payment currency,State,Balance\n"

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *sqlite.Store
	root  string
	ids   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &fixture{store: st, root: t.TempDir()}
}

func (f *fixture) account(t *testing.T, id, userID string, format domain.BankFormat) {
	t.Helper()
	require.NoError(t, f.store.CreateAccount(context.Background(), &domain.BankAccount{
		ID:         id,
		UserID:     userID,
		Name:       "Account " + id,
		BankFormat: format,
		Currency:   "EUR",
		CreatedAt:  fixedNow,
		UpdatedAt:  fixedNow,
	}))
}

func (f *fixture) file(t *testing.T, name string, data []byte) string {
	t.Helper()
	full := filepath.Join(f.root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
	return name
}

func (f *fixture) service(opts Options) *Service {
	return f.serviceWith(f.store, opts)
}

func (f *fixture) serviceWith(st store.Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.NewID == nil {
		opts.NewID = func() string {
			f.ids++
			return fmt.Sprintf("stmt-%d", f.ids)
		}
	}
	return New(st, storage.NewLocalStore(f.root, 0), registry.New(), opts)
}

func revolutCSV(lines ...string) []byte {
	return []byte(revolutHeader + strings.Join(lines, "\n") + "\n")
}

func completed(date, desc, amount string) string {
	return fmt.Sprintf("CARD_PAYMENT,Current,%s 09:00:00,%s 10:00:00,%s,%s,0.00,EUR,COMPLETED,100.00", date, date, desc, amount)
}

func TestIngest_RevolutScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	path := f.file(t, "user-1/2024-03/revolut.csv", revolutCSV(
		completed("2024-03-01", "Coffee Shop", "-4.50"),
		"TOPUP,Current,2024-03-02 09:00:00,,Top-up,100.00,0.00,EUR,PENDING,200.00",
		completed("2024-03-03", "Salary", "1500.00"),
	))

	summary, err := f.service(Options{}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
	require.NoError(t, err)

	assert.Equal(t, "stmt-1", summary.StatementID)
	assert.Equal(t, "revolut", summary.BankFormat)
	assert.Equal(t, Tally{Processed: 3, Inserted: 2, NonCompleted: 1}, summary.Tally)
	assert.Equal(t, "parsed", summary.Status)
	assert.Equal(t, "3 rows processed, 2 inserted, 0 duplicates skipped, 0 errors", summary.Details())

	stmt, err := f.store.GetStatement(ctx, "stmt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatementStatusParsed, stmt.Status)
	assert.Equal(t, 2, stmt.TransactionsCount)
	assert.Equal(t, "revolut.csv", stmt.Filename)
	assert.Equal(t, domain.BankFormatRevolut, stmt.BankFormat)
	assert.Empty(t, stmt.Error)

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{UserID: "user-1", AccountID: "acc-1"})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "2024-03-01", txns[0].Date)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("-4.50")))
	assert.Equal(t, "stmt-1", txns[0].StatementID)
	assert.Equal(t, path, txns[0].SourceID)
	assert.Equal(t, domain.MatchStatusUnmatched, txns[0].Status)
	assert.Nil(t, txns[0].CategoryID)
	assert.True(t, txns[1].Amount.Equal(decimal.RequireFromString("1500")))
}

func TestIngest_ReimportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	path := f.file(t, "user-1/revolut.csv", revolutCSV(
		completed("2024-03-01", "Coffee Shop", "-4.50"),
		completed("2024-03-01", "Coffee Shop", "-4.50"),
		completed("2024-03-02", "Bakery", "-2.10"),
	))
	svc := f.service(Options{})
	req := Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path}

	first, err := svc.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted, "identical rows in one file are distinct transactions")

	second, err := svc.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Tally{Processed: 3, Duplicates: 3}, second.Tally)
	assert.Equal(t, "parsed", second.Status)

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, txns, 3)

	stmts, err := f.store.ListStatements(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, stmts, 2)
}

func TestIngest_ToleranceBoundaryOnReimport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	svc := f.service(Options{})

	ingestAmount := func(name, amount string) *Summary {
		t.Helper()
		path := f.file(t, "user-1/"+name, revolutCSV(completed("2024-03-01", "Coffee", amount)))
		summary, err := svc.Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
		require.NoError(t, err)
		return summary
	}

	assert.Equal(t, Tally{Processed: 1, Inserted: 1}, ingestAmount("base.csv", "10.000").Tally)
	assert.Equal(t, Tally{Processed: 1, Duplicates: 1}, ingestAmount("within.csv", "10.0009").Tally,
		"0.0009 apart is the same transaction")
	assert.Equal(t, Tally{Processed: 1, Inserted: 1}, ingestAmount("beyond.csv", "10.0011").Tally,
		"0.0011 apart is a distinct transaction")

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{AccountID: "acc-1"})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	amounts := []string{txns[0].Amount.String(), txns[1].Amount.String()}
	assert.ElementsMatch(t, []string{"10", "10.0011"}, amounts)
}

func bpiWorkbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	header := []interface{}{"Data Mov.", "Data Valor", "Descrição do Movimento", "Débito", "Crédito"}
	require.NoError(t, f.SetSheetRow(sheet, "A16", &header))
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", 17+i)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestIngest_BPIScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-bpi", "user-1", domain.BankFormatBPI)
	path := f.file(t, "user-1/extracto.xlsx", bpiWorkbook(t,
		[]interface{}{"01-03-2024", "01-03-2024", "COMPRA CONTINENTE MATOSINHOS", "23,40", ""},
		[]interface{}{"02-03-2024", "02-03-2024", "TRF RECEBIDA", "", "1.250,00"},
		[]interface{}{"31-02-2024", "31-02-2024", "DATA INVALIDA", "1,00", ""},
	))

	summary, err := f.service(Options{}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-bpi", StoragePath: path})
	require.NoError(t, err)
	assert.Equal(t, Tally{Processed: 3, Inserted: 2, Errors: 1}, summary.Tally)
	assert.Equal(t, "bpi", summary.BankFormat)

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{UserID: "user-1", AccountID: "acc-bpi"})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("-23.40")), "debit is negative")
	assert.True(t, txns[1].Amount.Equal(decimal.RequireFromString("1250")), "credit is positive")
	assert.Equal(t, "EUR", txns[0].Currency)
	assert.Equal(t, domain.BankFormatBPI, txns[0].SourceBank)
}

func TestIngest_MalformedDateIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)

	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, completed(fmt.Sprintf("2024-03-%02d", i), fmt.Sprintf("Shop %d", i), "-1.00"))
	}
	lines = append(lines, "CARD_PAYMENT,Current,,not-a-date,Broken,-1.00,0.00,EUR,COMPLETED,0.00")
	path := f.file(t, "user-1/revolut.csv", revolutCSV(lines...))

	summary, err := f.service(Options{}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
	require.NoError(t, err)
	assert.Equal(t, Tally{Processed: 11, Inserted: 10, Errors: 1}, summary.Tally)
	assert.Equal(t, "parsed", summary.Status)
}

func TestIngest_EmptyResultPolicy(t *testing.T) {
	tests := []struct {
		policy     EmptyResultPolicy
		wantStatus domain.StatementStatus
	}{
		{EmptyResultParsed, domain.StatementStatusParsed},
		{EmptyResultError, domain.StatementStatusError},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
			path := f.file(t, "user-1/bad.csv", revolutCSV(
				"CARD_PAYMENT,Current,,garbage,Broken,-1.00,0.00,EUR,COMPLETED,0.00",
			))

			summary, err := f.service(Options{EmptyResult: tt.policy}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
			require.NoError(t, err)
			assert.Equal(t, string(tt.wantStatus), summary.Status)

			stmt, err := f.store.GetStatement(ctx, summary.StatementID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stmt.Status)
			if tt.wantStatus == domain.StatementStatusError {
				assert.Contains(t, stmt.Error, "1 rows failed")
			}
		})
	}
}

func TestIngest_NonCompletedOnlyIsParsed(t *testing.T) {
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	path := f.file(t, "user-1/pending.csv", revolutCSV(
		"TOPUP,Current,2024-03-02 09:00:00,,Top-up,100.00,0.00,EUR,PENDING,200.00",
	))

	summary, err := f.service(Options{EmptyResult: EmptyResultError}).Ingest(context.Background(),
		Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
	require.NoError(t, err)
	assert.Equal(t, "parsed", summary.Status)
	assert.Equal(t, 1, summary.NonCompleted)
}

func TestIngest_RequestErrors(t *testing.T) {
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	f.account(t, "acc-cgd", "user-1", domain.BankFormatCGD)
	svc := f.service(Options{})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"missing user", Request{AccountID: "acc-1", StoragePath: "a.csv"}, ErrInvalidRequest},
		{"missing account", Request{UserID: "user-1", StoragePath: "a.csv"}, ErrInvalidRequest},
		{"missing path", Request{UserID: "user-1", AccountID: "acc-1", StoragePath: " "}, ErrInvalidRequest},
		{"unknown account", Request{UserID: "user-1", AccountID: "nope", StoragePath: "a.csv"}, ErrNotFound},
		{"foreign account", Request{UserID: "user-2", AccountID: "acc-1", StoragePath: "a.csv"}, ErrForbidden},
		{"unsupported format", Request{UserID: "user-1", AccountID: "acc-cgd", StoragePath: "a.csv"}, ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := svc.Ingest(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Nil(t, summary)
		})
	}

	stmts, err := f.store.ListStatements(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, stmts, "request errors must not create statements")
}

func TestIngest_NotFoundWrapsStoreError(t *testing.T) {
	f := newFixture(t)
	_, err := f.service(Options{}).Ingest(context.Background(), Request{UserID: "u", AccountID: "missing", StoragePath: "a.csv"})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestIngest_MissingFileMarksStatementError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)

	summary, err := f.service(Options{}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: "user-1/missing.csv"})
	require.Error(t, err)

	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "user-1/missing.csv", storageErr.Path)
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound))

	require.NotNil(t, summary)
	assert.Equal(t, "error", summary.Status)

	stmt, err := f.store.GetStatement(ctx, summary.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementStatusError, stmt.Status)
	assert.Contains(t, stmt.Error, "missing.csv")
	assert.Equal(t, 0, stmt.TransactionsCount)
}

func TestIngest_MalformedFileMarksStatementError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	path := f.file(t, "user-1/wrong.csv", []byte("foo,bar\n1,2\n"))

	summary, err := f.service(Options{}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
	require.Error(t, err)

	var formatErr *parser.FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, domain.BankFormatRevolut, formatErr.Format)

	stmt, err := f.store.GetStatement(ctx, summary.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementStatusError, stmt.Status)
	assert.NotEmpty(t, stmt.Error)
}

// failingStore wraps a store and fails InsertTransactions from the given call on.
type failingStore struct {
	store.Store
	failFrom  int
	calls     int
	hideExist bool
}

func (s *failingStore) InsertTransactions(ctx context.Context, txns []*domain.Transaction) (store.InsertResult, error) {
	s.calls++
	if s.failFrom > 0 && s.calls >= s.failFrom {
		return store.InsertResult{}, errors.New("deadline exceeded")
	}
	return s.Store.InsertTransactions(ctx, txns)
}

func (s *failingStore) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	if s.hideExist {
		return nil, nil
	}
	return s.Store.ListTransactions(ctx, filter)
}

func TestIngest_PartialInsertFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)

	var lines []string
	for i := 1; i <= 5; i++ {
		lines = append(lines, completed(fmt.Sprintf("2024-03-%02d", i), "Shop", "-1.00"))
	}
	path := f.file(t, "user-1/revolut.csv", revolutCSV(lines...))

	st := &failingStore{Store: f.store, failFrom: 2}
	summary, err := f.serviceWith(st, Options{BatchSize: 2}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
	require.Error(t, err)

	var persistErr *PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, "insert transactions", persistErr.Op)
	assert.Equal(t, 2, persistErr.Committed)

	stmt, err := f.store.GetStatement(ctx, summary.StatementID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatementStatusError, stmt.Status)
	assert.Equal(t, 2, stmt.TransactionsCount)
	assert.Contains(t, stmt.Error, "deadline exceeded")

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestIngest_StorageConflictsCountAsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	path := f.file(t, "user-1/revolut.csv", revolutCSV(
		completed("2024-03-01", "Coffee Shop", "-4.50"),
		completed("2024-03-02", "Bakery", "-2.10"),
	))
	req := Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path}

	_, err := f.service(Options{}).Ingest(ctx, req)
	require.NoError(t, err)

	// A run that missed the snapshot still cannot write the rows twice.
	st := &failingStore{Store: f.store, hideExist: true}
	summary, err := f.serviceWith(st, Options{}).Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, Tally{Processed: 2, Duplicates: 2}, summary.Tally)
}

func TestIngest_DedupScope(t *testing.T) {
	ctx := context.Background()
	data := revolutCSV(completed("2024-03-01", "Coffee Shop", "-4.50"))

	tests := []struct {
		scope          dedup.Scope
		wantDuplicates int
	}{
		{dedup.ScopeAccount, 0},
		{dedup.ScopeBankFormat, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			f := newFixture(t)
			f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
			f.account(t, "acc-2", "user-1", domain.BankFormatRevolut)
			path := f.file(t, "user-1/revolut.csv", data)
			svc := f.service(Options{Scope: tt.scope})

			_, err := svc.Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
			require.NoError(t, err)

			summary, err := svc.Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-2", StoragePath: path})
			require.NoError(t, err)
			assert.Equal(t, tt.wantDuplicates, summary.Duplicates)
			assert.Equal(t, 1-tt.wantDuplicates, summary.Inserted)
		})
	}
}

func TestIngest_VendorGuess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	path := f.file(t, "user-1/revolut.csv", revolutCSV(
		completed("2024-03-01", "Continente Matosinhos", "-30.00"),
		completed("2024-03-02", "Corner Shop", "-3.00"),
	))

	engine, err := rules.LoadEmbedded()
	require.NoError(t, err)

	_, err = f.service(Options{Rules: engine}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
	require.NoError(t, err)

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "Continente", txns[0].VendorGuess)
	assert.Empty(t, txns[1].VendorGuess)
}

func TestIngest_EmitsOneEventPerRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	path := f.file(t, "user-1/revolut.csv", revolutCSV(
		completed("2024-03-01", "Coffee Shop", "-4.50"),
		"TOPUP,Current,2024-03-02 09:00:00,,Top-up,100.00,0.00,EUR,REVERTED,200.00",
		"CARD_PAYMENT,Current,,bad,Broken,-1.00,0.00,EUR,COMPLETED,0.00",
	))

	var events []Event
	sink := EventSinkFunc(func(e Event) { events = append(events, e) })

	_, err := f.service(Options{Sink: sink}).Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
	require.NoError(t, err)
	require.Len(t, events, 3)

	byLine := make(map[int]Event)
	for _, e := range events {
		assert.Equal(t, "stmt-1", e.StatementID)
		byLine[e.Line] = e
	}
	assert.Equal(t, EventInserted, byLine[2].Kind)
	assert.NotEmpty(t, byLine[2].TransactionID)
	assert.Equal(t, EventNonCompleted, byLine[3].Kind)
	assert.Equal(t, EventRowError, byLine[4].Kind)
	assert.NotEmpty(t, byLine[4].Reason)
}

func TestTally(t *testing.T) {
	var tally Tally
	for _, k := range []EventKind{EventInserted, EventInserted, EventDuplicate, EventNonCompleted, EventRowError} {
		tally.Emit(Event{Kind: k})
	}
	assert.Equal(t, Tally{Processed: 5, Inserted: 2, Duplicates: 1, NonCompleted: 1, Errors: 1}, tally)
}

func TestAccountLocks(t *testing.T) {
	locks := NewAccountLocks()

	unlock := locks.Lock("acc-1")
	acquired := make(chan struct{})
	go func() {
		release := locks.Lock("acc-1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}

	// Other accounts are independent.
	other := locks.Lock("acc-2")
	other()

	unlock()
	unlock() // idempotent
	<-acquired

	assert.Eventually(t, func() bool { return locks.held() == 0 }, time.Second, time.Millisecond)
}

func TestIngest_ConcurrentRunsOnSameAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "acc-1", "user-1", domain.BankFormatRevolut)
	path := f.file(t, "user-1/revolut.csv", revolutCSV(
		completed("2024-03-01", "Coffee Shop", "-4.50"),
		completed("2024-03-02", "Bakery", "-2.10"),
	))

	var mu sync.Mutex
	n := 0
	svc := f.service(Options{NewID: func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("stmt-%d", n)
	}})

	var wg sync.WaitGroup
	results := make([]*Summary, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := svc.Ingest(ctx, Request{UserID: "user-1", AccountID: "acc-1", StoragePath: path})
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	inserted := 0
	for _, s := range results {
		require.NotNil(t, s)
		inserted += s.Inserted
	}
	assert.Equal(t, 2, inserted)
}
