// Package dedup decides whether a candidate transaction was already imported.
//
// Two transactions are the same when they share calendar date, currency and
// description, and their amounts differ by less than parse.AmountEpsilon.
// The comparison runs against a snapshot of existing transactions; rows in
// the same file are never compared with each other.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/domain"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/parse"
)

// Scope selects which existing transactions a candidate is compared against.
type Scope string

const (
	// ScopeAccount compares against the user's transactions on the same account.
	ScopeAccount Scope = "account"
	// ScopeBankFormat compares against every transaction the user imported
	// from the same bank format, across accounts.
	ScopeBankFormat Scope = "bank_format"
)

// ParseScope validates a scope name. Empty means ScopeAccount.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.TrimSpace(s)) {
	case "", ScopeAccount:
		return ScopeAccount, nil
	case ScopeBankFormat:
		return ScopeBankFormat, nil
	}
	return "", fmt.Errorf("unknown dedup scope %q", s)
}

// Matches reports whether c and t describe the same movement.
func Matches(c *domain.Candidate, t *domain.Transaction) bool {
	if t == nil || c == nil {
		return false
	}
	return t.Date == c.DateString() &&
		t.Currency == c.Currency &&
		t.Description == c.Description &&
		c.Amount.Sub(t.Amount).Abs().LessThan(parse.AmountEpsilon)
}

// IsDuplicate reports whether any transaction in existing matches c.
func IsDuplicate(c *domain.Candidate, existing []*domain.Transaction) bool {
	for _, t := range existing {
		if Matches(c, t) {
			return true
		}
	}
	return false
}

// Index buckets a snapshot of existing transactions by date. It gives the same
// answers as IsDuplicate without scanning the whole history per row.
type Index struct {
	byDate map[string][]*domain.Transaction
	size   int
}

// NewIndex builds an index over existing. The slice is not retained.
func NewIndex(existing []*domain.Transaction) *Index {
	idx := &Index{byDate: make(map[string][]*domain.Transaction)}
	for _, t := range existing {
		if t == nil {
			continue
		}
		idx.byDate[t.Date] = append(idx.byDate[t.Date], t)
		idx.size++
	}
	return idx
}

// Len returns the number of indexed transactions.
func (idx *Index) Len() int {
	return idx.size
}

// IsDuplicate reports whether c matches an indexed transaction.
func (idx *Index) IsDuplicate(c *domain.Candidate) bool {
	return IsDuplicate(c, idx.byDate[c.DateString()])
}

// Fingerprint hashes the fields that identify a transaction within a scope.
// Format: SHA256("{user}|{scope}:{scopeValue}|{date}|{amount}|{currency}|{description}")
// with the amount in its exact canonical form, so the key never merges amounts
// that the epsilon comparison would keep apart.
func Fingerprint(scope Scope, scopeValue, userID string, c *domain.Candidate) string {
	input := strings.Join([]string{
		userID,
		string(scope) + ":" + scopeValue,
		c.DateString(),
		c.Amount.String(),
		c.Currency,
		c.Description,
	}, "|")
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// NaturalKey is the fingerprint suffixed with the candidate's occurrence
// ordinal within its file, so identical rows in one file get distinct keys
// while a re-import reproduces the same keys.
func NaturalKey(scope Scope, scopeValue, userID string, c *domain.Candidate, ordinal int) string {
	return fmt.Sprintf("%s-%d", Fingerprint(scope, scopeValue, userID, c), ordinal)
}

// Keyer assigns natural keys to the accepted candidates of one file, in file
// order. It is not safe for concurrent use.
type Keyer struct {
	scope      Scope
	scopeValue string
	userID     string
	seen       map[string]int
}

// NewKeyer creates a keyer for one ingestion run.
func NewKeyer(scope Scope, scopeValue, userID string) *Keyer {
	return &Keyer{
		scope:      scope,
		scopeValue: scopeValue,
		userID:     userID,
		seen:       make(map[string]int),
	}
}

// Key returns the natural key for the next occurrence of c.
func (k *Keyer) Key(c *domain.Candidate) string {
	fp := Fingerprint(k.scope, k.scopeValue, k.userID, c)
	n := k.seen[fp]
	k.seen[fp] = n + 1
	return fmt.Sprintf("%s-%d", fp, n)
}

// ScopeValue returns the account ID or bank format tag that partitions history
// for the given scope.
func ScopeValue(scope Scope, account *domain.BankAccount) string {
	if scope == ScopeBankFormat {
		return string(account.BankFormat)
	}
	return account.ID
}
