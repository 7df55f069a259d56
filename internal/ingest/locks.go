package ingest

import "sync"

// AccountLocks serializes ingestion runs per account within one process.
// Entries are dropped once no goroutine holds or waits on them.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

// NewAccountLocks creates an empty lock set.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*accountLock)}
}

// Lock blocks until the lock for accountID is held and returns its release func.
func (l *AccountLocks) Lock(accountID string) (unlock func()) {
	l.mu.Lock()
	lk, ok := l.locks[accountID]
	if !ok {
		lk = &accountLock{}
		l.locks[accountID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lk.mu.Unlock()
			l.mu.Lock()
			lk.refs--
			if lk.refs == 0 {
				delete(l.locks, accountID)
			}
			l.mu.Unlock()
		})
	}
}

// held returns the number of accounts with a live entry.
func (l *AccountLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
