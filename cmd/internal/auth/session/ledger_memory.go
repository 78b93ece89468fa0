package session

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is a mutex-guarded Ledger for tests and database-less dev mode.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]LedgerEntry
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]LedgerEntry)}
}

func (l *MemoryLedger) Record(ctx context.Context, e LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[e.TokenID] = e
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, tokenID string) (LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return LedgerEntry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[tokenID]
	if !ok {
		return LedgerEntry{}, ErrTokenNotFound
	}
	return e, nil
}

func (l *MemoryLedger) Revoke(ctx context.Context, tokenID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[tokenID]
	if !ok {
		return ErrTokenNotFound
	}
	if e.RevokedAt == nil {
		at := now
		e.RevokedAt = &at
		l.entries[tokenID] = e
	}
	return nil
}

func (l *MemoryLedger) Rotate(ctx context.Context, oldTokenID string, next LedgerEntry, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old, ok := l.entries[oldTokenID]
	if !ok {
		return ErrTokenNotFound
	}
	if old.RevokedAt != nil {
		return ErrTokenRevoked
	}

	at := now
	old.RevokedAt = &at
	l.entries[oldTokenID] = old
	l.entries[next.TokenID] = next
	return nil
}

func (l *MemoryLedger) RevokeAllForUser(ctx context.Context, userID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, e := range l.entries {
		if e.UserID == userID && e.RevokedAt == nil {
			at := now
			e.RevokedAt = &at
			l.entries[id] = e
		}
	}
	return nil
}

func (l *MemoryLedger) DeleteForUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, e := range l.entries {
		if e.UserID == userID {
			delete(l.entries, id)
		}
	}
	return nil
}

// CountForUser returns how many entries userID owns.
func (l *MemoryLedger) CountForUser(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n
}
