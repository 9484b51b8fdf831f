// Package stream provides dedup-by-id admission for the append-only
// collections replicated across the mesh. Because the store delivers
// at-least-once with no ordering guarantee, every record must be admitted
// to local state exactly once and kept in logical-timestamp order
// regardless of arrival order.
package stream

import (
	"sort"
	"sync"
	"time"
)

// Ledger holds at most one record per id, sorted by record time. The
// seen-set is exactly the ids currently held; there is no external id
// store to bound.
type Ledger[T any] struct {
	id   func(T) string
	at   func(T) time.Time
	desc bool

	mu      sync.RWMutex
	seen    map[string]struct{}
	records []T
}

// NewLedger builds a ledger ordered ascending by at. id and at extract the
// identity and logical timestamp of a record.
func NewLedger[T any](id func(T) string, at func(T) time.Time) *Ledger[T] {
	return &Ledger[T]{id: id, at: at, seen: make(map[string]struct{})}
}

// NewDescendingLedger builds a ledger ordered most-recent-first.
func NewDescendingLedger[T any](id func(T) string, at func(T) time.Time) *Ledger[T] {
	l := NewLedger(id, at)
	l.desc = true
	return l
}

// Admit inserts the record at its sort position and reports true, or
// rejects it: records with an empty id are silently refused, and an id
// already held makes re-delivery a no-op.
func (l *Ledger[T]) Admit(r T) bool {
	id := l.id(r)
	if id == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}

	at := l.at(r)
	idx := sort.Search(len(l.records), func(i int) bool {
		if l.desc {
			return l.at(l.records[i]).Before(at)
		}
		return l.at(l.records[i]).After(at)
	})
	l.records = append(l.records, r)
	copy(l.records[idx+1:], l.records[idx:])
	l.records[idx] = r
	return true
}

// Has reports whether an id has been admitted.
func (l *Ledger[T]) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[id]
	return ok
}

// Len returns the number of admitted records.
func (l *Ledger[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Snapshot returns a copy of the ordered records.
func (l *Ledger[T]) Snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]T, len(l.records))
	copy(out, l.records)
	return out
}
