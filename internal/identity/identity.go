// Package identity allocates placeholder references for items that have not
// reached the remote store yet, and swaps them for confirmed ones.
package identity

import (
	"sync"
	"time"

	"tabtask/internal/domain"
)

// Allocator hands out pending refs derived from the wall clock in
// milliseconds. Values are strictly increasing within a process even when
// the clock stalls or steps backwards.
type Allocator struct {
	mu   sync.Mutex
	last int64
	Now  func() time.Time
}

func NewAllocator() *Allocator {
	return &Allocator{Now: time.Now}
}

// Allocate returns a fresh pending ref.
func (a *Allocator) Allocate() domain.Ref {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	next := now().UnixMilli()
	if next <= a.last {
		next = a.last + 1
	}
	a.last = next
	return domain.Pending(next)
}

// Keyed is an item addressed by a ref.
type Keyed[T any] interface {
	Key() domain.Ref
	WithRef(domain.Ref) T
}

// Reconcile replaces the item keyed pending with confirmed in one pass. Any
// stale copy already keyed by the confirmed ref is dropped so the result never
// holds a duplicate. It reports false when pending is no longer present, in
// which case items is returned untouched.
func Reconcile[T Keyed[T]](items []T, pending domain.Ref, confirmed T) ([]T, bool) {
	idx := -1
	for i, it := range items {
		if it.Key() == pending {
			idx = i
			break
		}
	}
	if idx < 0 {
		return items, false
	}
	out := make([]T, 0, len(items))
	for i, it := range items {
		switch {
		case i == idx:
			out = append(out, confirmed)
		case it.Key() == confirmed.Key():
		default:
			out = append(out, it)
		}
	}
	return out, true
}

// Aliases remembers which confirmed ref replaced a pending one, so callers
// still holding the pending ref can be redirected. Not safe for concurrent
// use; the engine guards it with its own lock.
type Aliases struct {
	m map[domain.Ref]domain.Ref
}

func (a *Aliases) Record(pending, confirmed domain.Ref) {
	if a.m == nil {
		a.m = make(map[domain.Ref]domain.Ref)
	}
	a.m[pending] = confirmed
}

// Resolve returns the confirmed ref for r when one was recorded, else r.
func (a *Aliases) Resolve(r domain.Ref) domain.Ref {
	if c, ok := a.m[r]; ok {
		return c
	}
	return r
}
