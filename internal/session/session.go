// Package session tracks which tab the user is looking at and remembers it
// across runs.
package session

import (
	"sync"

	"tabtask/internal/domain"
)

// Persister stores the selected tab id between runs. Only confirmed ids are
// ever written.
type Persister interface {
	LoadSelected() (id int64, ok bool, err error)
	SaveSelected(id int64) error
	ClearSelected() error
}

// Session holds the current tab selection. It is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	store    Persister
	selected domain.Ref
}

func New(p Persister) *Session {
	if p == nil {
		p = NewMemoryPersister()
	}
	return &Session{store: p}
}

// Load reads the persisted selection. A missing value leaves the selection
// empty.
func (s *Session) Load() error {
	id, ok, err := s.store.LoadSelected()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.selected = domain.Confirmed(id)
	} else {
		s.selected = domain.Ref{}
	}
	return nil
}

func (s *Session) Selected() domain.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Select makes r the current tab. Pending refs are held in memory and written
// out by Rebind once the tab is confirmed.
func (s *Session) Select(r domain.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(r)
}

func (s *Session) selectLocked(r domain.Ref) error {
	s.selected = r
	if r.IsZero() {
		return s.store.ClearSelected()
	}
	if id, ok := r.RemoteID(); ok {
		return s.store.SaveSelected(id)
	}
	return nil
}

// Rebind moves the selection from pending to confirmed when it still points
// at pending.
func (s *Session) Rebind(pending, confirmed domain.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != pending {
		return nil
	}
	return s.selectLocked(confirmed)
}

// Resolve checks the selection against tabs, which must be in display order.
// A selection that names no tab falls back to the first one, or to nothing
// when tabs is empty.
func (s *Session) Resolve(tabs []domain.Tab) (domain.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tabs {
		if t.Ref == s.selected {
			return s.selected, nil
		}
	}
	var next domain.Ref
	if len(tabs) > 0 {
		next = tabs[0].Ref
	}
	if next == s.selected {
		return next, nil
	}
	return next, s.selectLocked(next)
}
