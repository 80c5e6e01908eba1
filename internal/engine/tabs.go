package engine

import (
	"context"
	"strings"
	"time"

	"tabtask/internal/domain"
	"tabtask/internal/ordering"
)

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	return title, nil
}

// AddTab appends a tab at the bottom of the list under a pending ref.
func (e *Engine) AddTab(title string) (*Op, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	return e.addTabLocked(title), nil
}

func (e *Engine) addTabLocked(title string) *Op {
	ref := e.alloc.Allocate()
	tab := domain.Tab{
		Ref:        ref,
		Title:      title,
		OrderIndex: ordering.BottomKey(e.tabs.items),
		CreatedAt:  e.now().UTC(),
	}
	e.tabs.Put(tab)
	op := newOp(OpAddTab, ref)
	e.creates[ref] = op
	fields := domain.TabFields{
		Title:       tab.Title,
		OrderIndex:  tab.OrderIndex,
		CreatedAt:   tab.CreatedAt,
		ClientToken: op.ID.String(),
	}

	var created domain.Tab
	return e.dispatch(mutation{
		op: op,
		run: func(ctx context.Context) error {
			var err error
			created, err = e.remote.CreateTab(ctx, fields)
			return err
		},
		commit: func() error {
			delete(e.creates, ref)
			e.aliases.Record(ref, created.Ref)
			op.confirmed = created.Ref
			e.rebindTab(ref, created.Ref)
			cur, ok := e.tabs.Get(ref)
			if !ok {
				return ErrReconciliationMiss
			}
			merged := cur.WithRef(created.Ref)
			// Edits made while the create was in flight win over the echo.
			if cur.Title == fields.Title {
				merged.Title = created.Title
			}
			e.tabs.Reconcile(ref, merged)
			return nil
		},
		rollback: func() {
			delete(e.creates, ref)
			e.dead[ref] = struct{}{}
			e.tabs.Remove(ref)
			if e.session.Selected() == ref {
				e.selectFallback(0)
			}
		},
	})
}

// rebindTab points tasks and the selection at the confirmed tab ref.
func (e *Engine) rebindTab(pending, confirmed domain.Ref) {
	e.tasks.Update(func(t domain.Task) domain.Task {
		if t.InTab(pending) {
			t.TabRef = domain.RefPtr(confirmed)
		}
		return t
	})
	if err := e.session.Rebind(pending, confirmed); err != nil {
		e.log.Warn(e.ctx, "persist selection", "err", err)
	}
}

// selectFallback selects the tab nearest to index i, or nothing. Must be
// called with e.mu held.
func (e *Engine) selectFallback(i int) domain.Ref {
	var next domain.Ref
	if n := len(e.tabs.items); n > 0 {
		if i > n-1 {
			i = n - 1
		}
		if i < 0 {
			i = 0
		}
		next = e.tabs.items[i].Ref
	}
	if err := e.session.Select(next); err != nil {
		e.log.Warn(e.ctx, "persist selection", "err", err)
	}
	return next
}

// RenameTab changes a tab's title.
func (e *Engine) RenameTab(r domain.Ref, title string) (*Op, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	r = e.aliases.Resolve(r)
	before, ok := e.tabs.Get(r)
	if !ok {
		return nil, notFound("tab", r)
	}
	if before.Title == title {
		return settledOp(OpRenameTab, r), nil
	}
	after := before
	after.Title = title
	e.tabs.Put(after)

	return e.dispatch(mutation{
		op: newOp(OpRenameTab, r),
		run: func(ctx context.Context) error {
			id, err := e.confirmedID(ctx, r)
			if err != nil {
				return err
			}
			return e.remote.UpdateTab(ctx, id, domain.TabPatch{Title: &title})
		},
		rollback: func() {
			prev, ok := e.resolveTab(before)
			if !ok {
				return
			}
			if cur, ok := e.tabs.Get(prev.Ref); ok {
				cur.Title = prev.Title
				e.tabs.Put(cur)
			}
		},
	}), nil
}

// DeleteTab removes a tab; the remote store moves its tasks to the trash.
// When the tab was selected, the selection moves to the tab before it, or
// to the new first tab.
func (e *Engine) DeleteTab(r domain.Ref) (*Op, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	r = e.aliases.Resolve(r)
	idx := e.tabs.index(r)
	if idx < 0 {
		return nil, notFound("tab", r)
	}
	before := e.tabs.items[idx].Clone()
	e.tabs.Remove(r)

	var replacement domain.Ref
	moved := e.aliases.Resolve(e.session.Selected()) == r
	if moved {
		replacement = e.selectFallback(idx - 1)
	}
	at := e.now().UTC()

	return e.dispatch(mutation{
		op: newOp(OpDeleteTab, r),
		run: func(ctx context.Context) error {
			id, err := e.confirmedID(ctx, r)
			if err != nil {
				return err
			}
			return e.remote.DeleteTab(ctx, id, at)
		},
		commit: func() error {
			e.cascade(e.aliases.Resolve(r), before.Title, at)
			return nil
		},
		rollback: func() {
			prev, ok := e.resolveTab(before)
			if !ok {
				return
			}
			e.tabs.Put(prev)
			if moved && e.aliases.Resolve(e.session.Selected()) == e.aliases.Resolve(replacement) {
				if err := e.session.Select(prev.Ref); err != nil {
					e.log.Warn(e.ctx, "persist selection", "err", err)
				}
			}
		},
	}), nil
}

// cascade mirrors the remote tab delete locally: the tab's live tasks are
// soft-deleted, detached and stamped with the tab title.
func (e *Engine) cascade(tab domain.Ref, title string, at time.Time) {
	e.tasks.Update(func(t domain.Task) domain.Task {
		if !t.InTab(tab) {
			return t
		}
		if t.DeletedAt == nil {
			ts := at
			t.DeletedAt = &ts
		}
		t.TabRef = nil
		t.LastParentTitle = title
		return t
	})
}

// ReorderTabs moves the active tab to the position of the over tab.
func (e *Engine) ReorderTabs(active, over domain.Ref) (*Op, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	active, over = e.aliases.Resolve(active), e.aliases.Resolve(over)
	scope := e.tabs.All()
	return reorder(e, &e.tabs, scope, OpReorderTabs, active, over,
		func(ctx context.Context, id int64, key int) error {
			return e.remote.UpdateTab(ctx, id, domain.TabPatch{OrderIndex: &key})
		}), nil
}
