package engine

import (
	"context"
	"strings"

	"tabtask/internal/domain"
	"tabtask/internal/ordering"
	"tabtask/internal/visibility"
)

func cleanText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	return text, nil
}

// liveInTab must be called with e.mu held.
func (e *Engine) liveInTab(tab domain.Ref) []domain.Task {
	return visibility.InTab(e.tasks.All(), tab)
}

// AddTask puts a new task at the top of tab under a pending ref. Every task
// is created in a tab. When tab is itself pending, the remote create waits
// for the tab to be confirmed.
func (e *Engine) AddTask(tab domain.Ref, text string) (*Op, error) {
	text, err := cleanText(text)
	if err != nil {
		return nil, err
	}
	if tab.IsZero() {
		return nil, &ValidationError{Field: "tab", Reason: "is required"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	tab = e.aliases.Resolve(tab)
	if !e.tabs.Has(tab) {
		return nil, notFound("tab", tab)
	}
	tabRef := domain.RefPtr(tab)

	ref := e.alloc.Allocate()
	task := domain.Task{
		Ref:        ref,
		TabRef:     tabRef,
		Text:       text,
		OrderIndex: ordering.TopKey(e.liveInTab(tab)),
		CreatedAt:  e.now().UTC(),
	}
	e.tasks.Put(task)
	op := newOp(OpAddTask, ref)
	e.creates[ref] = op

	var created domain.Task
	return e.dispatch(mutation{
		op: op,
		run: func(ctx context.Context) error {
			fields := domain.TaskFields{
				Text:        task.Text,
				OrderIndex:  task.OrderIndex,
				CreatedAt:   task.CreatedAt,
				ClientToken: op.ID.String(),
			}
			id, err := e.confirmedID(ctx, *tabRef)
			if err != nil {
				return err
			}
			fields.TabID = &id
			created, err = e.remote.CreateTask(ctx, fields)
			return err
		},
		commit: func() error {
			delete(e.creates, ref)
			e.aliases.Record(ref, created.Ref)
			op.confirmed = created.Ref
			cur, ok := e.tasks.Get(ref)
			if !ok {
				return ErrReconciliationMiss
			}
			merged := cur.WithRef(created.Ref)
			if cur.Text == task.Text {
				merged.Text = created.Text
			}
			e.tasks.Reconcile(ref, merged)
			return nil
		},
		rollback: func() {
			delete(e.creates, ref)
			e.dead[ref] = struct{}{}
			e.tasks.Remove(ref)
		},
	}), nil
}

// EditTask replaces a task's text.
func (e *Engine) EditTask(r domain.Ref, text string) (*Op, error) {
	text, err := cleanText(text)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	r = e.aliases.Resolve(r)
	before, ok := e.tasks.Get(r)
	if !ok {
		return nil, notFound("task", r)
	}
	if before.Text == text {
		return settledOp(OpEditTask, r), nil
	}
	after := before
	after.Text = text
	e.tasks.Put(after)

	return e.dispatch(mutation{
		op: newOp(OpEditTask, r),
		run: func(ctx context.Context) error {
			id, err := e.confirmedID(ctx, r)
			if err != nil {
				return err
			}
			return e.remote.UpdateTask(ctx, id, domain.TaskPatch{Text: &text})
		},
		rollback: func() {
			e.revertTask(before, func(cur, prev domain.Task) domain.Task {
				cur.Text = prev.Text
				return cur
			})
		},
	}), nil
}

// ToggleTask sets a task's completion to done. CompletedAt is stamped with
// the local clock when it becomes complete and cleared otherwise. A task
// already in that state gets a settled op and no remote call.
func (e *Engine) ToggleTask(r domain.Ref, done bool) (*Op, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	r = e.aliases.Resolve(r)
	before, ok := e.tasks.Get(r)
	if !ok {
		return nil, notFound("task", r)
	}
	if before.IsCompleted == done {
		return settledOp(OpToggleTask, r), nil
	}
	after := before.Clone().WithCompletion(done, e.now().UTC())
	e.tasks.Put(after)
	patch := domain.TaskPatch{Completion: &domain.Completion{
		IsCompleted: after.IsCompleted,
		CompletedAt: after.Clone().CompletedAt,
	}}

	return e.dispatch(mutation{
		op: newOp(OpToggleTask, r),
		run: func(ctx context.Context) error {
			id, err := e.confirmedID(ctx, r)
			if err != nil {
				return err
			}
			return e.remote.UpdateTask(ctx, id, patch)
		},
		rollback: func() {
			e.revertTask(before, func(cur, prev domain.Task) domain.Task {
				cur.IsCompleted = prev.IsCompleted
				cur.CompletedAt = prev.CompletedAt
				return cur
			})
		},
	}), nil
}

// DeleteTask soft-deletes a task, moving it to the trash.
func (e *Engine) DeleteTask(r domain.Ref) (*Op, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	r = e.aliases.Resolve(r)
	before, ok := e.tasks.Get(r)
	if !ok {
		return nil, notFound("task", r)
	}
	if before.Deleted() {
		return settledOp(OpDeleteTask, r), nil
	}
	at := e.now().UTC()
	after := before.Clone()
	after.DeletedAt = &at
	e.tasks.Put(after)

	return e.dispatch(mutation{
		op: newOp(OpDeleteTask, r),
		run: func(ctx context.Context) error {
			id, err := e.confirmedID(ctx, r)
			if err != nil {
				return err
			}
			return e.remote.SoftDeleteTask(ctx, id, at)
		},
		rollback: func() {
			prev, ok := e.resolveTask(before)
			if !ok {
				return
			}
			if cur, found := e.tasks.Get(prev.Ref); found {
				cur.DeletedAt = nil
				cur.TabRef = prev.TabRef
				cur.LastParentTitle = prev.LastParentTitle
				e.tasks.Put(cur)
				return
			}
			e.tasks.Put(prev)
		},
	}), nil
}

// RestoreTask brings a deleted task back into tab at the top. tab may be
// pending; the remote restore then waits for it to be confirmed.
func (e *Engine) RestoreTask(r, tab domain.Ref) (*Op, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	r, tab = e.aliases.Resolve(r), e.aliases.Resolve(tab)
	before, ok := e.tasks.Get(r)
	if !ok {
		return nil, notFound("task", r)
	}
	if !before.Deleted() {
		return nil, &ValidationError{Field: "task", Reason: "not in the trash"}
	}
	if !e.tabs.Has(tab) {
		return nil, notFound("tab", tab)
	}
	after := before.Clone()
	after.DeletedAt = nil
	after.TabRef = domain.RefPtr(tab)
	after.OrderIndex = ordering.TopKey(e.liveInTab(tab))
	e.tasks.Put(after)
	key := after.OrderIndex

	return e.dispatch(mutation{
		op: newOp(OpRestoreTask, r),
		run: func(ctx context.Context) error {
			id, err := e.confirmedID(ctx, r)
			if err != nil {
				return err
			}
			tabID, err := e.confirmedID(ctx, tab)
			if err != nil {
				return err
			}
			return e.remote.RestoreTask(ctx, id, tabID, key)
		},
		rollback: func() {
			e.revertTask(before, func(cur, prev domain.Task) domain.Task {
				cur.DeletedAt = prev.DeletedAt
				cur.TabRef = prev.TabRef
				cur.OrderIndex = prev.OrderIndex
				return cur
			})
		},
	}), nil
}

// ReorderTasks moves active to the slot of over among the live tasks of
// active's tab.
func (e *Engine) ReorderTasks(active, over domain.Ref) (*Op, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.begin(); err != nil {
		return nil, err
	}
	active, over = e.aliases.Resolve(active), e.aliases.Resolve(over)
	cur, ok := e.tasks.Get(active)
	if !ok || cur.Deleted() || cur.TabRef == nil {
		return settledOp(OpReorderTask, active), nil
	}
	scope := e.liveInTab(*cur.TabRef)
	return reorder(e, &e.tasks, scope, OpReorderTask, active, over,
		func(ctx context.Context, id int64, key int) error {
			return e.remote.UpdateTask(ctx, id, domain.TaskPatch{OrderIndex: &key})
		}), nil
}

// revertTask writes the fields picked by restore from the snapshot back onto
// the current item, leaving fields other mutations touched alone. Must be
// called with e.mu held.
func (e *Engine) revertTask(before domain.Task, restore func(cur, prev domain.Task) domain.Task) {
	prev, ok := e.resolveTask(before)
	if !ok {
		return
	}
	cur, found := e.tasks.Get(prev.Ref)
	if !found {
		return
	}
	e.tasks.Put(restore(cur, prev))
}
