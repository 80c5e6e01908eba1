package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tabtask/internal/domain"
	"tabtask/internal/repo"
	"tabtask/internal/store"
)

// Local serves one owner straight from a workspace database, without a
// server in between.
type Local struct {
	Store store.Store
	Owner string
}

func NewLocal(s store.Store, owner string) *Local {
	return &Local{Store: s, Owner: owner}
}

func (l *Local) ListTabs(ctx context.Context) ([]domain.Tab, error) {
	tabs, err := l.Store.ListTabs(ctx, l.Owner)
	return tabs, mapStoreError(err)
}

func (l *Local) CreateTab(ctx context.Context, f domain.TabFields) (domain.Tab, error) {
	tab, err := l.Store.CreateTab(ctx, l.Owner, f)
	return tab, mapStoreError(err)
}

func (l *Local) UpdateTab(ctx context.Context, id int64, p domain.TabPatch) error {
	_, err := l.Store.UpdateTab(ctx, l.Owner, id, p)
	return mapStoreError(err)
}

func (l *Local) DeleteTab(ctx context.Context, id int64, at time.Time) error {
	return mapStoreError(l.Store.DeleteTab(ctx, l.Owner, id, at))
}

func (l *Local) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	tasks, err := l.Store.ListTasks(ctx, l.Owner, repo.TaskFilters{TabID: f.TabID, IncludeDeleted: f.IncludeDeleted})
	return tasks, mapStoreError(err)
}

func (l *Local) CreateTask(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	task, err := l.Store.CreateTask(ctx, l.Owner, f)
	return task, mapStoreError(err)
}

func (l *Local) UpdateTask(ctx context.Context, id int64, p domain.TaskPatch) error {
	_, err := l.Store.UpdateTask(ctx, l.Owner, id, p)
	return mapStoreError(err)
}

func (l *Local) SoftDeleteTask(ctx context.Context, id int64, at time.Time) error {
	_, err := l.Store.SoftDeleteTask(ctx, l.Owner, id, at)
	return mapStoreError(err)
}

func (l *Local) RestoreTask(ctx context.Context, id int64, tabID int64, orderIndex int) error {
	_, err := l.Store.RestoreTask(ctx, l.Owner, id, tabID, orderIndex)
	return mapStoreError(err)
}

func mapStoreError(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
