// Package remote defines the authoritative store the sync engine talks to,
// with an HTTP implementation and a deterministic in-memory one.
package remote

import (
	"context"
	"errors"
	"time"

	"tabtask/internal/domain"
)

// ErrNotFound is returned when the addressed row does not exist remotely.
var ErrNotFound = errors.New("remote: not found")

// TaskFilter scopes a task listing. A nil TabID lists every tab.
type TaskFilter struct {
	TabID          *int64
	IncludeDeleted bool
}

// Remote is the row-level CRUD surface of the authoritative store. Lists are
// ordered by order key ascending. Any error is a failure signal; callers do
// not inspect it beyond display.
type Remote interface {
	ListTabs(ctx context.Context) ([]domain.Tab, error)
	CreateTab(ctx context.Context, f domain.TabFields) (domain.Tab, error)
	UpdateTab(ctx context.Context, id int64, p domain.TabPatch) error
	// DeleteTab hard-deletes the tab; its live tasks move to the trash
	// stamped with at.
	DeleteTab(ctx context.Context, id int64, at time.Time) error

	ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error)
	CreateTask(ctx context.Context, f domain.TaskFields) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, p domain.TaskPatch) error
	SoftDeleteTask(ctx context.Context, id int64, at time.Time) error
	RestoreTask(ctx context.Context, id int64, tabID int64, orderIndex int) error
}

// Operation names, used by Memory for call recording and failure injection.
const (
	OpListTabs       = "list_tabs"
	OpCreateTab      = "create_tab"
	OpUpdateTab      = "update_tab"
	OpDeleteTab      = "delete_tab"
	OpListTasks      = "list_tasks"
	OpCreateTask     = "create_task"
	OpUpdateTask     = "update_task"
	OpSoftDeleteTask = "soft_delete_task"
	OpRestoreTask    = "restore_task"
)
