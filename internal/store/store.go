// Package store is the authoritative side of sync: owner-scoped tabs and
// tasks in sqlite, each change recorded in the event log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tabtask/internal/domain"
	"tabtask/internal/events"
	"tabtask/internal/repo"
)

// DefaultTabTitle names the tab seeded for an owner who has none.
const DefaultTabTitle = "My Tasks"

// ErrInvalid marks input the store refuses.
var ErrInvalid = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type Store struct {
	DB              *sql.DB
	Repo            repo.Repo
	Events          events.Writer
	DefaultTabTitle string
	Now             func() time.Time
}

func New(db *sql.DB) Store {
	return Store{
		DB:              db,
		Repo:            repo.Repo{DB: db},
		Events:          events.Writer{DB: db},
		DefaultTabTitle: DefaultTabTitle,
		Now:             time.Now,
	}
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// inTx runs fn in a transaction and commits when it returns nil.
func (s Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return invalid("owner is required")
	}
	return nil
}

// ListTabs returns the owner's tabs in order. An owner without tabs gets a
// default one first, so there is always somewhere to put a task.
func (s Store) ListTabs(ctx context.Context, owner string) ([]domain.Tab, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	var tabs []domain.Tab
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		tabs, err = s.Repo.ListTabs(ctx, tx, owner)
		if err != nil || len(tabs) > 0 {
			return err
		}
		title := s.DefaultTabTitle
		if title == "" {
			title = DefaultTabTitle
		}
		f := domain.TabFields{Title: title, CreatedAt: s.now()}
		id, err := s.Repo.InsertTab(ctx, tx, owner, f)
		if err != nil {
			return err
		}
		if err := s.Events.Append(ctx, tx, events.TabSeeded, owner, "tab", id, events.EventPayload{"title": title}); err != nil {
			return err
		}
		tabs = []domain.Tab{{Ref: domain.Confirmed(id), Title: title, CreatedAt: f.CreatedAt}}
		return nil
	})
	return tabs, err
}

func (s Store) GetTab(ctx context.Context, owner string, id int64) (domain.Tab, error) {
	return s.Repo.GetTab(ctx, nil, owner, id)
}

// CreateTab inserts a tab. A repeated ClientToken returns the tab created
// the first time instead of a duplicate.
func (s Store) CreateTab(ctx context.Context, owner string, f domain.TabFields) (domain.Tab, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Tab{}, err
	}
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return domain.Tab{}, invalid("title is required")
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	var tab domain.Tab
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if f.ClientToken != "" {
			prev, err := s.Repo.TabByToken(ctx, tx, owner, f.ClientToken)
			if err == nil {
				tab = prev
				return nil
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}
		id, err := s.Repo.InsertTab(ctx, tx, owner, f)
		if err != nil {
			return err
		}
		if err := s.Events.Append(ctx, tx, events.TabCreated, owner, "tab", id, events.EventPayload{"title": f.Title, "order_index": f.OrderIndex}); err != nil {
			return err
		}
		tab, err = s.Repo.GetTab(ctx, tx, owner, id)
		return err
	})
	return tab, err
}

func (s Store) UpdateTab(ctx context.Context, owner string, id int64, p domain.TabPatch) (domain.Tab, error) {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return domain.Tab{}, invalid("title must not be empty")
		}
		p.Title = &t
	}
	var tab domain.Tab
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.UpdateTab(ctx, tx, owner, id, p); err != nil {
			return err
		}
		payload := events.EventPayload{}
		if p.Title != nil {
			payload["title"] = *p.Title
		}
		if p.OrderIndex != nil {
			payload["order_index"] = *p.OrderIndex
		}
		if err := s.Events.Append(ctx, tx, events.TabUpdated, owner, "tab", id, payload); err != nil {
			return err
		}
		var err error
		tab, err = s.Repo.GetTab(ctx, tx, owner, id)
		return err
	})
	return tab, err
}

// DeleteTab removes a tab. Its tasks stay behind in the trash, detached and
// stamped with the tab's title so a restore can recreate it.
// DeleteTab removes a tab and moves its live tasks to the trash stamped with
// at. A zero at means now.
func (s Store) DeleteTab(ctx context.Context, owner string, id int64, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		tab, err := s.Repo.GetTab(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		moved, err := s.Repo.DetachTabTasks(ctx, tx, owner, id, tab.Title, at)
		if err != nil {
			return fmt.Errorf("detach tasks: %w", err)
		}
		if err := s.Repo.DeleteTab(ctx, tx, owner, id); err != nil {
			return err
		}
		return s.Events.Append(ctx, tx, events.TabDeleted, owner, "tab", id, events.EventPayload{"title": tab.Title, "tasks_trashed": moved})
	})
}

func (s Store) ListTasks(ctx context.Context, owner string, f repo.TaskFilters) ([]domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	return s.Repo.ListTasks(ctx, nil, owner, f)
}

func (s Store) GetTask(ctx context.Context, owner string, id int64) (domain.Task, error) {
	return s.Repo.GetTask(ctx, nil, owner, id)
}

// CreateTask inserts a task, idempotently on ClientToken like CreateTab.
func (s Store) CreateTask(ctx context.Context, owner string, f domain.TaskFields) (domain.Task, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Task{}, err
	}
	f.Text = strings.TrimSpace(f.Text)
	if f.Text == "" {
		return domain.Task{}, invalid("text is required")
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	var task domain.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if f.ClientToken != "" {
			prev, err := s.Repo.TaskByToken(ctx, tx, owner, f.ClientToken)
			if err == nil {
				task = prev
				return nil
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}
		if f.TabID != nil {
			if _, err := s.Repo.GetTab(ctx, tx, owner, *f.TabID); err != nil {
				return fmt.Errorf("tab %d: %w", *f.TabID, err)
			}
		}
		id, err := s.Repo.InsertTask(ctx, tx, owner, f)
		if err != nil {
			return err
		}
		payload := events.EventPayload{"text": f.Text, "order_index": f.OrderIndex}
		if f.TabID != nil {
			payload["tab_id"] = *f.TabID
		}
		if err := s.Events.Append(ctx, tx, events.TaskCreated, owner, "task", id, payload); err != nil {
			return err
		}
		task, err = s.Repo.GetTask(ctx, tx, owner, id)
		return err
	})
	return task, err
}

// UpdateTask patches text, order or completion. CompletedAt is kept
// consistent with IsCompleted.
func (s Store) UpdateTask(ctx context.Context, owner string, id int64, p domain.TaskPatch) (domain.Task, error) {
	if p.Text != nil {
		t := strings.TrimSpace(*p.Text)
		if t == "" {
			return domain.Task{}, invalid("text must not be empty")
		}
		p.Text = &t
	}
	if c := p.Completion; c != nil {
		switch {
		case !c.IsCompleted:
			c.CompletedAt = nil
		case c.CompletedAt == nil:
			at := s.now()
			c.CompletedAt = &at
		}
	}
	var task domain.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.UpdateTask(ctx, tx, owner, id, p); err != nil {
			return err
		}
		payload := events.EventPayload{}
		if p.Text != nil {
			payload["text"] = *p.Text
		}
		if p.OrderIndex != nil {
			payload["order_index"] = *p.OrderIndex
		}
		if p.Completion != nil {
			payload["is_completed"] = p.Completion.IsCompleted
		}
		if err := s.Events.Append(ctx, tx, events.TaskUpdated, owner, "task", id, payload); err != nil {
			return err
		}
		var err error
		task, err = s.Repo.GetTask(ctx, tx, owner, id)
		return err
	})
	return task, err
}

// SoftDeleteTask moves a task to the trash. A zero at means now.
func (s Store) SoftDeleteTask(ctx context.Context, owner string, id int64, at time.Time) (domain.Task, error) {
	if at.IsZero() {
		at = s.now()
	}
	var task domain.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.SoftDeleteTask(ctx, tx, owner, id, at); err != nil {
			return err
		}
		if err := s.Events.Append(ctx, tx, events.TaskSoftDeleted, owner, "task", id, events.EventPayload{"deleted_at": at.UTC().Format(time.RFC3339)}); err != nil {
			return err
		}
		var err error
		task, err = s.Repo.GetTask(ctx, tx, owner, id)
		return err
	})
	return task, err
}

// RestoreTask takes a task out of the trash into an existing tab.
func (s Store) RestoreTask(ctx context.Context, owner string, id, tabID int64, orderIndex int) (domain.Task, error) {
	var task domain.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetTab(ctx, tx, owner, tabID); err != nil {
			return fmt.Errorf("tab %d: %w", tabID, err)
		}
		if err := s.Repo.RestoreTask(ctx, tx, owner, id, tabID, orderIndex); err != nil {
			return err
		}
		if err := s.Events.Append(ctx, tx, events.TaskRestored, owner, "task", id, events.EventPayload{"tab_id": tabID, "order_index": orderIndex}); err != nil {
			return err
		}
		var err error
		task, err = s.Repo.GetTask(ctx, tx, owner, id)
		return err
	})
	return task, err
}

// CreateAPIKey issues a key for owner. The plaintext is returned once; only
// its hash is stored.
func (s Store) CreateAPIKey(ctx context.Context, owner, name string) (domain.APIKey, string, error) {
	if err := requireOwner(owner); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "tt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: s.now().Format(time.RFC3339),
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return s.Events.Append(ctx, tx, events.APIKeyCreated, owner, "api_key", 0, events.EventPayload{"id": key.ID, "name": key.Name})
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (s Store) RevokeAPIKey(ctx context.Context, owner, id string) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.Repo.DeleteAPIKey(ctx, tx, owner, id); err != nil {
			return err
		}
		return s.Events.Append(ctx, tx, events.APIKeyRevoked, owner, "api_key", 0, events.EventPayload{"id": id})
	})
}
