// Package trash lists soft-deleted tasks and brings them back, recreating
// their tab when it is gone.
package trash

import (
	"context"
	"strings"
	"time"

	"tabtask/internal/domain"
	"tabtask/internal/engine"
	"tabtask/internal/visibility"
)

// DefaultFallbackTitle names a recreated tab when the task never recorded
// one.
const DefaultFallbackTitle = "Restored"

// Entry is one row of the trash view.
type Entry struct {
	Task          domain.Task `json:"task"`
	TabTitle      string      `json:"tab_title,omitempty"`
	DaysRemaining int         `json:"days_remaining"`
}

// Restorer restores tasks through an engine.
type Restorer struct {
	Engine        *engine.Engine
	FallbackTitle string
}

func New(e *engine.Engine) *Restorer {
	return &Restorer{Engine: e, FallbackTitle: DefaultFallbackTitle}
}

// List returns the trash view at now.
func (r *Restorer) List(now time.Time) []Entry {
	horizon := r.Engine.PurgeHorizon()
	tasks := visibility.Trash(r.Engine.AllTasks(), now, horizon)
	out := make([]Entry, 0, len(tasks))
	for _, t := range tasks {
		e := Entry{Task: t, DaysRemaining: visibility.DaysRemaining(t, now, horizon)}
		if t.TabRef != nil {
			if tab, ok := r.Engine.Tab(*t.TabRef); ok {
				e.TabTitle = tab.Title
			}
		}
		if e.TabTitle == "" {
			e.TabTitle = t.LastParentTitle
		}
		out = append(out, e)
	}
	return out
}

// Restore moves a trashed task back to its tab and returns the title of the
// tab it landed in. When the tab no longer exists the task goes to a tab with
// the title it remembers, which is created if there is none. Both steps are optimistic; Restore waits for
// the task restore to settle and returns its SyncFailure if it was undone.
func (r *Restorer) Restore(ctx context.Context, ref domain.Ref) (string, error) {
	task, ok := r.Engine.Task(ref)
	if !ok {
		return "", &engine.ValidationError{Field: "task", Reason: ref.String() + " not found", Err: engine.ErrNotFound}
	}
	if !task.Deleted() {
		return "", &engine.ValidationError{Field: "task", Reason: "not in the trash"}
	}

	var target domain.Tab
	if task.TabRef != nil {
		target, ok = r.Engine.Tab(*task.TabRef)
	}
	if !ok || task.TabRef == nil {
		title := strings.TrimSpace(task.LastParentTitle)
		if title == "" {
			title = r.fallback()
		}
		if existing, found := r.tabTitled(title); found {
			target = existing
		} else {
			op, err := r.Engine.AddTab(title)
			if err != nil {
				return "", err
			}
			target = domain.Tab{Ref: op.Ref(), Title: title}
		}
	}

	op, err := r.Engine.RestoreTask(task.Ref, target.Ref)
	if err != nil {
		return "", err
	}
	if err := op.Wait(ctx); err != nil {
		return "", err
	}
	if tab, ok := r.Engine.Tab(target.Ref); ok {
		return tab.Title, nil
	}
	return target.Title, nil
}

// tabTitled finds a tab, pending or confirmed, already carrying title, so
// tasks trashed together with their tab come back into one recreated tab.
func (r *Restorer) tabTitled(title string) (domain.Tab, bool) {
	for _, t := range r.Engine.Tabs() {
		if strings.TrimSpace(t.Title) == title {
			return t, true
		}
	}
	return domain.Tab{}, false
}

func (r *Restorer) fallback() string {
	if t := strings.TrimSpace(r.FallbackTitle); t != "" {
		return t
	}
	return DefaultFallbackTitle
}
