// Package visibility derives what a view should show from a collection
// without mutating it. Every function is pure: same inputs, same output.
package visibility

import (
	"sort"
	"time"

	"tabtask/internal/domain"
)

const (
	// PurgeHorizon is how long a soft-deleted task stays in the trash view.
	PurgeHorizon = 30 * 24 * time.Hour
	// CompletedWindow is how long a completed task stays in the default view.
	CompletedWindow = 7 * 24 * time.Hour
)

// Default returns live (not soft-deleted) tasks, sorted by order key.
func Default(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	sortByOrder(out)
	return out
}

// InTab is Default restricted to one tab.
func InTab(tasks []domain.Task, tab domain.Ref) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.DeletedAt == nil && t.InTab(tab) {
			out = append(out, t)
		}
	}
	sortByOrder(out)
	return out
}

// RecentCompleted drops completed tasks whose completion is older than
// window. Incomplete tasks always pass. A non-positive window keeps all.
func RecentCompleted(tasks []domain.Task, now time.Time, window time.Duration) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if window > 0 && t.IsCompleted && t.CompletedAt != nil && now.Sub(*t.CompletedAt) >= window {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Trash returns soft-deleted tasks still inside the purge horizon, most
// recently deleted first.
func Trash(tasks []domain.Task, now time.Time, horizon time.Duration) []domain.Task {
	out := make([]domain.Task, 0)
	for _, t := range tasks {
		if InTrash(t, now, horizon) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DeletedAt.Equal(*out[j].DeletedAt) {
			return out[i].DeletedAt.After(*out[j].DeletedAt)
		}
		return out[i].Ref.String() < out[j].Ref.String()
	})
	return out
}

// InTrash reports whether t is soft-deleted and not yet past the horizon.
func InTrash(t domain.Task, now time.Time, horizon time.Duration) bool {
	return t.DeletedAt != nil && now.Sub(*t.DeletedAt) < horizon
}

// DaysRemaining is the number of whole days (rounded up) before t leaves
// the trash view. Zero for live tasks or tasks past the horizon.
func DaysRemaining(t domain.Task, now time.Time, horizon time.Duration) int {
	if !InTrash(t, now, horizon) {
		return 0
	}
	left := horizon - now.Sub(*t.DeletedAt)
	day := 24 * time.Hour
	return int((left + day - 1) / day)
}

// Tabs returns tabs sorted by order key.
func Tabs(tabs []domain.Tab) []domain.Tab {
	out := make([]domain.Tab, len(tabs))
	copy(out, tabs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func sortByOrder(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].OrderIndex < tasks[j].OrderIndex })
}
