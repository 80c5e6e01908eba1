package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tabtask/internal/domain"
	tabtasksdk "tabtask/sdk/go"
)

// HTTP talks to a tabtask server through the Go SDK.
type HTTP struct {
	Client *tabtasksdk.Client
}

// NewHTTP returns an HTTP remote for baseURL authenticated with token, or with
// apiKey when token is empty. baseURL includes the API base path, as in
// http://127.0.0.1:8080/v0.
func NewHTTP(baseURL, token, apiKey string, timeout time.Duration) *HTTP {
	c := tabtasksdk.New(baseURL)
	c.BasePath = ""
	c.BearerToken = token
	c.APIKey = apiKey
	if timeout > 0 {
		c.Timeout = timeout
	}
	return &HTTP{Client: c}
}

func (h *HTTP) ListTabs(ctx context.Context) ([]domain.Tab, error) {
	items, err := h.Client.ListTabs(ctx)
	if err != nil {
		return nil, mapHTTPError(err)
	}
	out := make([]domain.Tab, 0, len(items))
	for _, t := range items {
		out = append(out, tabFromSDK(t))
	}
	return out, nil
}

func (h *HTTP) CreateTab(ctx context.Context, f domain.TabFields) (domain.Tab, error) {
	in := tabtasksdk.NewTab{Title: f.Title, OrderIndex: f.OrderIndex}
	if !f.CreatedAt.IsZero() {
		in.CreatedAt = &f.CreatedAt
	}
	t, err := h.Client.CreateTab(ctx, in, f.ClientToken)
	if err != nil {
		return domain.Tab{}, mapHTTPError(err)
	}
	return tabFromSDK(t), nil
}

func (h *HTTP) UpdateTab(ctx context.Context, id int64, p domain.TabPatch) error {
	_, err := h.Client.UpdateTab(ctx, id, tabtasksdk.TabUpdate{Title: p.Title, OrderIndex: p.OrderIndex})
	return mapHTTPError(err)
}

func (h *HTTP) DeleteTab(ctx context.Context, id int64, at time.Time) error {
	return mapHTTPError(h.Client.DeleteTab(ctx, id, &at))
}

func (h *HTTP) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	q := tabtasksdk.TaskQuery{IncludeDeleted: f.IncludeDeleted}
	if f.TabID != nil {
		q.TabID = *f.TabID
	}
	items, err := h.Client.ListTasks(ctx, q)
	if err != nil {
		return nil, mapHTTPError(err)
	}
	out := make([]domain.Task, 0, len(items))
	for _, t := range items {
		out = append(out, taskFromSDK(t))
	}
	return out, nil
}

func (h *HTTP) CreateTask(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	in := tabtasksdk.NewTask{TabID: f.TabID, Text: f.Text, OrderIndex: f.OrderIndex}
	if !f.CreatedAt.IsZero() {
		in.CreatedAt = &f.CreatedAt
	}
	t, err := h.Client.CreateTask(ctx, in, f.ClientToken)
	if err != nil {
		return domain.Task{}, mapHTTPError(err)
	}
	return taskFromSDK(t), nil
}

func (h *HTTP) UpdateTask(ctx context.Context, id int64, p domain.TaskPatch) error {
	in := tabtasksdk.TaskUpdate{Text: p.Text, OrderIndex: p.OrderIndex}
	if c := p.Completion; c != nil {
		done := c.IsCompleted
		in.IsCompleted = &done
		in.CompletedAt = c.CompletedAt
	}
	_, err := h.Client.UpdateTask(ctx, id, in)
	return mapHTTPError(err)
}

func (h *HTTP) SoftDeleteTask(ctx context.Context, id int64, at time.Time) error {
	var stamp *time.Time
	if !at.IsZero() {
		stamp = &at
	}
	_, err := h.Client.SoftDeleteTask(ctx, id, stamp)
	return mapHTTPError(err)
}

func (h *HTTP) RestoreTask(ctx context.Context, id int64, tabID int64, orderIndex int) error {
	_, err := h.Client.RestoreTask(ctx, id, tabID, orderIndex)
	return mapHTTPError(err)
}

func mapHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tabtasksdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Body)
	}
	return err
}

func tabFromSDK(t tabtasksdk.Tab) domain.Tab {
	return domain.Tab{
		Ref:        domain.Confirmed(t.ID),
		Title:      t.Title,
		OrderIndex: t.OrderIndex,
		CreatedAt:  t.CreatedAt,
	}
}

func taskFromSDK(t tabtasksdk.Task) domain.Task {
	out := domain.Task{
		Ref:             domain.Confirmed(t.ID),
		Text:            t.Text,
		OrderIndex:      t.OrderIndex,
		IsCompleted:     t.IsCompleted,
		CompletedAt:     t.CompletedAt,
		DeletedAt:       t.DeletedAt,
		LastParentTitle: t.LastParentTitle,
		CreatedAt:       t.CreatedAt,
	}
	if t.TabID != nil {
		out.TabRef = domain.RefPtr(domain.Confirmed(*t.TabID))
	}
	return out
}
