package server

import (
	"encoding/json"
	"time"

	"tabtask/internal/domain"
)

// Request payloads

type CreateTabRequest struct {
	Title      string     `json:"title" minLength:"1"`
	OrderIndex int        `json:"order_index,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty" format:"date-time"`
}

func (r CreateTabRequest) fields(token string) domain.TabFields {
	f := domain.TabFields{Title: r.Title, OrderIndex: r.OrderIndex, ClientToken: token}
	if r.CreatedAt != nil {
		f.CreatedAt = *r.CreatedAt
	}
	return f
}

type UpdateTabRequest struct {
	Title      *string `json:"title,omitempty"`
	OrderIndex *int    `json:"order_index,omitempty"`
}

func (r UpdateTabRequest) patch() domain.TabPatch {
	return domain.TabPatch{Title: r.Title, OrderIndex: r.OrderIndex}
}

type CreateTaskRequest struct {
	TabID      *int64     `json:"tab_id,omitempty"`
	Text       string     `json:"text" minLength:"1"`
	OrderIndex int        `json:"order_index,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty" format:"date-time"`
}

func (r CreateTaskRequest) fields(token string) domain.TaskFields {
	f := domain.TaskFields{TabID: r.TabID, Text: r.Text, OrderIndex: r.OrderIndex, ClientToken: token}
	if r.CreatedAt != nil {
		f.CreatedAt = *r.CreatedAt
	}
	return f
}

type UpdateTaskRequest struct {
	Text        *string    `json:"text,omitempty"`
	OrderIndex  *int       `json:"order_index,omitempty"`
	IsCompleted *bool      `json:"is_completed,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" format:"date-time"`
}

func (r UpdateTaskRequest) patch() domain.TaskPatch {
	p := domain.TaskPatch{Text: r.Text, OrderIndex: r.OrderIndex}
	if r.IsCompleted != nil {
		p.Completion = &domain.Completion{IsCompleted: *r.IsCompleted, CompletedAt: r.CompletedAt}
	}
	return p
}

type DeleteTaskRequest struct {
	DeletedAt *time.Time `json:"deleted_at,omitempty" format:"date-time"`
}

func (r DeleteTaskRequest) at() time.Time {
	if r.DeletedAt == nil {
		return time.Time{}
	}
	return *r.DeletedAt
}

type RestoreTaskRequest struct {
	TabID      int64 `json:"tab_id" minimum:"1"`
	OrderIndex int   `json:"order_index"`
}

type DevLoginRequest struct {
	OwnerID string `json:"owner_id"`
}

// Responses

type TabResponse struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at" format:"date-time"`
}

type TabList struct {
	Items []TabResponse `json:"items"`
}

type TaskResponse struct {
	ID              int64      `json:"id"`
	TabID           *int64     `json:"tab_id"`
	Text            string     `json:"text"`
	OrderIndex      int        `json:"order_index"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" format:"date-time"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" format:"date-time"`
	LastParentTitle string     `json:"last_parent_title,omitempty"`
	CreatedAt       time.Time  `json:"created_at" format:"date-time"`
}

type TaskList struct {
	Items []TaskResponse `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type MeResponse struct {
	OwnerID string `json:"owner_id"`
	Source  string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func tabResponse(t domain.Tab) TabResponse {
	id, _ := t.Ref.RemoteID()
	return TabResponse{ID: id, Title: t.Title, OrderIndex: t.OrderIndex, CreatedAt: t.CreatedAt}
}

func mapTabs(tabs []domain.Tab) []TabResponse {
	out := make([]TabResponse, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, tabResponse(t))
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	id, _ := t.Ref.RemoteID()
	resp := TaskResponse{
		ID:              id,
		Text:            t.Text,
		OrderIndex:      t.OrderIndex,
		IsCompleted:     t.IsCompleted,
		CompletedAt:     t.CompletedAt,
		DeletedAt:       t.DeletedAt,
		LastParentTitle: t.LastParentTitle,
		CreatedAt:       t.CreatedAt,
	}
	if t.TabRef != nil {
		if tabID, ok := t.TabRef.RemoteID(); ok {
			resp.TabID = &tabID
		}
	}
	return resp
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse(t))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	payload := map[string]any{}
	_ = json.Unmarshal([]byte(e.Payload), &payload)
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    payload,
	}
}
