package tabtasksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Tabtask HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  10 * time.Second,
	}
}

// Tab represents the API tab model.
type Tab struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// Task represents the API task model. TabID is nil for tasks whose tab was
// deleted.
type Task struct {
	ID              int64      `json:"id"`
	TabID           *int64     `json:"tab_id"`
	Text            string     `json:"text"`
	OrderIndex      int        `json:"order_index"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	LastParentTitle string     `json:"last_parent_title,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// NewTab is the body of a tab create.
type NewTab struct {
	Title      string     `json:"title"`
	OrderIndex int        `json:"order_index"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// TabUpdate is the body of a tab patch. Nil fields are left untouched.
type TabUpdate struct {
	Title      *string `json:"title,omitempty"`
	OrderIndex *int    `json:"order_index,omitempty"`
}

// NewTask is the body of a task create.
type NewTask struct {
	TabID      *int64     `json:"tab_id,omitempty"`
	Text       string     `json:"text"`
	OrderIndex int        `json:"order_index"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// TaskUpdate is the body of a task patch. Nil fields are left untouched.
type TaskUpdate struct {
	Text        *string    `json:"text,omitempty"`
	OrderIndex  *int       `json:"order_index,omitempty"`
	IsCompleted *bool      `json:"is_completed,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskQuery filters ListTasks.
type TaskQuery struct {
	TabID          int64
	IncludeDeleted bool
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// ListTabs returns the caller's tabs. The server seeds a default tab for
// owners that have none.
func (c *Client) ListTabs(ctx context.Context) ([]Tab, error) {
	var resp struct {
		Items []Tab `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.path("tabs"), nil, nil, &resp)
	return resp.Items, err
}

// CreateTab creates a tab. A non-empty idempotencyKey makes retries safe.
func (c *Client) CreateTab(ctx context.Context, in NewTab, idempotencyKey string) (Tab, error) {
	var resp Tab
	err := c.do(ctx, http.MethodPost, c.path("tabs"), in, idempotency(idempotencyKey), &resp)
	return resp, err
}

// UpdateTab renames or moves a tab.
func (c *Client) UpdateTab(ctx context.Context, id int64, in TabUpdate) (Tab, error) {
	var resp Tab
	err := c.do(ctx, http.MethodPatch, c.path(fmt.Sprintf("tabs/%d", id)), in, nil, &resp)
	return resp, err
}

// DeleteTab deletes a tab. Its live tasks move to the trash, stamped with at
// or with the server clock when at is nil.
func (c *Client) DeleteTab(ctx context.Context, id int64, at *time.Time) error {
	endpoint := c.path(fmt.Sprintf("tabs/%d", id))
	if at != nil {
		endpoint += "?" + url.Values{"deleted_at": {at.UTC().Format(time.RFC3339Nano)}}.Encode()
	}
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil, nil)
}

// ListTasks returns tasks matching q.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	params := url.Values{}
	if q.TabID > 0 {
		params.Set("tab_id", strconv.FormatInt(q.TabID, 10))
	}
	if q.IncludeDeleted {
		params.Set("include_deleted", "true")
	}
	endpoint := c.path("tasks")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp.Items, err
}

// CreateTask creates a task. A non-empty idempotencyKey makes retries safe.
func (c *Client) CreateTask(ctx context.Context, in NewTask, idempotencyKey string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.path("tasks"), in, idempotency(idempotencyKey), &resp)
	return resp, err
}

// UpdateTask edits, moves or toggles a task.
func (c *Client) UpdateTask(ctx context.Context, id int64, in TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, c.path(fmt.Sprintf("tasks/%d", id)), in, nil, &resp)
	return resp, err
}

// SoftDeleteTask moves a task to the trash. A nil at lets the server stamp it.
func (c *Client) SoftDeleteTask(ctx context.Context, id int64, at *time.Time) (Task, error) {
	body := map[string]any{}
	if at != nil {
		body["deleted_at"] = at
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.path(fmt.Sprintf("tasks/%d/delete", id)), body, nil, &resp)
	return resp, err
}

// RestoreTask takes a task out of the trash into tab tabID.
func (c *Client) RestoreTask(ctx context.Context, id, tabID int64, orderIndex int) (Task, error) {
	body := map[string]any{
		"tab_id":      tabID,
		"order_index": orderIndex,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.path(fmt.Sprintf("tasks/%d/restore", id)), body, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	endpoint := c.path("events")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp, err
}

// DevLogin asks a server running with dev login enabled for a token.
func (c *Client) DevLogin(ctx context.Context, ownerID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, c.path("auth/dev/login"), map[string]any{"owner_id": ownerID}, nil, &resp)
	return resp.Token, err
}

func idempotency(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{"Idempotency-Key": key}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, headers map[string]string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		return strings.TrimLeft(p, "/")
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
