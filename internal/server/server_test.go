package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"tabtask/internal/db"
	"tabtask/internal/migrate"
	"tabtask/internal/store"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Store  store.Store
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.New(conn)
	handler, err := New(Config{
		Store:    s,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowDevLogin: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Store:  s,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(t *testing.T, owner string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, owner, 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return out
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("status %d, want %d: %s", res.StatusCode, want, string(data))
	}
}

func TestHealthAndSpecArePublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	var spec map[string]any
	if err := json.Unmarshal(data, &spec); err != nil {
		t.Fatalf("openapi: %v", err)
	}
	paths, ok := spec["paths"].(map[string]any)
	if !ok {
		t.Fatalf("openapi without paths: %s", string(data))
	}
	if _, ok := paths["/v0/tabs"]; !ok {
		t.Fatalf("tabs route missing from spec")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/docs", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	if !bytes.Contains(data, []byte("/v0/openapi.json")) {
		t.Fatalf("docs page does not load the spec: %s", string(data))
	}
}

func TestRequestsWithoutCredentialsAreRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tabs", nil, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)
	body := decode[apiError](t, data)
	if body.Body.Code != "unauthorized" {
		t.Fatalf("unexpected code %q", body.Body.Code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tabs", nil, map[string]string{"Authorization": "Bearer nope"})
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"owner_id": "alice"}, nil)
	expectStatus(t, res, data, http.StatusOK)
	login := decode[DevLoginResponse](t, data)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	expectStatus(t, res, data, http.StatusOK)
	me := decode[MeResponse](t, data)
	if me.OwnerID != "alice" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}
}

func TestListTabsSeedsDefaultTab(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := bearer(t, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tabs", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	list := decode[TabList](t, data)
	if len(list.Items) != 1 || list.Items[0].Title != store.DefaultTabTitle {
		t.Fatalf("expected default tab, got %+v", list.Items)
	}
}

func TestCreateTabIsIdempotentOnKey(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := bearer(t, "alice")
	auth["Idempotency-Key"] = "tok-1"

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tabs", map[string]any{"title": " Work ", "order_index": 3}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	first := decode[TabResponse](t, data)
	if first.Title != "Work" || first.OrderIndex != 3 {
		t.Fatalf("unexpected tab %+v", first)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tabs", map[string]any{"title": "Work", "order_index": 3}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	second := decode[TabResponse](t, data)
	if second.ID != first.ID {
		t.Fatalf("retry created a duplicate: %d != %d", second.ID, first.ID)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tabs", map[string]any{"title": "   "}, bearer(t, "alice"))
	expectStatus(t, res, data, http.StatusBadRequest)
}

func TestTaskLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := bearer(t, "alice")
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tabs", map[string]any{"title": "Home"}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	tab := decode[TabResponse](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"tab_id": tab.ID, "text": "buy milk", "order_index": 1}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	task := decode[TaskResponse](t, data)
	if task.TabID == nil || *task.TabID != tab.ID || task.IsCompleted {
		t.Fatalf("unexpected task %+v", task)
	}
	taskURL := fmt.Sprintf("%s/v0/tasks/%d", srv.URL, task.ID)

	res, data = doJSON(t, client, http.MethodPatch, taskURL, map[string]any{"is_completed": true}, auth)
	expectStatus(t, res, data, http.StatusOK)
	done := decode[TaskResponse](t, data)
	if !done.IsCompleted || done.CompletedAt == nil {
		t.Fatalf("expected completed task, got %+v", done)
	}

	res, data = doJSON(t, client, http.MethodPatch, taskURL, map[string]any{"is_completed": false, "text": "buy oat milk"}, auth)
	expectStatus(t, res, data, http.StatusOK)
	undone := decode[TaskResponse](t, data)
	if undone.IsCompleted || undone.CompletedAt != nil || undone.Text != "buy oat milk" {
		t.Fatalf("unexpected task %+v", undone)
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/delete", map[string]any{}, auth)
	expectStatus(t, res, data, http.StatusOK)
	if trashed := decode[TaskResponse](t, data); trashed.DeletedAt == nil {
		t.Fatalf("expected deleted_at, got %+v", trashed)
	}

	res, data = doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v0/tasks?tab_id=%d", srv.URL, tab.ID), nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	if live := decode[TaskList](t, data); len(live.Items) != 0 {
		t.Fatalf("deleted task still listed: %+v", live.Items)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?include_deleted=true", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	if all := decode[TaskList](t, data); len(all.Items) != 1 {
		t.Fatalf("expected trashed task, got %+v", all.Items)
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/restore", map[string]any{"tab_id": tab.ID, "order_index": 5}, auth)
	expectStatus(t, res, data, http.StatusOK)
	restored := decode[TaskResponse](t, data)
	if restored.DeletedAt != nil || restored.OrderIndex != 5 {
		t.Fatalf("unexpected restored task %+v", restored)
	}
}

func TestDeleteTabTrashesItsTasks(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := bearer(t, "alice")
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tabs", map[string]any{"title": "Errands"}, auth)
	tab := decode[TabResponse](t, data)
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"tab_id": tab.ID, "text": "post office"}, auth)
	task := decode[TaskResponse](t, data)

	res, data := doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v0/tabs/%d?deleted_at=nope", srv.URL, tab.ID), nil, auth)
	expectStatus(t, res, data, http.StatusBadRequest)

	removedAt := time.Date(2024, 5, 3, 10, 30, 0, 0, time.UTC)
	res, data = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v0/tabs/%d?deleted_at=%s", srv.URL, tab.ID, removedAt.Format(time.RFC3339)), nil, auth)
	expectStatus(t, res, data, http.StatusNoContent)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?include_deleted=true", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	list := decode[TaskList](t, data)
	if len(list.Items) != 1 || list.Items[0].ID != task.ID {
		t.Fatalf("unexpected tasks %+v", list.Items)
	}
	got := list.Items[0]
	if got.TabID != nil || got.DeletedAt == nil || got.LastParentTitle != "Errands" {
		t.Fatalf("task not detached into trash: %+v", got)
	}
	if !got.DeletedAt.Equal(removedAt) {
		t.Fatalf("deleted_at = %v, want %v", got.DeletedAt, removedAt)
	}

	res, data = doJSON(t, client, http.MethodDelete, fmt.Sprintf("%s/v0/tabs/%d", srv.URL, tab.ID), nil, auth)
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestOwnersAreIsolated(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tabs", map[string]any{"title": "Private"}, bearer(t, "alice"))
	tab := decode[TabResponse](t, data)

	res, data := doJSON(t, client, http.MethodPatch, fmt.Sprintf("%s/v0/tabs/%d", srv.URL, tab.ID), map[string]any{"title": "Mine now"}, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusNotFound)
	if body := decode[apiError](t, data); body.Body.Code != "not_found" {
		t.Fatalf("unexpected code %q", body.Body.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"tab_id": tab.ID, "text": "sneaky"}, bearer(t, "bob"))
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	_, plaintext, err := srv.Store.CreateAPIKey(context.Background(), "carol", "ci")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": plaintext})
	expectStatus(t, res, data, http.StatusOK)
	me := decode[MeResponse](t, data)
	if me.OwnerID != "carol" || me.Source != "api_key" {
		t.Fatalf("unexpected principal %+v", me)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "tt_unknown"})
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	auth := bearer(t, "alice")
	client := srv.Client()

	for _, title := range []string{"A", "B", "C"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tabs", map[string]any{"title": title}, auth)
		expectStatus(t, res, data, http.StatusCreated)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=tab.created&limit=2", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	page := decode[paginatedEvents](t, data)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	if page.Items[0].Payload["title"] != "C" {
		t.Fatalf("expected newest first, got %+v", page.Items[0])
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type=tab.created&limit=2&cursor="+page.NextCursor, nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	next := decode[paginatedEvents](t, data)
	if len(next.Items) != 1 || next.NextCursor != "" || next.Items[0].Payload["title"] != "A" {
		t.Fatalf("unexpected second page %+v", next)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil, auth)
	expectStatus(t, res, data, http.StatusBadRequest)
}
