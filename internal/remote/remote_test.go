package remote_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabtask/internal/db"
	"tabtask/internal/domain"
	"tabtask/internal/migrate"
	"tabtask/internal/remote"
	"tabtask/internal/server"
	"tabtask/internal/store"
)

func openStore(t *testing.T) store.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return store.New(conn)
}

func newHTTPRemote(t *testing.T) remote.Remote {
	t.Helper()
	const secret = "remote-test"
	handler, err := server.New(server.Config{Store: openStore(t), Auth: server.AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	token, err := server.SignToken(secret, "alice", time.Hour)
	require.NoError(t, err)
	return remote.NewHTTP(srv.URL+"/v0", token, "", 5*time.Second)
}

func remotes(t *testing.T) map[string]func(t *testing.T) remote.Remote {
	return map[string]func(t *testing.T) remote.Remote{
		"memory": func(t *testing.T) remote.Remote { return remote.NewMemory() },
		"local":  func(t *testing.T) remote.Remote { return remote.NewLocal(openStore(t), "alice") },
		"http":   newHTTPRemote,
	}
}

func remoteID(t *testing.T, r domain.Ref) int64 {
	t.Helper()
	id, ok := r.RemoteID()
	require.True(t, ok, "ref %s is not confirmed", r)
	return id
}

func TestRemoteContract(t *testing.T) {
	for name, build := range remotes(t) {
		t.Run(name, func(t *testing.T) {
			r := build(t)
			ctx := context.Background()

			tabs, err := r.ListTabs(ctx)
			require.NoError(t, err)
			require.Len(t, tabs, 1, "an empty store seeds one tab")

			created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
			tab, err := r.CreateTab(ctx, domain.TabFields{Title: "Work", OrderIndex: 5, CreatedAt: created, ClientToken: "t-1"})
			require.NoError(t, err)
			assert.Equal(t, "Work", tab.Title)
			assert.True(t, tab.CreatedAt.Equal(created))
			tabID := remoteID(t, tab.Ref)

			again, err := r.CreateTab(ctx, domain.TabFields{Title: "Work", OrderIndex: 5, ClientToken: "t-1"})
			require.NoError(t, err)
			assert.Equal(t, tab.Ref, again.Ref, "a retried create is idempotent")

			title := "Office"
			require.NoError(t, r.UpdateTab(ctx, tabID, domain.TabPatch{Title: &title}))

			task, err := r.CreateTask(ctx, domain.TaskFields{TabID: &tabID, Text: "report", OrderIndex: 0, ClientToken: "k-1"})
			require.NoError(t, err)
			taskID := remoteID(t, task.Ref)
			assert.True(t, task.InTab(domain.Confirmed(tabID)))

			at := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
			require.NoError(t, r.UpdateTask(ctx, taskID, domain.TaskPatch{Completion: &domain.Completion{IsCompleted: true, CompletedAt: &at}}))

			listed, err := r.ListTasks(ctx, remote.TaskFilter{TabID: &tabID})
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.True(t, listed[0].IsCompleted)
			require.NotNil(t, listed[0].CompletedAt)
			assert.True(t, listed[0].CompletedAt.Equal(at))

			removedAt := time.Date(2024, 5, 3, 10, 30, 0, 0, time.UTC)
			require.NoError(t, r.DeleteTab(ctx, tabID, removedAt))
			trashed, err := r.ListTasks(ctx, remote.TaskFilter{IncludeDeleted: true})
			require.NoError(t, err)
			require.Len(t, trashed, 1)
			assert.Nil(t, trashed[0].TabRef)
			require.NotNil(t, trashed[0].DeletedAt)
			assert.True(t, trashed[0].DeletedAt.Equal(removedAt), "the trash countdown starts at the client's delete time")
			assert.Equal(t, "Office", trashed[0].LastParentTitle)

			home := remoteID(t, tabs[0].Ref)
			require.NoError(t, r.RestoreTask(ctx, taskID, home, 3))
			live, err := r.ListTasks(ctx, remote.TaskFilter{TabID: &home})
			require.NoError(t, err)
			require.Len(t, live, 1)
			assert.Nil(t, live[0].DeletedAt)
			assert.Equal(t, 3, live[0].OrderIndex)

			err = r.UpdateTab(ctx, tabID, domain.TabPatch{Title: &title})
			assert.ErrorIs(t, err, remote.ErrNotFound)
		})
	}
}
