package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabtask/internal/domain"
	"tabtask/internal/engine"
	"tabtask/internal/remote"
	"tabtask/internal/session"
)

var errBoom = errors.New("boom")

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine  *engine.Engine
	Remote  *remote.Memory
	Session *session.Session
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	mem := remote.NewMemory()
	mem.Now = func() time.Time { return testNow }
	sess := session.New(session.NewMemoryPersister())
	eng := engine.New(mem, engine.Options{
		Session: sess,
		Now:     func() time.Time { return testNow },
	})
	t.Cleanup(eng.Close)
	return testEnv{Engine: eng, Remote: mem, Session: sess, Ctx: context.Background()}
}

func (env testEnv) load(t *testing.T) {
	t.Helper()
	require.NoError(t, env.Engine.Load(env.Ctx))
}

func (env testEnv) seedTask(tab domain.Tab, text string, order int) domain.Task {
	return env.Remote.SeedTask(domain.Task{TabRef: domain.RefPtr(tab.Ref), Text: text, OrderIndex: order})
}

func wait(t *testing.T, op *engine.Op) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := op.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func texts(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Text)
	}
	return out
}

func titles(tabs []domain.Tab) []string {
	out := make([]string, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, t.Title)
	}
	return out
}

func remoteID(t *testing.T, r domain.Ref) int64 {
	t.Helper()
	id, ok := r.RemoteID()
	require.True(t, ok, "ref %s is not confirmed", r)
	return id
}

func TestLoadSeedsDefaultTabAndSelectsIt(t *testing.T) {
	env := newTestEnv(t)
	env.load(t)

	tabs := env.Engine.Tabs()
	require.Len(t, tabs, 1)
	assert.Equal(t, "My Tasks", tabs[0].Title)
	assert.Equal(t, tabs[0].Ref, env.Engine.Selected())
}

func TestAddTaskIsVisibleBeforeConfirmation(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	env.seedTask(tab, "existing", 0)
	env.load(t)

	env.Remote.Hold()
	op, err := env.Engine.AddTask(tab.Ref, "  Buy milk ")
	require.NoError(t, err)

	tasks := env.Engine.Tasks(tab.Ref)
	require.Equal(t, []string{"Buy milk", "existing"}, texts(tasks))
	assert.True(t, tasks[0].Ref.IsPending())
	assert.True(t, op.Ref().IsPending())

	env.Remote.Release()
	require.NoError(t, wait(t, op))

	tasks = env.Engine.Tasks(tab.Ref)
	require.Equal(t, []string{"Buy milk", "existing"}, texts(tasks))
	assert.False(t, tasks[0].Ref.IsPending())
	assert.Equal(t, tasks[0].Ref, op.Ref())
	assert.Equal(t, testNow, tasks[0].CreatedAt)

	stored, ok := env.Remote.Task(remoteID(t, op.Ref()))
	require.True(t, ok)
	assert.Equal(t, "Buy milk", stored.Text)
	assert.True(t, stored.InTab(tab.Ref))
}

func TestFailedAddRollsBack(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	env.seedTask(tab, "existing", 0)
	env.load(t)
	before := env.Engine.AllTasks()

	env.Remote.FailNext(remote.OpCreateTask, errBoom)
	op, err := env.Engine.AddTask(tab.Ref, "doomed")
	require.NoError(t, err)

	err = wait(t, op)
	var fail *engine.SyncFailure
	require.ErrorAs(t, err, &fail)
	assert.Equal(t, engine.OpAddTask, fail.Op)
	assert.ErrorIs(t, err, errBoom)
	assert.NotEmpty(t, fail.Message())
	assert.Equal(t, before, env.Engine.AllTasks())
}

func TestValidationRejectsBeforeApplying(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	task := env.seedTask(tab, "keep", 0)
	env.load(t)
	before := env.Engine.AllTasks()

	_, err := env.Engine.AddTask(tab.Ref, "   ")
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "text", verr.Field)

	_, err = env.Engine.EditTask(task.Ref, "")
	require.ErrorAs(t, err, &verr)

	_, err = env.Engine.AddTab("")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	_, err = env.Engine.ToggleTask(domain.Confirmed(999), true)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = env.Engine.AddTask(domain.Confirmed(999), "orphan")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = env.Engine.AddTask(domain.Ref{}, "nowhere")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tab", verr.Field)

	assert.Equal(t, before, env.Engine.AllTasks())
	assert.Empty(t, env.Remote.Calls()[2:], "no remote calls beyond the initial load")
}

func TestRollbackLeavesUnrelatedMutationsAlone(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	a := env.seedTask(tab, "alpha", 0)
	b := env.seedTask(tab, "beta", 1)
	env.load(t)

	aID := remoteID(t, a.Ref)
	env.Remote.FailWhen(func(c remote.Call) error {
		if c.Op == remote.OpUpdateTask && c.ID == aID {
			return errBoom
		}
		return nil
	})

	env.Remote.Hold()
	editA, err := env.Engine.EditTask(a.Ref, "alpha edited")
	require.NoError(t, err)
	toggleB, err := env.Engine.ToggleTask(b.Ref, true)
	require.NoError(t, err)
	toggleA, err := env.Engine.ToggleTask(a.Ref, true)
	require.NoError(t, err)
	env.Remote.Release()

	require.Error(t, wait(t, editA))
	require.NoError(t, wait(t, toggleB))
	require.Error(t, wait(t, toggleA))

	gotA, _ := env.Engine.Task(a.Ref)
	gotB, _ := env.Engine.Task(b.Ref)
	assert.Equal(t, "alpha", gotA.Text)
	assert.False(t, gotA.IsCompleted)
	assert.Nil(t, gotA.CompletedAt)
	assert.True(t, gotB.IsCompleted)
	require.NotNil(t, gotB.CompletedAt)
	assert.Equal(t, testNow, *gotB.CompletedAt)
}

func TestToggleRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	task := env.seedTask(tab, "write report", 0)
	env.load(t)

	op, err := env.Engine.ToggleTask(task.Ref, true)
	require.NoError(t, err)
	require.NoError(t, wait(t, op))
	stored, _ := env.Remote.Task(remoteID(t, task.Ref))
	assert.True(t, stored.IsCompleted)
	require.NotNil(t, stored.CompletedAt)

	calls := len(env.Remote.Calls())
	again, err := env.Engine.ToggleTask(task.Ref, true)
	require.NoError(t, err)
	require.NoError(t, wait(t, again))
	assert.Len(t, env.Remote.Calls(), calls, "completing a completed task sends nothing")
	got, _ := env.Engine.Task(task.Ref)
	assert.True(t, got.CompletedAt.Equal(*stored.CompletedAt))

	op, err = env.Engine.ToggleTask(task.Ref, false)
	require.NoError(t, err)
	require.NoError(t, wait(t, op))
	stored, _ = env.Remote.Task(remoteID(t, task.Ref))
	assert.False(t, stored.IsCompleted)
	assert.Nil(t, stored.CompletedAt)
	got, _ = env.Engine.Task(task.Ref)
	assert.Nil(t, got.CompletedAt)
}

func TestCompletedTasksDropOutAfterWindow(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	old := testNow.Add(-8 * 24 * time.Hour)
	recent := testNow.Add(-time.Hour)
	env.Remote.SeedTask(domain.Task{TabRef: domain.RefPtr(tab.Ref), Text: "old", IsCompleted: true, CompletedAt: &old})
	env.Remote.SeedTask(domain.Task{TabRef: domain.RefPtr(tab.Ref), Text: "recent", IsCompleted: true, CompletedAt: &recent, OrderIndex: 1})
	env.load(t)

	assert.Equal(t, []string{"recent"}, texts(env.Engine.Tasks(tab.Ref)))
	assert.Len(t, env.Engine.AllTasks(), 2)
}

func TestDeleteTaskMovesToTrash(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	a := env.seedTask(tab, "alpha", 0)
	b := env.seedTask(tab, "beta", 1)
	env.load(t)

	aID := remoteID(t, a.Ref)
	env.Remote.FailWhen(func(c remote.Call) error {
		if c.Op == remote.OpSoftDeleteTask && c.ID == aID {
			return errBoom
		}
		return nil
	})
	delA, err := env.Engine.DeleteTask(a.Ref)
	require.NoError(t, err)
	delB, err := env.Engine.DeleteTask(b.Ref)
	require.NoError(t, err)
	assert.Empty(t, env.Engine.Tasks(tab.Ref))

	require.Error(t, wait(t, delA))
	require.NoError(t, wait(t, delB))

	assert.Equal(t, []string{"alpha"}, texts(env.Engine.Tasks(tab.Ref)))
	trash := env.Engine.Trash()
	require.Len(t, trash, 1)
	assert.Equal(t, b.Ref, trash[0].Ref)

	stored, _ := env.Remote.Task(remoteID(t, b.Ref))
	require.NotNil(t, stored.DeletedAt)
	assert.Equal(t, testNow, *stored.DeletedAt)
}

func TestReorderSendsOnlyChangedKeys(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	a := env.seedTask(tab, "a", 0)
	b := env.seedTask(tab, "b", 1)
	c := env.seedTask(tab, "c", 2)
	d := env.seedTask(tab, "d", 3)
	env.load(t)

	op, err := env.Engine.ReorderTasks(c.Ref, a.Ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b", "d"}, texts(env.Engine.Tasks(tab.Ref)))
	require.NoError(t, wait(t, op))

	updates := map[int64]bool{}
	for _, call := range env.Remote.Calls() {
		if call.Op == remote.OpUpdateTask {
			updates[call.ID] = true
		}
	}
	assert.Len(t, updates, 3)
	assert.False(t, updates[remoteID(t, d.Ref)])

	for want, ref := range []domain.Ref{c.Ref, a.Ref, b.Ref, d.Ref} {
		stored, _ := env.Remote.Task(remoteID(t, ref))
		assert.Equal(t, want, stored.OrderIndex, stored.Text)
	}
}

func TestReorderFailureRollsBackWholeBatch(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	a := env.seedTask(tab, "a", 0)
	env.seedTask(tab, "b", 1)
	c := env.seedTask(tab, "c", 2)
	env.load(t)

	aID := remoteID(t, a.Ref)
	env.Remote.FailWhen(func(call remote.Call) error {
		if call.Op == remote.OpUpdateTask && call.ID == aID {
			return errBoom
		}
		return nil
	})
	op, err := env.Engine.ReorderTasks(c.Ref, a.Ref)
	require.NoError(t, err)
	require.Error(t, wait(t, op))

	local := env.Engine.Tasks(tab.Ref)
	assert.Equal(t, []string{"a", "b", "c"}, texts(local))
	for i, task := range local {
		assert.Equal(t, i, task.OrderIndex)
		stored, _ := env.Remote.Task(remoteID(t, task.Ref))
		assert.Equal(t, i, stored.OrderIndex, "remote key of %s", task.Text)
	}
}

func TestReorderNoOps(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	a := env.seedTask(tab, "a", 0)
	env.seedTask(tab, "b", 1)
	env.load(t)

	op, err := env.Engine.ReorderTasks(a.Ref, a.Ref)
	require.NoError(t, err)
	require.NoError(t, wait(t, op))

	op, err = env.Engine.ReorderTasks(a.Ref, domain.Confirmed(999))
	require.NoError(t, err)
	require.NoError(t, wait(t, op))

	for _, call := range env.Remote.Calls() {
		assert.NotEqual(t, remote.OpUpdateTask, call.Op)
	}
}

func TestReorderTabs(t *testing.T) {
	env := newTestEnv(t)
	a := env.Remote.SeedTab("A", 0)
	env.Remote.SeedTab("B", 1)
	c := env.Remote.SeedTab("C", 2)
	env.load(t)

	op, err := env.Engine.ReorderTabs(a.Ref, c.Ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, titles(env.Engine.Tabs()))
	require.NoError(t, wait(t, op))
	stored, _ := env.Remote.Tab(remoteID(t, a.Ref))
	assert.Equal(t, 2, stored.OrderIndex)
}

func TestTaskInPendingTabWaitsForTab(t *testing.T) {
	env := newTestEnv(t)
	env.Remote.SeedTab("Inbox", 0)
	env.load(t)

	env.Remote.Hold()
	tabOp, err := env.Engine.AddTab("Work")
	require.NoError(t, err)
	taskOp, err := env.Engine.AddTask(tabOp.Ref(), "plan sprint")
	require.NoError(t, err)
	assert.Equal(t, []string{"plan sprint"}, texts(env.Engine.Tasks(tabOp.Ref())))
	env.Remote.Release()

	require.NoError(t, wait(t, tabOp))
	require.NoError(t, wait(t, taskOp))

	tabRef := tabOp.Ref()
	assert.False(t, tabRef.IsPending())
	task, ok := env.Engine.Task(taskOp.Ref())
	require.True(t, ok)
	require.NotNil(t, task.TabRef)
	assert.Equal(t, tabRef, *task.TabRef)

	stored, _ := env.Remote.Task(remoteID(t, taskOp.Ref()))
	assert.True(t, stored.InTab(tabRef))
	assert.Equal(t, []string{"Inbox", "Work"}, titles(env.Engine.Tabs()))
}

func TestFailedTabCreateFailsDependentTask(t *testing.T) {
	env := newTestEnv(t)
	env.Remote.SeedTab("Inbox", 0)
	env.load(t)

	env.Remote.FailNext(remote.OpCreateTab, errBoom)
	env.Remote.Hold()
	tabOp, err := env.Engine.AddTab("Work")
	require.NoError(t, err)
	require.NoError(t, env.Engine.Select(tabOp.Ref()))
	taskOp, err := env.Engine.AddTask(tabOp.Ref(), "plan sprint")
	require.NoError(t, err)
	env.Remote.Release()

	require.Error(t, wait(t, tabOp))
	err = wait(t, taskOp)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnconfirmed)

	assert.Equal(t, []string{"Inbox"}, titles(env.Engine.Tabs()))
	assert.Empty(t, env.Engine.AllTasks())
	assert.Equal(t, env.Engine.Tabs()[0].Ref, env.Engine.Selected())
}

func TestEditWhilePendingIsSentAfterCreate(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	env.load(t)

	env.Remote.Hold()
	add, err := env.Engine.AddTask(tab.Ref, "draft")
	require.NoError(t, err)
	edit, err := env.Engine.EditTask(add.Ref(), "final")
	require.NoError(t, err)
	env.Remote.Release()

	require.NoError(t, wait(t, add))
	require.NoError(t, wait(t, edit))

	tasks := env.Engine.Tasks(tab.Ref)
	require.Len(t, tasks, 1)
	assert.Equal(t, "final", tasks[0].Text)
	assert.Equal(t, add.Ref(), tasks[0].Ref)
	stored, _ := env.Remote.Task(remoteID(t, add.Ref()))
	assert.Equal(t, "final", stored.Text)
}

func TestConfirmationAfterLocalRemovalIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.Remote.SeedTab("Inbox", 0)
	env.load(t)

	env.Remote.Hold()
	add, err := env.Engine.AddTab("Scratch")
	require.NoError(t, err)
	del, err := env.Engine.DeleteTab(add.Ref())
	require.NoError(t, err)
	assert.Equal(t, []string{"Inbox"}, titles(env.Engine.Tabs()))
	env.Remote.Release()

	require.NoError(t, wait(t, add))
	require.NoError(t, wait(t, del))

	assert.Equal(t, []string{"Inbox"}, titles(env.Engine.Tabs()))
	_, ok := env.Remote.Tab(remoteID(t, add.Ref()))
	assert.False(t, ok)

	var kinds []engine.EventKind
	for {
		select {
		case ev := <-env.Engine.Events():
			kinds = append(kinds, ev.Kind)
			continue
		default:
		}
		break
	}
	assert.Contains(t, kinds, engine.EventMissed)
}

func TestPendingRefsNeverCollide(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	env.load(t)

	var ops []*engine.Op
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		op, err := env.Engine.AddTask(tab.Ref, text)
		require.NoError(t, err)
		ops = append(ops, op)
	}
	seen := map[domain.Ref]bool{}
	for _, op := range ops {
		require.NoError(t, wait(t, op))
		assert.False(t, seen[op.Ref()], "duplicate ref %s", op.Ref())
		seen[op.Ref()] = true
	}
	tasks := env.Engine.Tasks(tab.Ref)
	assert.Equal(t, []string{"five", "four", "three", "two", "one"}, texts(tasks))
	for _, task := range tasks {
		assert.False(t, task.Ref.IsPending())
	}
}

func TestDeleteSelectedTabSelectsNeighbour(t *testing.T) {
	env := newTestEnv(t)
	a := env.Remote.SeedTab("A", 0)
	b := env.Remote.SeedTab("B", 1)
	c := env.Remote.SeedTab("C", 2)
	env.load(t)

	require.NoError(t, env.Engine.Select(b.Ref))
	op, err := env.Engine.DeleteTab(b.Ref)
	require.NoError(t, err)
	assert.Equal(t, a.Ref, env.Engine.Selected())
	require.NoError(t, wait(t, op))

	op, err = env.Engine.DeleteTab(a.Ref)
	require.NoError(t, err)
	assert.Equal(t, c.Ref, env.Engine.Selected())
	require.NoError(t, wait(t, op))
}

func TestDeleteOtherTabKeepsSelection(t *testing.T) {
	env := newTestEnv(t)
	a := env.Remote.SeedTab("A", 0)
	b := env.Remote.SeedTab("B", 1)
	env.load(t)

	require.NoError(t, env.Engine.Select(a.Ref))
	op, err := env.Engine.DeleteTab(b.Ref)
	require.NoError(t, err)
	require.NoError(t, wait(t, op))
	assert.Equal(t, a.Ref, env.Engine.Selected())
}

func TestFailedTabDeleteRestoresTabAndSelection(t *testing.T) {
	env := newTestEnv(t)
	env.Remote.SeedTab("A", 0)
	b := env.Remote.SeedTab("B", 1)
	env.Remote.SeedTab("C", 2)
	env.load(t)

	require.NoError(t, env.Engine.Select(b.Ref))
	env.Remote.FailNext(remote.OpDeleteTab, errBoom)
	op, err := env.Engine.DeleteTab(b.Ref)
	require.NoError(t, err)
	require.Error(t, wait(t, op))

	assert.Equal(t, []string{"A", "B", "C"}, titles(env.Engine.Tabs()))
	assert.Equal(t, b.Ref, env.Engine.Selected())
}

func TestTabDeleteCascadesTasks(t *testing.T) {
	env := newTestEnv(t)
	work := env.Remote.SeedTab("Work", 0)
	env.Remote.SeedTab("Home", 1)
	a := env.seedTask(work, "a", 0)
	env.seedTask(work, "b", 1)
	env.load(t)
	env.Remote.Now = func() time.Time { return testNow.Add(3 * time.Hour) }

	op, err := env.Engine.DeleteTab(work.Ref)
	require.NoError(t, err)
	require.NoError(t, wait(t, op))

	trash := env.Engine.Trash()
	require.Len(t, trash, 2)
	for _, task := range trash {
		assert.Nil(t, task.TabRef)
		assert.Equal(t, "Work", task.LastParentTitle)
		require.NotNil(t, task.DeletedAt)
		assert.True(t, task.DeletedAt.Equal(testNow))
	}
	stored, _ := env.Remote.Task(remoteID(t, a.Ref))
	assert.Nil(t, stored.TabRef)
	assert.Equal(t, "Work", stored.LastParentTitle)
	require.NotNil(t, stored.DeletedAt)
	assert.True(t, stored.DeletedAt.Equal(testNow), "remote stamps the client's delete time, not its own clock")
}

func TestRenameTabRollback(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	env.load(t)

	env.Remote.FailNext(remote.OpUpdateTab, errBoom)
	op, err := env.Engine.RenameTab(tab.Ref, "Renamed")
	require.NoError(t, err)
	got, _ := env.Engine.Tab(tab.Ref)
	assert.Equal(t, "Renamed", got.Title)
	require.Error(t, wait(t, op))

	got, _ = env.Engine.Tab(tab.Ref)
	assert.Equal(t, "Inbox", got.Title)
}

func TestClosedEngineRejectsMutations(t *testing.T) {
	env := newTestEnv(t)
	env.load(t)
	env.Engine.Close()

	_, err := env.Engine.AddTab("late")
	assert.ErrorIs(t, err, engine.ErrClosed)
}

func TestLoadKeepsUnsettledChanges(t *testing.T) {
	env := newTestEnv(t)
	inbox := env.Remote.SeedTab("Inbox", 0)
	old := env.Remote.SeedTab("Old", 1)
	a := env.seedTask(inbox, "a", 0)
	b := env.seedTask(inbox, "b", 1)
	env.load(t)

	env.Remote.Hold(remote.OpSoftDeleteTask, remote.OpDeleteTab)
	del, err := env.Engine.DeleteTask(a.Ref)
	require.NoError(t, err)
	delTab, err := env.Engine.DeleteTab(old.Ref)
	require.NoError(t, err)

	text := "b from elsewhere"
	require.NoError(t, env.Remote.UpdateTask(env.Ctx, remoteID(t, b.Ref), domain.TaskPatch{Text: &text}))
	env.load(t)

	gotA, ok := env.Engine.Task(a.Ref)
	require.True(t, ok)
	assert.True(t, gotA.Deleted(), "an unsettled delete survives a reload")
	assert.Equal(t, []string{"Inbox"}, titles(env.Engine.Tabs()))
	gotB, _ := env.Engine.Task(b.Ref)
	assert.Equal(t, text, gotB.Text, "settled items take the remote state")

	env.Remote.Release()
	require.NoError(t, wait(t, del))
	require.NoError(t, wait(t, delTab))
	require.Len(t, env.Engine.Trash(), 1)
	assert.Equal(t, a.Ref, env.Engine.Trash()[0].Ref)

	env.load(t)
	assert.Equal(t, []string{"Inbox"}, titles(env.Engine.Tabs()))
	assert.Equal(t, []string{text}, texts(env.Engine.Tasks(inbox.Ref)))
}

func TestWaitReturnsOnceEverythingSettled(t *testing.T) {
	env := newTestEnv(t)
	tab := env.Remote.SeedTab("Inbox", 0)
	env.load(t)

	env.Remote.Hold()
	first, err := env.Engine.AddTask(tab.Ref, "one")
	require.NoError(t, err)
	second, err := env.Engine.AddTask(tab.Ref, "two")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(env.Ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, env.Engine.Wait(short), context.DeadlineExceeded)

	env.Remote.Release()
	ctx, cancelWait := context.WithTimeout(env.Ctx, 5*time.Second)
	defer cancelWait()
	require.NoError(t, env.Engine.Wait(ctx))
	assert.NoError(t, first.Err())
	assert.NoError(t, second.Err())
	assert.False(t, first.Ref().IsPending())
	assert.False(t, second.Ref().IsPending())
}
