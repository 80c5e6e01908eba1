package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"tabtask/internal/domain"
)

const defaultTabTitle = "My Tasks"

// Call records one request received by Memory.
type Call struct {
	Op string
	ID int64
}

// Memory is an in-process Remote with the same semantics as the sqlite
// store. Tests steer it with FailWhen, FailNext and Hold.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	tabs    map[int64]domain.Tab
	tasks   map[int64]domain.Task
	tokens  map[string]int64
	calls   []Call
	failFn  func(Call) error
	failOne map[string]error
	gate    chan struct{}
	gateOps map[string]bool

	DefaultTabTitle string
	Now             func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tabs:            map[int64]domain.Tab{},
		tasks:           map[int64]domain.Task{},
		tokens:          map[string]int64{},
		failOne:         map[string]error{},
		DefaultTabTitle: defaultTabTitle,
		Now:             time.Now,
	}
}

// FailWhen installs a predicate consulted on every call; a non-nil return is
// the call's error. Pass nil to clear.
func (m *Memory) FailWhen(fn func(Call) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFn = fn
}

// FailNext makes the next call of op fail with err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOne[op] = err
}

// Hold blocks subsequent calls until Release. With ops given, only calls of
// those operations are held.
func (m *Memory) Hold(ops ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
	m.gateOps = nil
	if len(ops) > 0 {
		m.gateOps = map[string]bool{}
		for _, op := range ops {
			m.gateOps[op] = true
		}
	}
}

// Release unblocks calls parked by Hold.
func (m *Memory) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
	m.gateOps = nil
}

// Calls returns a copy of the recorded calls.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// SeedTab inserts a tab directly, bypassing failure injection.
func (m *Memory) SeedTab(title string, order int) domain.Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := domain.Tab{Ref: domain.Confirmed(m.nextID), Title: title, OrderIndex: order, CreatedAt: m.now()}
	m.tabs[m.nextID] = t
	return t
}

// SeedTask inserts a task directly, bypassing failure injection.
func (m *Memory) SeedTask(t domain.Task) domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.Ref = domain.Confirmed(m.nextID)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}
	m.tasks[m.nextID] = t.Clone()
	return t
}

// Task returns the stored row for id.
func (m *Memory) Task(id int64) (domain.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t.Clone(), ok
}

// Tab returns the stored row for id.
func (m *Memory) Tab(id int64) (domain.Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	return t, ok
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// enter records the call, waits out any Hold and returns the injected error.
// It returns with m.mu held when err is nil.
func (m *Memory) enter(ctx context.Context, op string, id int64) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Op: op, ID: id})
	gate := m.gate
	if m.gateOps != nil && !m.gateOps[op] {
		gate = nil
	}
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	if err, ok := m.failOne[op]; ok {
		delete(m.failOne, op)
		m.mu.Unlock()
		return err
	}
	if m.failFn != nil {
		if err := m.failFn(Call{Op: op, ID: id}); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	return nil
}

func (m *Memory) ListTabs(ctx context.Context) ([]domain.Tab, error) {
	if err := m.enter(ctx, OpListTabs, 0); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	if len(m.tabs) == 0 {
		m.nextID++
		m.tabs[m.nextID] = domain.Tab{Ref: domain.Confirmed(m.nextID), Title: m.DefaultTabTitle, CreatedAt: m.now()}
	}
	out := make([]domain.Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].Ref.String() < out[j].Ref.String()
	})
	return out, nil
}

func (m *Memory) CreateTab(ctx context.Context, f domain.TabFields) (domain.Tab, error) {
	if err := m.enter(ctx, OpCreateTab, 0); err != nil {
		return domain.Tab{}, err
	}
	defer m.mu.Unlock()
	if id, ok := m.tokens[f.ClientToken]; ok && f.ClientToken != "" {
		return m.tabs[id], nil
	}
	m.nextID++
	t := domain.Tab{Ref: domain.Confirmed(m.nextID), Title: f.Title, OrderIndex: f.OrderIndex, CreatedAt: f.CreatedAt}
	m.tabs[m.nextID] = t
	if f.ClientToken != "" {
		m.tokens[f.ClientToken] = m.nextID
	}
	return t, nil
}

func (m *Memory) UpdateTab(ctx context.Context, id int64, p domain.TabPatch) error {
	if err := m.enter(ctx, OpUpdateTab, id); err != nil {
		return err
	}
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return ErrNotFound
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.OrderIndex != nil {
		t.OrderIndex = *p.OrderIndex
	}
	m.tabs[id] = t
	return nil
}

func (m *Memory) DeleteTab(ctx context.Context, id int64, at time.Time) error {
	if err := m.enter(ctx, OpDeleteTab, id); err != nil {
		return err
	}
	defer m.mu.Unlock()
	tab, ok := m.tabs[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.tabs, id)
	if at.IsZero() {
		at = m.now()
	}
	ref := domain.Confirmed(id)
	for tid, t := range m.tasks {
		if !t.InTab(ref) {
			continue
		}
		if t.DeletedAt == nil {
			stamp := at
			t.DeletedAt = &stamp
		}
		t.TabRef = nil
		t.LastParentTitle = tab.Title
		m.tasks[tid] = t
	}
	return nil
}

func (m *Memory) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	if err := m.enter(ctx, OpListTasks, 0); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	out := make([]domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if f.TabID != nil && !t.InTab(domain.Confirmed(*f.TabID)) {
			continue
		}
		if !f.IncludeDeleted && t.DeletedAt != nil {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		a, _ := out[i].Ref.RemoteID()
		b, _ := out[j].Ref.RemoteID()
		return a < b
	})
	return out, nil
}

func (m *Memory) CreateTask(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	if err := m.enter(ctx, OpCreateTask, 0); err != nil {
		return domain.Task{}, err
	}
	defer m.mu.Unlock()
	if id, ok := m.tokens[f.ClientToken]; ok && f.ClientToken != "" {
		return m.tasks[id].Clone(), nil
	}
	if f.TabID != nil {
		if _, ok := m.tabs[*f.TabID]; !ok {
			return domain.Task{}, ErrNotFound
		}
	}
	m.nextID++
	t := domain.Task{Ref: domain.Confirmed(m.nextID), Text: f.Text, OrderIndex: f.OrderIndex, CreatedAt: f.CreatedAt}
	if f.TabID != nil {
		t.TabRef = domain.RefPtr(domain.Confirmed(*f.TabID))
	}
	m.tasks[m.nextID] = t
	if f.ClientToken != "" {
		m.tokens[f.ClientToken] = m.nextID
	}
	return t.Clone(), nil
}

func (m *Memory) UpdateTask(ctx context.Context, id int64, p domain.TaskPatch) error {
	if err := m.enter(ctx, OpUpdateTask, id); err != nil {
		return err
	}
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.OrderIndex != nil {
		t.OrderIndex = *p.OrderIndex
	}
	if p.Completion != nil {
		t.IsCompleted = p.Completion.IsCompleted
		t.CompletedAt = p.Completion.CompletedAt
	}
	m.tasks[id] = t.Clone()
	return nil
}

func (m *Memory) SoftDeleteTask(ctx context.Context, id int64, at time.Time) error {
	if err := m.enter(ctx, OpSoftDeleteTask, id); err != nil {
		return err
	}
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	t.DeletedAt = &at
	m.tasks[id] = t
	return nil
}

func (m *Memory) RestoreTask(ctx context.Context, id int64, tabID int64, orderIndex int) error {
	if err := m.enter(ctx, OpRestoreTask, id); err != nil {
		return err
	}
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.tabs[tabID]; !ok {
		return ErrNotFound
	}
	t.DeletedAt = nil
	t.TabRef = domain.RefPtr(domain.Confirmed(tabID))
	t.OrderIndex = orderIndex
	m.tasks[id] = t
	return nil
}

var _ Remote = (*Memory)(nil)
