// Package engine keeps the local tab and task collections and syncs every
// change to a remote store optimistically: a mutation is visible at once,
// confirmed when the store accepts it, and undone exactly when it rejects it.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tabtask/internal/domain"
	"tabtask/internal/identity"
	"tabtask/internal/logging"
	"tabtask/internal/remote"
	"tabtask/internal/session"
	"tabtask/internal/visibility"
)

type EventKind int

const (
	// EventApplied is sent when a mutation changed local state.
	EventApplied EventKind = iota + 1
	// EventConfirmed is sent when the remote store accepted it.
	EventConfirmed
	// EventRolledBack is sent when it was rejected and undone.
	EventRolledBack
	// EventMissed is sent when a create was confirmed after its item was gone.
	EventMissed
	// EventLoaded is sent after Load replaced the collections.
	EventLoaded
)

func (k EventKind) String() string {
	switch k {
	case EventApplied:
		return "applied"
	case EventConfirmed:
		return "confirmed"
	case EventRolledBack:
		return "rolled_back"
	case EventMissed:
		return "missed"
	case EventLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event tells observers that engine state changed.
type Event struct {
	Kind EventKind
	Op   string
	Ref  domain.Ref
	OpID uuid.UUID
	Err  error
}

type Options struct {
	Session *session.Session
	Logger  logging.Logger
	Alloc   *identity.Allocator
	Now     func() time.Time
	// PurgeHorizon bounds how long a deleted task stays in the trash.
	PurgeHorizon time.Duration
	// CompletedWindow bounds how long a completed task stays listed.
	CompletedWindow time.Duration
	// EventBuffer sizes the Events channel. Events are dropped when it is full.
	EventBuffer int
}

// Engine is the single owner of local state. All state access is serialized
// on one lock; remote calls run on their own goroutines and apply their
// outcome under that lock when they return.
type Engine struct {
	mu      sync.Mutex
	remote  remote.Remote
	session *session.Session
	log     logging.Logger
	alloc   *identity.Allocator
	now     func() time.Time
	horizon time.Duration
	window  time.Duration

	tabs    Collection[domain.Tab]
	tasks   Collection[domain.Task]
	aliases identity.Aliases
	creates map[domain.Ref]*Op
	dead    map[domain.Ref]struct{}
	// inflight maps every unsettled op to the refs it changed locally.
	inflight map[*Op][]domain.Ref

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func New(r remote.Remote, opts Options) *Engine {
	if opts.Session == nil {
		opts.Session = session.New(nil)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Alloc == nil {
		opts.Alloc = identity.NewAllocator()
		opts.Alloc.Now = opts.Now
	}
	if opts.PurgeHorizon <= 0 {
		opts.PurgeHorizon = visibility.PurgeHorizon
	}
	if opts.CompletedWindow <= 0 {
		opts.CompletedWindow = visibility.CompletedWindow
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		remote:  r,
		session: opts.Session,
		log:     opts.Logger.With("component", "engine"),
		alloc:   opts.Alloc,
		now:     opts.Now,
		horizon: opts.PurgeHorizon,
		window:  opts.CompletedWindow,
		creates:  map[domain.Ref]*Op{},
		dead:     map[domain.Ref]struct{}{},
		inflight: map[*Op][]domain.Ref{},
		events:  make(chan Event, opts.EventBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events streams state changes. The channel is never closed.
func (e *Engine) Events() <-chan Event { return e.events }

// emit must be called with e.mu held.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// Load fetches both collections from the remote store and replaces the
// local ones. Items still waiting for their create to be confirmed, and items
// with an unsettled mutation, keep their local state: present or removed.
// The tab selection is then checked against the loaded tabs.
func (e *Engine) Load(ctx context.Context) error {
	tabs, err := e.remote.ListTabs(ctx)
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	tasks, err := e.remote.ListTasks(ctx, remote.TaskFilter{IncludeDeleted: true})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	busy := e.busy()
	local := func(r domain.Ref) bool {
		_, ok := busy[r]
		return ok || r.IsPending()
	}
	tabs = mergeLoaded(e.tabs.items, tabs, local)
	tasks = mergeLoaded(e.tasks.items, tasks, local)
	e.tabs.Replace(tabs)
	e.tasks.Replace(tasks)
	if _, err := e.session.Resolve(e.tabs.items); err != nil {
		e.log.Warn(ctx, "persist selection", "err", err)
	}
	e.log.Debug(ctx, "loaded", "tabs", len(tabs), "tasks", len(tasks))
	e.emit(Event{Kind: EventLoaded})
	return nil
}

// Close stops accepting mutations and waits for in-flight remote calls,
// which are cancelled and therefore rolled back.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}

// Wait blocks until every mutation dispatched so far has settled.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	ops := make([]*Op, 0, len(e.inflight))
	for op := range e.inflight {
		ops = append(ops, op)
	}
	e.mu.Unlock()
	for _, op := range ops {
		select {
		case <-op.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// busy returns the current refs of everything an unsettled op changed.
// Must be called with e.mu held.
func (e *Engine) busy() map[domain.Ref]struct{} {
	out := map[domain.Ref]struct{}{}
	for _, refs := range e.inflight {
		for _, r := range refs {
			out[e.aliases.Resolve(r)] = struct{}{}
		}
	}
	return out
}

// mergeLoaded takes loaded items except those local reports true for, whose
// local copies, if any, are kept instead.
func mergeLoaded[T Item[T]](current, loaded []T, local func(domain.Ref) bool) []T {
	out := make([]T, 0, len(loaded)+len(current))
	for _, it := range loaded {
		if !local(it.Key()) {
			out = append(out, it)
		}
	}
	for _, it := range current {
		if local(it.Key()) {
			out = append(out, it)
		}
	}
	return out
}

// Tabs returns every tab in display order.
func (e *Engine) Tabs() []domain.Tab {
	e.mu.Lock()
	defer e.mu.Unlock()
	return visibility.Tabs(e.tabs.All())
}

func (e *Engine) Tab(r domain.Ref) (domain.Tab, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tabs.Get(e.aliases.Resolve(r))
}

func (e *Engine) Task(r domain.Ref) (domain.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks.Get(e.aliases.Resolve(r))
}

// AllTasks returns every task held, deleted ones included.
func (e *Engine) AllTasks() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks.All()
}

// Tasks returns the live tasks of tab in display order, dropping completed
// ones older than the completed window.
func (e *Engine) Tasks(tab domain.Ref) []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	tab = e.aliases.Resolve(tab)
	return visibility.RecentCompleted(visibility.InTab(e.tasks.All(), tab), e.now(), e.window)
}

// Trash returns deleted tasks still inside the purge horizon, most recently
// deleted first.
func (e *Engine) Trash() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return visibility.Trash(e.tasks.All(), e.now(), e.horizon)
}

func (e *Engine) PurgeHorizon() time.Duration { return e.horizon }

func (e *Engine) Now() time.Time { return e.now() }

// Selected is the current tab, resolved through any pending-to-confirmed
// swap.
func (e *Engine) Selected() domain.Ref {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aliases.Resolve(e.session.Selected())
}

// Select makes tab current. It must exist.
func (e *Engine) Select(tab domain.Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tab = e.aliases.Resolve(tab)
	if !e.tabs.Has(tab) {
		return notFound("tab", tab)
	}
	return e.session.Select(tab)
}

// confirmedID returns the remote id for r, waiting for its create to settle
// when r is still pending.
func (e *Engine) confirmedID(ctx context.Context, r domain.Ref) (int64, error) {
	for {
		e.mu.Lock()
		cur := e.aliases.Resolve(r)
		if id, ok := cur.RemoteID(); ok {
			e.mu.Unlock()
			return id, nil
		}
		op := e.creates[cur]
		e.mu.Unlock()
		if op == nil {
			return 0, fmt.Errorf("%s: %w", r, ErrUnconfirmed)
		}
		select {
		case <-op.Done():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		if op.Err() != nil {
			return 0, fmt.Errorf("%s: %w", r, ErrUnconfirmed)
		}
	}
}

// resolveTab and resolveTask map a snapshot taken before a reconciliation onto the current
// refs. It reports false when the item's create was rolled back, in which
// case nothing should bring it back. Must be called with e.mu held.
func (e *Engine) resolveTab(t domain.Tab) (domain.Tab, bool) {
	if _, gone := e.dead[t.Ref]; gone {
		return t, false
	}
	return t.WithRef(e.aliases.Resolve(t.Ref)), true
}

func (e *Engine) resolveTask(t domain.Task) (domain.Task, bool) {
	if _, gone := e.dead[t.Ref]; gone {
		return t, false
	}
	t = t.WithRef(e.aliases.Resolve(t.Ref))
	if t.TabRef != nil {
		t.TabRef = domain.RefPtr(e.aliases.Resolve(*t.TabRef))
	}
	return t, true
}

// begin guards every mutation entry point. Must be called with e.mu held.
func (e *Engine) begin() error {
	if e.closed {
		return ErrClosed
	}
	return nil
}
