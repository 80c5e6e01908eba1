package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"tabtask/internal/domain"
)

// Operation kinds, reported on Ops, Events and SyncFailures.
const (
	OpAddTab      = "tab.add"
	OpRenameTab   = "tab.rename"
	OpDeleteTab   = "tab.delete"
	OpReorderTabs = "tab.reorder"
	OpAddTask     = "task.add"
	OpEditTask    = "task.edit"
	OpToggleTask  = "task.toggle"
	OpDeleteTask  = "task.delete"
	OpReorderTask = "task.reorder"
	OpRestoreTask = "task.restore"
)

// Op is the handle of one optimistic mutation. Its local effect is visible as
// soon as it is returned; Done closes once the remote store has answered and
// the engine has either confirmed or undone it.
type Op struct {
	ID   uuid.UUID
	Kind string

	ref       domain.Ref
	confirmed domain.Ref
	done      chan struct{}
	err       error
}

func newOp(kind string, ref domain.Ref) *Op {
	return &Op{ID: uuid.New(), Kind: kind, ref: ref, done: make(chan struct{})}
}

// settledOp returns an Op that is already done, for mutations that turned out
// to be no-ops.
func settledOp(kind string, ref domain.Ref) *Op {
	op := newOp(kind, ref)
	close(op.done)
	return op
}

func (o *Op) Done() <-chan struct{} { return o.done }

// Wait blocks until the op settles or ctx ends. A rejected mutation yields a
// *SyncFailure.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is the settled error, or nil while the op is in flight.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Ref is the subject of the op. For a create it starts out pending and turns
// into the confirmed ref once the op has succeeded.
func (o *Op) Ref() domain.Ref {
	select {
	case <-o.done:
		if !o.confirmed.IsZero() {
			return o.confirmed
		}
	default:
	}
	return o.ref
}

// mutation is one unit of optimistic work. The local change has been applied
// by the time it is dispatched; run talks to the remote store off the lock,
// then exactly one of commit or rollback runs under it.
type mutation struct {
	op       *Op
	run      func(ctx context.Context) error
	commit   func() error
	rollback func()
	// touches lists refs changed locally besides op's own.
	touches []domain.Ref
}

// dispatch must be called with e.mu held.
func (e *Engine) dispatch(m mutation) *Op {
	e.emit(Event{Kind: EventApplied, Op: m.op.Kind, Ref: m.op.ref, OpID: m.op.ID})
	e.inflight[m.op] = append([]domain.Ref{m.op.ref}, m.touches...)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := m.run(e.ctx)
		e.settle(m, err)
	}()
	return m.op
}

func (e *Engine) settle(m mutation, err error) {
	e.mu.Lock()
	op := m.op
	delete(e.inflight, op)
	if err == nil {
		var cerr error
		if m.commit != nil {
			cerr = m.commit()
		}
		switch {
		case errors.Is(cerr, ErrReconciliationMiss):
			e.log.Debug(e.ctx, "confirmation arrived after item was removed", "op", op.Kind, "ref", op.ref.String())
			e.emit(Event{Kind: EventMissed, Op: op.Kind, Ref: op.subject(), OpID: op.ID})
		default:
			e.log.Debug(e.ctx, "confirmed", "op", op.Kind, "ref", op.subject().String())
			e.emit(Event{Kind: EventConfirmed, Op: op.Kind, Ref: op.subject(), OpID: op.ID})
		}
	} else {
		if m.rollback != nil {
			m.rollback()
		}
		fail := &SyncFailure{Op: op.Kind, Ref: op.ref, Err: err}
		op.err = fail
		e.log.Warn(e.ctx, "mutation rolled back", "op", op.Kind, "ref", op.ref.String(), "op_id", op.ID.String(), "err", err)
		e.emit(Event{Kind: EventRolledBack, Op: op.Kind, Ref: op.ref, OpID: op.ID, Err: fail})
	}
	e.mu.Unlock()
	close(op.done)
}

// subject is Ref without the done check, for use by the settling goroutine.
func (o *Op) subject() domain.Ref {
	if !o.confirmed.IsZero() {
		return o.confirmed
	}
	return o.ref
}
