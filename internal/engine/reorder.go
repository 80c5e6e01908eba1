package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"tabtask/internal/domain"
	"tabtask/internal/ordering"
)

type keyWriter func(ctx context.Context, id int64, key int) error

// reorder moves active to the slot of over within scope, rewrites keys
// contiguously and sends one update per item whose key changed. If any
// update fails the whole move is undone locally and the updates that did
// land are written back. Must be called with e.mu held.
func reorder[T Item[T]](e *Engine, coll *Collection[T], scope []T, kind string, active, over domain.Ref, write keyWriter) *Op {
	from, to := -1, -1
	for i, it := range scope {
		switch it.Key() {
		case active:
			from = i
		case over:
			to = i
		}
	}
	if from < 0 || to < 0 {
		return settledOp(kind, active)
	}
	moved, ok := ordering.Move(scope, from, to)
	if !ok {
		return settledOp(kind, active)
	}
	rekeyed, changed := ordering.Rekey(moved)
	if len(changed) == 0 {
		return settledOp(kind, active)
	}

	type change struct {
		ref      domain.Ref
		old, new int
	}
	changes := make([]change, 0, len(changed))
	touched := make([]domain.Ref, 0, len(changed))
	for _, i := range changed {
		it := rekeyed[i]
		changes = append(changes, change{ref: it.Key(), old: moved[i].Order(), new: it.Order()})
		touched = append(touched, it.Key())
		if cur, ok := coll.Get(it.Key()); ok {
			coll.Put(cur.WithOrder(it.Order()))
		}
	}

	return e.dispatch(mutation{
		op:      newOp(kind, active),
		touches: touched,
		run: func(ctx context.Context) error {
			var (
				mu     sync.Mutex
				landed []change
			)
			g, gctx := errgroup.WithContext(ctx)
			for _, c := range changes {
				g.Go(func() error {
					id, err := e.confirmedID(gctx, c.ref)
					if err != nil {
						return err
					}
					if err := write(gctx, id, c.new); err != nil {
						return err
					}
					mu.Lock()
					landed = append(landed, change{ref: domain.Confirmed(id), old: c.old, new: c.new})
					mu.Unlock()
					return nil
				})
			}
			err := g.Wait()
			if err != nil {
				for _, c := range landed {
					id, _ := c.ref.RemoteID()
					if werr := write(ctx, id, c.old); werr != nil {
						e.log.Warn(ctx, "restore order key", "op", kind, "ref", c.ref.String(), "err", werr)
					}
				}
			}
			return err
		},
		rollback: func() {
			for _, c := range changes {
				ref := e.aliases.Resolve(c.ref)
				if cur, ok := coll.Get(ref); ok {
					coll.Put(cur.WithOrder(c.old))
				}
			}
		},
	})
}
