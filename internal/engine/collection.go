package engine

import (
	"tabtask/internal/domain"
	"tabtask/internal/identity"
	"tabtask/internal/ordering"
)

// Item is what a Collection can hold.
type Item[T any] interface {
	identity.Keyed[T]
	ordering.Ordered[T]
	Clone() T
}

// Collection is an ordered set of items keyed by ref. Items are kept sorted
// by order key after every write. Not safe for concurrent use.
type Collection[T Item[T]] struct {
	items []T
}

// All returns deep copies of every item in order.
func (c *Collection[T]) All() []T {
	out := make([]T, len(c.items))
	for i, it := range c.items {
		out[i] = it.Clone()
	}
	return out
}

func (c *Collection[T]) Len() int { return len(c.items) }

func (c *Collection[T]) index(r domain.Ref) int {
	for i, it := range c.items {
		if it.Key() == r {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) Get(r domain.Ref) (T, bool) {
	if i := c.index(r); i >= 0 {
		return c.items[i].Clone(), true
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) Has(r domain.Ref) bool { return c.index(r) >= 0 }

// Put replaces the item with the same ref, or adds it.
func (c *Collection[T]) Put(item T) {
	if i := c.index(item.Key()); i >= 0 {
		c.items[i] = item.Clone()
	} else {
		c.items = append(c.items, item.Clone())
	}
	ordering.Sort(c.items)
}

// Remove deletes the item and returns it.
func (c *Collection[T]) Remove(r domain.Ref) (T, bool) {
	i := c.index(r)
	if i < 0 {
		var zero T
		return zero, false
	}
	it := c.items[i]
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	return it, true
}

// Reconcile swaps the pending item for confirmed.
func (c *Collection[T]) Reconcile(pending domain.Ref, confirmed T) bool {
	out, ok := identity.Reconcile(c.items, pending, confirmed.Clone())
	if ok {
		c.items = out
		ordering.Sort(c.items)
	}
	return ok
}

// Update applies fn to every item and keeps the result.
func (c *Collection[T]) Update(fn func(T) T) {
	for i, it := range c.items {
		c.items[i] = fn(it)
	}
	ordering.Sort(c.items)
}

// Replace swaps the whole contents.
func (c *Collection[T]) Replace(items []T) {
	c.items = make([]T, len(items))
	for i, it := range items {
		c.items[i] = it.Clone()
	}
	ordering.Sort(c.items)
}
