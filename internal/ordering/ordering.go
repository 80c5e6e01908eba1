// Package ordering computes order keys for items in a scope. Keys are
// reassigned contiguously (0..n-1) on every move; new items get a key just
// outside the current range so their siblings never need rewriting.
package ordering

import "sort"

// Ordered is an item that carries an order key and can return a copy with a
// different one.
type Ordered[T any] interface {
	Order() int
	WithOrder(int) T
}

// Sort orders items by key ascending. Equal keys keep their relative order.
func Sort[T Ordered[T]](items []T) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order() < items[j].Order() })
}

// Move returns a copy of items with the element at from placed at index to.
// It reports false, and returns items unchanged, when the move is a no-op:
// equal indices, fewer than two items, or an index out of range.
func Move[T any](items []T, from, to int) ([]T, bool) {
	if len(items) < 2 || from == to {
		return items, false
	}
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return items, false
	}
	out := make([]T, 0, len(items))
	moved := items[from]
	for i, it := range items {
		if i == from {
			continue
		}
		out = append(out, it)
	}
	out = append(out, moved)
	copy(out[to+1:], out[to:len(out)-1])
	out[to] = moved
	return out, true
}

// Rekey assigns keys 0..n-1 in sequence order and returns the indices whose
// key changed.
func Rekey[T Ordered[T]](items []T) ([]T, []int) {
	out := make([]T, len(items))
	var changed []int
	for i, it := range items {
		if it.Order() != i {
			changed = append(changed, i)
		}
		out[i] = it.WithOrder(i)
	}
	return out, changed
}

// TopKey returns a key that sorts before every item in the scope.
func TopKey[T Ordered[T]](items []T) int {
	if len(items) == 0 {
		return 0
	}
	lowest := items[0].Order()
	for _, it := range items[1:] {
		if k := it.Order(); k < lowest {
			lowest = k
		}
	}
	return lowest - 1
}

// BottomKey returns a key that sorts after every item in the scope.
func BottomKey[T Ordered[T]](items []T) int {
	if len(items) == 0 {
		return 0
	}
	highest := items[0].Order()
	for _, it := range items[1:] {
		if k := it.Order(); k > highest {
			highest = k
		}
	}
	return highest + 1
}

// Distinct reports whether no two items share a key.
func Distinct[T Ordered[T]](items []T) bool {
	seen := make(map[int]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.Order()]; ok {
			return false
		}
		seen[it.Order()] = struct{}{}
	}
	return true
}
