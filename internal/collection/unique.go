// internal/collection/unique.go

// Package collection provides the ordered, key-unique container every entity
// collection in the library is built on.
package collection

import (
	"slices"
	"sync"

	"libranexus/internal/domain"
)

// Unique holds items in insertion order and rejects a second item with the
// same key. All reads work on snapshots; nothing but Add and Remove changes
// the stored order.
type Unique[T any] struct {
	mu     sync.RWMutex
	entity string
	key    func(T) string
	items  []T
	index  map[string]int
}

// NewUnique creates an empty container. entity names the item kind in errors.
func NewUnique[T any](entity string, key func(T) string) *Unique[T] {
	return &Unique[T]{
		entity: entity,
		key:    key,
		index:  make(map[string]int),
	}
}

// Add appends item, failing with a DuplicateKey error if its key is taken.
func (u *Unique[T]) Add(item T) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	k := u.key(item)
	if _, exists := u.index[k]; exists {
		return domain.DuplicateKey(u.entity, k)
	}
	u.index[k] = len(u.items)
	u.items = append(u.items, item)
	return nil
}

// Find returns the item stored under k.
func (u *Unique[T]) Find(k string) (T, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	i, ok := u.index[k]
	if !ok {
		var zero T
		return zero, false
	}
	return u.items[i], true
}

// Has reports whether an item is stored under k.
func (u *Unique[T]) Has(k string) bool {
	_, ok := u.Find(k)
	return ok
}

// Remove deletes and returns the item stored under k.
func (u *Unique[T]) Remove(k string) (T, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	i, ok := u.index[k]
	if !ok {
		var zero T
		return zero, domain.NotFound(u.entity, k)
	}
	item := u.items[i]
	u.items = slices.Delete(u.items, i, i+1)
	u.reindex()
	return item, nil
}

// Replace overwrites the item with the same key, keeping its position.
func (u *Unique[T]) Replace(item T) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	k := u.key(item)
	i, ok := u.index[k]
	if !ok {
		return domain.NotFound(u.entity, k)
	}
	u.items[i] = item
	return nil
}

// Reset swaps the contents for items, validating uniqueness first. On
// failure the container is left as it was.
func (u *Unique[T]) Reset(items []T) error {
	index := make(map[string]int, len(items))
	for i, item := range items {
		k := u.key(item)
		if _, exists := index[k]; exists {
			return domain.DuplicateKey(u.entity, k)
		}
		index[k] = i
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.items = slices.Clone(items)
	u.index = index
	return nil
}

// Len returns the number of items.
func (u *Unique[T]) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.items)
}

// Items returns a copy of all items in insertion order.
func (u *Unique[T]) Items() []T {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return slices.Clone(u.items)
}

// Filter returns the items matching pred, in insertion order.
func (u *Unique[T]) Filter(pred func(T) bool) []T {
	u.mu.RLock()
	defer u.mu.RUnlock()

	var out []T
	for _, item := range u.items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Count returns how many items match pred.
func (u *Unique[T]) Count(pred func(T) bool) int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	n := 0
	for _, item := range u.items {
		if pred(item) {
			n++
		}
	}
	return n
}

// Last returns the most recently added item matching pred.
func (u *Unique[T]) Last(pred func(T) bool) (T, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	for i := len(u.items) - 1; i >= 0; i-- {
		if pred(u.items[i]) {
			return u.items[i], true
		}
	}
	var zero T
	return zero, false
}

// Sorted returns a stably sorted copy; the stored order is untouched.
func (u *Unique[T]) Sorted(cmp func(a, b T) int) []T {
	out := u.Items()
	slices.SortStableFunc(out, cmp)
	return out
}

func (u *Unique[T]) reindex() {
	clear(u.index)
	for i, item := range u.items {
		u.index[u.key(item)] = i
	}
}
