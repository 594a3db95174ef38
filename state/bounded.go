package state

import "slices"

// Bounded is a fixed capacity list ordered from most recently inserted (index 0) to least recently
// inserted. Inserting into a full list evicts the least recently inserted item.
type Bounded[T any] struct {
	items    []T
	capacity int
}

func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		panic("bounded list capacity must be positive")
	}
	return &Bounded[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

func (b *Bounded[T]) Len() int {
	return len(b.items)
}

func (b *Bounded[T]) Cap() int {
	return b.capacity
}

// PushFront inserts v at the head, returning the evicted tail if the list was full
func (b *Bounded[T]) PushFront(v T) (evicted T, ok bool) {
	if len(b.items) == b.capacity {
		evicted = b.items[len(b.items)-1]
		ok = true
		b.items = b.items[:len(b.items)-1]
	}
	b.items = slices.Insert(b.items, 0, v)
	return
}

func (b *Bounded[T]) IndexFunc(f func(T) bool) int {
	return slices.IndexFunc(b.items, f)
}

// At returns a pointer to the i-th item, valid until the next mutation
func (b *Bounded[T]) At(i int) *T {
	return &b.items[i]
}

func (b *Bounded[T]) RemoveAt(i int) T {
	v := b.items[i]
	b.items = slices.Delete(b.items, i, i+1)
	return v
}

// RemoveFunc removes every item matching f and returns them, most recent first
func (b *Bounded[T]) RemoveFunc(f func(T) bool) []T {
	var removed []T
	for _, v := range b.items {
		if f(v) {
			removed = append(removed, v)
		}
	}
	if len(removed) != 0 {
		b.items = slices.DeleteFunc(b.items, f)
	}
	return removed
}

// Backward iterates from the least recently inserted item to the most recent
func (b *Bounded[T]) Backward(yield func(int, *T) bool) {
	for i := len(b.items) - 1; i >= 0; i-- {
		if !yield(i, &b.items[i]) {
			return
		}
	}
}

func (b *Bounded[T]) Snapshot() []T {
	return slices.Clone(b.items)
}
