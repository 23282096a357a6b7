// Package container implements the growable dynamic array and the bounded
// queue built on top of it, used by the event loop's source table and the
// writer's packet backlog. A slice of T stores T inline for any T,
// including pointer types, so Array[T] covers both direct and indirect
// element storage uniformly.
package container

// Array is a growable contiguous sequence, directly addressable by index.
type Array[T any] struct {
	items []T
}

// NewArray creates an Array with the given initial capacity reserved.
func NewArray[T any](reserve int) *Array[T] {
	return &Array[T]{items: make([]T, 0, reserve)}
}

// Len returns the number of elements currently stored.
func (a *Array[T]) Len() int { return len(a.items) }

// Get returns the element at index i.
func (a *Array[T]) Get(i int) T { return a.items[i] }

// Set overwrites the element at index i.
func (a *Array[T]) Set(i int, v T) { a.items[i] = v }

// Append grows the array by one element, returning its index.
func (a *Array[T]) Append(v T) int {
	a.items = append(a.items, v)
	return len(a.items) - 1
}

// RemoveAt removes the element at index i, shifting the tail down by one.
func (a *Array[T]) RemoveAt(i int) {
	var zero T
	copy(a.items[i:], a.items[i+1:])
	a.items[len(a.items)-1] = zero // drop the reference so it can be GC'd
	a.items = a.items[:len(a.items)-1]
}

// Resize grows or shrinks the array to count elements. Growing appends
// zero-valued elements; shrinking truncates.
func (a *Array[T]) Resize(count int) {
	if count <= len(a.items) {
		var zero T
		for i := count; i < len(a.items); i++ {
			a.items[i] = zero
		}
		a.items = a.items[:count]
		return
	}

	if cap(a.items) < count {
		grown := make([]T, len(a.items), count)
		copy(grown, a.items)
		a.items = grown
	}
	a.items = a.items[:count]
}

// Slice exposes the backing storage directly, for call sites (the event
// loop's readiness pass) that need to iterate by index without copying.
func (a *Array[T]) Slice() []T { return a.items }
