package command

// FastClearList is a reusable list whose Clear only resets the count.
// Capacity is retained across frames, so per-frame filtering and sorting never reallocate
// once the list has grown to its working size.
//
// A FastClearList is not safe for concurrent use; each worker owns its own.
type FastClearList[T any] struct {
	items []T
	count int
}

// NewFastClearList creates a list with the given initial capacity.
//
// Parameters:
//   - capacity: the initial number of elements storable without growth
//
// Returns:
//   - *FastClearList[T]: the new, empty list
func NewFastClearList[T any](capacity int) *FastClearList[T] {
	return &FastClearList[T]{items: make([]T, max(capacity, 1))}
}

// Add appends v, doubling the backing storage when full.
func (l *FastClearList[T]) Add(v T) {
	if l.count == len(l.items) {
		l.grow(l.count + 1)
	}
	l.items[l.count] = v
	l.count++
}

// AddRange appends every element of vs.
func (l *FastClearList[T]) AddRange(vs []T) {
	if need := l.count + len(vs); need > len(l.items) {
		l.grow(need)
	}
	copy(l.items[l.count:], vs)
	l.count += len(vs)
}

// Clear resets the count to zero without releasing storage.
func (l *FastClearList[T]) Clear() {
	l.count = 0
}

// Len returns the number of live elements.
func (l *FastClearList[T]) Len() int {
	return l.count
}

// Cap returns the number of elements storable without growth.
func (l *FastClearList[T]) Cap() int {
	return len(l.items)
}

// At returns the element at index i. Panics if i is outside [0, Len()).
func (l *FastClearList[T]) At(i int) T {
	if i < 0 || i >= l.count {
		panic("command: FastClearList index out of range")
	}
	return l.items[i]
}

// Ptr returns a pointer to the element at index i for in-place updates.
func (l *FastClearList[T]) Ptr(i int) *T {
	if i < 0 || i >= l.count {
		panic("command: FastClearList index out of range")
	}
	return &l.items[i]
}

// Slice returns the live elements. The slice aliases internal storage and is only valid until
// the next Add or Clear.
func (l *FastClearList[T]) Slice() []T {
	return l.items[:l.count]
}

func (l *FastClearList[T]) grow(need int) {
	n := len(l.items) << 1
	for n < need {
		n <<= 1
	}
	items := make([]T, n)
	copy(items, l.items[:l.count])
	l.items = items
}
