package domain

// Ring is a fixed-capacity insertion-ordered buffer. When full, pushing a new
// element overwrites the oldest. The backing array never reallocates, so
// per-session memory stays bounded regardless of trip length.
type Ring[T any] struct {
	buf   []T
	start int
	count int
}

// NewRing creates a ring with the given capacity (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full.
func (r *Ring[T]) Push(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int { return r.count }

// At returns the element at logical index i, 0 being the oldest.
func (r *Ring[T]) At(i int) T {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Newest returns the most recently pushed element and whether one exists.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.At(r.count - 1), true
}

// Snapshot copies the retained elements in insertion order, oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.At(i)
	}
	return out
}
