// Package ring is a fixed-capacity slot ring with a write cursor,
// used as one retention tier of the tiered eviction policy.
package ring

type (
	// A Ring is a circular array of slots.
	// Writes happen at the cursor, which only moves forward
	// and wraps around at the end of the array.
	// Every span advances of the cursor begin a new generation.
	// The zero value is an empty ring with no slots.
	Ring[T comparable] struct {
		slots      []T
		cursor     int
		advances   int
		span       int
		generation uint32
	}
)

// New creates a ring of n slots
// whose generation advances every span cursor moves.
// A span below 1 is treated as 1.
func New[T comparable](n, span int) Ring[T] {
	return Ring[T]{
		slots: make([]T, n),
		span:  max(span, 1),
	}
}

// Len returns the number of slots in the ring.
func (r *Ring[T]) Len() int { return len(r.slots) }

// Cursor returns the slot that will be returned by the next call to [Ring.Next].
func (r *Ring[T]) Cursor() int { return r.cursor }

// Generation returns the generation of the slot under the cursor.
func (r *Ring[T]) Generation() uint32 { return r.generation }

// Next returns the slot under the cursor along with
// the generation it belongs to, then advances the cursor.
// r must not be empty.
func (r *Ring[T]) Next() (slot int, generation uint32) {
	slot, generation = r.cursor, r.generation
	if r.cursor++; r.cursor == len(r.slots) {
		r.cursor = 0
	}
	if r.advances++; r.advances == r.span {
		r.advances = 0
		r.generation++
	}
	return slot, generation
}

// At returns the value held in slot.
func (r *Ring[T]) At(slot int) T { return r.slots[slot] }

// Swap stores value in slot and returns the previous occupant.
func (r *Ring[T]) Swap(slot int, value T) (previous T) {
	previous, r.slots[slot] = r.slots[slot], value
	return previous
}

// Clear empties slot if it still holds value
// and reports whether it did.
func (r *Ring[T]) Clear(slot int, value T) bool {
	if slot < 0 || slot >= len(r.slots) ||
		r.slots[slot] != value {
		return false
	}
	var zero T
	r.slots[slot] = zero
	return true
}

// Count computes the number of occupied slots.
// It executes in time proportional to the number of slots.
func (r *Ring[T]) Count() int {
	var (
		zero T
		n    int
	)
	for _, value := range r.slots {
		if value != zero {
			n++
		}
	}
	return n
}

// Do calls yield on each occupied slot in slot order,
// stopping early if yield returns false.
// The behavior of Do is undefined if yield changes r.
func (r *Ring[T]) Do(yield func(slot int, value T) bool) {
	var zero T
	for slot, value := range r.slots {
		if value == zero {
			continue
		}
		if !yield(slot, value) {
			return
		}
	}
}
