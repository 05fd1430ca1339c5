package weakcache

import "math"

type (
	// Priority adjusts how an entry is retained by a [Policy].
	//
	// Non-negative values widen the window an entry is given
	// before it can be displaced (larger is longer). Negative
	// values pin the entry, exempting it from eviction until it
	// is touched again with a non-negative priority.
	// [Inherit] keeps whatever priority the entry last had.
	Priority int

	// Policy decides which entries a [Cache] retains with a strong hold.
	//
	// A Policy calls [Entry.Expire] on entries it no longer wants to retain;
	// the owning cache then soft-demotes or removes them.
	// Implementations are not safe for concurrent use
	// and must not be shared between caches unless documented otherwise.
	Policy[Key comparable, Value any] interface {
		// Admit starts tracking a newly inserted entry.
		Admit(entry *Entry[Key, Value], priority Priority)
		// Touch signals a use of an entry.
		Touch(entry *Entry[Key, Value], priority Priority)
		// Release stops tracking an entry without expiring it.
		Release(entry *Entry[Key, Value])
		// Reset discards all tracking state
		// without expiring any entry.
		Reset()
	}

	// Idler may be implemented by a [Policy] which defers work.
	// Idle is called by the cache before each operation, between
	// the caller's own operations.
	Idler interface {
		Idle()
	}

	// NullPolicy retains nothing; every admit or touch
	// immediately expires the entry, leaving only weak observation.
	// Pinned entries are never expired.
	NullPolicy[Key comparable, Value any] struct{}
)

const (
	// Inherit reuses the priority an entry was last given,
	// or 0 for entries that never had one.
	Inherit Priority = math.MinInt
	// Pin exempts an entry from eviction.
	Pin Priority = -1
)

func (priority Priority) pins() bool { return priority < 0 && priority != Inherit }

// Disabled returns a [Policy] that does not retain anything.
func Disabled[Key comparable, Value any]() Policy[Key, Value] {
	return NullPolicy[Key, Value]{}
}

func (NullPolicy[Key, Value]) Admit(entry *Entry[Key, Value], priority Priority) {
	NullPolicy[Key, Value]{}.Touch(entry, priority)
}

func (NullPolicy[Key, Value]) Touch(entry *Entry[Key, Value], priority Priority) {
	switch pos := entry.position; {
	case priority.pins():
		entry.position = pos.pin()
	case pos.pinned() && priority == Inherit:
	default:
		entry.position = pos.unlisted()
		entry.Expire()
	}
}

func (NullPolicy[Key, Value]) Release(entry *Entry[Key, Value]) {
	entry.position = entry.position.unlisted()
}

func (NullPolicy[_, _]) Reset() {}
