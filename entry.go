package weakcache

import (
	"runtime"
	"weak"
)

type (
	// Handle observes a value without keeping it alive.
	Handle[Value any] interface {
		// Resolve returns the value if it has not been reclaimed.
		Resolve() (Value, bool)
		// Watch arranges for notify to be called (from another goroutine)
		// after the value is reclaimed. It reports false if the
		// value was already reclaimed, in which case notify is never called.
		// notify must not reference the value.
		Watch(notify func()) bool
	}

	weakHandle[T any] struct {
		pointer weak.Pointer[T]
	}

	// Entry is the unit of storage inside a [Cache].
	// It holds its value strongly until soft-demoted,
	// after which only its [Handle] (if any) can recover it.
	Entry[Key comparable, Value any] struct {
		key      Key
		value    Value
		handle   Handle[Value]
		owner    *Cache[Key, Value]
		position position
		usage    uint32
		grace    uint8
		held     bool
		watched  bool
	}
)

// WeakHandle returns a [Handle] that observes value
// through a [weak.Pointer]. Reclamation is reported
// through [runtime.AddCleanup].
// A nil value yields a nil Handle.
func WeakHandle[T any](value *T) Handle[*T] {
	if value == nil {
		return nil
	}
	return weakHandle[T]{pointer: weak.Make(value)}
}

func (handle weakHandle[T]) Resolve() (*T, bool) {
	value := handle.pointer.Value()
	return value, value != nil
}

func (handle weakHandle[T]) Watch(notify func()) bool {
	value := handle.pointer.Value()
	if value == nil {
		return false
	}
	runtime.AddCleanup(value, func(notify func()) { notify() }, notify)
	return true
}

// NewEntry creates an entry holding value strongly.
// handle may be nil, in which case the entry can only
// be retained strongly and is removed when expired.
func NewEntry[Key comparable, Value any](key Key, value Value, handle Handle[Value]) *Entry[Key, Value] {
	return &Entry[Key, Value]{
		key:    key,
		value:  value,
		handle: handle,
		held:   true,
	}
}

// Key returns the key the entry was created for.
func (entry *Entry[Key, _]) Key() Key { return entry.key }

// Value returns the entry's value, either from its strong hold
// or its handle. It does not revive a soft-demoted entry.
func (entry *Entry[_, Value]) Value() (Value, bool) {
	if entry.held {
		return entry.value, true
	}
	return entry.resolve()
}

// Held reports whether the entry currently holds its value strongly.
func (entry *Entry[_, _]) Held() bool { return entry.held }

// Pinned reports whether the entry is exempt from eviction.
func (entry *Entry[_, _]) Pinned() bool { return entry.position.pinned() }

// Resident reports whether the entry occupies a slot in a tiered policy.
func (entry *Entry[_, _]) Resident() bool { return entry.position.resident() }

// Expire tells the entry's cache that the policy
// no longer retains it. Entries without a cache are unaffected.
func (entry *Entry[_, _]) Expire() {
	if entry.owner != nil {
		entry.owner.release(entry)
	}
}

func (entry *Entry[_, Value]) resolve() (Value, bool) {
	if entry.handle == nil {
		var zero Value
		return zero, false
	}
	return entry.handle.Resolve()
}

// revive restores the strong hold from the handle
// and reports whether the entry now holds a value.
func (entry *Entry[_, _]) revive() bool {
	if entry.held {
		return true
	}
	value, ok := entry.resolve()
	if ok {
		entry.value = value
		entry.held = true
	}
	return ok
}

// demote drops the strong hold.
func (entry *Entry[_, Value]) demote() {
	var zero Value
	entry.value = zero
	entry.held = false
}

// detach forgets the entry's policy placement and cache.
func (entry *Entry[_, _]) detach() {
	entry.position = entry.position.unlisted()
	entry.owner = nil
}
