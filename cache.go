package weakcache

import (
	"iter"
	"log/slog"
)

type (
	// Cache maps keys to values, retaining recently and frequently
	// used values strongly and the rest only weakly.
	// Concurrent access must be guarded by the caller.
	// Constructed by [New] or [NewWeak].
	Cache[Key comparable, Value any] struct {
		index    map[Key]*Entry[Key, Value]
		policy   Policy[Key, Value]
		idler    Idler
		handle   func(Value) Handle[Value]
		absent   func(Value) bool
		reclaims *reclaimQueue[Key, Value]
		logger   *slog.Logger
		stats    counters
		// Arm reclamation watches on soft-demotion
		// rather than insertion.
		deferWatch bool
	}

	// Config is used to construct a [Cache].
	// The zero value is a valid configuration.
	Config[Key comparable, Value any] struct {
		// Policy decides retention.
		// If nil, a [TieredPolicy] of Capacity is used.
		Policy Policy[Key, Value]
		// Handle creates the weak observer for a value being stored.
		// It may return nil for values that cannot be observed,
		// which are then only ever held strongly.
		// If nil, no value is observed.
		Handle func(Value) Handle[Value]
		// Logger receives debug records for reclamation and sweeps.
		// If nil, records are discarded.
		Logger *slog.Logger
		// Capacity is the tier size of the default policy.
		// Zero means [DefaultCapacity]. It is validated
		// even when Policy or Disabled takes precedence.
		Capacity int
		// Disabled replaces Policy with a [NullPolicy].
		Disabled bool
		// DeferWatch postpones registering for reclamation
		// until a value is soft-demoted.
		DeferWatch bool
	}

	// Mode selects whether a lookup counts as a use.
	Mode uint8
)

const (
	// Use signals the lookup to the policy, and revives
	// soft-demoted entries whose value is still alive.
	Use Mode = iota
	// Peek returns a live value without signaling the policy.
	Peek
)

// New creates a [Cache] from config.
func New[Key comparable, Value any](config Config[Key, Value]) (*Cache[Key, Value], error) {
	policy, err := config.policy()
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cache := &Cache[Key, Value]{
		index:      make(map[Key]*Entry[Key, Value]),
		policy:     policy,
		handle:     config.Handle,
		absent:     func(value Value) bool { return any(value) == nil },
		reclaims:   new(reclaimQueue[Key, Value]),
		logger:     logger,
		deferWatch: config.DeferWatch,
	}
	if idler, ok := policy.(Idler); ok {
		cache.idler = idler
	}
	if registry, ok := policy.(interface {
		Register(*Cache[Key, Value])
	}); ok {
		registry.Register(cache)
	}
	return cache, nil
}

// NewWeak creates a [Cache] of pointers, observing
// each stored value through a [WeakHandle] unless
// config specifies its own Handle.
// Nil pointers are never stored.
func NewWeak[Key comparable, T any](config Config[Key, *T]) (*Cache[Key, *T], error) {
	if config.Handle == nil {
		config.Handle = WeakHandle[T]
	}
	cache, err := New(config)
	if err != nil {
		return nil, err
	}
	cache.absent = func(value *T) bool { return value == nil }
	return cache, nil
}

func (config *Config[Key, Value]) policy() (Policy[Key, Value], error) {
	capacity := config.Capacity
	if capacity != 0 &&
		(capacity < MinimumCapacity || capacity > MaximumCapacity) {
		return nil, capacityError(capacity)
	}
	switch {
	case config.Disabled:
		return Disabled[Key, Value](), nil
	case config.Policy != nil:
		return config.Policy, nil
	}
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	tiered, err := NewTiered[Key, Value](capacity)
	if err != nil {
		return nil, err
	}
	return tiered, nil
}

// GetValue returns the value for key, marking it as used.
// A soft-demoted value that is still alive is held strongly again.
func (c *Cache[Key, Value]) GetValue(key Key) (Value, bool) {
	_, value, ok := c.lookup(key, Use)
	return value, ok
}

// Get returns the entry for key.
// Unless mode is [Peek], the entry is marked as used.
func (c *Cache[Key, Value]) Get(key Key, mode Mode) (*Entry[Key, Value], bool) {
	entry, _, ok := c.lookup(key, mode)
	return entry, ok
}

// lookup returns the value as it was before the policy was
// signaled, since the signal may soft-demote the entry again.
func (c *Cache[Key, Value]) lookup(key Key, mode Mode) (*Entry[Key, Value], Value, bool) {
	c.prelude()
	var zero Value
	entry, ok := c.index[key]
	if !ok {
		c.stats.misses.Add(1)
		return nil, zero, false
	}
	value, live := entry.value, entry.held
	if !live {
		if value, live = entry.resolve(); !live {
			c.discard(key, entry)
			c.stats.misses.Add(1)
			return nil, zero, false
		}
		if mode != Peek {
			entry.value, entry.held = value, true
			c.stats.revivals.Add(1)
		}
	}
	if mode != Peek {
		c.policy.Touch(entry, Inherit)
	}
	c.stats.hits.Add(1)
	return entry, value, true
}

// SetValue stores value under key with the default priority.
// A replaced entry's priority and pin are not carried over.
func (c *Cache[Key, Value]) SetValue(key Key, value Value) {
	c.SetValuePriority(key, value, Inherit)
}

// SetValuePriority stores value under key with priority.
// Storing the "no value" marker (nil) does nothing.
func (c *Cache[Key, Value]) SetValuePriority(key Key, value Value, priority Priority) {
	if c.absent(value) {
		return
	}
	var handle Handle[Value]
	if c.handle != nil {
		handle = c.handle(value)
	}
	c.Set(key, NewEntry(key, value, handle), priority)
}

// Set stores entry under key, detaching
// any entry previously stored there from the policy.
// If entry has no usable value, key is removed instead.
// Panics if entry belongs to another cache.
func (c *Cache[Key, Value]) Set(key Key, entry *Entry[Key, Value], priority Priority) {
	c.prelude()
	c.checkOwner(key, entry)
	previous, replacing := c.index[key]
	if replacing {
		c.policy.Release(previous)
		if previous != entry {
			previous.detach()
		}
	}
	if !c.insert(key, entry, priority) && replacing {
		delete(c.index, key)
		previous.detach()
	}
}

// Insert admits entry to the policy and stores it under key,
// without checking for a previous entry.
// Entries without a usable value are not stored.
// Panics if entry belongs to another cache.
func (c *Cache[Key, Value]) Insert(key Key, entry *Entry[Key, Value], priority Priority) {
	c.prelude()
	c.checkOwner(key, entry)
	c.insert(key, entry, priority)
}

func (c *Cache[Key, Value]) checkOwner(key Key, entry *Entry[Key, Value]) {
	if entry != nil &&
		entry.owner != nil && entry.owner != c {
		panic(notOwnedError(key, "cache"))
	}
}

// insert reports whether entry was stored.
// Rejected entries keep whatever owner they had.
func (c *Cache[Key, Value]) insert(key Key, entry *Entry[Key, Value], priority Priority) bool {
	if entry == nil {
		return false
	}
	if !entry.held {
		if _, live := entry.resolve(); !live {
			return false
		}
	}
	entry.owner = c
	entry.key = key
	if !c.deferWatch {
		c.watch(entry)
	}
	if entry.held {
		c.policy.Admit(entry, priority)
	}
	c.index[key] = entry
	return true
}

// Delete removes key and reports whether it was present.
func (c *Cache[Key, Value]) Delete(key Key) bool {
	c.prelude()
	entry, ok := c.index[key]
	if ok {
		c.policy.Release(entry)
		delete(c.index, key)
		entry.detach()
	}
	return ok
}

// Clear removes every entry and resets the policy.
// Entries are discarded without being expired.
func (c *Cache[Key, Value]) Clear() {
	c.prelude()
	c.policy.Reset()
	for _, entry := range c.index {
		entry.detach()
	}
	clear(c.index)
}

// Used marks entry as used without looking it up.
// A soft-demoted entry whose value is still alive is held strongly again.
// Panics if entry does not belong to this cache.
func (c *Cache[Key, Value]) Used(entry *Entry[Key, Value], priority Priority) {
	if entry.owner != c {
		panic(notOwnedError(entry.key, "cache"))
	}
	c.prelude()
	if entry.owner != c { // Reclaimed just now.
		return
	}
	if !entry.held {
		if !entry.revive() {
			return
		}
		c.stats.revivals.Add(1)
	}
	c.policy.Touch(entry, priority)
}

// Has reports whether key is present,
// including entries that are only weakly held.
func (c *Cache[Key, _]) Has(key Key) bool {
	c.prelude()
	_, ok := c.index[key]
	return ok
}

// Len returns the number of keys present,
// including entries that are only weakly held.
func (c *Cache[_, _]) Len() int {
	c.prelude()
	return len(c.index)
}

// Keys returns an iterator over the (unordered) keys present.
func (c *Cache[Key, _]) Keys() iter.Seq[Key] {
	c.prelude()
	return func(yield func(Key) bool) {
		for key := range c.index {
			if !yield(key) {
				return
			}
		}
	}
}

// release is called (via [Entry.Expire]) once the policy stops retaining entry.
// Entries whose value is still observable are soft-demoted.
// Others are removed, if the key still maps to them.
func (c *Cache[Key, Value]) release(entry *Entry[Key, Value]) {
	if _, live := entry.Value(); live && entry.handle != nil {
		c.watch(entry)
		if entry.held {
			entry.demote()
			c.stats.demotions.Add(1)
		}
		return
	}
	if current, ok := c.index[entry.key]; ok &&
		current == entry {
		delete(c.index, entry.key)
		entry.detach()
		c.stats.removals.Add(1)
	}
}

// discard removes an entry whose value is gone.
func (c *Cache[Key, Value]) discard(key Key, entry *Entry[Key, Value]) {
	c.policy.Release(entry)
	delete(c.index, key)
	entry.detach()
	c.stats.removals.Add(1)
}

// prelude runs work that was deferred to the start of an operation.
func (c *Cache[_, _]) prelude() {
	c.Reconcile()
	if c.idler != nil {
		c.idler.Idle()
	}
}
