package weakcache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"
)

type (
	// reclamation is queued by the runtime's cleanup goroutine
	// once the value an entry observed has been collected.
	// It must not reference the value, or the entry strongly.
	reclamation[Key comparable, Value any] struct {
		key   Key
		entry weak.Pointer[Entry[Key, Value]]
	}
	// reclaimQueue is the only cache state shared with another goroutine.
	reclaimQueue[Key comparable, Value any] struct {
		pending []reclamation[Key, Value]
		mu      sync.Mutex
		ready   atomic.Bool
	}
)

func (queue *reclaimQueue[Key, Value]) push(note reclamation[Key, Value]) {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	queue.pending = append(queue.pending, note)
	queue.ready.Store(true)
}

func (queue *reclaimQueue[Key, Value]) drain() []reclamation[Key, Value] {
	if !queue.ready.Load() {
		return nil
	}
	queue.mu.Lock()
	defer queue.mu.Unlock()
	notes := queue.pending
	queue.pending = nil
	queue.ready.Store(false)
	return notes
}

// Reconcile processes reclamation notifications that arrived
// since the last cache operation, removing entries whose values
// were collected. It returns the number of notifications processed.
// Every other cache operation calls it implicitly.
func (c *Cache[Key, Value]) Reconcile() int {
	notes := c.reclaims.drain()
	for _, note := range notes {
		c.reclaim(note)
	}
	return len(notes)
}

// watch arms a reclamation notification for the entry's value.
// Each entry is watched at most once.
func (c *Cache[Key, Value]) watch(entry *Entry[Key, Value]) {
	if entry.watched || entry.handle == nil {
		return
	}
	var (
		queue = c.reclaims
		note  = reclamation[Key, Value]{
			key:   entry.key,
			entry: weak.Make(entry),
		}
	)
	entry.watched = entry.handle.Watch(func() { queue.push(note) })
}

// reclaim removes the entry named by note, but only if the key
// still maps to that same entry and its value is really gone.
// The key may have been deleted or assigned a new entry since.
func (c *Cache[Key, Value]) reclaim(note reclamation[Key, Value]) {
	entry, ok := c.index[note.key]
	if !ok ||
		entry != note.entry.Value() ||
		entry.held {
		return
	}
	if _, live := entry.resolve(); live {
		return
	}
	c.policy.Release(entry)
	delete(c.index, note.key)
	entry.detach()
	c.stats.reclaimed.Add(1)
	c.logger.Debug("removed reclaimed cache entry",
		slog.Any("key", note.key))
}
