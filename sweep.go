package weakcache

import (
	"log/slog"
	"weak"
)

// SweepPolicy decays the usage of every entry in every registered
// cache in occasional batch sweeps, instead of ordering entries on
// each access. Entries whose usage decays below a threshold are expired.
// One SweepPolicy may be shared by any number of caches;
// each is registered when constructed with it.
// Like caches, it is not safe for concurrent use.
// Constructed by [NewSweep].
type SweepPolicy[Key comparable, Value any] struct {
	caches     []weak.Pointer[Cache[Key, Value]]
	operations int
	due        bool
}

const (
	// Usage an entry is given on admission or use.
	fullUsage = 0x10000
	// Entries with less usage are expired by a sweep.
	expireBelow = 20000
	// Admits after which a sweep is scheduled for the next idle point,
	// and after which a sweep is run immediately.
	deferSweepAt = 2000
	forceSweepAt = 3000
)

// NewSweep creates an empty [SweepPolicy].
func NewSweep[Key comparable, Value any]() *SweepPolicy[Key, Value] {
	return new(SweepPolicy[Key, Value])
}

// Register adds cache to the set swept by p.
// Caches are referenced weakly and forgotten once collected.
func (p *SweepPolicy[Key, Value]) Register(cache *Cache[Key, Value]) {
	p.caches = append(p.caches, weak.Make(cache))
}

func (p *SweepPolicy[Key, Value]) Admit(entry *Entry[Key, Value], priority Priority) {
	p.place(entry, priority)
	entry.usage = fullUsage
	if p.operations++; p.operations <= deferSweepAt {
		return
	}
	if !p.due {
		p.due = true
	} else if p.operations > forceSweepAt {
		p.Sweep()
	}
}

func (p *SweepPolicy[Key, Value]) Touch(entry *Entry[Key, Value], priority Priority) {
	p.place(entry, priority)
	entry.usage |= fullUsage
	entry.revive()
}

func (p *SweepPolicy[Key, Value]) place(entry *Entry[Key, Value], priority Priority) {
	switch {
	case priority.pins():
		entry.position = entry.position.pin()
	case priority != Inherit:
		entry.position = entry.position.unlisted()
	}
}

func (p *SweepPolicy[Key, Value]) Release(entry *Entry[Key, Value]) {
	entry.position = entry.position.unlisted()
}

// Reset forgets how many admits happened since the last sweep.
func (p *SweepPolicy[_, _]) Reset() {
	p.operations, p.due = 0, false
}

// Idle runs a sweep if one was scheduled.
func (p *SweepPolicy[_, _]) Idle() {
	if p.due {
		p.Sweep()
	}
}

// Sweep decays every entry of every registered cache once.
func (p *SweepPolicy[Key, Value]) Sweep() {
	p.Reset()
	live := p.caches[:0]
	for _, reference := range p.caches {
		if cache := reference.Value(); cache != nil {
			live = append(live, reference)
			cache.sweep()
		}
	}
	clear(p.caches[len(live):])
	p.caches = live
}

// sweep expires entries whose usage has decayed too far,
// and removes soft-demoted entries whose value is gone.
// Pinned entries are skipped.
func (c *Cache[Key, Value]) sweep() {
	before := c.Stats()
	for key, entry := range c.index {
		if entry.position.pinned() {
			continue
		}
		usage := entry.usage
		switch {
		case !entry.held:
			if _, live := entry.resolve(); !live {
				c.discard(key, entry)
				continue
			}
		case usage < expireBelow:
			entry.Expire()
		}
		entry.usage = usage>>2 + (usage&0xffff)>>1
	}
	after := c.Stats()
	c.logger.Debug("swept cache",
		slog.Int("entries", len(c.index)),
		slog.Uint64("demoted", after.Demotions-before.Demotions),
		slog.Uint64("removed", after.Removals-before.Removals),
	)
}
