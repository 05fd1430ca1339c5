package weakcache

import (
	"math/bits"

	"github.com/djdv/go-weakcache/internal/ring"
)

type (
	tier[Key comparable, Value any] = ring.Ring[*Entry[Key, Value]]
	// TieredPolicy retains entries in four generational tiers.
	// Not safe for concurrent use; owned by a single [Cache].
	// Constructed by [NewTiered].
	TieredPolicy[Key comparable, Value any] struct {
		tiers       [tierCount]tier[Key, Value]
		capacity    int
		maxPriority int
	}
)

const (
	// DefaultCapacity is the tier size used when none is configured.
	DefaultCapacity = 8192
	// MinimumCapacity defines the lowest tier size supported by [NewTiered].
	MinimumCapacity = 1
	// MaximumCapacity defines the highest tier size supported by [NewTiered].
	MaximumCapacity = 1 << slotBits

	tierCount = 4
	topTier   = tierCount - 1
)

// NewTiered creates a [TieredPolicy] whose tiers each hold capacity entries.
// At most 4 * capacity entries are retained at once.
func NewTiered[Key comparable, Value any](capacity int) (*TieredPolicy[Key, Value], error) {
	if capacity < MinimumCapacity ||
		capacity > MaximumCapacity {
		return nil, capacityError(capacity)
	}
	policy := &TieredPolicy[Key, Value]{
		capacity:    capacity,
		maxPriority: capacity >> 2,
	}
	policy.Reset()
	return policy, nil
}

// Capacity returns the number of slots in each tier.
func (p *TieredPolicy[_, _]) Capacity() int { return p.capacity }

// Len returns the number of entries resident across all tiers.
// It executes in time proportional to the total number of slots.
func (p *TieredPolicy[_, _]) Len() int {
	var n int
	for i := range p.tiers {
		n += p.tiers[i].Count()
	}
	return n
}

// Admit places a new entry in the lowest tier.
func (p *TieredPolicy[Key, Value]) Admit(entry *Entry[Key, Value], priority Priority) {
	p.Touch(entry, priority)
}

// Touch promotes entry one tier, unless it was already
// placed during its tier's current generation, or is in the top tier.
// Unlisted entries are placed in the lowest tier.
// Entries displaced by a placement cascade down a tier;
// those falling out of the lowest tier are expired.
func (p *TieredPolicy[Key, Value]) Touch(entry *Entry[Key, Value], priority Priority) {
	pos := entry.position
	switch {
	case priority.pins():
		p.Release(entry)
		entry.position = entry.position.pin()
		return
	case priority == Inherit && pos.pinned():
		return
	}
	level := pos.level()
	if priority != Inherit {
		level = p.levelOf(priority)
	}
	target := 0
	if pos.resident() {
		current := pos.tier()
		if !p.holds(entry, pos) {
			panic(notOwnedError(entry.key, "tiered policy"))
		}
		slots := &p.tiers[current]
		if current == topTier ||
			pos.generation() == slots.Generation() {
			entry.position = pos.withLevel(level)
			if priority != Inherit {
				entry.grace = level
			}
			return
		}
		slots.Clear(pos.slot(), entry)
		entry.position = pos.unlisted()
		target = current + 1
	}
	entry.position = entry.position.unlisted().withLevel(level)
	p.cascade(entry, target)
}

// Release removes entry from its tier slot, if any.
// Pinned entries become unpinned.
func (p *TieredPolicy[Key, Value]) Release(entry *Entry[Key, Value]) {
	if pos := entry.position; pos.resident() &&
		p.holds(entry, pos) {
		p.tiers[pos.tier()].Clear(pos.slot(), entry)
	}
	entry.position = entry.position.unlisted()
}

// Reset replaces every tier with an empty one.
// Entries that were resident are not expired.
func (p *TieredPolicy[Key, Value]) Reset() {
	span := p.capacity / 2
	for i := range p.tiers {
		p.tiers[i] = ring.New[*Entry[Key, Value]](p.capacity, span)
	}
}

func (p *TieredPolicy[Key, Value]) holds(entry *Entry[Key, Value], pos position) bool {
	var (
		slots = &p.tiers[pos.tier()]
		slot  = pos.slot()
	)
	return slot < slots.Len() &&
		slots.At(slot) == entry
}

// levelOf maps priority onto a small step function:
// the bit length of the priority, clamped to a quarter of the tier.
func (p *TieredPolicy[_, _]) levelOf(priority Priority) uint8 {
	clamped := min(int(priority), p.maxPriority)
	return uint8(min(bits.Len(uint(clamped)), maxLevel))
}

// cascade places entry in the target tier,
// then places whatever it displaced one tier lower,
// until a placement lands on an empty slot
// or an entry is displaced out of the lowest tier.
func (p *TieredPolicy[Key, Value]) cascade(entry *Entry[Key, Value], target int) {
	for current := target; entry != nil; current-- {
		if current < 0 {
			entry.Expire()
			return
		}
		entry = p.place(entry, current)
	}
}

// place writes entry at the cursor of a tier and returns the
// entry it displaced (if any). Occupants with remaining grace
// are passed over, each pass consuming one grace.
func (p *TieredPolicy[Key, Value]) place(entry *Entry[Key, Value], index int) *Entry[Key, Value] {
	if debugging {
		assert(!entry.position.resident() && !entry.position.pinned(),
			"placing an entry which is still resident or pinned")
	}
	var (
		slots      = &p.tiers[index]
		slot       int
		generation uint32
	)
	for skips := 0; ; skips++ {
		slot, generation = slots.Next()
		occupant := slots.At(slot)
		if occupant == nil ||
			occupant.grace == 0 ||
			skips == slots.Len() {
			break
		}
		occupant.grace--
	}
	var (
		level     = entry.position.level()
		displaced = slots.Swap(slot, entry)
	)
	entry.grace = level
	entry.position = residentAt(index, slot, generation, level)
	if displaced != nil {
		if debugging {
			assert(displaced.position.resident() &&
				displaced.position.tier() == index &&
				displaced.position.slot() == slot,
				"displaced entry's position does not match its slot")
		}
		displaced.position = displaced.position.unlisted()
	}
	return displaced
}
