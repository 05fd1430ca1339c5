package weakcache

// position packs an entry's policy state into a single word.
//
//	bits  0-21  slot within the tier ring
//	bits 22-23  tier index
//	bits 24-28  priority level
//	bits 29-30  state (unlisted, resident, pinned)
//	bits 32-63  generation of the tier when the slot was written
//
// The zero value is an unlisted entry with priority level 0.
// Slot, tier and generation are only meaningful while resident.
// The priority level is kept across every state.
type position uint64

type residency uint64

const (
	slotBits      = 22
	slotMask      = 1<<slotBits - 1
	tierShift     = slotBits
	tierMask      = 0b11
	levelShift    = 24
	levelMask     = 0b1_1111
	stateShift    = 29
	stateMask     = 0b11
	genShift      = 32
	maxLevel      = levelMask
	placementMask = position(slotMask | tierMask<<tierShift | 0xffff_ffff<<genShift)
)

const (
	unlisted residency = iota
	resident
	pinned
)

func residentAt(tier, slot int, generation uint32, level uint8) position {
	return position(slot&slotMask) |
		position(tier&tierMask)<<tierShift |
		position(level&levelMask)<<levelShift |
		position(resident)<<stateShift |
		position(generation)<<genShift
}

func (pos position) slot() int          { return int(pos & slotMask) }
func (pos position) tier() int          { return int(pos >> tierShift & tierMask) }
func (pos position) level() uint8       { return uint8(pos >> levelShift & levelMask) }
func (pos position) state() residency   { return residency(pos >> stateShift & stateMask) }
func (pos position) generation() uint32 { return uint32(pos >> genShift) }
func (pos position) resident() bool     { return pos.state() == resident }
func (pos position) pinned() bool       { return pos.state() == pinned }

func (pos position) withState(state residency) position {
	pos &^= stateMask << stateShift
	if state != resident {
		pos &^= placementMask
	}
	return pos | position(state&stateMask)<<stateShift
}

func (pos position) withLevel(level uint8) position {
	pos &^= levelMask << levelShift
	return pos | position(level&levelMask)<<levelShift
}

func (pos position) unlisted() position { return pos.withState(unlisted) }
func (pos position) pin() position      { return pos.withState(pinned) }
