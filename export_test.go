package weakcache

import "fmt"

// TierOf returns the tier entry is resident in, or -1.
func TierOf[Key comparable, Value any](entry *Entry[Key, Value]) int {
	if !entry.position.resident() {
		return -1
	}
	return entry.position.tier()
}

// CheckResidency verifies that every occupied slot of policy
// holds an entry whose position names that slot, that no entry
// occupies two slots, and that every entry of cache claiming
// residency is found in its slot.
func CheckResidency[Key comparable, Value any](cache *Cache[Key, Value], policy *TieredPolicy[Key, Value]) error {
	var (
		seen = make(map[*Entry[Key, Value]]struct{})
		err  error
	)
	for index := range policy.tiers {
		policy.tiers[index].Do(func(slot int, entry *Entry[Key, Value]) bool {
			if _, ok := seen[entry]; ok {
				err = fmt.Errorf("entry `%v` occupies more than one slot", entry.key)
				return false
			}
			seen[entry] = struct{}{}
			pos := entry.position
			if !pos.resident() ||
				pos.tier() != index ||
				pos.slot() != slot {
				err = fmt.Errorf(
					"entry `%v` in tier %d slot %d has position (resident: %t, tier: %d, slot: %d)",
					entry.key, index, slot, pos.resident(), pos.tier(), pos.slot())
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	for key, entry := range cache.index {
		if _, ok := seen[entry]; entry.position.resident() && !ok {
			return fmt.Errorf("entry `%v` claims residency outside of any slot", key)
		}
		if entry.position.pinned() {
			if _, ok := seen[entry]; ok {
				return fmt.Errorf("pinned entry `%v` occupies a slot", key)
			}
		}
	}
	return nil
}
