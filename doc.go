// Package weakcache implements a [Cache] which bounds the values it keeps
// alive while cooperating with the garbage collector.
//
// A value the eviction [Policy] stops retaining is not dropped.
// It is soft-demoted: the cache keeps only a weak [Handle] to it,
// so a later lookup still finds it (and holds it strongly again)
// for as long as something else keeps it alive.
// The entry is only removed once the collector reports the value reclaimed.
//
// The following is a summary intended for maintainers.
//
// Glossary and invariants:
//
//   - Strong hold
//
//     The entry's own reference to its value. Keeps the value alive.
//
//   - Handle
//
//     A weak observer of the value; never keeps it alive.
//     Values that cannot be observed (non-pointers) have no handle,
//     and are removed outright when expired.
//
//   - Soft-demotion
//
//     Dropping the strong hold of an entry that has a live handle.
//
//   - Position
//
//     Packed per-entry policy state. An entry is exactly one of:
//     resident in a tier slot, pinned, or unlisted.
//     Tier, slot and generation are meaningful only while resident.
//
// Tiered policy:
//
//   - Tiers
//
//     Four fixed rings of capacity slots. Higher tiers hold entries
//     that were used again after their tier moved on to a new generation.
//     At most 4 * capacity entries are retained.
//
//   - Generation
//
//     Each ring starts a new generation every capacity/2 writes.
//     A use of an entry written during its ring's current generation
//     does not promote it, so a burst of uses counts once.
//
//   - Cascade
//
//     Writing to a ring's cursor slot displaces its occupant,
//     which is written one tier lower, and so on.
//     An entry displaced out of tier 0 is expired.
//
//   - Priority
//
//     Negative priorities pin an entry outside of the rings.
//     Positive priorities give an entry grace: cursors landing on it
//     pass over it (consuming one grace) rather than displacing it.
//
// Reclamation:
//
//   - Watch
//
//     A cleanup registered on the value with [runtime.AddCleanup].
//     It runs on another goroutine, so it only queues a notification
//     holding the key and a weak pointer to the entry.
//
//   - Reconcile
//
//     Every cache operation first drains the notification queue.
//     A notification removes its key only if the key still maps to
//     the same entry, and that entry's value is really gone.
//
// Clearing a cache discards its entries without expiring them;
// notifications for their values are ignored when they arrive.
package weakcache
