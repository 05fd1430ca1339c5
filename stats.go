package weakcache

import "sync/atomic"

type (
	// Stats is a snapshot of a cache's counters.
	Stats struct {
		// Hits counts lookups that found a live value.
		Hits uint64
		// Misses counts lookups that did not.
		Misses uint64
		// Revivals counts soft-demoted entries held strongly again.
		Revivals uint64
		// Demotions counts entries reduced to weak observation.
		Demotions uint64
		// Removals counts entries the cache removed
		// because their value could no longer be retained.
		Removals uint64
		// Reclaimed counts entries removed after
		// the collector reported their value reclaimed.
		Reclaimed uint64
	}
	// Atomic, so [Cache.Stats] may be read from any goroutine.
	counters struct {
		hits, misses,
		revivals, demotions,
		removals, reclaimed atomic.Uint64
	}
)

// Stats returns a snapshot of the cache's counters.
// Unlike other methods, it is safe to call concurrently.
func (c *Cache[_, _]) Stats() Stats {
	return Stats{
		Hits:      c.stats.hits.Load(),
		Misses:    c.stats.misses.Load(),
		Revivals:  c.stats.revivals.Load(),
		Demotions: c.stats.demotions.Load(),
		Removals:  c.stats.removals.Load(),
		Reclaimed: c.stats.reclaimed.Load(),
	}
}
