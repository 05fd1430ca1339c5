// Package metrics exports [weakcache.Stats] as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/djdv/go-weakcache"
)

type (
	// StatsSource is implemented by [weakcache.Cache].
	StatsSource interface {
		Stats() weakcache.Stats
	}
	// Collector reports a cache's counters at scrape time.
	// Constructed by [NewCollector].
	Collector struct {
		source StatsSource
		hits, misses,
		revivals, demotions,
		removals, reclaimed *prometheus.Desc
	}
)

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a [Collector] for source.
// Metric names are prefixed with namespace and "weakcache".
// Labels are attached to every metric, to tell caches apart.
func NewCollector(namespace string, source StatsSource, labels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "weakcache", name),
			help, nil, labels,
		)
	}
	return &Collector{
		source:    source,
		hits:      desc("hits_total", "Lookups that found a live value."),
		misses:    desc("misses_total", "Lookups that found no live value."),
		revivals:  desc("revivals_total", "Soft-demoted entries held strongly again."),
		demotions: desc("demotions_total", "Entries reduced to weak observation."),
		removals:  desc("removals_total", "Entries removed because their value could not be retained."),
		reclaimed: desc("reclaimed_total", "Entries removed after their value was reclaimed."),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	for _, desc := range c.descs() {
		descs <- desc
	}
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	var (
		stats  = c.source.Stats()
		values = [...]uint64{
			stats.Hits, stats.Misses,
			stats.Revivals, stats.Demotions,
			stats.Removals, stats.Reclaimed,
		}
	)
	for i, desc := range c.descs() {
		metrics <- prometheus.MustNewConstMetric(
			desc, prometheus.CounterValue, float64(values[i]),
		)
	}
}

func (c *Collector) descs() [6]*prometheus.Desc {
	return [...]*prometheus.Desc{
		c.hits, c.misses,
		c.revivals, c.demotions,
		c.removals, c.reclaimed,
	}
}
