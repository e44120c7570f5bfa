package cache

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	hits             prometheus.Counter
	misses           prometheus.Counter
	materializations prometheus.Counter
	evictions        prometheus.Counter
	duration         prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, c *Cache) (*metrics, error) {
	m := &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strata_cache_hits_total",
			Help: "Lookups served from the materialization cache",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strata_cache_misses_total",
			Help: "Lookups that required a materialization",
		}),
		materializations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strata_materializations_total",
			Help: "Layer chains replayed by the cache",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strata_cache_evictions_total",
			Help: "Entries evicted from the LRU",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strata_materialization_duration_seconds",
			Help:    "Time spent replaying layers on a cache miss",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		return m, nil
	}
	entries := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "strata_cache_entries",
		Help: "Entries currently held by the LRU",
	}, func() float64 { return float64(c.Len()) })

	for _, col := range []prometheus.Collector{m.hits, m.misses, m.materializations, m.evictions, m.duration, entries} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register cache metrics: %w", err)
		}
	}
	return m, nil
}
