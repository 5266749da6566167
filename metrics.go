package people

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics counts query-cache activity per resource kind.
type CacheMetrics struct {
	hits          *prometheus.CounterVec
	staleHits     *prometheus.CounterVec
	misses        *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// NewCacheMetrics creates the cache counters and registers them on reg.
// A nil reg leaves them unregistered.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "people_cache_hits_total",
				Help: "Total number of reads served from a fresh cache entry",
			},
			[]string{"kind"},
		),
		staleHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "people_cache_stale_hits_total",
				Help: "Total number of reads that found a stale entry and triggered a refetch",
			},
			[]string{"kind"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "people_cache_misses_total",
				Help: "Total number of reads with no cache entry",
			},
			[]string{"kind"},
		),
		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "people_cache_invalidations_total",
				Help: "Total number of invalidations declared by mutations",
			},
			[]string{"kind"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "people_cache_fetch_errors_total",
				Help: "Total number of failed fetches",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.staleHits, m.misses, m.invalidations, m.errors)
	}
	return m
}
