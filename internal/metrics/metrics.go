package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the taxonomy cache.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   *prometheus.CounterVec
	PagesFetched  prometheus.Counter
	FetchFailures prometheus.Counter
	FetchDuration prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "heritage_taxonomy_cache_hits_total",
			Help: "Provider initializations served from a fresh cached snapshot",
		}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heritage_taxonomy_cache_misses_total",
			Help: "Cache slot reads that fell through to a fetch, by reason",
		}, []string{"reason"}),
		PagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "heritage_taxonomy_pages_fetched_total",
			Help: "Collection pages fetched from the backend",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "heritage_taxonomy_fetch_failures_total",
			Help: "Paginated fetches that ended in an error",
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "heritage_taxonomy_fetch_duration_seconds",
			Help:    "Duration of a full paginated collection fetch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementCacheHit records an initialization served from the cache.
func (m *Metrics) IncrementCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// IncrementCacheMiss records a cache miss. reason is one of absent, corrupt, expired, error.
func (m *Metrics) IncrementCacheMiss(reason string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementPagesFetched() {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
}

func (m *Metrics) IncrementFetchFailure() {
	if m == nil {
		return
	}
	m.FetchFailures.Inc()
}

// ObserveFetch records the duration of a full fetch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveFetch(start time.Time) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(time.Since(start).Seconds())
}
