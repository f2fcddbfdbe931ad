package cache

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a point-in-time snapshot of cumulative cache counters.
type Metrics struct {
	Hits          uint64
	Misses        uint64
	Invalidations uint64
	Evictions     uint64
	WarmUps       uint64
	CurrentSize   int
}

// HitRate returns Hits / (Hits + Misses), or 0 when both are zero.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// metricsState holds the live, mutable counters behind Metrics. Counters
// that are purely additive use atomics; CurrentSize is a plain int behind
// its own mutex, written by the store after it has released its own lock.
type metricsState struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
	evictions     atomic.Uint64
	warmUps       atomic.Uint64

	sizeMu sync.Mutex
	size   int

	prom *PrometheusMetrics
}

func (m *metricsState) incHit() {
	m.hits.Add(1)
	if m.prom != nil {
		m.prom.hits.Inc()
	}
}

func (m *metricsState) incMiss() {
	m.misses.Add(1)
	if m.prom != nil {
		m.prom.misses.Inc()
	}
}

func (m *metricsState) addInvalidations(n uint64) {
	if n == 0 {
		return
	}
	m.invalidations.Add(n)
	if m.prom != nil {
		m.prom.invalidations.Add(float64(n))
	}
}

func (m *metricsState) addEvictions(n uint64) {
	if n == 0 {
		return
	}
	m.evictions.Add(n)
	if m.prom != nil {
		m.prom.evictions.Add(float64(n))
	}
}

func (m *metricsState) addWarmUps(n uint64) {
	if n == 0 {
		return
	}
	m.warmUps.Add(n)
	if m.prom != nil {
		m.prom.warmUps.Add(float64(n))
	}
}

func (m *metricsState) setSize(n int) {
	m.sizeMu.Lock()
	m.size = n
	m.sizeMu.Unlock()
	if m.prom != nil {
		m.prom.size.Set(float64(n))
	}
}

func (m *metricsState) snapshot() Metrics {
	m.sizeMu.Lock()
	size := m.size
	m.sizeMu.Unlock()
	return Metrics{
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		Invalidations: m.invalidations.Load(),
		Evictions:     m.evictions.Load(),
		WarmUps:       m.warmUps.Load(),
		CurrentSize:   size,
	}
}

// PrometheusMetrics exports the same counters as Prometheus instruments,
// namespaced "cache_". Attach with Store.WithPrometheus.
type PrometheusMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	invalidations prometheus.Counter
	evictions     prometheus.Counter
	warmUps       prometheus.Counter
	size          prometheus.Gauge
}

// NewPrometheusMetrics registers the cache's counters and gauge against
// registry. A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer, namespace string) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "cache"
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "hits_total", Help: "Cache lookups that found a live entry.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "misses_total", Help: "Cache lookups that found no live entry.",
		}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "invalidations_total", Help: "Entries removed by explicit invalidation, pattern sweep, flush, or TTL sweep.",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "evictions_total", Help: "LRU evictions: one per capacity-overflow round, plus capacity minus target size per memory-pressure event (entries removed, on an unbounded store).",
		}),
		warmUps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "warm_ups_total", Help: "Deduplicated concurrent warm-up loads.",
		}),
		size: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "current_size", Help: "Current number of live entries.",
		}),
	}
}

// WithPrometheus attaches Prometheus instruments to s; subsequent
// operations update both the in-process Metrics snapshot and prom.
func (s *Store[V]) WithPrometheus(prom *PrometheusMetrics) *Store[V] {
	s.metrics.prom = prom
	return s
}
