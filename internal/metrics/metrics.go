package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caseextract"

// Metrics holds the collectors for one process.
// Each instance owns its registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	normalizations *prometheus.CounterVec
	documents      *prometheus.CounterVec
	generation     *prometheus.HistogramVec
	cacheHits      prometheus.Counter
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		normalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizations_total",
			Help:      "Model responses normalized, by detected shape and outcome.",
		}, []string{"shape", "outcome"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents processed, by final status.",
		}, []string{"status"}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Upstream generation latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"provider"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cache_hits_total",
			Help:      "Generation responses served from cache.",
		}),
	}
	reg.MustRegister(m.normalizations, m.documents, m.generation, m.cacheHits)
	return m
}

// ObserveNormalization counts one normalization attempt
func (m *Metrics) ObserveNormalization(shape, outcome string) {
	if m == nil {
		return
	}
	m.normalizations.WithLabelValues(shape, outcome).Inc()
}

// ObserveDocument counts one processed document
func (m *Metrics) ObserveDocument(status string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
}

// ObserveGeneration records upstream latency for provider
func (m *Metrics) ObserveGeneration(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.generation.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveCacheHit counts one cached generation
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
