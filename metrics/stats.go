// Package metrics exposes render and cache statistics to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsawler/trainchart/chart"
)

const namespace = "trainchart"

// Stats holds the Prometheus collectors of the chart renderers, the history
// cache and the HTTP server
type Stats struct {
	register prometheus.Registerer

	Renders        *prometheus.CounterVec
	RenderFailures *prometheus.CounterVec
	RenderDuration *prometheus.HistogramVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	HTTPRequests *prometheus.CounterVec
}

// NewStats creates the collectors and registers them on registry
func NewStats(registry prometheus.Registerer) *Stats {
	s := &Stats{
		register: registry,
		Renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Total number of charts handed to an engine successfully.",
		}, []string{"engine"}),
		RenderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Total number of failed chart renders by failure kind.",
		}, []string{"engine", "kind"}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Duration of successful chart renders.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"engine"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_cache_hits_total",
			Help:      "Total number of run histories served from the cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_cache_misses_total",
			Help:      "Total number of run histories loaded from disk.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
	}
	registry.MustRegister(
		s.Renders,
		s.RenderFailures,
		s.RenderDuration,
		s.CacheHits,
		s.CacheMisses,
		s.HTTPRequests,
	)
	return s
}

// Unregister removes all collectors from the registry
func (s *Stats) Unregister() {
	for _, c := range []prometheus.Collector{
		s.Renders,
		s.RenderFailures,
		s.RenderDuration,
		s.CacheHits,
		s.CacheMisses,
		s.HTTPRequests,
	} {
		s.register.Unregister(c)
	}
}

// CacheHit counts a history cache hit
func (s *Stats) CacheHit() {
	s.CacheHits.Inc()
}

// CacheMiss counts a history cache miss
func (s *Stats) CacheMiss() {
	s.CacheMisses.Inc()
}

// ObserveRequest counts a served HTTP request
func (s *Stats) ObserveRequest(method, route string, code int) {
	s.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// Observer returns a render observer that labels its samples with engine
func (s *Stats) Observer(engine string) chart.Observer {
	return renderObserver{stats: s, engine: engine}
}

type renderObserver struct {
	stats  *Stats
	engine string
}

func (o renderObserver) RenderSucceeded(_ string, elapsed time.Duration) {
	o.stats.Renders.WithLabelValues(o.engine).Inc()
	o.stats.RenderDuration.WithLabelValues(o.engine).Observe(elapsed.Seconds())
}

func (o renderObserver) RenderFailed(_ string, kind string) {
	o.stats.RenderFailures.WithLabelValues(o.engine, kind).Inc()
}
