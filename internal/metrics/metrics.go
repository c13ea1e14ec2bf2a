package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the frontend's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	fetchErrors      *prometheus.CounterVec
	backendDuration  *prometheus.HistogramVec
	sessionEvents    *prometheus.CounterVec
	commentMutations *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogweb",
			Subsystem: "query",
			Name:      "cache_hits_total",
			Help:      "Reads served from the query cache.",
		}, []string{"resource"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogweb",
			Subsystem: "query",
			Name:      "cache_misses_total",
			Help:      "Reads that had to fetch from the backend.",
		}, []string{"resource"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogweb",
			Subsystem: "query",
			Name:      "fetch_errors_total",
			Help:      "Backend fetches that failed.",
		}, []string{"resource"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blogweb",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Latency of backend REST calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogweb",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session lifecycle events.",
		}, []string{"kind"}),
		commentMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogweb",
			Subsystem: "comments",
			Name:      "mutations_total",
			Help:      "Comment and reply submissions by outcome.",
		}, []string{"kind", "outcome"}),
	}
	m.registry.MustRegister(
		m.cacheHits, m.cacheMisses, m.fetchErrors,
		m.backendDuration, m.sessionEvents, m.commentMutations,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) CacheHit(resource string)   { m.cacheHits.WithLabelValues(resource).Inc() }
func (m *Metrics) CacheMiss(resource string)  { m.cacheMisses.WithLabelValues(resource).Inc() }
func (m *Metrics) FetchError(resource string) { m.fetchErrors.WithLabelValues(resource).Inc() }

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.backendDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionEvent(kind string) { m.sessionEvents.WithLabelValues(kind).Inc() }

func (m *Metrics) CommentMutation(kind, outcome string) {
	m.commentMutations.WithLabelValues(kind, outcome).Inc()
}
