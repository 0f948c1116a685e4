// Package metrics exposes Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finance"

// Metrics holds every collector the application records to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	routes         map[string]bool
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	recordsWritten *prometheus.CounterVec
	chartCache     *prometheus.CounterVec
	eventsConsumed *prometheus.CounterVec
}

// New registers the collectors. routes limits the path label to known
// patterns; anything else is reported as "other".
func New(routes ...string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		routes:   make(map[string]bool, len(routes)),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Record writes by kind and action.",
		}, []string{"kind", "action"}),
		chartCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chart_cache_requests_total",
			Help:      "Chart cache lookups by result.",
		}, []string{"result"}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_events_consumed_total",
			Help:      "Record events handled by the mirror worker.",
		}, []string{"action", "outcome"}),
	}
	for _, r := range routes {
		m.routes[r] = true
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.recordsWritten,
		m.chartCache,
		m.eventsConsumed,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NewServer returns an HTTP server that only answers GET /metrics, for
// processes without their own HTTP surface.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route := m.route(path)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordWritten(kind, action string) {
	if m == nil {
		return
	}
	m.recordsWritten.WithLabelValues(kind, action).Inc()
}

func (m *Metrics) ChartCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.chartCache.WithLabelValues(result).Inc()
}

func (m *Metrics) EventConsumed(action string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.eventsConsumed.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) route(path string) string {
	if m.routes[path] {
		return path
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/"
	}
	return "other"
}

// RecordsWrittenCounter returns the counter for one kind/action pair.
func (m *Metrics) RecordsWrittenCounter(kind, action string) prometheus.Counter {
	return m.recordsWritten.WithLabelValues(kind, action)
}
