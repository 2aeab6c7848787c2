package monitoring

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics represents the monitoring system. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec

	// Domain metrics
	priceLookups     *prometheus.CounterVec
	priceRefreshRuns *prometheus.CounterVec
	migrations       *prometheus.CounterVec
	migratedEntities *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

// NewMetrics creates a metrics collector backed by its own registry
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"handler", "method", "status"},
		),

		requestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		priceLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_lookups_total",
				Help:      "Quote lookups by outcome",
			},
			[]string{"result"},
		),

		priceRefreshRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_refresh_runs_total",
				Help:      "Bulk price refresh runs by outcome",
			},
			[]string{"result"},
		),

		migrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrations_total",
				Help:      "Local to remote migrations by outcome",
			},
			[]string{"result"},
		),

		migratedEntities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrated_entities_total",
				Help:      "Entities copied from the local store",
			},
			[]string{"entity"},
		),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Signed-in data context sessions",
		}),
	}
}

// ObserveRequest records HTTP request metrics
func (m *Metrics) ObserveRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(handler, method, code).Observe(duration.Seconds())
	m.requestCount.WithLabelValues(handler, method, code).Inc()
}

// ObservePriceLookup records one quote lookup; result is "hit", "fallback" or "miss"
func (m *Metrics) ObservePriceLookup(result string) {
	if m == nil {
		return
	}
	m.priceLookups.WithLabelValues(result).Inc()
}

// ObservePriceRefresh records one bulk refresh run
func (m *Metrics) ObservePriceRefresh(result string) {
	if m == nil {
		return
	}
	m.priceRefreshRuns.WithLabelValues(result).Inc()
}

// ObserveMigration records a finished migration and the entities it copied
func (m *Metrics) ObserveMigration(success bool, counts map[string]int) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.migrations.WithLabelValues(result).Inc()
	for entity, n := range counts {
		m.migratedEntities.WithLabelValues(entity).Add(float64(n))
	}
}

// SetActiveSessions updates the signed-in session gauge
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsHandler returns an HTTP handler for exposing metrics
func (m *Metrics) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through instrumented routes
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("monitoring: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Instrument wraps next and records its request count and latency under name
func (m *Metrics) Instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.ObserveRequest(name, r.Method, rec.status, time.Since(start))
	})
}
