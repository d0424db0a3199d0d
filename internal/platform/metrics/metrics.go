package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the auth gateway. Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	SignupsTotal        *prometheus.CounterVec
	LoginsTotal         *prometheus.CounterVec
	OrphanedIdentities  prometheus.Counter
	OrphansPublished    prometheus.Counter
	SessionLookups      *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ProviderCallLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SignupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parkspot_signups_total",
			Help: "Signup attempts by outcome code",
		}, []string{"outcome"}),
		LoginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parkspot_logins_total",
			Help: "Login attempts by outcome code",
		}, []string{"outcome"}),
		OrphanedIdentities: factory.NewCounter(prometheus.CounterOpts{
			Name: "parkspot_orphaned_identities_total",
			Help: "Provider identities created without a local profile",
		}),
		OrphansPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "parkspot_orphans_published_total",
			Help: "Orphan records relayed to the reconciliation topic",
		}),
		SessionLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parkspot_session_lookups_total",
			Help: "Session lookups by result (authenticated, unauthenticated)",
		}, []string{"result"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parkspot_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method", "status"}),
		ProviderCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parkspot_provider_call_duration_seconds",
			Help:    "Latency of identity provider calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncSignup(outcome string) {
	m.SignupsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncLogin(outcome string) {
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncOrphaned() {
	m.OrphanedIdentities.Inc()
}

func (m *Metrics) AddOrphansPublished(n int) {
	m.OrphansPublished.Add(float64(n))
}

func (m *Metrics) IncSessionLookup(authenticated bool) {
	result := "unauthenticated"
	if authenticated {
		result = "authenticated"
	}
	m.SessionLookups.WithLabelValues(result).Inc()
}

// ObserveProviderCall records a provider round trip.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveProviderCall(operation string, start time.Time) {
	m.ProviderCallLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
