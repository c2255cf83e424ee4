package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trigger labels for revalidation checks.
const (
	TriggerPeriodic   = "periodic"
	TriggerNavigation = "navigation"
	TriggerRequest    = "request"
	TriggerGuard      = "guard"
)

// Source labels for invalidation signals.
const (
	SourcePeriodic            = "periodic"
	SourceNavigation          = "navigation"
	SourceInterceptorRequest  = "interceptor_request"
	SourceInterceptorResponse = "interceptor_response"
	SourceGuard               = "guard"
	SourceBootstrap           = "bootstrap"
)

// Metrics holds all Prometheus metrics for the session guard.
type Metrics struct {
	Revalidations     *prometheus.CounterVec
	Invalidations     *prometheus.CounterVec
	AuthFailures      prometheus.Counter
	Logins            prometheus.Counter
	Signups           prometheus.Counter
	SessionActive     prometheus.Gauge
	BootstrapDuration prometheus.Histogram
}

// New creates all session guard metrics registered against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Revalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_session_revalidations_total",
			Help: "Total number of local credential revalidation checks",
		}, []string{"trigger"}),
		Invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_session_invalidations_total",
			Help: "Total number of session invalidation signals acted on",
		}, []string{"source"}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_auth_failures_total",
			Help: "Total number of rejected login and signup attempts",
		}),
		Logins: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_logins_total",
			Help: "Total number of successful logins",
		}),
		Signups: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_signups_total",
			Help: "Total number of successful signups",
		}),
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_session_active",
			Help: "Whether the process currently holds an authenticated session (0 or 1)",
		}),
		BootstrapDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_session_bootstrap_seconds",
			Help:    "Time to resolve the stored credential at startup",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewForTest creates metrics on a throwaway registry.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}
