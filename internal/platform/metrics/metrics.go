package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Methods are
// nil-safe so tests can pass a nil *Metrics.
type Metrics struct {
	CodesIssued     prometheus.Counter
	CodesVerified   prometheus.Counter
	VerifyFailures  prometheus.Counter
	ConsentChanges  *prometheus.CounterVec
	DecryptFailures prometheus.Counter
	HTTPDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CodesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentry_verification_codes_issued_total",
			Help: "Total number of verification codes issued",
		}),
		CodesVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentry_verification_codes_verified_total",
			Help: "Total number of verification codes successfully verified",
		}),
		VerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentry_verification_failures_total",
			Help: "Total number of failed verification attempts",
		}),
		ConsentChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_consent_changes_total",
			Help: "Total number of consent status changes",
		}, []string{"status"}),
		DecryptFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentry_decrypt_failures_total",
			Help: "Total number of PII decryption failures",
		}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentry_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) IncCodesIssued() {
	if m == nil {
		return
	}
	m.CodesIssued.Inc()
}

func (m *Metrics) IncCodesVerified() {
	if m == nil {
		return
	}
	m.CodesVerified.Inc()
}

func (m *Metrics) IncVerifyFailures() {
	if m == nil {
		return
	}
	m.VerifyFailures.Inc()
}

func (m *Metrics) IncConsentChanges(status string) {
	if m == nil {
		return
	}
	m.ConsentChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDecryptFailures() {
	if m == nil {
		return
	}
	m.DecryptFailures.Inc()
}

func (m *Metrics) ObserveHTTPDuration(route, method string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(route, method).Observe(seconds)
}
