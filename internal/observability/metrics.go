package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors one worker process exports.
type Metrics struct {
	ActiveRequests     prometheus.Gauge
	AdmissionRejected  prometheus.Counter
	RequestTotal       *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	SubmissionsCreated prometheus.Counter
}

// NewMetrics registers the collectors on reg. Tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intake_active_requests",
			Help: "In-flight gated requests in this worker",
		}),
		AdmissionRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_admission_rejected_total",
			Help: "Requests rejected with 429 by the admission gate",
		}),
		RequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		SubmissionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_submissions_created_total",
			Help: "Submissions persisted by this worker",
		}),
	}
	reg.MustRegister(
		m.ActiveRequests,
		m.AdmissionRejected,
		m.RequestTotal,
		m.RequestDuration,
		m.SubmissionsCreated,
	)
	return m
}
