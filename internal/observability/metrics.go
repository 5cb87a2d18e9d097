package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrag_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlrag_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrag_auth_failures_total",
			Help: "Rejected API requests by reason.",
		},
		[]string{"reason"},
	)

	httpPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlrag_http_panics_total",
			Help: "Total number of handler panics recovered by the HTTP server.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, authFailuresTotal, httpPanicsTotal)
}

// RecordAuthFailure counts a rejected credential. reason is one of missing,
// invalid, scheme or forbidden.
func RecordAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}
