package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "approver_requests_total",
			Help: "Total number of approval requests created",
		},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approver_outcomes_total",
			Help: "Terminal outcomes returned to approval callers",
		},
		[]string{"outcome"},
	)

	waitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "approver_wait_duration_seconds",
			Help:    "Time callers spent blocked waiting for a decision",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
		},
	)

	webhookResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approver_webhook_results_total",
			Help: "Inbound callback results by status and reason",
		},
		[]string{"status", "reason"},
	)

	confirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approver_confirmations_total",
			Help: "Confirmation messages by delivery result",
		},
		[]string{"result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approver_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
)

// RecordRequest counts a newly created approval request.
func RecordRequest() {
	requestsTotal.Inc()
}

// RecordOutcome records the terminal outcome of a wait and how long it took.
func RecordOutcome(outcome string, waited time.Duration) {
	outcomesTotal.WithLabelValues(outcome).Inc()
	if waited > 0 {
		waitDuration.Observe(waited.Seconds())
	}
}

// RecordWebhook records the result of one inbound callback.
func RecordWebhook(status, reason string) {
	webhookResultsTotal.WithLabelValues(status, reason).Inc()
}

// RecordConfirmation records a confirmation delivery attempt.
func RecordConfirmation(result string) {
	confirmationsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int) {
	status := "unknown"
	switch {
	case statusCode >= 200 && statusCode < 300:
		status = "2xx"
	case statusCode >= 300 && statusCode < 400:
		status = "3xx"
	case statusCode >= 400 && statusCode < 500:
		status = "4xx"
	case statusCode >= 500:
		status = "5xx"
	}
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
