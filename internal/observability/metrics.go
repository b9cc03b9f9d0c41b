package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "daily"

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route pattern and status code.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	upstreamCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "Outbound calls to the WhatsApp gateway, identity provider and webhook.",
	}, []string{"upstream", "outcome"})

	upstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "call_duration_seconds",
		Help:      "Outbound call latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"upstream"})

	phoneValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "phone",
		Name:      "validations_total",
		Help:      "Phone validation results: exists, not_found, failed, rejected.",
	}, []string{"result"})

	auditWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "writes_total",
		Help:      "Audit record writes per sink and outcome.",
	}, []string{"sink", "outcome"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, upstreamCalls, upstreamDuration, phoneValidations, auditWrites)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordUpstreamCall classifies a call as ok, http_error (non-2xx) or
// transport_error.
func RecordUpstreamCall(upstream string, status int, err error, elapsed time.Duration) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
	case status < 200 || status > 299:
		outcome = "http_error"
	}
	upstreamCalls.WithLabelValues(upstream, outcome).Inc()
	upstreamDuration.WithLabelValues(upstream).Observe(elapsed.Seconds())
}

func RecordPhoneValidation(result string) {
	phoneValidations.WithLabelValues(result).Inc()
}

func RecordAuditWrite(sink string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	auditWrites.WithLabelValues(sink, outcome).Inc()
}
