// Package telemetry defines the Prometheus metrics of the gateway.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlq_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlq_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	QuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_questions_total",
			Help: "Questions answered, by route and the source that served the result",
		},
		[]string{"route", "source"},
	)

	SynthesisFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_synthesis_failures_total",
			Help: "Query synthesis attempts that produced no usable plan",
		},
		[]string{"retryable"},
	)

	ExecutionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_execution_attempts_total",
			Help: "Backend execution attempts, by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_fallbacks_total",
			Help: "Results served from fallback data after live execution failed",
		},
		[]string{"source"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlq_cache_lookups_total",
			Help: "Result cache lookups, by outcome",
		},
		[]string{"outcome"},
	)
)

const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient_error"
	OutcomePermanent = "permanent_error"

	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Middleware records HTTP metrics. Requests are labeled by the pattern of the route that served
// them, to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(status int) {
	recorder.status = status
	recorder.ResponseWriter.WriteHeader(status)
}

func (recorder *statusRecorder) Unwrap() http.ResponseWriter {
	return recorder.ResponseWriter
}
