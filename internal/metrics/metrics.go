// Package metrics exposes Prometheus instrumentation for the prediction
// engine and its HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainspotter_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trainspotter_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	predictionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainspotter_prediction_requests_total",
			Help: "Prediction requests by outcome (hit, computed, degraded, error).",
		},
		[]string{"outcome"},
	)

	predictionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trainspotter_prediction_duration_seconds",
			Help:    "Wall time of fresh prediction computations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	predictionCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trainspotter_prediction_cache_entries",
			Help: "Current number of prediction cache entries.",
		},
	)

	snapshotRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainspotter_snapshot_refreshes_total",
			Help: "Snapshot refreshes by source (primary, fallback, backup, stale).",
		},
		[]string{"source"},
	)

	propagationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trainspotter_propagation_failures_total",
			Help: "Satellites skipped due to propagation failures.",
		},
	)

	passesFound = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trainspotter_passes_found",
			Help:    "Passes found per fresh prediction computation (pre-truncation).",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		predictionRequestsTotal,
		predictionDurationSeconds,
		predictionCacheEntries,
		snapshotRefreshesTotal,
		propagationFailuresTotal,
		passesFound,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPrediction records one prediction request outcome. Duration is
// observed only for freshly computed results (d > 0).
func RecordPrediction(outcome string, d time.Duration) {
	predictionRequestsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		predictionDurationSeconds.Observe(d.Seconds())
	}
}

// SetPredictionCacheEntries publishes the prediction cache size.
func SetPredictionCacheEntries(n int) {
	predictionCacheEntries.Set(float64(n))
}

// IncSnapshotRefresh records a snapshot refresh by source.
func IncSnapshotRefresh(source string) {
	snapshotRefreshesTotal.WithLabelValues(source).Inc()
}

// IncPropagationFailures records one skipped satellite.
func IncPropagationFailures() {
	propagationFailuresTotal.Inc()
}

// ObservePassesFound records how many passes a fresh computation produced.
func ObservePassesFound(n int) {
	passesFound.Observe(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(duration)
	})
}
