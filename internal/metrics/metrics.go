// Package metrics exposes Prometheus metrics for the analysis pipeline and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medisphere/labrisk/internal/labanalysis"
)

// Metrics implements labanalysis.Observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	analysesTotal     *prometheus.CounterVec
	modelCallsTotal   *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers the metrics on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		analysesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lab_analyses_total",
				Help: "Total number of lab analyses by final danger level and pipeline mode",
			},
			[]string{"danger_level", "mode"},
		),
		modelCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lab_model_calls_total",
				Help: "Total number of language model calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		modelCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lab_model_call_duration_seconds",
				Help:    "Language model call duration in seconds",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 45, 60},
			},
			[]string{"provider"},
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lab_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lab_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"route"},
		),
	}
}

func (m *Metrics) AnalysisCompleted(level labanalysis.Level, mode string) {
	m.analysesTotal.WithLabelValues(level.String(), mode).Inc()
}

func (m *Metrics) ModelCallCompleted(provider, outcome string, elapsed time.Duration) {
	m.modelCallsTotal.WithLabelValues(provider, outcome).Inc()
	m.modelCallDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations. The route label is the
// ServeMux pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
