// Package metrics exposes Prometheus collectors for upstream calls, outcomes,
// sweeps and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flight-deal-alerts/internal/fetcher"
)

const namespace = "dealwatch"

// Recorder owns a registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	tokenRefreshes   *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	alertsFired      prometheus.Counter
	sweepDuration    prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New builds a Recorder on a fresh registry, including Go and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Upstream data requests by endpoint and status class.",
			},
			[]string{"endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Latency of upstream data requests.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
			},
			[]string{"endpoint"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "token_refreshes_total",
				Help:      "Client-credentials token requests by result.",
			},
			[]string{"result"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Presented outcomes by operation, provenance and fallback cause.",
			},
			[]string{"operation", "provenance", "cause"},
		),
		alertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "fired_total",
			Help:      "Alerts that crossed their threshold on live data.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of alert sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP API requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP API requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "route"},
		),
	}

	r.registry.MustRegister(
		r.upstreamRequests,
		r.upstreamDuration,
		r.tokenRefreshes,
		r.outcomes,
		r.alertsFired,
		r.sweepDuration,
		r.httpRequests,
		r.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest implements fetcher.Observer. status 0 means a transport failure.
func (r *Recorder) ObserveRequest(endpoint string, status int, elapsed time.Duration) {
	r.upstreamRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
	r.upstreamDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveTokenRefresh implements fetcher.Observer.
func (r *Recorder) ObserveTokenRefresh(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.tokenRefreshes.WithLabelValues(result).Inc()
}

// ObserveOutcome counts one presented outcome.
func (r *Recorder) ObserveOutcome(operation, provenance, cause string) {
	if cause == "" {
		cause = "none"
	}
	r.outcomes.WithLabelValues(operation, provenance, cause).Inc()
}

// AlertFired counts one fired alert.
func (r *Recorder) AlertFired() { r.alertsFired.Inc() }

// ObserveSweep records the duration of one alert sweep.
func (r *Recorder) ObserveSweep(elapsed time.Duration) {
	r.sweepDuration.Observe(elapsed.Seconds())
}

// ObserveHTTP records one served API request.
func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	method = strings.ToUpper(method)
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

var _ fetcher.Observer = (*Recorder)(nil)
