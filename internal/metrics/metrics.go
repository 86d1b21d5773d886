// Package metrics exposes Prometheus collectors for the brief service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	modelCallsTotal            *prometheus.CounterVec
	modelCallDurationSeconds   prometheus.Histogram
	budgetUsed                 prometheus.Gauge
	serpResultsTotal           *prometheus.CounterVec
	serpDomainsTotal           *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	hostWaitSeconds            *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brief_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brief_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		hostWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brief_serp_host_wait_seconds",
				Help:    "Delay introduced by per-host pacing before a SERP fetch.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)

		modelCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brief_model_calls_total",
				Help: "Model calls attempted, labeled by outcome (ok, error, rate_limited).",
			},
			[]string{"outcome"},
		)

		modelCallDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "brief_model_call_duration_seconds",
				Help:    "Latency of model calls that reached the provider.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
		)

		budgetUsed = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "brief_model_budget_used",
				Help: "Model calls consumed by the current run.",
			},
		)

		serpResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brief_serp_results_total",
				Help: "Organic results collected, labeled by provider.",
			},
			[]string{"provider"},
		)

		serpDomainsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brief_serp_domains_total",
				Help: "Organic results collected, labeled by ranking site.",
			},
			[]string{"site"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "brief_active_workers",
				Help: "Number of workers currently running a stage.",
			},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return "unknown"
	}
	return host
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveModelCall records one model call attempt.
func ObserveModelCall(outcome string, duration time.Duration) {
	if modelCallsTotal == nil {
		return
	}
	modelCallsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		modelCallDurationSeconds.Observe(duration.Seconds())
	}
}

// SetBudgetUsage reports the current run's model-call count.
func SetBudgetUsage(count int) {
	if budgetUsed == nil {
		return
	}
	budgetUsed.Set(float64(count))
}

// ObserveSERPResults counts collected results by provider and ranking site.
func ObserveSERPResults(provider string, urls []string) {
	if serpResultsTotal == nil {
		return
	}
	serpResultsTotal.WithLabelValues(provider).Add(float64(len(urls)))
	for _, u := range urls {
		serpDomainsTotal.WithLabelValues(SanitizeSite(u)).Inc()
	}
}

// ObserveHostWait records time spent waiting on the per-host pacer.
func ObserveHostWait(host string, d time.Duration) {
	if hostWaitSeconds == nil {
		return
	}
	hostWaitSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}
