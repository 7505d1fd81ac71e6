// Package metrics exposes Prometheus collectors for the parse service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	parseJobsTotal          *prometheus.CounterVec
	parseActiveWorkers      prometheus.Gauge
	cacheLookupsTotal       *prometheus.CounterVec
	extractDurationSeconds  *prometheus.HistogramVec
	analyzeDurationSeconds  *prometheus.HistogramVec
	storageWriteFailures    prometheus.Counter
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		parseJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docparse_jobs_total",
				Help: "Total number of parse jobs completed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		parseActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "docparse_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docparse_cache_lookups_total",
				Help: "Total extraction cache lookups, labeled by hit/miss.",
			},
			[]string{"result"},
		)

		extractDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docparse_extract_duration_seconds",
				Help:    "Histogram of document text-extraction latencies, labeled by mime type.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"mime"},
		)

		analyzeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docparse_analyze_duration_seconds",
				Help:    "Histogram of analysis engine call latencies, labeled by mode.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"mode"},
		)

		storageWriteFailures = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "docparse_storage_write_failures_total",
				Help: "Total artifact writes that failed and degraded to in-memory processing.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	parseJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	parseActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	parseActiveWorkers.Dec()
}

// ObserveCacheLookup records an extraction cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveExtraction records the duration of a text extraction.
func ObserveExtraction(mime string, duration time.Duration) {
	extractDurationSeconds.WithLabelValues(mime).Observe(duration.Seconds())
}

// ObserveAnalysis records the duration of an analysis engine call.
func ObserveAnalysis(mode string, duration time.Duration) {
	analyzeDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveStorageWriteFailure counts a degraded artifact write.
func ObserveStorageWriteFailure() {
	storageWriteFailures.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
