package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	httpErrorsTotal         *prometheus.CounterVec
	gradeCalculationsTotal  *prometheus.CounterVec
	gradeCalculationSeconds *prometheus.HistogramVec
	weeklyRecordsSavedTotal *prometheus.CounterVec
	cacheLookupsTotal       *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labgrade_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labgrade_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labgrade_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradeCalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labgrade_grade_calculations_total",
			Help: "Grade calculations by mode and outcome.",
		}, []string{"mode", "outcome"})

		gradeCalculationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labgrade_grade_calculation_seconds",
			Help:    "Duration of grade calculations including the predictive policy call.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"mode"})

		weeklyRecordsSavedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labgrade_weekly_records_saved_total",
			Help: "Weekly performance records written, by attendance status.",
		}, []string{"attendance"})

		cacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labgrade_cache_lookups_total",
			Help: "Redis cache lookups by cache name and result.",
		}, []string{"cache", "result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			gradeCalculationsTotal,
			gradeCalculationSeconds,
			weeklyRecordsSavedTotal,
			cacheLookupsTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// GradeCalculations counts calculations; outcome is one of stored, no_data,
// rubric_bounds, prediction_unavailable, conflict or error.
func GradeCalculations() *prometheus.CounterVec {
	RegisterMetrics()
	return gradeCalculationsTotal
}

// GradeCalculationDuration exposes the calculation latency histogram.
func GradeCalculationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradeCalculationSeconds
}

// WeeklyRecordsSaved counts record upserts.
func WeeklyRecordsSaved() *prometheus.CounterVec {
	RegisterMetrics()
	return weeklyRecordsSavedTotal
}

// CacheLookups counts cache hits and misses.
func CacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return cacheLookupsTotal
}
