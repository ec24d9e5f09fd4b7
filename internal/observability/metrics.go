package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	sessionOpsTotal    *prometheus.CounterVec
	sessionOpDuration  *prometheus.HistogramVec
	sessionConflicts   prometheus.Counter
	staleAppendsTotal  prometheus.Counter
	actionsTotal       *prometheus.CounterVec
	sessionOutcomes    *prometheus.CounterVec
	aggregationRuns    *prometheus.CounterVec
	aggregationLatency prometheus.Histogram
	metricValue        *prometheus.GaugeVec
	lastPublished      prometheus.Gauge
	cacheOpsTotal      *prometheus.CounterVec
	streamClients      prometheus.Gauge
	httpRequestsTotal  *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			sessionOpsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trackd_session_operations_total",
					Help: "Total session lifecycle operations by operation and status.",
				},
				[]string{"op", "status"},
			),
			sessionOpDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "trackd_session_operation_duration_seconds",
					Help:    "Session lifecycle operation duration in seconds by operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"op"},
			),
			sessionConflicts: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "trackd_session_conflicts_total",
					Help: "Total session creations rejected because a session already existed.",
				},
			),
			staleAppendsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "trackd_stale_appends_total",
					Help: "Total actions appended with a session token that was no longer active.",
				},
			),
			actionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trackd_actions_total",
					Help: "Total actions recorded by action type.",
				},
				[]string{"type"},
			),
			sessionOutcomes: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trackd_save_or_refresh_total",
					Help: "Total save-or-refresh calls by outcome.",
				},
				[]string{"outcome"},
			),
			aggregationRuns: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trackd_aggregation_runs_total",
					Help: "Total aggregation runs by status (success, error, skipped).",
				},
				[]string{"status"},
			),
			aggregationLatency: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "trackd_aggregation_run_duration_seconds",
					Help:    "Aggregation run duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			metricValue: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "trackd_metric_value",
					Help: "Value of each derived metric in the last published snapshot.",
				},
				[]string{"metric"},
			),
			lastPublished: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "trackd_snapshot_last_published_timestamp_seconds",
					Help: "Unix time of the last published snapshot.",
				},
			),
			cacheOpsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trackd_cache_operations_total",
					Help: "Total cache operations by operation and result.",
				},
				[]string{"op", "result"},
			),
			streamClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "trackd_stream_clients",
					Help: "Current number of connected snapshot stream clients.",
				},
			),
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "trackd_http_requests_total",
					Help: "Total HTTP requests by route and status code.",
				},
				[]string{"route", "code"},
			),
			httpDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "trackd_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds by route.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),
		}

		prometheus.MustRegister(
			m.sessionOpsTotal,
			m.sessionOpDuration,
			m.sessionConflicts,
			m.staleAppendsTotal,
			m.actionsTotal,
			m.sessionOutcomes,
			m.aggregationRuns,
			m.aggregationLatency,
			m.metricValue,
			m.lastPublished,
			m.cacheOpsTotal,
			m.streamClients,
			m.httpRequestsTotal,
			m.httpDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordSessionOp(op string, duration time.Duration, success bool) {
	m := getMetrics()
	m.sessionOpsTotal.WithLabelValues(op, statusLabel(success)).Inc()
	m.sessionOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordSessionConflict() {
	getMetrics().sessionConflicts.Inc()
}

func RecordStaleAppend() {
	getMetrics().staleAppendsTotal.Inc()
}

func RecordAction(actionType string) {
	getMetrics().actionsTotal.WithLabelValues(actionType).Inc()
}

func RecordSaveOrRefresh(outcome string) {
	getMetrics().sessionOutcomes.WithLabelValues(outcome).Inc()
}

func RecordAggregationRun(duration time.Duration, success bool) {
	m := getMetrics()
	m.aggregationRuns.WithLabelValues(statusLabel(success)).Inc()
	m.aggregationLatency.Observe(duration.Seconds())
}

// RecordAggregationSkipped counts a tick that found a run already in flight.
func RecordAggregationSkipped() {
	getMetrics().aggregationRuns.WithLabelValues("skipped").Inc()
}

func SetPublishedMetrics(values map[string]int64, publishedAt time.Time) {
	m := getMetrics()
	for name, v := range values {
		m.metricValue.WithLabelValues(name).Set(float64(v))
	}
	m.lastPublished.Set(float64(publishedAt.Unix()))
}

func RecordCacheOp(op, result string) {
	getMetrics().cacheOpsTotal.WithLabelValues(op, result).Inc()
}

func SetStreamClients(count int) {
	getMetrics().streamClients.Set(float64(count))
}

func RecordHTTPRequest(route string, code int, duration time.Duration) {
	m := getMetrics()
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}
