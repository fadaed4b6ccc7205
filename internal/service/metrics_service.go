package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Music-Vine/conductor/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	bulkRuns           *prometheus.CounterVec
	bulkItemsProcessed *prometheus.CounterVec
	bulkActive         prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Workflow actions applied to single assets, by outcome",
	}, []string{"kind", "action", "result"})

	bulkRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_runs_total",
		Help: "Bulk runs by terminal status",
	}, []string{"action", "entity_type", "status"})

	bulkItemsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_items_processed_total",
		Help: "Items successfully processed by bulk runs",
	}, []string{"action", "entity_type"})

	bulkActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bulk_runs_active",
		Help: "Bulk runs currently in flight",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitions, bulkRuns, bulkItemsProcessed, bulkActive, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		transitions:        transitions,
		bulkRuns:           bulkRuns,
		bulkItemsProcessed: bulkItemsProcessed,
		bulkActive:         bulkActive,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveTransition counts a single-asset workflow action. result is "ok",
// the rejection code, or AUDIT_FAILED when the change was rolled back.
func (m *MetricsService) ObserveTransition(kind models.AssetKind, action models.TransitionAction, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(kind), string(action), result).Inc()
}

// BulkStarted marks a run as in flight. The returned func must be called
// once the run returns.
func (m *MetricsService) BulkStarted() func() {
	if m == nil {
		return func() {}
	}
	m.bulkActive.Inc()
	return m.bulkActive.Dec
}

// ObserveBulkRun implements bulk.Observer.
func (m *MetricsService) ObserveBulkRun(action string, entityType models.EntityType, status string, processed int) {
	if m == nil {
		return
	}
	m.bulkRuns.WithLabelValues(action, string(entityType), status).Inc()
	if processed > 0 {
		m.bulkItemsProcessed.WithLabelValues(action, string(entityType)).Add(float64(processed))
	}
}
