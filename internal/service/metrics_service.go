package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation. A nil service is
// a valid no-op so tests can skip wiring it.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	tickResults     *prometheus.CounterVec
	cyclesClosed    *prometheus.CounterVec
}

// NewMetricsService registers the service's Prometheus collectors.
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

	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_webhook_events_total",
		Help: "Inbound meeting webhook events by type and outcome",
	}, []string{"event_type", "outcome"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_transitions_total",
		Help: "Applied session lifecycle transitions",
	}, []string{"from", "to", "trigger"})

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_duration_seconds",
		Help:    "Duration of scheduler sweep runs",
		Buckets: prometheus.DefBuckets,
	})

	tickResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_tick_results_total",
		Help: "Scheduler sweep outcomes by result kind",
	}, []string{"result"})

	cyclesClosed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_cycles_closed_total",
		Help: "Attendance cycles closed by reason",
	}, []string{"reason"})

	registry.MustRegister(requestDuration, requestTotal, webhookEvents, transitions, tickDuration, tickResults, cyclesClosed)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		webhookEvents:   webhookEvents,
		transitions:     transitions,
		tickDuration:    tickDuration,
		tickResults:     tickResults,
		cyclesClosed:    cyclesClosed,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return m.handler
}

// ObserveHTTPRequest records one served HTTP request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveWebhookEvent records a dispatched webhook event outcome.
func (m *MetricsService) ObserveWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// ObserveTransition records an applied session transition.
func (m *MetricsService) ObserveTransition(from, to models.SessionStatus, trigger string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to), trigger).Inc()
}

// ObserveTick records a completed scheduler sweep.
func (m *MetricsService) ObserveTick(summary TickSummary, duration time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(duration.Seconds())
	m.tickResults.WithLabelValues("created").Add(float64(summary.Created))
	m.tickResults.WithLabelValues("transitioned").Add(float64(summary.Transitioned))
	m.tickResults.WithLabelValues("terminated").Add(float64(summary.Terminated))
	m.tickResults.WithLabelValues("errors").Add(float64(summary.Errors))
}

// ObserveCyclesClosed records force- or cleanup-closed attendance cycles.
func (m *MetricsService) ObserveCyclesClosed(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.cyclesClosed.WithLabelValues(reason).Add(float64(count))
}
