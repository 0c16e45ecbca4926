package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	errorTotal        *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	lifecycleErrors   *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	droppedDeliveries *prometheus.CounterVec
	subscribers       *prometheus.GaugeVec
}

// NewMetrics registers the collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	errorTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_errors_total",
		Help: "HTTP responses rendered by the error middleware",
	}, []string{"method", "path", "code"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "service_request_transitions_total",
		Help: "Stage changes committed, by target stage",
	}, []string{"stage"})

	lifecycleErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "service_request_errors_total",
		Help: "Rejected lifecycle operations, by error kind",
	}, []string{"kind"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_published_total",
		Help: "Notifications handed to the dispatcher, by event type",
	}, []string{"type"})

	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Notifications that were not delivered, by reason",
	}, []string{"reason"})

	subscribers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "realtime_subscribers",
		Help: "Open event stream subscriptions, by channel",
	}, []string{"channel"})

	registry.MustRegister(requestTotal, requestDuration, errorTotal, transitions, lifecycleErrors, notifications, dropped, subscribers)

	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		errorTotal:        errorTotal,
		transitions:       transitions,
		lifecycleErrors:   lifecycleErrors,
		notifications:     notifications,
		droppedDeliveries: dropped,
		subscribers:       subscribers,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorTotal.WithLabelValues(method, path, code).Inc()
}

// RecordTransition counts a committed stage change.
func (m *Metrics) RecordTransition(stage string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(stage).Inc()
}

// RecordLifecycleError counts an operation rejected with the given kind.
func (m *Metrics) RecordLifecycleError(kind string) {
	if m == nil {
		return
	}
	m.lifecycleErrors.WithLabelValues(kind).Inc()
}

// RecordNotification counts an event handed to the dispatcher.
func (m *Metrics) RecordNotification(eventType string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(eventType).Inc()
}

// RecordDropped counts an undelivered notification.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedDeliveries.WithLabelValues(reason).Inc()
}

// SubscriberAdded bumps the open subscriptions gauge of channel.
func (m *Metrics) SubscriberAdded(channel string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(channel).Inc()
}

// SubscriberRemoved lowers the open subscriptions gauge of channel.
func (m *Metrics) SubscriberRemoved(channel string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(channel).Dec()
}
