package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	messagesSentTotal    *prometheus.CounterVec
	togglesTotal         *prometheus.CounterVec
	realtimeConnections  prometheus.Gauge
	realtimeEventsTotal  *prometheus.CounterVec
	realtimeDroppedTotal *prometheus.CounterVec
	scheduledRunsTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the messenger.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "messenger_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_messages_sent_total",
			Help: "Messages persisted, by kind and origin.",
		}, []string{"kind", "origin"})

		togglesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_toggles_total",
			Help: "Toggle operations, by kind and outcome.",
		}, []string{"kind", "outcome"})

		realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "messenger_realtime_connections",
			Help: "Currently open realtime connections on this node.",
		})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_realtime_events_total",
			Help: "Events published on the bus, by type and origin.",
		}, []string{"type", "origin"})

		realtimeDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_realtime_events_dropped_total",
			Help: "Events dropped because a subscriber queue was full.",
		}, []string{"type"})

		scheduledRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_scheduled_dispatch_total",
			Help: "Scheduled message dispatch attempts, by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			messagesSentTotal,
			togglesTotal,
			realtimeConnections,
			realtimeEventsTotal,
			realtimeDroppedTotal,
			scheduledRunsTotal,
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

// MessagesSent counts persisted messages. origin is "direct", "forward" or "scheduled".
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// Toggles counts toggle engine outcomes.
func Toggles() *prometheus.CounterVec {
	RegisterMetrics()
	return togglesTotal
}

func RealtimeConnections() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnections
}

// RealtimeEvents counts bus events. origin is "local" or "remote".
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

func RealtimeDropped() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeDroppedTotal
}

// ScheduledRuns counts dispatcher results: "sent", "failed" or "skipped".
func ScheduledRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return scheduledRunsTotal
}
