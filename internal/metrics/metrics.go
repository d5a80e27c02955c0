// Package metrics exposes Prometheus instrumentation for the API client and
// the hub channel. Helpers are no-ops until Init is called.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "pharmastock_"

	ResultSuccess = "success"
	ResultError   = "error"
)

// hubStates are the label values of the state gauge.
var hubStates = []string{"Disconnected", "Connecting", "Connected", "Reconnecting"}

var (
	registerOnce sync.Once
	registry     *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec

	hubState          *prometheus.GaugeVec
	hubAttempts       *prometheus.CounterVec
	hubEvents         *prometheus.CounterVec
	hubProtocolErrors *prometheus.CounterVec
	droppedDeliveries *prometheus.CounterVec
)

// Init registers all collectors on a dedicated registry, together with the
// Go runtime and process collectors.
func Init() {
	registerOnce.Do(func() {
		registry = prometheus.NewRegistry()

		apiRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "api_requests_total",
				Help: "Total REST requests by endpoint and result",
			},
			[]string{"endpoint", "result"},
		)
		apiLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "api_request_duration_seconds",
				Help:    "REST request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		)

		hubState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "hub_state",
				Help: "Current hub connection state (1 for the active state)",
			},
			[]string{"state"},
		)
		hubAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "hub_connect_attempts_total",
				Help: "Hub connection attempts by kind and result",
			},
			[]string{"kind", "result"},
		)
		hubEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "hub_events_total",
				Help: "Hub invocations received by target",
			},
			[]string{"target"},
		)
		hubProtocolErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "hub_protocol_errors_total",
				Help: "Malformed hub records by reason",
			},
			[]string{"reason"},
		)
		droppedDeliveries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dropped_deliveries_total",
				Help: "Values discarded for slow subscribers by topic",
			},
			[]string{"topic"},
		)

		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			apiRequests,
			apiLatency,
			hubState,
			hubAttempts,
			hubEvents,
			hubProtocolErrors,
			droppedDeliveries,
		)
	})
}

// Handler returns the /metrics handler. Init must have been called.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Gatherer returns the registry, for tests.
func Gatherer() prometheus.Gatherer {
	Init()
	return registry
}

// ObserveAPIRequest records one REST call.
func ObserveAPIRequest(endpoint, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if apiRequests != nil {
		apiRequests.WithLabelValues(endpoint, result).Inc()
	}
	if apiLatency != nil {
		apiLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

// SetHubState marks state as the active connection state.
func SetHubState(state string) {
	if hubState == nil {
		return
	}
	for _, s := range hubStates {
		value := 0.0
		if s == state {
			value = 1
		}
		hubState.WithLabelValues(s).Set(value)
	}
}

// IncHubAttempt counts a connect ("initial") or reconnect attempt.
func IncHubAttempt(kind, result string) {
	if hubAttempts != nil {
		hubAttempts.WithLabelValues(kind, result).Inc()
	}
}

// IncHubEvent counts an invocation received for target.
func IncHubEvent(target string) {
	if hubEvents != nil {
		hubEvents.WithLabelValues(target).Inc()
	}
}

// IncHubProtocolError counts a dropped malformed record.
func IncHubProtocolError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if hubProtocolErrors != nil {
		hubProtocolErrors.WithLabelValues(reason).Inc()
	}
}

// IncDroppedDelivery counts a value discarded for a full subscriber.
func IncDroppedDelivery(topic string) {
	if droppedDeliveries != nil {
		droppedDeliveries.WithLabelValues(topic).Inc()
	}
}
