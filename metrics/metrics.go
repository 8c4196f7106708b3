// Package metrics exposes the Prometheus instrumentation shared by the bus,
// queued handler, read model and bridge packages. Grounded on the teacher's
// internal/shared/metrics/prometheus.go: package-level promauto vars plus a
// thin Record* helper per metric, and an http.Handler for mounting under an
// admin router.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	busCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactivedomain_bus_commands_total",
			Help: "Total number of commands dispatched through the bus",
		},
		[]string{"command", "outcome"},
	)

	busCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reactivedomain_bus_command_duration_seconds",
			Help:    "Time from Send to a command response being observed",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"command"},
	)

	busEventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactivedomain_bus_events_published_total",
			Help: "Total number of events published through the bus",
		},
		[]string{"event"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reactivedomain_queue_depth",
			Help: "Current number of messages waiting in a queued handler",
		},
		[]string{"queue"},
	)

	queueOverflowTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactivedomain_queue_overflow_total",
			Help: "Total number of messages dropped by a discarding queued handler",
		},
		[]string{"queue"},
	)

	readmodelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reactivedomain_readmodel_state",
			Help: "Current lifecycle state of a read model listener (0=Starting,1=CatchingUp,2=Live,3=Idle)",
		},
		[]string{"listener"},
	)

	bridgeConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reactivedomain_bridge_connections_active",
			Help: "Current number of active bridge connections",
		},
		[]string{"role"},
	)

	bridgeFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactivedomain_bridge_frames_total",
			Help: "Total number of bridge frames sent or received",
		},
		[]string{"role", "direction"},
	)

	streamAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactivedomain_stream_appends_total",
			Help: "Total number of stream store append calls",
		},
		[]string{"outcome"},
	)
)

// Handler returns the Prometheus scrape handler for mounting under an admin
// router (see the httpapi package).
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCommand records a completed Send/TrySend call.
func RecordCommand(commandName, outcome string, duration time.Duration) {
	busCommandsTotal.WithLabelValues(commandName, outcome).Inc()
	busCommandDuration.WithLabelValues(commandName).Observe(duration.Seconds())
}

// RecordEventPublished records a Publish call.
func RecordEventPublished(eventName string) {
	busEventsPublishedTotal.WithLabelValues(eventName).Inc()
}

// SetQueueDepth reports a queued handler's current backlog length.
func SetQueueDepth(queueName string, depth int) {
	queueDepth.WithLabelValues(queueName).Set(float64(depth))
}

// RecordQueueOverflow records a message dropped by a discarding queue.
func RecordQueueOverflow(queueName string) {
	queueOverflowTotal.WithLabelValues(queueName).Inc()
}

// Read model lifecycle states, mirrored numerically for the gauge above.
const (
	ReadModelStarting    = 0
	ReadModelCatchingUp  = 1
	ReadModelLive        = 2
	ReadModelIdle        = 3
)

// SetReadModelState reports a listener's current lifecycle state.
func SetReadModelState(listenerName string, state int) {
	readmodelState.WithLabelValues(listenerName).Set(float64(state))
}

// SetBridgeConnections reports the current connection count for a bridge
// role ("server" or "client").
func SetBridgeConnections(role string, count int) {
	bridgeConnectionsActive.WithLabelValues(role).Set(float64(count))
}

// RecordBridgeFrame records one frame crossing the wire.
func RecordBridgeFrame(role, direction string) {
	bridgeFramesTotal.WithLabelValues(role, direction).Inc()
}

// RecordStreamAppend records a stream store Append outcome ("ok" or
// "wrong_expected_version", for example).
func RecordStreamAppend(outcome string) {
	streamAppendsTotal.WithLabelValues(outcome).Inc()
}
