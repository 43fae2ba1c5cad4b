package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every dockctl collector. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	gatewayCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockctl_gateway_commands_total",
			Help: "Commands dispatched to the container runtime, by outcome.",
		},
		[]string{"command", "result"},
	)

	gatewayCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dockctl_gateway_command_duration_seconds",
			Help:    "Latency of runtime commands in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	pollTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockctl_poll_ticks_total",
			Help: "Poll fetches by resource and outcome (ok, error, skipped, stale).",
		},
		[]string{"resource", "result"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockctl_actions_total",
			Help: "Container lifecycle actions by outcome.",
		},
		[]string{"action", "result"},
	)

	subscriptionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dockctl_event_subscriptions_open",
			Help: "Event channel subscriptions currently open.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		gatewayCommandsTotal,
		gatewayCommandDuration,
		pollTicksTotal,
		actionsTotal,
		subscriptionsOpen,
	)
}

// Poll tick outcomes.
const (
	PollOK      = "ok"
	PollError   = "error"
	PollSkipped = "skipped"
	PollStale   = "stale"
)

// RecordCommand records one gateway command. result is "ok" or a failure kind.
func RecordCommand(command, result string, elapsed time.Duration) {
	gatewayCommandsTotal.WithLabelValues(command, result).Inc()
	gatewayCommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// RecordPoll records one poll fetch outcome for resource.
func RecordPoll(resource, result string) {
	pollTicksTotal.WithLabelValues(resource, result).Inc()
}

// RecordAction records one action attempt. result is "ok" or a failure kind.
func RecordAction(action, result string) {
	actionsTotal.WithLabelValues(action, result).Inc()
}

// SubscriptionOpened and SubscriptionClosed track the open subscription gauge.
func SubscriptionOpened() { subscriptionsOpen.Inc() }
func SubscriptionClosed() { subscriptionsOpen.Dec() }

// OpenSubscriptions returns the open subscription gauge.
func OpenSubscriptions() prometheus.Gauge { return subscriptionsOpen }
