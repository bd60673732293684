package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsProcessed *prometheus.CounterVec
	OutboxEntriesCreated   prometheus.Counter
	DeliveriesSent         prometheus.Counter
	DeliveriesFailed       prometheus.Counter
	DeliveryLatency        prometheus.Histogram
	DeployRuns             *prometheus.CounterVec
	PendingNotifications   prometheus.Gauge
	UndeliveredEntries     prometheus.Gauge
}

// New registers all instruments with reg. Tests pass a fresh
// prometheus.NewRegistry() so nothing leaks between them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pigeonpost_notifications_processed_total",
			Help: "Notifications taken off the queue, by outcome.",
		}, []string{"outcome"}),

		OutboxEntriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pigeonpost_outbox_entries_created_total",
			Help: "Rendered messages written to the outbox.",
		}),

		DeliveriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pigeonpost_deliveries_sent_total",
			Help: "Outbox entries accepted by the transport.",
		}),

		DeliveriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pigeonpost_deliveries_failed_total",
			Help: "Failed delivery attempts, including undecodable payloads.",
		}),

		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pigeonpost_delivery_seconds",
			Help:    "Time spent handing a single message to the transport.",
			Buckets: prometheus.DefBuckets,
		}),

		DeployRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pigeonpost_deploy_runs_total",
			Help: "Deploy invocations, by result.",
		}, []string{"result"}),

		PendingNotifications: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pigeonpost_pending_notifications",
			Help: "Pending notifications as of the last deploy.",
		}),
		UndeliveredEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pigeonpost_undelivered_entries",
			Help: "Outbox entries still eligible for delivery as of the last deploy.",
		}),
	}

	reg.MustRegister(
		m.NotificationsProcessed,
		m.OutboxEntriesCreated,
		m.DeliveriesSent,
		m.DeliveriesFailed,
		m.DeliveryLatency,
		m.DeployRuns,
		m.PendingNotifications,
		m.UndeliveredEntries,
	)

	return m
}

// ProcessorHooks returns the callbacks expected by worker.ProcessorHooks.
// Keeps the prometheus calls out of the worker package.
func (m *Metrics) ProcessorHooks() (
	onProcessed func(outcome string),
	onEntryCreated func(),
) {
	onProcessed = func(outcome string) {
		m.NotificationsProcessed.WithLabelValues(outcome).Inc()
	}
	onEntryCreated = func() {
		m.OutboxEntriesCreated.Inc()
	}
	return
}

// DispatcherHooks returns the callbacks expected by worker.DispatcherHooks.
func (m *Metrics) DispatcherHooks() (
	onSent func(time.Duration),
	onFailed func(),
) {
	onSent = func(latency time.Duration) {
		m.DeliveriesSent.Inc()
		m.DeliveryLatency.Observe(latency.Seconds())
	}
	onFailed = func() {
		m.DeliveriesFailed.Inc()
	}
	return
}

// DeployHooks returns the callbacks expected by worker.DeployHooks.
func (m *Metrics) DeployHooks() (
	onRun func(result string),
	onBacklog func(pending, undelivered int),
) {
	onRun = func(result string) {
		m.DeployRuns.WithLabelValues(result).Inc()
	}
	onBacklog = func(pending, undelivered int) {
		m.PendingNotifications.Set(float64(pending))
		m.UndeliveredEntries.Set(float64(undelivered))
	}
	return
}
