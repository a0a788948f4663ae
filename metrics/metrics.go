// Package metrics declares the prometheus collectors shared across a
// silo's subsystems, grounded on the teacher repo's own metrics.Metrics
// wrapper but expanded from a bare Registerer holder into the concrete set
// of gauges/counters/histograms this runtime emits.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector a silo process registers on startup.
// Subsystems that are constructed without a Metrics (e.g. in unit tests)
// fall back to NewNoOp, which is wired to an unregistered local registry so
// Inc/Observe calls never panic or double-register.
type Metrics struct {
	MailboxDepth       *prometheus.GaugeVec
	MailboxCapacity    *prometheus.GaugeVec
	MessagesProcessed  *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	TurnDuration       *prometheus.HistogramVec
	CircuitState       *prometheus.GaugeVec
	CircuitTrips       *prometheus.CounterVec
	RateLimited        *prometheus.CounterVec
	DeadLetters        *prometheus.GaugeVec
	ActivationCount    *prometheus.GaugeVec
	SupervisorRestarts *prometheus.CounterVec
	Escalations        *prometheus.CounterVec
	StorageConflicts   *prometheus.CounterVec
	TransportSendLat   *prometheus.HistogramVec
	TransportErrors    *prometheus.CounterVec
	RemindersFired     *prometheus.CounterVec
	OutboxPending      *prometheus.GaugeVec
}

// New builds and registers the full collector set against reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		MailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "silo", Subsystem: "mailbox", Name: "depth",
			Help: "Current number of queued messages per actor type.",
		}, []string{"actor_type"}),
		MailboxCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "silo", Subsystem: "mailbox", Name: "capacity",
			Help: "Current adaptive capacity per actor type.",
		}, []string{"actor_type"}),
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "mailbox", Name: "messages_processed_total",
			Help: "Messages successfully processed by a mailbox turn loop.",
		}, []string{"actor_type"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "mailbox", Name: "messages_dropped_total",
			Help: "Messages rejected by full-mode, circuit breaker, or rate limiter.",
		}, []string{"actor_type", "reason"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "silo", Subsystem: "mailbox", Name: "turn_duration_seconds",
			Help:    "Wall-clock duration of a single actor turn.",
			Buckets: prometheus.DefBuckets,
		}, []string{"actor_type"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "silo", Subsystem: "mailbox", Name: "circuit_state",
			Help: "0=Closed 1=Open 2=HalfOpen.",
		}, []string{"actor_type"}),
		CircuitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "mailbox", Name: "circuit_trips_total",
			Help: "Closed->Open transitions.",
		}, []string{"actor_type"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "mailbox", Name: "rate_limited_total",
			Help: "Messages rejected by the sliding-window rate limiter.",
		}, []string{"actor_type"}),
		DeadLetters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "silo", Subsystem: "dlq", Name: "size",
			Help: "Current dead-letter queue depth.",
		}, []string{"actor_type"}),
		ActivationCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "silo", Subsystem: "actor", Name: "activations",
			Help: "Live activation count per actor type on this silo.",
		}, []string{"actor_type"}),
		SupervisorRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "actor", Name: "restarts_total",
			Help: "Child restarts performed by a supervisor.",
		}, []string{"actor_type", "directive"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "actor", Name: "escalations_total",
			Help: "Restart budgets exceeded and escalated to parent.",
		}, []string{"actor_type"}),
		StorageConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "storage", Name: "concurrency_conflicts_total",
			Help: "SaveWithVersion calls that lost a compare-and-set race.",
		}, []string{"state_name"}),
		TransportSendLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "silo", Subsystem: "transport", Name: "send_latency_seconds",
			Help:    "End-to-end latency of Transport.Send, local or remote.",
			Buckets: prometheus.DefBuckets,
		}, []string{"local"}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "transport", Name: "errors_total",
			Help: "Send failures by error kind.",
		}, []string{"kind"}),
		RemindersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "silo", Subsystem: "reminder", Name: "fired_total",
			Help: "Reminders fired by this silo's scanner.",
		}, []string{"actor_type"}),
		OutboxPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "silo", Subsystem: "outbox", Name: "pending",
			Help: "Outbox messages awaiting delivery.",
		}, []string{"destination"}),
	}

	collectors := []prometheus.Collector{
		m.MailboxDepth, m.MailboxCapacity, m.MessagesProcessed, m.MessagesDropped,
		m.TurnDuration, m.CircuitState, m.CircuitTrips, m.RateLimited, m.DeadLetters,
		m.ActivationCount, m.SupervisorRestarts, m.Escalations, m.StorageConflicts,
		m.TransportSendLat, m.TransportErrors, m.RemindersFired, m.OutboxPending,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewNoOp returns a Metrics registered against a private registry, for
// components constructed in tests that don't care about metrics output.
func NewNoOp() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		panic(err) // unreachable: a fresh registry never rejects first registration
	}
	return m
}
