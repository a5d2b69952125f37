package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var _ Sink = (*PrometheusSink)(nil)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Dispatcher metrics
	eventsTotal        *prometheus.CounterVec
	persistErrorsTotal prometheus.Counter
	triggerResults     *prometheus.CounterVec
	actionsTotal       *prometheus.CounterVec
	actionDuration     *prometheus.HistogramVec
	listenersTotal     *prometheus.CounterVec
	emitsInFlight      prometheus.Gauge

	// Webhook metrics
	webhookTotal    *prometheus.CounterVec
	webhookDuration prometheus.Histogram

	// EventBus metrics
	bufferSize      prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Reminder scheduler metrics
	reminderRunsTotal   prometheus.Counter
	reminderErrorsTotal prometheus.Counter
	remindersEmitted    prometheus.Counter
	reminderRunDuration prometheus.Histogram

	// Leader election metrics
	isLeader        prometheus.Gauge
	leaderAcquired  prometheus.Counter
	leaderLostTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initDispatcherMetrics(reg)
	s.initWebhookMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initSchedulerMetrics(reg)
	s.initLeaderMetrics(reg)
	return s
}

func (s *PrometheusSink) initDispatcherMetrics(reg prometheus.Registerer) {
	s.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizflow_dispatcher_events_total",
		Help: "Total number of events emitted, by event type.",
	}, []string{"event_type"})
	s.persistErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bizflow_dispatcher_event_persist_errors_total",
		Help: "Total number of events that could not be written to the event store.",
	})
	s.triggerResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizflow_dispatcher_trigger_results_total",
		Help: "Total number of trigger evaluations, by result.",
	}, []string{"result"})
	s.actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizflow_dispatcher_actions_total",
		Help: "Total number of executed actions, by action type and outcome.",
	}, []string{"action_type", "outcome"})
	s.actionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bizflow_dispatcher_action_duration_seconds",
		Help:    "Action execution latency in seconds.",
		Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"action_type"})
	s.listenersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizflow_dispatcher_listener_invocations_total",
		Help: "Total number of listener invocations, by outcome.",
	}, []string{"outcome"})
	s.emitsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bizflow_dispatcher_emits_in_flight",
		Help: "Number of emissions currently being processed, nested emissions included.",
	})

	s.register(reg, s.eventsTotal, "bizflow_dispatcher_events_total")
	s.register(reg, s.persistErrorsTotal, "bizflow_dispatcher_event_persist_errors_total")
	s.register(reg, s.triggerResults, "bizflow_dispatcher_trigger_results_total")
	s.register(reg, s.actionsTotal, "bizflow_dispatcher_actions_total")
	s.register(reg, s.actionDuration, "bizflow_dispatcher_action_duration_seconds")
	s.register(reg, s.listenersTotal, "bizflow_dispatcher_listener_invocations_total")
	s.register(reg, s.emitsInFlight, "bizflow_dispatcher_emits_in_flight")
}

func (s *PrometheusSink) initWebhookMetrics(reg prometheus.Registerer) {
	s.webhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizflow_webhook_deliveries_total",
		Help: "Total number of webhook deliveries, by status class.",
	}, []string{"status_class"})
	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bizflow_webhook_duration_seconds",
		Help:    "Webhook request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.register(reg, s.webhookTotal, "bizflow_webhook_deliveries_total")
	s.register(reg, s.webhookDuration, "bizflow_webhook_duration_seconds")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bizflow_eventbus_buffer_size",
		Help: "Current number of emit requests in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bizflow_eventbus_buffer_capacity",
		Help: "Capacity of the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bizflow_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "bizflow_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "bizflow_eventbus_buffer_capacity")
	s.register(reg, s.emitErrorsTotal, "bizflow_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.reminderRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bizflow_scheduler_reminder_runs_total",
		Help: "Total number of reminder runs.",
	})
	s.reminderErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bizflow_scheduler_reminder_errors_total",
		Help: "Total number of reminder runs that failed.",
	})
	s.remindersEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bizflow_scheduler_reminders_emitted_total",
		Help: "Total number of overdue reminders emitted.",
	})
	s.reminderRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bizflow_scheduler_reminder_run_duration_seconds",
		Help:    "Duration of each reminder run in seconds.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	s.register(reg, s.reminderRunsTotal, "bizflow_scheduler_reminder_runs_total")
	s.register(reg, s.reminderErrorsTotal, "bizflow_scheduler_reminder_errors_total")
	s.register(reg, s.remindersEmitted, "bizflow_scheduler_reminders_emitted_total")
	s.register(reg, s.reminderRunDuration, "bizflow_scheduler_reminder_run_duration_seconds")
}

func (s *PrometheusSink) initLeaderMetrics(reg prometheus.Registerer) {
	s.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bizflow_leader_is_leader",
		Help: "1 when this instance holds the leader lock, otherwise 0.",
	})
	s.leaderAcquired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bizflow_leader_acquired_total",
		Help: "Total number of times leadership was acquired.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bizflow_leader_lost_total",
		Help: "Total number of times leadership was lost, by reason.",
	}, []string{"reason"})

	s.register(reg, s.isLeader, "bizflow_leader_is_leader")
	s.register(reg, s.leaderAcquired, "bizflow_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "bizflow_leader_lost_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Dispatcher metrics implementation

func (s *PrometheusSink) EventEmitted(eventType string) {
	s.eventsTotal.WithLabelValues(eventType).Inc()
}

func (s *PrometheusSink) EventPersistFailed() {
	s.persistErrorsTotal.Inc()
}

func (s *PrometheusSink) TriggerEvaluated(result string) {
	s.triggerResults.WithLabelValues(result).Inc()
}

func (s *PrometheusSink) ActionCompleted(actionType, outcome string, duration time.Duration) {
	s.actionsTotal.WithLabelValues(actionType, outcome).Inc()
	s.actionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

func (s *PrometheusSink) ListenerCompleted(outcome string) {
	s.listenersTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) EmitsInFlightIncr() {
	s.emitsInFlight.Inc()
}

func (s *PrometheusSink) EmitsInFlightDecr() {
	s.emitsInFlight.Dec()
}

// Webhook metrics implementation

func (s *PrometheusSink) WebhookDelivered(statusClass string, duration time.Duration) {
	s.webhookTotal.WithLabelValues(statusClass).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Reminder scheduler metrics implementation

func (s *PrometheusSink) ReminderRunCompleted(duration time.Duration, emitted int, err error) {
	s.reminderRunsTotal.Inc()
	s.reminderRunDuration.Observe(duration.Seconds())
	s.remindersEmitted.Add(float64(emitted))
	if err != nil {
		s.reminderErrorsTotal.Inc()
	}
}

// Leader election metrics implementation

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.isLeader.Set(1)
		return
	}
	s.isLeader.Set(0)
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquired.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
