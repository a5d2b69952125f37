package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_Registration(t *testing.T) {
	// Should not panic or error with a fresh registry.
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	if sink == nil {
		t.Fatal("NewPrometheusSink returned nil")
	}
}

func TestPrometheusSink_EventEmitted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.EventEmitted("invoice.paid")
	sink.EventEmitted("invoice.paid")
	sink.EventEmitted("contract.signed")

	if v := getCounterVecValue(t, reg, "bizflow_dispatcher_events_total", map[string]string{"event_type": "invoice.paid"}); v != 2 {
		t.Errorf("events_total{invoice.paid} = %v, want 2", v)
	}
	if v := getCounterVecValue(t, reg, "bizflow_dispatcher_events_total", map[string]string{"event_type": "contract.signed"}); v != 1 {
		t.Errorf("events_total{contract.signed} = %v, want 1", v)
	}
}

func TestPrometheusSink_PersistFailed(t *testing.T) {
	sink, reg := newTestSink(t)
	sink.EventPersistFailed()
	if v := getCounterValue(t, reg, "bizflow_dispatcher_event_persist_errors_total"); v != 1 {
		t.Errorf("persist_errors_total = %v, want 1", v)
	}
}

func TestPrometheusSink_TriggerResults(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.TriggerEvaluated("success")
	sink.TriggerEvaluated("skipped")
	sink.TriggerEvaluated("skipped")
	sink.TriggerEvaluated("failed")

	for result, want := range map[string]float64{"success": 1, "skipped": 2, "failed": 1} {
		v := getCounterVecValue(t, reg, "bizflow_dispatcher_trigger_results_total", map[string]string{"result": result})
		if v != want {
			t.Errorf("trigger_results_total{%s} = %v, want %v", result, v, want)
		}
	}
}

func TestPrometheusSink_ActionLabels(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.ActionCompleted("webhook", "failed", 200*time.Millisecond)
	sink.ActionCompleted("notify", "success", time.Millisecond)

	if v := getCounterVecValue(t, reg, "bizflow_dispatcher_actions_total", map[string]string{"action_type": "webhook", "outcome": "failed"}); v != 1 {
		t.Errorf("actions_total{webhook,failed} = %v, want 1", v)
	}
	if v := getCounterVecValue(t, reg, "bizflow_dispatcher_actions_total", map[string]string{"action_type": "webhook", "outcome": "success"}); v != 0 {
		t.Errorf("actions_total{webhook,success} = %v, want 0", v)
	}
}

func TestPrometheusSink_EmitsInFlight(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.EmitsInFlightIncr()
	sink.EmitsInFlightIncr()
	sink.EmitsInFlightDecr()

	if v := getGaugeValue(t, reg, "bizflow_dispatcher_emits_in_flight"); v != 1 {
		t.Errorf("emits_in_flight = %v, want 1", v)
	}
}

func TestPrometheusSink_WebhookDelivered(t *testing.T) {
	sink, reg := newTestSink(t)
	sink.WebhookDelivered(StatusClass5xx, 50*time.Millisecond)
	if v := getCounterVecValue(t, reg, "bizflow_webhook_deliveries_total", map[string]string{"status_class": "5xx"}); v != 1 {
		t.Errorf("webhook_deliveries_total{5xx} = %v, want 1", v)
	}
}

func TestPrometheusSink_BufferMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.BufferCapacitySet(100)
	sink.BufferSizeUpdate(42)
	sink.EmitError()
	sink.EmitError()

	if v := getGaugeValue(t, reg, "bizflow_eventbus_buffer_capacity"); v != 100 {
		t.Errorf("buffer_capacity = %v, want 100", v)
	}
	if v := getGaugeValue(t, reg, "bizflow_eventbus_buffer_size"); v != 42 {
		t.Errorf("buffer_size = %v, want 42", v)
	}
	if v := getCounterValue(t, reg, "bizflow_eventbus_emit_errors_total"); v != 2 {
		t.Errorf("emit_errors_total = %v, want 2", v)
	}
}

func TestPrometheusSink_ReminderRun_WithError(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.ReminderRunCompleted(100*time.Millisecond, 3, nil)
	if v := getCounterValue(t, reg, "bizflow_scheduler_reminder_errors_total"); v != 0 {
		t.Errorf("reminder_errors_total = %v after success, want 0", v)
	}

	sink.ReminderRunCompleted(100*time.Millisecond, 0, errors.New("portal unavailable"))
	if v := getCounterValue(t, reg, "bizflow_scheduler_reminder_errors_total"); v != 1 {
		t.Errorf("reminder_errors_total = %v after error, want 1", v)
	}
	if v := getCounterValue(t, reg, "bizflow_scheduler_reminder_runs_total"); v != 2 {
		t.Errorf("reminder_runs_total = %v, want 2", v)
	}
	if v := getCounterValue(t, reg, "bizflow_scheduler_reminders_emitted_total"); v != 3 {
		t.Errorf("reminders_emitted_total = %v, want 3", v)
	}
}

func TestPrometheusSink_Leader(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.LeaderStatusChanged(true)
	sink.LeaderAcquired()
	if v := getGaugeValue(t, reg, "bizflow_leader_is_leader"); v != 1 {
		t.Errorf("is_leader = %v, want 1", v)
	}

	sink.LeaderStatusChanged(false)
	sink.LeaderLost("conn_lost")
	if v := getGaugeValue(t, reg, "bizflow_leader_is_leader"); v != 0 {
		t.Errorf("is_leader = %v, want 0", v)
	}
	if v := getCounterVecValue(t, reg, "bizflow_leader_lost_total", map[string]string{"reason": "conn_lost"}); v != 1 {
		t.Errorf("leader_lost_total{conn_lost} = %v, want 1", v)
	}
}

func TestPrometheusSink_DuplicateRegistration_NoPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheusSink(reg)
	// Second registration against the same registry logs errors but still
	// returns a usable sink.
	sink := NewPrometheusSink(reg)
	sink.EventEmitted("invoice.paid")
	sink.LeaderLost("shutdown")
}
