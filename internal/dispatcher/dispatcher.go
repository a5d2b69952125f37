// Package dispatcher turns emitted events into persisted records, trigger
// evaluations with audit logs, and listener invocations.
//
// Emit never returns an error. Every failure inside an emission is logged,
// recorded where applicable, and processing moves on to the next trigger or
// listener. Listeners may call Emit again; each nested call is an
// independent pass that reads fresh trigger state.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/djlord-it/bizflow/internal/condition"
	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/listener"
)

type Store interface {
	InsertEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	// ListActiveTriggers returns active triggers for eventType ordered by
	// priority ascending, then id ascending.
	ListActiveTriggers(ctx context.Context, eventType domain.EventType) ([]domain.Trigger, error)
	InsertTriggerLog(ctx context.Context, l domain.TriggerLog) error
}

type ActionExecutor interface {
	Execute(ctx context.Context, a domain.Action, ev domain.Event) error
}

type AnalyticsSink interface {
	RecordEvent(ctx context.Context, ev domain.Event)
	RecordTriggerResult(ctx context.Context, triggerID int64, result domain.TriggerResult, at time.Time)
}

// MetricsSink defines the interface for recording dispatcher metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	EventEmitted(eventType string)
	EventPersistFailed()
	TriggerEvaluated(result string)
	ActionCompleted(actionType, outcome string, duration time.Duration)
	ListenerCompleted(outcome string)
	EmitsInFlightIncr()
	EmitsInFlightDecr()
}

// Listener outcomes reported to MetricsSink.ListenerCompleted.
const (
	ListenerOK    = "ok"
	ListenerError = "error"
	ListenerPanic = "panic"
)

// DefaultDrainTimeout is the maximum time to wait for buffered emit
// requests during shutdown.
const DefaultDrainTimeout = 30 * time.Second

type Dispatcher struct {
	store        Store
	executor     ActionExecutor
	registry     *listener.Registry
	analytics    AnalyticsSink // optional, nil = disabled
	metrics      MetricsSink   // optional, nil = disabled
	drainTimeout time.Duration
	now          func() time.Time

	async sync.WaitGroup
}

func New(store Store, executor ActionExecutor) *Dispatcher {
	return &Dispatcher{
		store:        store,
		executor:     executor,
		registry:     listener.NewRegistry(),
		drainTimeout: DefaultDrainTimeout,
		now:          time.Now,
	}
}

func (d *Dispatcher) WithAnalytics(sink AnalyticsSink) *Dispatcher {
	d.analytics = sink
	return d
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

func (d *Dispatcher) WithDrainTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.drainTimeout = timeout
	}
	return d
}

// Registry returns the listener registry owned by this dispatcher.
func (d *Dispatcher) Registry() *listener.Registry {
	return d.registry
}

// On registers l for eventType. See listener.Registry.On.
func (d *Dispatcher) On(eventType domain.EventType, l listener.Listener, opts ...listener.Option) bool {
	return d.registry.On(eventType, l, opts...)
}

// Off removes l from eventType. See listener.Registry.Off.
func (d *Dispatcher) Off(eventType domain.EventType, l listener.Listener) bool {
	return d.registry.Off(eventType, l)
}

// Wait blocks until every asynchronous listener started so far returns.
func (d *Dispatcher) Wait() {
	d.async.Wait()
}

// Emit records eventType with payload, runs matching triggers in priority
// order and then invokes the registered listeners.
func (d *Dispatcher) Emit(ctx context.Context, eventType domain.EventType, payload map[string]any) {
	if d.metrics != nil {
		d.metrics.EmitsInFlightIncr()
		defer d.metrics.EmitsInFlightDecr()
		d.metrics.EventEmitted(string(eventType))
	}

	ev := domain.Event{
		Type:     eventType,
		EntityID: EntityID(payload),
		Payload:  clonePayload(payload),
	}

	stored, err := d.store.InsertEvent(ctx, ev)
	if err != nil {
		log.Printf("dispatcher: event=%s persist failed: %v", eventType, err)
		if d.metrics != nil {
			d.metrics.EventPersistFailed()
		}
		ev.CreatedAt = d.now().UTC()
	} else {
		ev = stored
	}

	if d.analytics != nil {
		d.analytics.RecordEvent(ctx, ev)
	}

	d.runTriggers(ctx, ev)
	d.runListeners(ctx, ev)
}

func (d *Dispatcher) runTriggers(ctx context.Context, ev domain.Event) {
	triggers, err := d.store.ListActiveTriggers(ctx, ev.Type)
	if err != nil {
		log.Printf("dispatcher: event=%s load triggers failed: %v", ev.Type, err)
		return
	}

	for _, t := range triggers {
		result, execErr := d.runTrigger(ctx, t, ev)

		entry := domain.TriggerLog{
			TriggerID: t.ID,
			EventType: ev.Type,
			Result:    result,
			CreatedAt: d.now().UTC(),
		}
		if execErr != nil {
			entry.Error = execErr.Error()
			log.Printf("dispatcher: event=%s trigger=%d action=%s failed: %v", ev.Type, t.ID, t.Action.Type, execErr)
		}
		if err := d.store.InsertTriggerLog(ctx, entry); err != nil {
			log.Printf("dispatcher: event=%s trigger=%d write log failed: %v", ev.Type, t.ID, err)
		}

		if d.metrics != nil {
			d.metrics.TriggerEvaluated(string(result))
		}
		if d.analytics != nil {
			d.analytics.RecordTriggerResult(ctx, t.ID, result, entry.CreatedAt)
		}
	}
}

func (d *Dispatcher) runTrigger(ctx context.Context, t domain.Trigger, ev domain.Event) (result domain.TriggerResult, err error) {
	if t.DecodeErr != nil {
		return domain.TriggerResultFailed, t.DecodeErr
	}
	if !condition.Evaluate(t.Conditions, ev.Payload) {
		return domain.TriggerResultSkipped, nil
	}

	start := d.now()
	defer func() {
		if r := recover(); r != nil {
			result = domain.TriggerResultFailed
			err = fmt.Errorf("action panicked: %v", r)
		}
		if d.metrics != nil {
			outcome := "success"
			if result == domain.TriggerResultFailed {
				outcome = "failed"
			}
			d.metrics.ActionCompleted(string(t.Action.Type), outcome, d.now().Sub(start))
		}
	}()

	if err := d.executor.Execute(ctx, t.Action, ev); err != nil {
		return domain.TriggerResultFailed, err
	}
	return domain.TriggerResultSuccess, nil
}

func (d *Dispatcher) runListeners(ctx context.Context, ev domain.Event) {
	for _, reg := range d.registry.Listeners(ev.Type) {
		if reg.Async {
			d.async.Add(1)
			go func(l listener.Listener) {
				defer d.async.Done()
				d.invoke(context.WithoutCancel(ctx), l, ev)
			}(reg.Listener)
			continue
		}
		d.invoke(ctx, reg.Listener, ev)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, l listener.Listener, ev domain.Event) {
	outcome := ListenerOK
	defer func() {
		if r := recover(); r != nil {
			outcome = ListenerPanic
			log.Printf("dispatcher: event=%s listener=%s panicked: %v", ev.Type, listenerName(l), r)
		}
		if d.metrics != nil {
			d.metrics.ListenerCompleted(outcome)
		}
	}()

	if err := l.HandleEvent(ctx, ev); err != nil {
		outcome = ListenerError
		log.Printf("dispatcher: event=%s listener=%s error: %v", ev.Type, listenerName(l), err)
	}
}

func listenerName(l listener.Listener) string {
	if s, ok := l.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", l)
}

// Run processes emit requests from the channel until context is cancelled.
// After cancellation, it drains remaining buffered requests with a timeout.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.EmitRequest) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ch)
			return
		case req, ok := <-ch:
			if !ok {
				return
			}
			d.Emit(ctx, req.Type, req.Payload)
		}
	}
}

// drain processes remaining requests in the channel buffer after shutdown.
// Uses a background context since the main context is already cancelled.
func (d *Dispatcher) drain(ch <-chan domain.EmitRequest) {
	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("dispatcher: drain timeout, processed %d events", count)
			}
			return
		case req, ok := <-ch:
			if !ok {
				log.Printf("dispatcher: drain complete, processed %d events", count)
				return
			}
			d.Emit(drainCtx, req.Type, req.Payload)
			count++
		default:
			if count > 0 {
				log.Printf("dispatcher: drain complete, processed %d events", count)
			}
			return
		}
	}
}

// EntityID extracts the subject entity id from payload["entityId"]. Integers,
// integral floats and integral numeric strings are accepted.
func EntityID(payload map[string]any) *int64 {
	id, ok := domain.IDField(payload, domain.PayloadKeyEntityID)
	if !ok {
		return nil
	}
	return &id
}

func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
