package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

var _ Sink = (*NoopSink)(nil)

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) EventEmitted(eventType string)                                       {}
func (n *NoopSink) EventPersistFailed()                                                 {}
func (n *NoopSink) TriggerEvaluated(result string)                                      {}
func (n *NoopSink) ActionCompleted(actionType, outcome string, duration time.Duration)  {}
func (n *NoopSink) ListenerCompleted(outcome string)                                    {}
func (n *NoopSink) EmitsInFlightIncr()                                                  {}
func (n *NoopSink) EmitsInFlightDecr()                                                  {}
func (n *NoopSink) WebhookDelivered(statusClass string, duration time.Duration)         {}
func (n *NoopSink) BufferSizeUpdate(size int)                                           {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                      {}
func (n *NoopSink) EmitError()                                                          {}
func (n *NoopSink) ReminderRunCompleted(duration time.Duration, emitted int, err error) {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                   {}
func (n *NoopSink) LeaderAcquired()                                                     {}
func (n *NoopSink) LeaderLost(reason string)                                            {}
