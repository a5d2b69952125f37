package domain

import "time"

// Operator is the comparison a Condition applies.
type Operator string

const (
	OpEq Operator = "eq"
	OpGt Operator = "gt"
	OpLt Operator = "lt"
)

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpGt, OpLt:
		return true
	}
	return false
}

// Condition is a single predicate over an event payload field.
type Condition struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value"`
}

// Trigger binds an event type and optional conditions to an action.
// Triggers with a lower Priority are evaluated first; ties break on ID.
type Trigger struct {
	ID   int64
	Name string

	EventType  EventType
	Conditions []Condition
	Action     Action

	IsActive bool
	Priority int

	CreatedAt time.Time
	UpdatedAt time.Time

	// DecodeErr is set when the stored conditions or action could not be
	// read back. Such a trigger is logged as failed and never executed.
	DecodeErr error
}

// TriggerResult is the outcome recorded for one trigger during a dispatch.
type TriggerResult string

const (
	TriggerResultSuccess TriggerResult = "success"
	TriggerResultSkipped TriggerResult = "skipped"
	TriggerResultFailed  TriggerResult = "failed"
)

// TriggerLog is an append-only record of a trigger evaluation.
type TriggerLog struct {
	ID        int64
	TriggerID int64
	EventType EventType
	Result    TriggerResult
	Error     string // set only when Result is failed

	CreatedAt time.Time
}
