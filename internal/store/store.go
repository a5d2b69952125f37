// Package store holds the types shared by the SQL store implementations.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/djlord-it/bizflow/internal/condition"
	"github.com/djlord-it/bizflow/internal/domain"
)

var ErrNotFound = errors.New("not found")

// EventFilter narrows ListEvents. A zero Type matches all event types.
type EventFilter struct {
	Type   domain.EventType
	Limit  int
	Offset int
}

// TriggerColumns is the JSON-encoded form of a trigger's structured fields.
type TriggerColumns struct {
	Conditions   string
	ActionType   string
	ActionConfig string
}

// EncodeTrigger converts t's conditions and action into column values.
func EncodeTrigger(t domain.Trigger) (TriggerColumns, error) {
	conds := t.Conditions
	if conds == nil {
		conds = []domain.Condition{}
	}
	c, err := json.Marshal(conds)
	if err != nil {
		return TriggerColumns{}, fmt.Errorf("encode conditions: %w", err)
	}
	a, err := t.Action.MarshalConfig()
	if err != nil {
		return TriggerColumns{}, fmt.Errorf("encode action config: %w", err)
	}
	return TriggerColumns{
		Conditions:   string(c),
		ActionType:   string(t.Action.Type),
		ActionConfig: string(a),
	}, nil
}

// DecodeTrigger fills t's conditions and action from column values.
// Conditions may be stored as an array or a legacy suffix map. A column that
// cannot be decoded leaves t.DecodeErr set instead of failing the read, so
// one corrupt row never hides the others.
func DecodeTrigger(t *domain.Trigger, cols TriggerColumns) {
	t.DecodeErr = nil
	conds, err := condition.Parse([]byte(cols.Conditions))
	if err != nil {
		t.DecodeErr = fmt.Errorf("decode conditions for trigger %d: %w", t.ID, err)
		conds = nil
	}
	t.Conditions = conds

	typ := domain.ActionType(cols.ActionType)
	if !typ.Valid() {
		// Left for the executor to reject at run time.
		t.Action = domain.Action{Type: typ}
		return
	}
	a, err := domain.DecodeAction(typ, []byte(cols.ActionConfig))
	if err != nil {
		t.Action = domain.Action{Type: typ}
		t.DecodeErr = errors.Join(t.DecodeErr, fmt.Errorf("decode action for trigger %d: %w", t.ID, err))
		return
	}
	t.Action = a
}

// EncodePayload marshals an event payload, storing nil as an empty object.
func EncodePayload(p map[string]any) (string, error) {
	if p == nil {
		p = map[string]any{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

func DecodePayload(s string) (map[string]any, error) {
	p := map[string]any{}
	if s == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// Page clamps limit and offset to sane bounds.
func Page(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
