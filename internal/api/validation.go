package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/djlord-it/bizflow/internal/condition"
	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/trigger"
)

// requestError is a malformed request body field. It maps to 400.
type requestError struct {
	field string
	err   error
}

func (e *requestError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.field, e.err)
}

func (e *requestError) Unwrap() error { return e.err }

func createInput(req CreateTriggerRequest) (trigger.CreateInput, error) {
	eventType, err := parseEventType(req.EventType)
	if err != nil {
		return trigger.CreateInput{}, err
	}

	conds, err := parseConditions(req.Conditions)
	if err != nil {
		return trigger.CreateInput{}, err
	}

	act, err := parseAction(req.ActionType, req.ActionConfig)
	if err != nil {
		return trigger.CreateInput{}, err
	}

	return trigger.CreateInput{
		Name:       req.Name,
		EventType:  eventType,
		Conditions: conds,
		Action:     act,
		IsActive:   req.IsActive,
		Priority:   req.Priority,
	}, nil
}

// updateInput converts a patch. currentAction supplies the action type when
// only actionConfig is sent; it is called at most once.
func updateInput(req UpdateTriggerRequest, currentAction func() (domain.ActionType, error)) (trigger.UpdateInput, error) {
	in := trigger.UpdateInput{
		Name:     req.Name,
		IsActive: req.IsActive,
		Priority: req.Priority,
	}

	if req.EventType != nil {
		et, err := parseEventType(*req.EventType)
		if err != nil {
			return in, err
		}
		in.EventType = &et
	}

	if req.Conditions != nil {
		conds, err := parseConditions(req.Conditions)
		if err != nil {
			return in, err
		}
		if conds == nil {
			conds = []domain.Condition{}
		}
		in.Conditions = &conds
	}

	switch {
	case req.ActionType != nil:
		if req.ActionConfig == nil {
			return in, &requestError{field: "actionConfig", err: fmt.Errorf("required when actionType changes")}
		}
		act, err := parseAction(*req.ActionType, req.ActionConfig)
		if err != nil {
			return in, err
		}
		in.Action = &act
	case req.ActionConfig != nil:
		typ, err := currentAction()
		if err != nil {
			return in, err
		}
		act, err := parseAction(string(typ), req.ActionConfig)
		if err != nil {
			return in, err
		}
		in.Action = &act
	}

	return in, nil
}

func parseEventType(s string) (domain.EventType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &requestError{field: "eventType", err: fmt.Errorf("required")}
	}
	et, err := domain.ParseEventType(s)
	if err != nil {
		return "", &requestError{field: "eventType", err: err}
	}
	return et, nil
}

func parseConditions(raw json.RawMessage) ([]domain.Condition, error) {
	conds, err := condition.Parse(raw)
	if err != nil {
		return nil, &requestError{field: "conditions", err: err}
	}
	return conds, nil
}

func parseAction(typ string, config json.RawMessage) (domain.Action, error) {
	at := domain.ActionType(strings.TrimSpace(typ))
	if at == "" {
		return domain.Action{}, &requestError{field: "actionType", err: fmt.Errorf("required")}
	}
	if !at.Valid() {
		return domain.Action{}, &requestError{field: "actionType", err: fmt.Errorf("unknown action type %q", at)}
	}
	trimmed := bytes.TrimSpace(config)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		// Absent config: Action.Validate reports it as required.
		return domain.Action{Type: at}, nil
	}
	if trimmed[0] != '{' {
		return domain.Action{}, &requestError{field: "actionConfig", err: fmt.Errorf("must be a JSON object")}
	}
	act, err := domain.DecodeAction(at, config)
	if err != nil {
		return domain.Action{}, &requestError{field: "actionConfig", err: err}
	}
	return act, nil
}

// fieldErrors flattens trigger validation errors for the response body.
func fieldErrors(errs trigger.ValidationErrors) []FieldError {
	out := make([]FieldError, len(errs))
	for i, e := range errs {
		out[i] = FieldError{Field: e.Field, Message: e.Message}
	}
	return out
}
