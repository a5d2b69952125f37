package api

import (
	"encoding/json"
	"time"

	"github.com/djlord-it/bizflow/internal/domain"
)

// CreateTriggerRequest accepts conditions either as a list of
// {field, op, value} objects or as a legacy map such as {"amount_gt": 1000}.
type CreateTriggerRequest struct {
	Name         string          `json:"name"`
	EventType    string          `json:"eventType"`
	Conditions   json.RawMessage `json:"conditions,omitempty"`
	ActionType   string          `json:"actionType"`
	ActionConfig json.RawMessage `json:"actionConfig,omitempty"`
	IsActive     *bool           `json:"isActive,omitempty"` // default true
	Priority     *int            `json:"priority,omitempty"` // default 0
}

// UpdateTriggerRequest changes only the fields present in the body.
type UpdateTriggerRequest struct {
	Name         *string         `json:"name,omitempty"`
	EventType    *string         `json:"eventType,omitempty"`
	Conditions   json.RawMessage `json:"conditions,omitempty"`
	ActionType   *string         `json:"actionType,omitempty"`
	ActionConfig json.RawMessage `json:"actionConfig,omitempty"`
	IsActive     *bool           `json:"isActive,omitempty"`
	Priority     *int            `json:"priority,omitempty"`
}

type TriggerResponse struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	EventType    string             `json:"eventType"`
	Conditions   []domain.Condition `json:"conditions"`
	ActionType   string             `json:"actionType"`
	ActionConfig json.RawMessage    `json:"actionConfig"`
	IsActive     bool               `json:"isActive"`
	Priority     int                `json:"priority"`
	CreatedAt    string             `json:"createdAt"`
	UpdatedAt    string             `json:"updatedAt"`
	DecodeError  string             `json:"decodeError,omitempty"`
}

type ListTriggersResponse struct {
	Triggers []TriggerResponse `json:"triggers"`
}

type TriggerLogResponse struct {
	ID        int64  `json:"id"`
	TriggerID int64  `json:"triggerId"`
	EventType string `json:"eventType"`
	Result    string `json:"actionResult"`
	Error     string `json:"errorMessage,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type ListTriggerLogsResponse struct {
	Logs []TriggerLogResponse `json:"logs"`
}

type EmitEventRequest struct {
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
}

type EmitEventResponse struct {
	Status    string `json:"status"`
	EventType string `json:"eventType"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	EventType string         `json:"eventType"`
	EntityID  *int64         `json:"entityId"`
	Payload   map[string]any `json:"payload"`
	CreatedAt string         `json:"createdAt"`
}

type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
}

type EventTypesResponse struct {
	EventTypes  []string `json:"eventTypes"`
	ActionTypes []string `json:"actionTypes"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toTriggerResponse(t domain.Trigger) TriggerResponse {
	cfg, err := t.Action.MarshalConfig()
	if err != nil {
		cfg = []byte("{}")
	}
	conds := t.Conditions
	if conds == nil {
		conds = []domain.Condition{}
	}
	resp := TriggerResponse{
		ID:           t.ID,
		Name:         t.Name,
		EventType:    string(t.EventType),
		Conditions:   conds,
		ActionType:   string(t.Action.Type),
		ActionConfig: cfg,
		IsActive:     t.IsActive,
		Priority:     t.Priority,
		CreatedAt:    formatTime(t.CreatedAt),
		UpdatedAt:    formatTime(t.UpdatedAt),
	}
	if t.DecodeErr != nil {
		resp.DecodeError = t.DecodeErr.Error()
	}
	return resp
}

func toEventResponse(ev domain.Event) EventResponse {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return EventResponse{
		ID:        ev.ID,
		EventType: string(ev.Type),
		EntityID:  ev.EntityID,
		Payload:   payload,
		CreatedAt: formatTime(ev.CreatedAt),
	}
}

func toTriggerLogResponse(l domain.TriggerLog) TriggerLogResponse {
	return TriggerLogResponse{
		ID:        l.ID,
		TriggerID: l.TriggerID,
		EventType: string(l.EventType),
		Result:    string(l.Result),
		Error:     l.Error,
		CreatedAt: formatTime(l.CreatedAt),
	}
}
