package api

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/djlord-it/bizflow/internal/domain"
)

func TestCreateInput_Valid(t *testing.T) {
	req := CreateTriggerRequest{
		Name:         "Overdue reminder",
		EventType:    "invoice.overdue",
		Conditions:   json.RawMessage(`{"daysOverdue_gt": 7, "status": "sent"}`),
		ActionType:   "send_email",
		ActionConfig: json.RawMessage(`{"template":"invoice_overdue"}`),
	}

	in, err := createInput(req)
	if err != nil {
		t.Fatalf("createInput: %v", err)
	}
	if in.EventType != domain.EventInvoiceOverdue {
		t.Errorf("EventType = %s", in.EventType)
	}
	if len(in.Conditions) != 2 {
		t.Errorf("expected 2 conditions, got %+v", in.Conditions)
	}
	if in.Action.Type != domain.ActionSendEmail || in.Action.SendEmail == nil || in.Action.SendEmail.Template != "invoice_overdue" {
		t.Errorf("unexpected action %+v", in.Action)
	}
	if in.IsActive != nil || in.Priority != nil {
		t.Error("omitted flags should stay nil so the service applies defaults")
	}
}

func TestCreateInput_Errors(t *testing.T) {
	base := CreateTriggerRequest{
		Name:         "t",
		EventType:    "invoice.paid",
		ActionType:   "notify",
		ActionConfig: json.RawMessage(`{"channel":"c","message":"m"}`),
	}

	tests := []struct {
		name   string
		modify func(r *CreateTriggerRequest)
		field  string
	}{
		{"missing eventType", func(r *CreateTriggerRequest) { r.EventType = "" }, "eventType"},
		{"unknown eventType", func(r *CreateTriggerRequest) { r.EventType = "invoice.lost" }, "eventType"},
		{"missing actionType", func(r *CreateTriggerRequest) { r.ActionType = "" }, "actionType"},
		{"unknown actionType", func(r *CreateTriggerRequest) { r.ActionType = "sms" }, "actionType"},
		{"config string", func(r *CreateTriggerRequest) { r.ActionConfig = json.RawMessage(`"x"`) }, "actionConfig"},
		{"config wrong shape", func(r *CreateTriggerRequest) { r.ActionConfig = json.RawMessage(`{"channel":5}`) }, "actionConfig"},
		{"conditions scalar", func(r *CreateTriggerRequest) { r.Conditions = json.RawMessage(`42`) }, "conditions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.modify(&req)

			_, err := createInput(req)
			var reqErr *requestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected requestError, got %v", err)
			}
			if reqErr.field != tt.field {
				t.Errorf("field = %q, want %q", reqErr.field, tt.field)
			}
		})
	}
}

func TestCreateInput_NullConfigIsAbsent(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		in, err := createInput(CreateTriggerRequest{Name: "t", EventType: "invoice.paid", ActionType: "notify", ActionConfig: raw})
		if err != nil {
			t.Fatalf("config %q: unexpected error %v", raw, err)
		}
		if in.Action.Type != domain.ActionNotify || in.Action.Notify != nil {
			t.Errorf("config %q: action = %+v, want bare notify", raw, in.Action)
		}
		if err := in.Action.Validate(); err == nil || !strings.Contains(err.Error(), "config is required") {
			t.Errorf("config %q: Validate = %v, want config is required", raw, err)
		}
	}
}

func TestUpdateInput_OnlyPresentFields(t *testing.T) {
	name := "renamed"
	called := false
	in, err := updateInput(UpdateTriggerRequest{Name: &name}, func() (domain.ActionType, error) {
		called = true
		return "", nil
	})
	if err != nil {
		t.Fatalf("updateInput: %v", err)
	}
	if called {
		t.Error("current action should not be looked up when actionConfig is absent")
	}
	if in.Name == nil || *in.Name != "renamed" {
		t.Errorf("Name = %v", in.Name)
	}
	if in.EventType != nil || in.Conditions != nil || in.Action != nil {
		t.Errorf("absent fields should stay nil: %+v", in)
	}
}

func TestUpdateInput_ConfigUsesCurrentType(t *testing.T) {
	req := UpdateTriggerRequest{ActionConfig: json.RawMessage(`{"url":"https://example.com/hook"}`)}
	in, err := updateInput(req, func() (domain.ActionType, error) { return domain.ActionWebhook, nil })
	if err != nil {
		t.Fatalf("updateInput: %v", err)
	}
	if in.Action == nil || in.Action.Webhook == nil || in.Action.Webhook.URL != "https://example.com/hook" {
		t.Errorf("unexpected action %+v", in.Action)
	}
}

func TestUpdateInput_LookupErrorPropagates(t *testing.T) {
	lookupErr := errors.New("not found")
	req := UpdateTriggerRequest{ActionConfig: json.RawMessage(`{}`)}

	_, err := updateInput(req, func() (domain.ActionType, error) { return "", lookupErr })
	if !errors.Is(err, lookupErr) {
		t.Errorf("expected lookup error, got %v", err)
	}
}

func TestUpdateInput_NullConditionsClear(t *testing.T) {
	in, err := updateInput(UpdateTriggerRequest{Conditions: json.RawMessage(`null`)}, nil)
	if err != nil {
		t.Fatalf("updateInput: %v", err)
	}
	if in.Conditions == nil || len(*in.Conditions) != 0 {
		t.Errorf("expected explicit empty conditions, got %v", in.Conditions)
	}
}

func TestUpdateInput_ActionTypeNeedsConfig(t *testing.T) {
	typ := "notify"
	_, err := updateInput(UpdateTriggerRequest{ActionType: &typ}, nil)

	var reqErr *requestError
	if !errors.As(err, &reqErr) || reqErr.field != "actionConfig" {
		t.Errorf("expected actionConfig requestError, got %v", err)
	}
}
