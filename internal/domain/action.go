package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
)

// ActionType identifies the kind of work a fired trigger performs.
type ActionType string

const (
	ActionNotify       ActionType = "notify"
	ActionSendEmail    ActionType = "send_email"
	ActionWebhook      ActionType = "webhook"
	ActionUpdateStatus ActionType = "update_status"
)

// ActionTypes returns the action catalogue.
func ActionTypes() []ActionType {
	return []ActionType{ActionNotify, ActionSendEmail, ActionWebhook, ActionUpdateStatus}
}

// Valid reports whether t is in the action catalogue.
func (t ActionType) Valid() bool {
	switch t {
	case ActionNotify, ActionSendEmail, ActionWebhook, ActionUpdateStatus:
		return true
	}
	return false
}

type NotifyAction struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// SendEmailAction sends Template to To, or to the address found in the
// payload field ToField when To is empty.
type SendEmailAction struct {
	Template string `json:"template"`
	To       string `json:"to,omitempty"`
	ToField  string `json:"toField,omitempty"`
}

type WebhookAction struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"` // default POST
	Headers map[string]string `json:"headers,omitempty"`
}

// UpdateStatusAction sets the status of the event's subject entity.
type UpdateStatusAction struct {
	Entity string `json:"entity"`
	Status string `json:"status"`
}

// Action is a tagged variant: exactly the field matching Type is set.
type Action struct {
	Type ActionType

	Notify       *NotifyAction
	SendEmail    *SendEmailAction
	Webhook      *WebhookAction
	UpdateStatus *UpdateStatusAction
}

// Validate checks that the variant matching Type is present and well formed.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNotify:
		if a.Notify == nil {
			return fmt.Errorf("notify: config is required")
		}
		if strings.TrimSpace(a.Notify.Channel) == "" {
			return fmt.Errorf("notify: channel is required")
		}
		if strings.TrimSpace(a.Notify.Message) == "" {
			return fmt.Errorf("notify: message is required")
		}
	case ActionSendEmail:
		if a.SendEmail == nil {
			return fmt.Errorf("send_email: config is required")
		}
		if strings.TrimSpace(a.SendEmail.Template) == "" {
			return fmt.Errorf("send_email: template is required")
		}
		if a.SendEmail.To != "" {
			if _, err := mail.ParseAddress(a.SendEmail.To); err != nil {
				return fmt.Errorf("send_email: invalid to address: %w", err)
			}
		}
	case ActionWebhook:
		if a.Webhook == nil {
			return fmt.Errorf("webhook: config is required")
		}
		u, err := url.Parse(a.Webhook.URL)
		if err != nil {
			return fmt.Errorf("webhook: invalid url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("webhook: url scheme must be http or https")
		}
		if u.Host == "" {
			return fmt.Errorf("webhook: url host is required")
		}
		if a.Webhook.Method != "" && !validMethod(a.Webhook.Method) {
			return fmt.Errorf("webhook: unsupported method %q", a.Webhook.Method)
		}
	case ActionUpdateStatus:
		if a.UpdateStatus == nil {
			return fmt.Errorf("update_status: config is required")
		}
		if strings.TrimSpace(a.UpdateStatus.Entity) == "" {
			return fmt.Errorf("update_status: entity is required")
		}
		if strings.TrimSpace(a.UpdateStatus.Status) == "" {
			return fmt.Errorf("update_status: status is required")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

func validMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// MarshalConfig encodes the active variant as the stored action_config JSON.
func (a Action) MarshalConfig() ([]byte, error) {
	var v any
	switch {
	case a.Type == ActionNotify && a.Notify != nil:
		v = a.Notify
	case a.Type == ActionSendEmail && a.SendEmail != nil:
		v = a.SendEmail
	case a.Type == ActionWebhook && a.Webhook != nil:
		v = a.Webhook
	case a.Type == ActionUpdateStatus && a.UpdateStatus != nil:
		v = a.UpdateStatus
	default:
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// DecodeAction rebuilds an Action from its stored type and config JSON.
func DecodeAction(typ ActionType, config []byte) (Action, error) {
	a := Action{Type: typ}
	if len(config) == 0 {
		config = []byte("{}")
	}
	var err error
	switch typ {
	case ActionNotify:
		a.Notify = &NotifyAction{}
		err = json.Unmarshal(config, a.Notify)
	case ActionSendEmail:
		a.SendEmail = &SendEmailAction{}
		err = json.Unmarshal(config, a.SendEmail)
	case ActionWebhook:
		a.Webhook = &WebhookAction{}
		err = json.Unmarshal(config, a.Webhook)
	case ActionUpdateStatus:
		a.UpdateStatus = &UpdateStatusAction{}
		err = json.Unmarshal(config, a.UpdateStatus)
	default:
		return a, fmt.Errorf("unknown action type %q", typ)
	}
	if err != nil {
		return a, fmt.Errorf("decode %s config: %w", typ, err)
	}
	return a, nil
}
