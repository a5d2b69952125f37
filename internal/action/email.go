package action

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/djlord-it/bizflow/internal/domain"
)

var ErrNoRecipient = errors.New("no email recipient")

// Mailer sends a named email template to a single recipient.
type Mailer interface {
	SendTemplate(ctx context.Context, to, template string, data map[string]any) error
}

type EmailHandler struct {
	mailer Mailer
}

func NewEmailHandler(m Mailer) *EmailHandler {
	return &EmailHandler{mailer: m}
}

func (h *EmailHandler) Handle(ctx context.Context, a domain.Action, ev domain.Event) error {
	if a.SendEmail == nil {
		return fmt.Errorf("send_email: missing config")
	}
	to, err := recipient(a.SendEmail, ev.Payload)
	if err != nil {
		return err
	}
	if err := h.mailer.SendTemplate(ctx, to, a.SendEmail.Template, TemplateData(ev)); err != nil {
		return fmt.Errorf("send_email %s: %w", a.SendEmail.Template, err)
	}
	return nil
}

// recipient resolves To, then the payload field named by ToField, then
// payload["email"].
func recipient(cfg *domain.SendEmailAction, payload map[string]any) (string, error) {
	if to := strings.TrimSpace(cfg.To); to != "" {
		return to, nil
	}
	field := cfg.ToField
	if field == "" {
		field = "email"
	}
	if s, ok := payload[field].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s), nil
	}
	return "", fmt.Errorf("%w: payload field %q is empty", ErrNoRecipient, field)
}
