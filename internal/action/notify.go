package action

import (
	"context"
	"fmt"

	"github.com/djlord-it/bizflow/internal/domain"
)

// Notifier delivers an in-app notification on a named channel.
type Notifier interface {
	Notify(ctx context.Context, channel, message string, ev domain.Event) error
}

type NotifyHandler struct {
	notifier Notifier
}

func NewNotifyHandler(n Notifier) *NotifyHandler {
	return &NotifyHandler{notifier: n}
}

func (h *NotifyHandler) Handle(ctx context.Context, a domain.Action, ev domain.Event) error {
	if a.Notify == nil {
		return fmt.Errorf("notify: missing config")
	}
	msg := Render(a.Notify.Message, ev)
	if err := h.notifier.Notify(ctx, a.Notify.Channel, msg, ev); err != nil {
		return fmt.Errorf("notify %s: %w", a.Notify.Channel, err)
	}
	return nil
}
