// Package action runs the action attached to a matched trigger.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/djlord-it/bizflow/internal/domain"
)

var ErrUnknownAction = errors.New("unknown action type")

// Handler performs one kind of action for an event.
type Handler interface {
	Handle(ctx context.Context, a domain.Action, ev domain.Event) error
}

type HandlerFunc func(ctx context.Context, a domain.Action, ev domain.Event) error

func (f HandlerFunc) Handle(ctx context.Context, a domain.Action, ev domain.Event) error {
	return f(ctx, a, ev)
}

type Executor struct {
	mu       sync.RWMutex
	handlers map[domain.ActionType]Handler
}

// NewExecutor returns an executor with no handlers. Use Register or one of
// the With* helpers to install the built-in ones.
func NewExecutor() *Executor {
	return &Executor{handlers: make(map[domain.ActionType]Handler)}
}

// Register installs h for typ, replacing any previous handler.
func (e *Executor) Register(typ domain.ActionType, h Handler) *Executor {
	e.mu.Lock()
	e.handlers[typ] = h
	e.mu.Unlock()
	return e
}

func (e *Executor) WithNotifier(n Notifier) *Executor {
	return e.Register(domain.ActionNotify, NewNotifyHandler(n))
}

func (e *Executor) WithMailer(m Mailer) *Executor {
	return e.Register(domain.ActionSendEmail, NewEmailHandler(m))
}

func (e *Executor) WithWebhook(h *WebhookHandler) *Executor {
	return e.Register(domain.ActionWebhook, h)
}

func (e *Executor) WithEntityService(s EntityService) *Executor {
	return e.Register(domain.ActionUpdateStatus, NewStatusHandler(s))
}

// Execute runs action a against ev. A panicking handler is reported as an error.
func (e *Executor) Execute(ctx context.Context, a domain.Action, ev domain.Event) (err error) {
	e.mu.RLock()
	h, ok := e.handlers[a.Type]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s action panicked: %v", a.Type, r)
		}
	}()
	return h.Handle(ctx, a, ev)
}
