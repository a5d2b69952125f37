package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/djlord-it/bizflow/internal/domain"
)

var ErrNoEntity = errors.New("event has no entity id")

// EntityService changes the status of a portal entity.
type EntityService interface {
	UpdateStatus(ctx context.Context, entity string, id int64, status string) error
}

type StatusHandler struct {
	entities EntityService
}

func NewStatusHandler(s EntityService) *StatusHandler {
	return &StatusHandler{entities: s}
}

func (h *StatusHandler) Handle(ctx context.Context, a domain.Action, ev domain.Event) error {
	if a.UpdateStatus == nil {
		return fmt.Errorf("update_status: missing config")
	}
	if ev.EntityID == nil {
		return ErrNoEntity
	}
	cfg := a.UpdateStatus
	if err := h.entities.UpdateStatus(ctx, cfg.Entity, *ev.EntityID, cfg.Status); err != nil {
		return fmt.Errorf("update_status %s/%d: %w", cfg.Entity, *ev.EntityID, err)
	}
	return nil
}
