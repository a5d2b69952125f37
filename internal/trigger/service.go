// Package trigger is the validating admin service over the trigger store.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/store"
)

var (
	ErrNotFound = errors.New("trigger not found")
	ErrInvalid  = errors.New("invalid trigger")
)

type Store interface {
	ListTriggers(ctx context.Context, eventType domain.EventType) ([]domain.Trigger, error)
	GetTrigger(ctx context.Context, id int64) (domain.Trigger, error)
	CreateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error)
	UpdateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error)
	DeleteTrigger(ctx context.Context, id int64) error
	ToggleTrigger(ctx context.Context, id int64) (domain.Trigger, error)
}

type CreateInput struct {
	Name       string
	EventType  domain.EventType
	Conditions []domain.Condition
	Action     domain.Action
	IsActive   *bool // default true
	Priority   *int  // default 0
}

// UpdateInput carries the fields to change. Nil fields are left as is.
type UpdateInput struct {
	Name       *string
	EventType  *domain.EventType
	Conditions *[]domain.Condition
	Action     *domain.Action
	IsActive   *bool
	Priority   *int
}

func (u UpdateInput) IsEmpty() bool {
	return u.Name == nil && u.EventType == nil && u.Conditions == nil &&
		u.Action == nil && u.IsActive == nil && u.Priority == nil
}

type Service struct {
	store Store
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

// List returns all triggers, or only those for eventType when it is set.
func (s *Service) List(ctx context.Context, eventType domain.EventType) ([]domain.Trigger, error) {
	if eventType != "" && !eventType.Valid() {
		return nil, ValidationErrors{{Field: "eventType", Message: fmt.Sprintf("unknown event type %q", eventType)}}
	}
	triggers, err := s.store.ListTriggers(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return triggers, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Trigger, error) {
	t, err := s.store.GetTrigger(ctx, id)
	return t, mapErr(err, id)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Trigger, error) {
	t := domain.Trigger{
		Name:       strings.TrimSpace(in.Name),
		EventType:  in.EventType,
		Conditions: in.Conditions,
		Action:     in.Action,
		IsActive:   true,
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}

	if err := validate(t); err != nil {
		return domain.Trigger{}, err
	}

	created, err := s.store.CreateTrigger(ctx, t)
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("create trigger: %w", err)
	}
	return created, nil
}

// Update applies in to trigger id. An empty update returns the current
// trigger without writing.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (domain.Trigger, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Trigger{}, err
	}
	if in.IsEmpty() {
		return current, nil
	}
	if current.DecodeErr != nil && (in.Conditions == nil || in.Action == nil) {
		// Merging into unreadable columns would silently drop them.
		return domain.Trigger{}, ValidationErrors{{
			Field:   "conditions",
			Message: "stored trigger is unreadable; conditions and action must both be supplied",
		}}
	}

	next := current
	next.DecodeErr = nil
	if in.Name != nil {
		next.Name = strings.TrimSpace(*in.Name)
	}
	if in.EventType != nil {
		next.EventType = *in.EventType
	}
	if in.Conditions != nil {
		next.Conditions = *in.Conditions
	}
	if in.Action != nil {
		next.Action = *in.Action
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	if in.Priority != nil {
		next.Priority = *in.Priority
	}

	if err := validate(next); err != nil {
		return domain.Trigger{}, err
	}

	updated, err := s.store.UpdateTrigger(ctx, next)
	return updated, mapErr(err, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return mapErr(s.store.DeleteTrigger(ctx, id), id)
}

// Toggle flips the trigger's active flag atomically.
func (s *Service) Toggle(ctx context.Context, id int64) (domain.Trigger, error) {
	t, err := s.store.ToggleTrigger(ctx, id)
	return t, mapErr(err, id)
}

func mapErr(err error, id int64) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	default:
		return fmt.Errorf("trigger %d: %w", id, err)
	}
}
