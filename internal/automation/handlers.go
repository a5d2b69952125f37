package automation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/listener"
)

// ErrMissingField is returned when an event lacks an id the automation needs.
var ErrMissingField = errors.New("automation: missing payload field")

// TriggeredBy marks payloads of events emitted by these automations.
const TriggeredBy = "automation"

// PaymentKeywords select the milestones that produce an invoice when completed.
var PaymentKeywords = []string{"payment", "deposit", "invoice", "installment"}

// Emitter is satisfied by *dispatcher.Dispatcher.
type Emitter interface {
	Emit(ctx context.Context, eventType domain.EventType, payload map[string]any)
}

// Registrar is satisfied by *dispatcher.Dispatcher and *listener.Registry.
type Registrar interface {
	On(eventType domain.EventType, l listener.Listener, opts ...listener.Option) bool
}

// Handlers reacts to portal events by calling back into the portal and
// emitting the follow-up events.
type Handlers struct {
	portal    Portal
	emitter   Emitter
	async     bool
	listeners map[domain.EventType]listener.Listener
}

func New(portal Portal, emitter Emitter) *Handlers {
	h := &Handlers{portal: portal, emitter: emitter}
	h.listeners = map[domain.EventType]listener.Listener{
		domain.EventProposalAccepted:   listener.Func("automation.proposal_accepted", h.ProposalAccepted),
		domain.EventProjectCreated:     listener.Func("automation.project_created", h.ProjectCreated),
		domain.EventMilestoneCompleted: listener.Func("automation.milestone_completed", h.MilestoneCompleted),
		domain.EventContractSigned:     listener.Func("automation.contract_signed", h.ContractSigned),
		domain.EventInvoicePaid:        listener.Func("automation.invoice_paid", h.InvoicePaid),
	}
	return h
}

// WithAsync runs every handler on its own goroutine.
func (h *Handlers) WithAsync(async bool) *Handlers {
	h.async = async
	return h
}

// Listener returns the handler registered for eventType, if any. The same
// value is returned on every call so it can be passed to Off.
func (h *Handlers) Listener(eventType domain.EventType) (listener.Listener, bool) {
	l, ok := h.listeners[eventType]
	return l, ok
}

// EventTypes lists the events the catalogue reacts to, in a stable order.
func (h *Handlers) EventTypes() []domain.EventType {
	out := make([]domain.EventType, 0, len(h.listeners))
	for _, t := range domain.EventTypes() {
		if _, ok := h.listeners[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Register subscribes every handler and returns how many were added.
func (h *Handlers) Register(r Registrar) int {
	var opts []listener.Option
	if h.async {
		opts = append(opts, listener.Async())
	}
	n := 0
	for _, eventType := range h.EventTypes() {
		if r.On(eventType, h.listeners[eventType], opts...) {
			n++
		}
	}
	log.Printf("automation: registered %d handlers (async=%t)", n, h.async)
	return n
}

// ProposalAccepted creates the project for an accepted proposal.
func (h *Handlers) ProposalAccepted(ctx context.Context, ev domain.Event) error {
	if ev.EntityID == nil {
		return fmt.Errorf("%w: entityId (proposal)", ErrMissingField)
	}

	project, err := h.portal.CreateProjectFromProposal(ctx, *ev.EntityID)
	if err != nil {
		return fmt.Errorf("create project from proposal %d: %w", *ev.EntityID, err)
	}

	payload := map[string]any{
		domain.PayloadKeyEntityID: project.ID,
		"proposalId":              *ev.EntityID,
		"name":                    project.Name,
		"triggeredBy":             TriggeredBy,
	}
	if project.ClientID != 0 {
		payload["clientId"] = project.ClientID
	}
	h.emitter.Emit(ctx, domain.EventProjectCreated, payload)
	return nil
}

// ProjectCreated generates the default milestones of a new project.
func (h *Handlers) ProjectCreated(ctx context.Context, ev domain.Event) error {
	if ev.EntityID == nil {
		return fmt.Errorf("%w: entityId (project)", ErrMissingField)
	}

	milestones, err := h.portal.GenerateDefaultMilestones(ctx, *ev.EntityID)
	if err != nil {
		return fmt.Errorf("generate milestones for project %d: %w", *ev.EntityID, err)
	}

	for _, m := range milestones {
		h.emitter.Emit(ctx, domain.EventMilestoneCreated, map[string]any{
			domain.PayloadKeyEntityID: m.ID,
			"projectId":               *ev.EntityID,
			"name":                    m.Name,
			"amount":                  m.Amount,
			"triggeredBy":             TriggeredBy,
		})
	}
	return nil
}

// MilestoneCompleted invoices a completed payment milestone.
func (h *Handlers) MilestoneCompleted(ctx context.Context, ev domain.Event) error {
	name := stringField(ev.Payload, "name", "milestoneName")
	if !IsPaymentMilestone(name) {
		return nil
	}
	if ev.EntityID == nil {
		return fmt.Errorf("%w: entityId (milestone)", ErrMissingField)
	}

	inv, err := h.portal.CreateMilestoneInvoice(ctx, *ev.EntityID)
	if err != nil {
		return fmt.Errorf("create invoice for milestone %d: %w", *ev.EntityID, err)
	}

	payload := map[string]any{
		domain.PayloadKeyEntityID: inv.ID,
		"invoiceNumber":           inv.Number,
		"amount":                  inv.Amount,
		"milestoneId":             *ev.EntityID,
		"triggeredBy":             TriggeredBy,
	}
	if inv.ClientID != 0 {
		payload["clientId"] = inv.ClientID
	}
	if inv.ProjectID != 0 {
		payload["projectId"] = inv.ProjectID
	}
	h.emitter.Emit(ctx, domain.EventInvoiceCreated, payload)
	return nil
}

// ContractSigned activates the contract's project.
func (h *Handlers) ContractSigned(ctx context.Context, ev domain.Event) error {
	projectID, ok := domain.IDField(ev.Payload, "projectId")
	if !ok {
		return fmt.Errorf("%w: projectId", ErrMissingField)
	}

	const status = "active"
	previous, err := h.portal.SetProjectStatus(ctx, projectID, status)
	if err != nil {
		return fmt.Errorf("activate project %d: %w", projectID, err)
	}
	if previous == status {
		return nil
	}

	payload := map[string]any{
		domain.PayloadKeyEntityID: projectID,
		"status":                  status,
		"previousStatus":          previous,
		"triggeredBy":             TriggeredBy,
	}
	if ev.EntityID != nil {
		payload["contractId"] = *ev.EntityID
	}
	h.emitter.Emit(ctx, domain.EventProjectStatusChanged, payload)
	return nil
}

// InvoicePaid announces the payment against the paying client.
func (h *Handlers) InvoicePaid(ctx context.Context, ev domain.Event) error {
	clientID, ok := domain.IDField(ev.Payload, "clientId")
	if !ok {
		return fmt.Errorf("%w: clientId", ErrMissingField)
	}

	payload := map[string]any{
		domain.PayloadKeyEntityID: clientID,
		"clientId":                clientID,
		"triggeredBy":             TriggeredBy,
	}
	if ev.EntityID != nil {
		payload["invoiceId"] = *ev.EntityID
	}
	for _, k := range []string{"amount", "currency", "invoiceNumber"} {
		if v, ok := ev.Payload[k]; ok {
			payload[k] = v
		}
	}
	h.emitter.Emit(ctx, domain.EventClientPaymentReceived, payload)
	return nil
}

// IsPaymentMilestone reports whether name contains a payment keyword.
func IsPaymentMilestone(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range PaymentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func stringField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
