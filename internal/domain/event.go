package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EventType names something that happened in the portal. The set is closed;
// adding a type means adding it here.
type EventType string

const (
	EventInvoiceCreated         EventType = "invoice.created"
	EventInvoiceSent            EventType = "invoice.sent"
	EventInvoiceViewed          EventType = "invoice.viewed"
	EventInvoicePaid            EventType = "invoice.paid"
	EventInvoiceOverdue         EventType = "invoice.overdue"
	EventInvoiceCancelled       EventType = "invoice.cancelled"
	EventProjectCreated         EventType = "project.created"
	EventProjectStatusChanged   EventType = "project.status_changed"
	EventProjectCompleted       EventType = "project.completed"
	EventMilestoneCreated       EventType = "project.milestone_created"
	EventMilestoneCompleted     EventType = "project.milestone_completed"
	EventProposalSent           EventType = "proposal.sent"
	EventProposalAccepted       EventType = "proposal.accepted"
	EventProposalRejected       EventType = "proposal.rejected"
	EventContractSent           EventType = "contract.sent"
	EventContractSigned         EventType = "contract.signed"
	EventContractExpired        EventType = "contract.expired"
	EventDocumentUploaded       EventType = "document.uploaded"
	EventDocumentSigned         EventType = "document.signed"
	EventQuestionnaireSent      EventType = "questionnaire.sent"
	EventQuestionnaireCompleted EventType = "questionnaire.completed"
	EventClientCreated          EventType = "client.created"
	EventClientPaymentReceived  EventType = "client.payment_received"
	EventTimeEntryLogged        EventType = "time_entry.logged"
)

var eventTypes = []EventType{
	EventInvoiceCreated,
	EventInvoiceSent,
	EventInvoiceViewed,
	EventInvoicePaid,
	EventInvoiceOverdue,
	EventInvoiceCancelled,
	EventProjectCreated,
	EventProjectStatusChanged,
	EventProjectCompleted,
	EventMilestoneCreated,
	EventMilestoneCompleted,
	EventProposalSent,
	EventProposalAccepted,
	EventProposalRejected,
	EventContractSent,
	EventContractSigned,
	EventContractExpired,
	EventDocumentUploaded,
	EventDocumentSigned,
	EventQuestionnaireSent,
	EventQuestionnaireCompleted,
	EventClientCreated,
	EventClientPaymentReceived,
	EventTimeEntryLogged,
}

var knownEventTypes = func() map[EventType]struct{} {
	m := make(map[EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		m[t] = struct{}{}
	}
	return m
}()

// EventTypes returns the full vocabulary in declaration order.
func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

// Valid reports whether t belongs to the vocabulary.
func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// ParseEventType returns the EventType for s or an error if it is unknown.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Event records that something of interest happened. Events are written once
// and never mutated.
type Event struct {
	ID       int64
	Type     EventType
	EntityID *int64
	Payload  map[string]any

	CreatedAt time.Time
}

// PayloadKeyEntityID is the payload field the entity id is read from.
const PayloadKeyEntityID = "entityId"

// EmitRequest is an emission queued for asynchronous processing.
type EmitRequest struct {
	Type    EventType
	Payload map[string]any
}

// IDField reads payload[key] as an integer identifier. Integers, integral
// floats and integral numeric strings are accepted.
func IDField(payload map[string]any, key string) (int64, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, false
	}

	var id int64
	switch x := v.(type) {
	case int:
		id = int64(x)
	case int32:
		id = int64(x)
	case int64:
		id = x
	case uint:
		id = int64(x)
	case uint32:
		id = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		id = int64(x)
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, false
		}
		id = int64(x)
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, false
		}
		id = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	default:
		return 0, false
	}
	return id, true
}
