// Package outbox records domain events inside the triggering transaction and
// dispatches them to idempotent handlers afterwards.
package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names a domain event.
type Kind string

const (
	KindInvoiceConfirmed     Kind = "invoice.confirmed"
	KindPaymentRecorded      Kind = "payment.recorded"
	KindPurchaseOrderCreated Kind = "purchase_order.created"
)

// Event is a persisted outbox row.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	CompanyID     int64           `json:"company_id"`
	Kind          Kind            `json:"kind"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

// ActorPayload carries the user that caused the event.
type ActorPayload struct {
	ActorID int64 `json:"actor_id"`
}

// NewEvent builds an unsaved event with a fresh id.
func NewEvent(companyID int64, kind Kind, aggregateType string, aggregateID int64, payload any) (Event, error) {
	if companyID <= 0 || aggregateID <= 0 {
		return Event{}, errors.New("outbox: company and aggregate required")
	}
	if kind == "" || aggregateType == "" {
		return Event{}, errors.New("outbox: kind and aggregate type required")
	}
	raw := json.RawMessage("{}")
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = body
	}
	return Event{
		ID:            uuid.New(),
		CompanyID:     companyID,
		Kind:          kind,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       raw,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Actor decodes the actor from the payload, returning 0 when absent.
func (e Event) Actor() int64 {
	var p ActorPayload
	if len(e.Payload) == 0 {
		return 0
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return 0
	}
	return p.ActorID
}
