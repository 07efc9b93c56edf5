package event

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
)

// OutboxMessage is a decoded outbox payload. The set of variants is closed:
// adding one means adding a MessageVisitor method, so every handler has to
// decide what to do with it.
type OutboxMessage interface {
	Accept(v MessageVisitor) error
	outboxMessage()
}

// MessageVisitor has one method per OutboxMessage variant
type MessageVisitor interface {
	VisitMovementPosted(msg *MovementPostedMessage) error
}

// MovementPostedMessage asks for a posted movement to be projected onto the cost ledger
type MovementPostedMessage struct {
	EventID      uuid.UUID
	TenantID     uuid.UUID
	MovementID   uuid.UUID
	MovementType costing.MovementType
	Payload      costing.MovementPostedPayload
}

// Accept implements OutboxMessage
func (m *MovementPostedMessage) Accept(v MessageVisitor) error { return v.VisitMovementPosted(m) }
func (*MovementPostedMessage) outboxMessage()                  {}

// DecodeMessage turns an outbox row into its message variant.
// Unknown event types fail with ErrUnknownEventType and malformed payloads
// with ErrMalformedPayload; both go through the normal retry path.
func DecodeMessage(e *shared.OutboxEvent) (OutboxMessage, error) {
	switch e.EventType {
	case costing.EventTypeMovementPosted:
		var p costing.MovementPostedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, shared.ErrMalformedPayload.WithMessage("decode " + e.EventType + ": " + err.Error())
		}
		// The aggregate id is authoritative; older payloads may omit movement_id
		movementID := e.AggregateID
		if p.MovementID != uuid.Nil && p.MovementID != movementID {
			return nil, shared.ErrMalformedPayload.WithMessage("payload movement_id does not match aggregate id")
		}
		tenantID := e.TenantID
		if p.TenantID != uuid.Nil && p.TenantID != tenantID {
			return nil, shared.ErrMalformedPayload.WithMessage("payload tenant_id does not match event tenant")
		}
		return &MovementPostedMessage{
			EventID:      e.ID,
			TenantID:     tenantID,
			MovementID:   movementID,
			MovementType: p.MovementType,
			Payload:      p,
		}, nil
	default:
		return nil, shared.ErrUnknownEventType.WithMessage("no handler registered for event type " + e.EventType)
	}
}
