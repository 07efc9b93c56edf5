package costing

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeInventoryMovement = "inventory_movement"

// Event type constants
const (
	EventTypeMovementPosted = "inventory.movement.posted"
)

// MovementPostedPayload is the outbox payload enqueued when a movement is posted
type MovementPostedPayload struct {
	MovementID   uuid.UUID    `json:"movement_id"`
	TenantID     uuid.UUID    `json:"tenant_id"`
	MovementType MovementType `json:"movement_type"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// MovementPostedEvent is broadcast to external consumers once a movement has been projected
type MovementPostedEvent struct {
	shared.BaseDomainEvent
	MovementID   uuid.UUID    `json:"movement_id"`
	MovementType MovementType `json:"movement_type"`
	ItemIDs      []uuid.UUID  `json:"item_ids"`
	LocationIDs  []uuid.UUID  `json:"location_ids"`
}

// NewMovementPostedEvent creates a new MovementPostedEvent
func NewMovementPostedEvent(tenantID, movementID uuid.UUID, movementType MovementType, itemIDs, locationIDs []uuid.UUID) *MovementPostedEvent {
	return &MovementPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMovementPosted, AggregateTypeInventoryMovement, movementID, tenantID),
		MovementID:      movementID,
		MovementType:    movementType,
		ItemIDs:         itemIDs,
		LocationIDs:     locationIDs,
	}
}

// EventType returns the event type name
func (e *MovementPostedEvent) EventType() string {
	return EventTypeMovementPosted
}
