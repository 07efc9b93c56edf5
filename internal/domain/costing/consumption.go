package costing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsumptionType is the semantic reason quantity left a layer
type ConsumptionType string

const (
	ConsumptionTypeIssue           ConsumptionType = "issue"
	ConsumptionTypeProductionInput ConsumptionType = "production_input"
	ConsumptionTypeSale            ConsumptionType = "sale"
	ConsumptionTypeAdjustment      ConsumptionType = "adjustment"
	ConsumptionTypeTransferOut     ConsumptionType = "transfer_out"
)

// IsValid returns true if the consumption type is known
func (c ConsumptionType) IsValid() bool {
	switch c {
	case ConsumptionTypeIssue, ConsumptionTypeProductionInput, ConsumptionTypeSale,
		ConsumptionTypeAdjustment, ConsumptionTypeTransferOut:
		return true
	default:
		return false
	}
}

// CostLayerConsumption records quantity drained from one layer.
// Rows are append-only; they double as the projection idempotency marker.
type CostLayerConsumption struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	CostLayerID           uuid.UUID
	ItemID                uuid.UUID
	LocationID            uuid.UUID
	UOM                   string
	Quantity              decimal.Decimal
	UnitCost              decimal.Decimal
	ConsumptionType       ConsumptionType
	ConsumptionDocumentID *uuid.UUID
	MovementID            *uuid.UUID
	ConsumedAt            time.Time
	CreatedAt             time.Time
}

// ExtendedCost returns the value drained from the layer
func (c *CostLayerConsumption) ExtendedCost() decimal.Decimal {
	return c.Quantity.Mul(c.UnitCost)
}

func newConsumption(
	layer *CostLayer,
	qty decimal.Decimal,
	consumptionType ConsumptionType,
	documentID, movementID *uuid.UUID,
	consumedAt time.Time,
) *CostLayerConsumption {
	return &CostLayerConsumption{
		ID:                    uuid.New(),
		TenantID:              layer.TenantID,
		CostLayerID:           layer.ID,
		ItemID:                layer.ItemID,
		LocationID:            layer.LocationID,
		UOM:                   layer.UOM,
		Quantity:              qty,
		UnitCost:              layer.UnitCost,
		ConsumptionType:       consumptionType,
		ConsumptionDocumentID: documentID,
		MovementID:            movementID,
		ConsumedAt:            consumedAt,
		CreatedAt:             time.Now(),
	}
}
