package costing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementRepository reads and records inventory movements.
// The movement tables are owned by the ledger-posting service; Save is only
// used by that inbound path.
type MovementRepository interface {
	// FindPosted loads a posted movement with its lines ordered by creation.
	// Returns shared.ErrMovementNotFound when absent or not posted.
	FindPosted(ctx context.Context, tenantID, movementID uuid.UUID) (*InventoryMovement, error)

	// Save inserts the movement and its lines. An existing movement id is a
	// no-op, so a repeated post never duplicates lines.
	Save(ctx context.Context, movement *InventoryMovement) error
}

// CostLayerRepository persists cost layers
type CostLayerRepository interface {
	// Create inserts a new layer
	Create(ctx context.Context, layer *CostLayer) error

	// LockOpenLayers returns the non-voided layers with remaining quantity for
	// the key, oldest first, row-locked for the rest of the transaction
	LockOpenLayers(ctx context.Context, key LayerKey) ([]*CostLayer, error)

	// FindOpenLayers is the non-locking variant of LockOpenLayers
	FindOpenLayers(ctx context.Context, key LayerKey) ([]*CostLayer, error)

	// UpdateRemaining persists the remaining quantity of drained layers
	UpdateRemaining(ctx context.Context, layers ...*CostLayer) error

	// FindByKey returns all layers of a FIFO group, voided included
	FindByKey(ctx context.Context, key LayerKey) ([]*CostLayer, error)

	// ExistsForMovement reports whether any layer references the movement
	ExistsForMovement(ctx context.Context, tenantID, movementID uuid.UUID) (bool, error)
}

// ConsumptionRepository persists cost layer consumptions
type ConsumptionRepository interface {
	// CreateBatch inserts consumptions
	CreateBatch(ctx context.Context, consumptions []*CostLayerConsumption) error

	// FindByMovement returns the consumptions recorded for a movement
	FindByMovement(ctx context.Context, tenantID, movementID uuid.UUID) ([]*CostLayerConsumption, error)

	// FindByKey returns all consumptions of a FIFO group
	FindByKey(ctx context.Context, key LayerKey) ([]*CostLayerConsumption, error)

	// ExistsForMovement reports whether any consumption references the movement
	ExistsForMovement(ctx context.Context, tenantID, movementID uuid.UUID) (bool, error)
}

// StandardCostReader returns the standard cost configured for an item.
// ok is false when no standard cost exists.
type StandardCostReader interface {
	StandardCost(ctx context.Context, tenantID, itemID uuid.UUID, uom string) (cost decimal.Decimal, ok bool, err error)
}

// UnitCostInput carries what a cost calculator may use to price an inbound line
type UnitCostInput struct {
	Movement   *InventoryMovement
	Line       MovementLine
	Key        LayerKey
	OpenLayers []*CostLayer
}

// MovementCostCalculator derives a unit cost for an inbound line without an explicit cost.
// ok is false when it cannot produce one.
type MovementCostCalculator interface {
	MovementUnitCost(ctx context.Context, in UnitCostInput) (cost decimal.Decimal, ok bool, err error)
}
