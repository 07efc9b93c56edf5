package costing

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SourceType is the semantic origin of a cost layer
type SourceType string

const (
	SourceTypeReceipt    SourceType = "receipt"
	SourceTypeProduction SourceType = "production"
	SourceTypeAdjustment SourceType = "adjustment"
	SourceTypeTransferIn SourceType = "transfer_in"
)

// IsValid returns true if the source type is known
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeReceipt, SourceTypeProduction, SourceTypeAdjustment, SourceTypeTransferIn:
		return true
	default:
		return false
	}
}

// LayerKey identifies a FIFO group of layers
type LayerKey struct {
	TenantID   uuid.UUID
	ItemID     uuid.UUID
	LocationID uuid.UUID
	UOM        string
}

// CostLayer is a FIFO lot of inventory carrying a unit cost.
// RemainingQuantity only moves down, and never below zero.
type CostLayer struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ItemID            uuid.UUID
	LocationID        uuid.UUID
	UOM               string
	Quantity          decimal.Decimal
	RemainingQuantity decimal.Decimal
	UnitCost          decimal.Decimal
	SourceType        SourceType
	SourceDocumentID  *uuid.UUID
	MovementID        *uuid.UUID
	LayerDate         time.Time
	VoidedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewCostLayerParams holds the inputs for creating a cost layer
type NewCostLayerParams struct {
	Key              LayerKey
	Quantity         decimal.Decimal
	UnitCost         decimal.Decimal
	SourceType       SourceType
	SourceDocumentID *uuid.UUID
	MovementID       *uuid.UUID
	LayerDate        time.Time
}

// NewCostLayer creates a layer whose remaining quantity equals its quantity
func NewCostLayer(p NewCostLayerParams) (*CostLayer, error) {
	if p.Key.TenantID == uuid.Nil || p.Key.ItemID == uuid.Nil || p.Key.LocationID == uuid.Nil {
		return nil, shared.ErrInvalidInput.WithMessage("cost layer requires tenant, item and location")
	}
	if p.Key.UOM == "" {
		return nil, shared.ErrInvalidInput.WithMessage("cost layer requires a unit of measure")
	}
	if !p.Quantity.IsPositive() {
		return nil, shared.ErrInvalidInput.WithMessage("cost layer quantity must be positive")
	}
	if p.UnitCost.IsNegative() {
		return nil, shared.ErrInvalidInput.WithMessage("cost layer unit cost cannot be negative")
	}
	if !p.SourceType.IsValid() {
		return nil, shared.ErrInvalidInput.WithMessage("unknown cost layer source type: " + string(p.SourceType))
	}

	now := time.Now()
	layerDate := p.LayerDate
	if layerDate.IsZero() {
		layerDate = now
	}
	return &CostLayer{
		ID:                uuid.New(),
		TenantID:          p.Key.TenantID,
		ItemID:            p.Key.ItemID,
		LocationID:        p.Key.LocationID,
		UOM:               p.Key.UOM,
		Quantity:          p.Quantity,
		RemainingQuantity: p.Quantity,
		UnitCost:          p.UnitCost,
		SourceType:        p.SourceType,
		SourceDocumentID:  p.SourceDocumentID,
		MovementID:        p.MovementID,
		LayerDate:         layerDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Key returns the FIFO group of the layer
func (l *CostLayer) Key() LayerKey {
	return LayerKey{
		TenantID:   l.TenantID,
		ItemID:     l.ItemID,
		LocationID: l.LocationID,
		UOM:        l.UOM,
	}
}

// IsVoided returns true if the layer was voided
func (l *CostLayer) IsVoided() bool {
	return l.VoidedAt != nil
}

// IsOpen returns true if the layer can still be drawn from
func (l *CostLayer) IsOpen() bool {
	return !l.IsVoided() && l.RemainingQuantity.IsPositive()
}

// Consume drains up to qty from the layer.
// Returns the quantity actually drained, which may be less than requested.
func (l *CostLayer) Consume(qty decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() || !l.IsOpen() {
		return decimal.Zero
	}
	drained := decimal.Min(qty, l.RemainingQuantity)
	l.RemainingQuantity = l.RemainingQuantity.Sub(drained)
	l.UpdatedAt = time.Now()
	return drained
}

// Void excludes the layer from FIFO selection and valuation
func (l *CostLayer) Void(at time.Time) error {
	if l.IsVoided() {
		return shared.ErrInvalidState.WithMessage("cost layer already voided")
	}
	l.VoidedAt = &at
	l.UpdatedAt = at
	return nil
}

// ExtendedValue returns remaining quantity times unit cost, zero for voided layers
func (l *CostLayer) ExtendedValue() decimal.Decimal {
	if l.IsVoided() {
		return decimal.Zero
	}
	return l.RemainingQuantity.Mul(l.UnitCost)
}
