package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/shopspring/decimal"
)

// CostLayerModel is the persistence model for a FIFO cost layer
type CostLayerModel struct {
	BaseModel
	TenantID          uuid.UUID          `gorm:"type:uuid;not null;index:idx_cost_layers_key,priority:1"`
	ItemID            uuid.UUID          `gorm:"type:uuid;not null;index:idx_cost_layers_key,priority:2"`
	LocationID        uuid.UUID          `gorm:"type:uuid;not null;index:idx_cost_layers_key,priority:3"`
	UOM               string             `gorm:"type:varchar(32);not null;index:idx_cost_layers_key,priority:4"`
	Quantity          decimal.Decimal    `gorm:"type:decimal(18,6);not null"`
	RemainingQuantity decimal.Decimal    `gorm:"type:decimal(18,6);not null"`
	UnitCost          decimal.Decimal    `gorm:"type:decimal(18,6);not null"`
	SourceType        costing.SourceType `gorm:"type:varchar(32);not null"`
	SourceDocumentID  *uuid.UUID         `gorm:"type:uuid"`
	MovementID        *uuid.UUID         `gorm:"type:uuid;index"`
	LayerDate         time.Time          `gorm:"not null;index:idx_cost_layers_key,priority:5"`
	VoidedAt          *time.Time
}

// TableName returns the table name for GORM
func (CostLayerModel) TableName() string {
	return "cost_layers"
}

// ToDomain converts the persistence model to a domain CostLayer
func (m *CostLayerModel) ToDomain() *costing.CostLayer {
	return &costing.CostLayer{
		ID:                m.ID,
		TenantID:          m.TenantID,
		ItemID:            m.ItemID,
		LocationID:        m.LocationID,
		UOM:               m.UOM,
		Quantity:          m.Quantity,
		RemainingQuantity: m.RemainingQuantity,
		UnitCost:          m.UnitCost,
		SourceType:        m.SourceType,
		SourceDocumentID:  m.SourceDocumentID,
		MovementID:        m.MovementID,
		LayerDate:         m.LayerDate,
		VoidedAt:          m.VoidedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// CostLayerModelFromDomain creates a new persistence model from a domain CostLayer
func CostLayerModelFromDomain(l *costing.CostLayer) *CostLayerModel {
	return &CostLayerModel{
		BaseModel:         BaseModel{ID: l.ID, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt},
		TenantID:          l.TenantID,
		ItemID:            l.ItemID,
		LocationID:        l.LocationID,
		UOM:               l.UOM,
		Quantity:          l.Quantity,
		RemainingQuantity: l.RemainingQuantity,
		UnitCost:          l.UnitCost,
		SourceType:        l.SourceType,
		SourceDocumentID:  l.SourceDocumentID,
		MovementID:        l.MovementID,
		LayerDate:         l.LayerDate,
		VoidedAt:          l.VoidedAt,
	}
}

// CostLayerConsumptionModel records quantity drained from a layer. Rows are never updated.
type CostLayerConsumptionModel struct {
	ID                    uuid.UUID               `gorm:"type:uuid;primaryKey"`
	TenantID              uuid.UUID               `gorm:"type:uuid;not null;index:idx_consumptions_key,priority:1"`
	CostLayerID           uuid.UUID               `gorm:"type:uuid;not null;index"`
	ItemID                uuid.UUID               `gorm:"type:uuid;not null;index:idx_consumptions_key,priority:2"`
	LocationID            uuid.UUID               `gorm:"type:uuid;not null;index:idx_consumptions_key,priority:3"`
	UOM                   string                  `gorm:"type:varchar(32);not null;index:idx_consumptions_key,priority:4"`
	Quantity              decimal.Decimal         `gorm:"type:decimal(18,6);not null"`
	UnitCost              decimal.Decimal         `gorm:"type:decimal(18,6);not null"`
	ConsumptionType       costing.ConsumptionType `gorm:"type:varchar(32);not null"`
	ConsumptionDocumentID *uuid.UUID              `gorm:"type:uuid"`
	MovementID            *uuid.UUID              `gorm:"type:uuid;index"`
	ConsumedAt            time.Time               `gorm:"not null"`
	CreatedAt             time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CostLayerConsumptionModel) TableName() string {
	return "cost_layer_consumptions"
}

// ToDomain converts the persistence model to a domain CostLayerConsumption
func (m *CostLayerConsumptionModel) ToDomain() *costing.CostLayerConsumption {
	return &costing.CostLayerConsumption{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		CostLayerID:           m.CostLayerID,
		ItemID:                m.ItemID,
		LocationID:            m.LocationID,
		UOM:                   m.UOM,
		Quantity:              m.Quantity,
		UnitCost:              m.UnitCost,
		ConsumptionType:       m.ConsumptionType,
		ConsumptionDocumentID: m.ConsumptionDocumentID,
		MovementID:            m.MovementID,
		ConsumedAt:            m.ConsumedAt,
		CreatedAt:             m.CreatedAt,
	}
}

// CostLayerConsumptionModelFromDomain creates a new persistence model from a domain consumption
func CostLayerConsumptionModelFromDomain(c *costing.CostLayerConsumption) *CostLayerConsumptionModel {
	return &CostLayerConsumptionModel{
		ID:                    c.ID,
		TenantID:              c.TenantID,
		CostLayerID:           c.CostLayerID,
		ItemID:                c.ItemID,
		LocationID:            c.LocationID,
		UOM:                   c.UOM,
		Quantity:              c.Quantity,
		UnitCost:              c.UnitCost,
		ConsumptionType:       c.ConsumptionType,
		ConsumptionDocumentID: c.ConsumptionDocumentID,
		MovementID:            c.MovementID,
		ConsumedAt:            c.ConsumedAt,
		CreatedAt:             c.CreatedAt,
	}
}

// InventoryMovementModel is the persistence model for a movement header
type InventoryMovementModel struct {
	TenantModel
	MovementType costing.MovementType    `gorm:"type:varchar(32);not null"`
	Purpose      costing.MovementPurpose `gorm:"type:varchar(32);not null"`
	ExternalRef  string                  `gorm:"type:varchar(255)"`
	Status       costing.MovementStatus  `gorm:"type:varchar(20);not null"`
	OccurredAt   time.Time               `gorm:"not null"`
	PostedAt     *time.Time
	// Associations
	Lines []InventoryMovementLineModel `gorm:"foreignKey:MovementID;references:ID"`
}

// TableName returns the table name for GORM
func (InventoryMovementModel) TableName() string {
	return "inventory_movements"
}

// ToDomain converts the persistence model to a domain InventoryMovement
func (m *InventoryMovementModel) ToDomain() *costing.InventoryMovement {
	movement := &costing.InventoryMovement{
		ID:           m.ID,
		TenantID:     m.TenantID,
		MovementType: m.MovementType,
		Purpose:      m.Purpose,
		ExternalRef:  m.ExternalRef,
		Status:       m.Status,
		OccurredAt:   m.OccurredAt,
		PostedAt:     m.PostedAt,
		Lines:        make([]costing.MovementLine, len(m.Lines)),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for i := range m.Lines {
		movement.Lines[i] = m.Lines[i].ToDomain()
	}
	return movement
}

// InventoryMovementModelFromDomain creates a new persistence model from a domain movement
func InventoryMovementModelFromDomain(mv *costing.InventoryMovement) *InventoryMovementModel {
	m := &InventoryMovementModel{
		TenantModel: TenantModel{
			BaseModel: BaseModel{ID: mv.ID, CreatedAt: mv.CreatedAt, UpdatedAt: mv.UpdatedAt},
			TenantID:  mv.TenantID,
		},
		MovementType: mv.MovementType,
		Purpose:      mv.Purpose,
		ExternalRef:  mv.ExternalRef,
		Status:       mv.Status,
		OccurredAt:   mv.OccurredAt,
		PostedAt:     mv.PostedAt,
		Lines:        make([]InventoryMovementLineModel, len(mv.Lines)),
	}
	for i := range mv.Lines {
		m.Lines[i] = *InventoryMovementLineModelFromDomain(&mv.Lines[i])
	}
	return m
}

// InventoryMovementLineModel is one signed quantity change of a movement
type InventoryMovementLineModel struct {
	ID                     uuid.UUID        `gorm:"type:uuid;primaryKey"`
	MovementID             uuid.UUID        `gorm:"type:uuid;not null;index:idx_movement_lines_order,priority:1"`
	ItemID                 uuid.UUID        `gorm:"type:uuid;not null"`
	LocationID             uuid.UUID        `gorm:"type:uuid;not null"`
	QuantityDelta          decimal.Decimal  `gorm:"type:decimal(18,6);not null"`
	UOM                    string           `gorm:"type:varchar(32);not null"`
	CanonicalQuantityDelta *decimal.Decimal `gorm:"type:decimal(18,6)"`
	CanonicalUOM           *string          `gorm:"type:varchar(32)"`
	UnitCost               *decimal.Decimal `gorm:"type:decimal(18,6)"`
	ReasonCode             string           `gorm:"type:varchar(64)"`
	CreatedAt              time.Time        `gorm:"not null;index:idx_movement_lines_order,priority:2"`
}

// TableName returns the table name for GORM
func (InventoryMovementLineModel) TableName() string {
	return "inventory_movement_lines"
}

// ToDomain converts the persistence model to a domain MovementLine
func (m *InventoryMovementLineModel) ToDomain() costing.MovementLine {
	return costing.MovementLine{
		ID:                     m.ID,
		MovementID:             m.MovementID,
		ItemID:                 m.ItemID,
		LocationID:             m.LocationID,
		QuantityDelta:          m.QuantityDelta,
		UOM:                    m.UOM,
		CanonicalQuantityDelta: m.CanonicalQuantityDelta,
		CanonicalUOM:           m.CanonicalUOM,
		UnitCost:               m.UnitCost,
		ReasonCode:             m.ReasonCode,
		CreatedAt:              m.CreatedAt,
	}
}

// InventoryMovementLineModelFromDomain creates a new persistence model from a domain line
func InventoryMovementLineModelFromDomain(l *costing.MovementLine) *InventoryMovementLineModel {
	return &InventoryMovementLineModel{
		ID:                     l.ID,
		MovementID:             l.MovementID,
		ItemID:                 l.ItemID,
		LocationID:             l.LocationID,
		QuantityDelta:          l.QuantityDelta,
		UOM:                    l.UOM,
		CanonicalQuantityDelta: l.CanonicalQuantityDelta,
		CanonicalUOM:           l.CanonicalUOM,
		UnitCost:               l.UnitCost,
		ReasonCode:             l.ReasonCode,
		CreatedAt:              l.CreatedAt,
	}
}

// ItemCostModel holds the standard cost of an item per unit of measure.
// The table is maintained elsewhere; this service only reads it.
type ItemCostModel struct {
	BaseModel
	TenantID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_item_costs_item_uom,priority:1"`
	ItemID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_item_costs_item_uom,priority:2"`
	UOM          string          `gorm:"type:varchar(32);not null;uniqueIndex:uq_item_costs_item_uom,priority:3"`
	StandardCost decimal.Decimal `gorm:"type:decimal(18,6);not null"`
}

// TableName returns the table name for GORM
func (ItemCostModel) TableName() string {
	return "item_costs"
}

// AllModels lists every table this service owns or reads, in dependency order
func AllModels() []any {
	return []any{
		&OutboxEventModel{},
		&DeadLetterModel{},
		&InventoryMovementModel{},
		&InventoryMovementLineModel{},
		&CostLayerModel{},
		&CostLayerConsumptionModel{},
		&ItemCostModel{},
	}
}
