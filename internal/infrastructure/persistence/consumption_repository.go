package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormConsumptionRepository implements ConsumptionRepository using GORM
type GormConsumptionRepository struct {
	db *gorm.DB
}

// NewGormConsumptionRepository creates a new GormConsumptionRepository
func NewGormConsumptionRepository(db *gorm.DB) *GormConsumptionRepository {
	return &GormConsumptionRepository{db: db}
}

// CreateBatch inserts consumptions in a single statement
func (r *GormConsumptionRepository) CreateBatch(ctx context.Context, consumptions []*costing.CostLayerConsumption) error {
	if len(consumptions) == 0 {
		return nil
	}
	rows := make([]*models.CostLayerConsumptionModel, len(consumptions))
	for i, c := range consumptions {
		rows[i] = models.CostLayerConsumptionModelFromDomain(c)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// FindByMovement returns the consumptions recorded for a movement
func (r *GormConsumptionRepository) FindByMovement(ctx context.Context, tenantID, movementID uuid.UUID) ([]*costing.CostLayerConsumption, error) {
	var rows []models.CostLayerConsumptionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND movement_id = ?", tenantID, movementID).
		Order("consumed_at ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainConsumptions(rows), nil
}

// FindByKey returns all consumptions of a FIFO group
func (r *GormConsumptionRepository) FindByKey(ctx context.Context, key costing.LayerKey) ([]*costing.CostLayerConsumption, error) {
	var rows []models.CostLayerConsumptionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND location_id = ? AND uom = ?", key.TenantID, key.ItemID, key.LocationID, key.UOM).
		Order("consumed_at ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainConsumptions(rows), nil
}

// ExistsForMovement reports whether any consumption references the movement
func (r *GormConsumptionRepository) ExistsForMovement(ctx context.Context, tenantID, movementID uuid.UUID) (bool, error) {
	return existsForMovement(ctx, r.db, &models.CostLayerConsumptionModel{}, tenantID, movementID)
}

func toDomainConsumptions(rows []models.CostLayerConsumptionModel) []*costing.CostLayerConsumption {
	out := make([]*costing.CostLayerConsumption, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormConsumptionRepository implements ConsumptionRepository
var _ costing.ConsumptionRepository = (*GormConsumptionRepository)(nil)
