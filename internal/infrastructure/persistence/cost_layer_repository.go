package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// fifoOrder is the draw order of layers within a key
const fifoOrder = "layer_date ASC, created_at ASC, id ASC"

// GormCostLayerRepository implements CostLayerRepository using GORM
type GormCostLayerRepository struct {
	db *gorm.DB
}

// NewGormCostLayerRepository creates a new GormCostLayerRepository
func NewGormCostLayerRepository(db *gorm.DB) *GormCostLayerRepository {
	return &GormCostLayerRepository{db: db}
}

// Create inserts a new layer
func (r *GormCostLayerRepository) Create(ctx context.Context, layer *costing.CostLayer) error {
	return r.db.WithContext(ctx).Create(models.CostLayerModelFromDomain(layer)).Error
}

// LockOpenLayers selects open layers FOR UPDATE so concurrent projections
// of the same key serialize on the layers they drain
func (r *GormCostLayerRepository) LockOpenLayers(ctx context.Context, key costing.LayerKey) ([]*costing.CostLayer, error) {
	return r.findOpen(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), key)
}

// FindOpenLayers returns open layers without locking them
func (r *GormCostLayerRepository) FindOpenLayers(ctx context.Context, key costing.LayerKey) ([]*costing.CostLayer, error) {
	return r.findOpen(r.db.WithContext(ctx), key)
}

func (r *GormCostLayerRepository) findOpen(db *gorm.DB, key costing.LayerKey) ([]*costing.CostLayer, error) {
	var rows []models.CostLayerModel
	if err := db.
		Where("tenant_id = ? AND item_id = ? AND location_id = ? AND uom = ?", key.TenantID, key.ItemID, key.LocationID, key.UOM).
		Where("voided_at IS NULL AND remaining_quantity > 0").
		Order(fifoOrder).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainLayers(rows), nil
}

// UpdateRemaining persists the remaining quantity of each layer
func (r *GormCostLayerRepository) UpdateRemaining(ctx context.Context, layers ...*costing.CostLayer) error {
	for _, l := range layers {
		result := r.db.WithContext(ctx).
			Model(&models.CostLayerModel{}).
			Where("id = ? AND tenant_id = ?", l.ID, l.TenantID).
			Updates(map[string]any{
				"remaining_quantity": l.RemainingQuantity,
				"updated_at":         l.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

// FindByKey returns all layers of a key in FIFO order, voided included
func (r *GormCostLayerRepository) FindByKey(ctx context.Context, key costing.LayerKey) ([]*costing.CostLayer, error) {
	var rows []models.CostLayerModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND location_id = ? AND uom = ?", key.TenantID, key.ItemID, key.LocationID, key.UOM).
		Order(fifoOrder).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainLayers(rows), nil
}

// ExistsForMovement reports whether any layer references the movement
func (r *GormCostLayerRepository) ExistsForMovement(ctx context.Context, tenantID, movementID uuid.UUID) (bool, error) {
	return existsForMovement(ctx, r.db, &models.CostLayerModel{}, tenantID, movementID)
}

func toDomainLayers(rows []models.CostLayerModel) []*costing.CostLayer {
	layers := make([]*costing.CostLayer, len(rows))
	for i := range rows {
		layers[i] = rows[i].ToDomain()
	}
	return layers
}

func existsForMovement(ctx context.Context, db *gorm.DB, model any, tenantID, movementID uuid.UUID) (bool, error) {
	var found []uuid.UUID
	if err := db.WithContext(ctx).
		Model(model).
		Where("tenant_id = ? AND movement_id = ?", tenantID, movementID).
		Limit(1).
		Pluck("id", &found).Error; err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// Ensure GormCostLayerRepository implements CostLayerRepository
var _ costing.CostLayerRepository = (*GormCostLayerRepository)(nil)
