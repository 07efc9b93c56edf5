package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMovementRepository implements MovementRepository using GORM
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// FindPosted loads a posted movement with its lines in creation order
func (r *GormMovementRepository) FindPosted(ctx context.Context, tenantID, movementID uuid.UUID) (*costing.InventoryMovement, error) {
	var m models.InventoryMovementModel
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, movementID, costing.MovementStatusPosted).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrMovementNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// Save inserts the movement header and its lines. A movement whose id
// already exists is left untouched, lines included.
func (r *GormMovementRepository) Save(ctx context.Context, movement *costing.InventoryMovement) error {
	m := models.InventoryMovementModelFromDomain(movement)
	result := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 || len(m.Lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&m.Lines).Error
}

// Ensure GormMovementRepository implements MovementRepository
var _ costing.MovementRepository = (*GormMovementRepository)(nil)
