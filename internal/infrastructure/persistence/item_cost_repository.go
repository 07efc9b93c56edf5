package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormItemCostReader implements StandardCostReader over item_costs
type GormItemCostReader struct {
	db *gorm.DB
}

// NewGormItemCostReader creates a new GormItemCostReader
func NewGormItemCostReader(db *gorm.DB) *GormItemCostReader {
	return &GormItemCostReader{db: db}
}

// StandardCost returns the configured standard cost for the item in uom
func (r *GormItemCostReader) StandardCost(ctx context.Context, tenantID, itemID uuid.UUID, uom string) (decimal.Decimal, bool, error) {
	var row models.ItemCostModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND item_id = ? AND uom = ?", tenantID, itemID, uom).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return row.StandardCost, true, nil
}

// Ensure GormItemCostReader implements StandardCostReader
var _ costing.StandardCostReader = (*GormItemCostReader)(nil)
