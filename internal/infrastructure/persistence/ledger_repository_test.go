package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestLayer(t *testing.T, key costing.LayerKey, qty, cost int64, layerDate time.Time) *costing.CostLayer {
	t.Helper()
	movementID := uuid.New()
	layer, err := costing.NewCostLayer(costing.NewCostLayerParams{
		Key:        key,
		Quantity:   decimal.NewFromInt(qty),
		UnitCost:   decimal.NewFromInt(cost),
		SourceType: costing.SourceTypeReceipt,
		MovementID: &movementID,
		LayerDate:  layerDate,
	})
	require.NoError(t, err)
	return layer
}

func newTestKey() costing.LayerKey {
	return costing.LayerKey{TenantID: uuid.New(), ItemID: uuid.New(), LocationID: uuid.New(), UOM: "ea"}
}

func TestGormMovementRepository_SaveAndFindPosted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormMovementRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	movementID := uuid.New()
	now := time.Now().UTC().Truncate(time.Millisecond)
	cost := decimal.NewFromInt(4)
	canonical := "ea"

	movement := &costing.InventoryMovement{
		ID:           movementID,
		TenantID:     tenantID,
		MovementType: costing.MovementTypeReceive,
		Purpose:      costing.PurposeReceipt,
		ExternalRef:  "po_receipt:42",
		Status:       costing.MovementStatusPosted,
		OccurredAt:   now,
		PostedAt:     &now,
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines: []costing.MovementLine{
			{ID: uuid.New(), MovementID: movementID, ItemID: uuid.New(), LocationID: uuid.New(),
				QuantityDelta: decimal.NewFromInt(2), UOM: "box", UnitCost: &cost, CanonicalUOM: &canonical,
				CreatedAt: now.Add(2 * time.Millisecond)},
			{ID: uuid.New(), MovementID: movementID, ItemID: uuid.New(), LocationID: uuid.New(),
				QuantityDelta: decimal.NewFromInt(7), UOM: "ea", CreatedAt: now.Add(time.Millisecond)},
		},
	}
	require.NoError(t, repo.Save(ctx, movement))

	t.Run("loads lines in creation order", func(t *testing.T) {
		found, err := repo.FindPosted(ctx, tenantID, movementID)
		require.NoError(t, err)

		assert.Equal(t, costing.PurposeReceipt, found.Purpose)
		assert.Equal(t, "po_receipt:42", found.ExternalRef)
		require.Len(t, found.Lines, 2)
		assert.Equal(t, movement.Lines[1].ID, found.Lines[0].ID)
		assert.Equal(t, movement.Lines[0].ID, found.Lines[1].ID)
		require.NotNil(t, found.Lines[1].UnitCost)
		assert.True(t, found.Lines[1].UnitCost.Equal(cost))
		assert.Equal(t, "ea", found.Lines[1].EffectiveUOM())
		assert.Nil(t, found.Lines[0].UnitCost)
	})

	t.Run("saving the same movement again keeps the first lines", func(t *testing.T) {
		again := *movement
		again.ExternalRef = "po_receipt:43"
		again.Lines = []costing.MovementLine{
			{ID: uuid.New(), MovementID: movementID, ItemID: uuid.New(), LocationID: uuid.New(),
				QuantityDelta: decimal.NewFromInt(1), UOM: "ea", CreatedAt: now},
		}
		require.NoError(t, repo.Save(ctx, &again))

		found, err := repo.FindPosted(ctx, tenantID, movementID)
		require.NoError(t, err)
		assert.Equal(t, "po_receipt:42", found.ExternalRef)
		assert.Len(t, found.Lines, 2)
	})

	t.Run("other tenant is not found", func(t *testing.T) {
		_, err := repo.FindPosted(ctx, uuid.New(), movementID)
		assert.ErrorIs(t, err, shared.ErrMovementNotFound)
	})

	t.Run("draft movement is not found", func(t *testing.T) {
		draft := &costing.InventoryMovement{
			ID: uuid.New(), TenantID: tenantID, MovementType: costing.MovementTypeIssue,
			Status: costing.MovementStatusDraft, OccurredAt: now, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, repo.Save(ctx, draft))

		_, err := repo.FindPosted(ctx, tenantID, draft.ID)
		assert.ErrorIs(t, err, shared.ErrMovementNotFound)
	})
}

func TestGormCostLayerRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCostLayerRepository(db)
	ctx := context.Background()

	key := newTestKey()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	newest := newTestLayer(t, key, 5, 12, base.Add(48*time.Hour))
	oldest := newTestLayer(t, key, 3, 10, base)
	middle := newTestLayer(t, key, 4, 11, base.Add(24*time.Hour))
	voided := newTestLayer(t, key, 9, 1, base.Add(-time.Hour))
	require.NoError(t, voided.Void(base))
	otherKey := newTestLayer(t, newTestKey(), 1, 1, base)

	for _, l := range []*costing.CostLayer{newest, oldest, middle, voided, otherKey} {
		require.NoError(t, repo.Create(ctx, l))
	}

	t.Run("open layers come back oldest first without voided ones", func(t *testing.T) {
		open, err := repo.FindOpenLayers(ctx, key)
		require.NoError(t, err)
		require.Len(t, open, 3)
		assert.Equal(t, oldest.ID, open[0].ID)
		assert.Equal(t, middle.ID, open[1].ID)
		assert.Equal(t, newest.ID, open[2].ID)
		assert.True(t, open[0].RemainingQuantity.Equal(decimal.NewFromInt(3)))
	})

	t.Run("drained layers drop out of the open set", func(t *testing.T) {
		oldest.Consume(decimal.NewFromInt(3))
		require.NoError(t, repo.UpdateRemaining(ctx, oldest))

		open, err := repo.LockOpenLayers(ctx, key)
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, middle.ID, open[0].ID)

		all, err := repo.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("updating an unknown layer fails", func(t *testing.T) {
		ghost := newTestLayer(t, key, 1, 1, base)
		assert.Error(t, repo.UpdateRemaining(ctx, ghost))
	})

	t.Run("exists for movement", func(t *testing.T) {
		ok, err := repo.ExistsForMovement(ctx, key.TenantID, *middle.MovementID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ExistsForMovement(ctx, key.TenantID, uuid.New())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGormConsumptionRepository(t *testing.T) {
	db := setupTestDB(t)
	layers := NewGormCostLayerRepository(db)
	repo := NewGormConsumptionRepository(db)
	ctx := context.Background()

	key := newTestKey()
	layer := newTestLayer(t, key, 10, 3, time.Now().UTC())
	require.NoError(t, layers.Create(ctx, layer))

	plan := costing.PlanFIFO([]*costing.CostLayer{layer}, decimal.NewFromInt(4))
	movementID := uuid.New()
	consumptions := plan.Apply(costing.ConsumptionTypeSale, nil, &movementID, time.Now().UTC())
	require.Len(t, consumptions, 1)

	require.NoError(t, repo.CreateBatch(ctx, nil))
	require.NoError(t, repo.CreateBatch(ctx, consumptions))

	found, err := repo.FindByMovement(ctx, key.TenantID, movementID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, layer.ID, found[0].CostLayerID)
	assert.Equal(t, costing.ConsumptionTypeSale, found[0].ConsumptionType)
	assert.True(t, found[0].ExtendedCost().Equal(decimal.NewFromInt(12)))

	byKey, err := repo.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Len(t, byKey, 1)

	ok, err := repo.ExistsForMovement(ctx, key.TenantID, movementID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGormItemCostReader(t *testing.T) {
	db := setupTestDB(t)
	reader := NewGormItemCostReader(db)
	ctx := context.Background()

	tenantID, itemID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	require.NoError(t, db.Create(&models.ItemCostModel{
		BaseModel:    models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		TenantID:     tenantID,
		ItemID:       itemID,
		UOM:          "ea",
		StandardCost: decimal.RequireFromString("7.25"),
	}).Error)

	cost, ok, err := reader.StandardCost(ctx, tenantID, itemID, "ea")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, cost.Equal(decimal.RequireFromString("7.25")))

	_, ok, err = reader.StandardCost(ctx, tenantID, itemID, "box")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGormCostLayerRepository_LockOpenLayersUsesRowLock(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	key := newTestKey()
	mock.ExpectQuery(`SELECT \* FROM "cost_layers" WHERE .*voided_at IS NULL AND remaining_quantity > 0.* ORDER BY layer_date ASC, created_at ASC, id ASC FOR UPDATE$`).
		WithArgs(key.TenantID, key.ItemID, key.LocationID, key.UOM).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	layers, err := NewGormCostLayerRepository(db).LockOpenLayers(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, layers)
	assert.NoError(t, mock.ExpectationsWereMet())
}
