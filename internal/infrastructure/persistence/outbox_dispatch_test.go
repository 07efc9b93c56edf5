package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appcosting "github.com/jwfreed/inventory-manager-sub010/internal/application/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/event"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type collectedEffects struct {
	mu      sync.Mutex
	effects []appcosting.SideEffect
}

func (c *collectedEffects) Submit(effects ...appcosting.SideEffect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.effects = append(c.effects, effects...)
}

func newProjectionDispatcher(db *gorm.DB, store *event.GormOutboxStore, sink event.EffectSink) *event.OutboxDispatcher {
	handler := event.NewMovementProjectionHandler(
		appcosting.NewMovementProjector(nil, zap.NewNop()),
		func(tx *gorm.DB) appcosting.LedgerRepositories { return NewLedgerRepositories(tx, store) },
		zap.NewNop(),
	)
	return event.NewOutboxDispatcher(store, handler, event.DefaultOutboxDispatcherConfig(), zap.NewNop(),
		event.WithEffectSink(sink))
}

func TestOutboxDispatch_ProjectsPostedMovements(t *testing.T) {
	db := setupTestDB(t)
	store := event.NewGormOutboxStore(db)
	scope := NewGormTransactionScope(db, store)
	posting := appcosting.NewPostingService(scope, zap.NewNop())
	sink := &collectedEffects{}
	dispatcher := newProjectionDispatcher(db, store, sink)
	ctx := context.Background()

	tenantID, itemID, locationID := uuid.New(), uuid.New(), uuid.New()
	occurred := time.Now().UTC().Add(-time.Hour)

	receipt, err := posting.Post(ctx, appcosting.PostMovementInput{
		TenantID:     tenantID,
		MovementType: string(costing.MovementTypeReceive),
		ExternalRef:  "po_receipt:2001",
		OccurredAt:   occurred,
		Lines: []appcosting.PostMovementLineInput{{
			ItemID: itemID, LocationID: locationID, QuantityDelta: decimal.NewFromInt(5),
			UOM: "ea", UnitCost: decimalPtr(3),
		}},
	})
	require.NoError(t, err)

	n, err := dispatcher.ProcessBatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev, err := store.FindByID(ctx, receipt.OutboxEventID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusCompleted, ev.Status)

	var layers []models.CostLayerModel
	require.NoError(t, db.Where("movement_id = ?", receipt.MovementID).Find(&layers).Error)
	require.Len(t, layers, 1)
	assert.True(t, layers[0].RemainingQuantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, layers[0].UnitCost.Equal(decimal.NewFromInt(3)))

	require.Len(t, sink.effects, 2)
	assert.Equal(t, appcosting.InvalidateTenantCache{TenantID: tenantID}, sink.effects[0])
	published, ok := sink.effects[1].(appcosting.PublishMovementPosted)
	require.True(t, ok)
	assert.Equal(t, receipt.MovementID, published.MovementID)
	assert.Equal(t, []uuid.UUID{itemID}, published.ItemIDs)
}

func TestOutboxDispatch_MissingMovementRetriesWithoutLedgerWrites(t *testing.T) {
	db := setupTestDB(t)
	store := event.NewGormOutboxStore(db)
	sink := &collectedEffects{}
	dispatcher := newProjectionDispatcher(db, store, sink)
	ctx := context.Background()

	orphan := shared.NewOutboxEvent(shared.EventKey{
		TenantID:      uuid.New(),
		AggregateType: costing.AggregateTypeInventoryMovement,
		AggregateID:   uuid.New(),
		EventType:     costing.EventTypeMovementPosted,
	}, []byte(`{"movement_type":"receive"}`), time.Now().UTC())
	_, err := store.Enqueue(ctx, orphan)
	require.NoError(t, err)

	_, err = dispatcher.ProcessBatch(ctx, 10)
	require.NoError(t, err)

	ev, err := store.FindByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, ev.Status)
	assert.Equal(t, 1, ev.Attempts)
	assert.Contains(t, ev.LastError, orphan.AggregateID.String())

	var layers int64
	require.NoError(t, db.Model(&models.CostLayerModel{}).Count(&layers).Error)
	assert.Zero(t, layers)
	assert.Empty(t, sink.effects)
}
