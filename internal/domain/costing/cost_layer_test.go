package costing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() LayerKey {
	return LayerKey{
		TenantID:   uuid.New(),
		ItemID:     uuid.New(),
		LocationID: uuid.New(),
		UOM:        "EA",
	}
}

func mustLayer(t *testing.T, key LayerKey, qty, cost string, date time.Time) *CostLayer {
	t.Helper()
	layer, err := NewCostLayer(NewCostLayerParams{
		Key:        key,
		Quantity:   decimal.RequireFromString(qty),
		UnitCost:   decimal.RequireFromString(cost),
		SourceType: SourceTypeReceipt,
		LayerDate:  date,
	})
	require.NoError(t, err)
	return layer
}

func TestNewCostLayer(t *testing.T) {
	key := testKey()
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	t.Run("remaining starts at quantity", func(t *testing.T) {
		layer := mustLayer(t, key, "10", "2.50", date)
		assert.True(t, layer.RemainingQuantity.Equal(decimal.NewFromInt(10)))
		assert.True(t, layer.UnitCost.Equal(decimal.RequireFromString("2.50")))
		assert.Equal(t, key, layer.Key())
		assert.Equal(t, date, layer.LayerDate)
		assert.True(t, layer.IsOpen())
	})

	t.Run("zero cost is allowed", func(t *testing.T) {
		layer := mustLayer(t, key, "1", "0", date)
		assert.True(t, layer.ExtendedValue().IsZero())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		cases := []struct {
			name   string
			params NewCostLayerParams
		}{
			{"zero quantity", NewCostLayerParams{Key: key, Quantity: decimal.Zero, UnitCost: decimal.NewFromInt(1), SourceType: SourceTypeReceipt}},
			{"negative quantity", NewCostLayerParams{Key: key, Quantity: decimal.NewFromInt(-1), UnitCost: decimal.NewFromInt(1), SourceType: SourceTypeReceipt}},
			{"negative cost", NewCostLayerParams{Key: key, Quantity: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(-1), SourceType: SourceTypeReceipt}},
			{"missing uom", NewCostLayerParams{Key: LayerKey{TenantID: key.TenantID, ItemID: key.ItemID, LocationID: key.LocationID}, Quantity: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(1), SourceType: SourceTypeReceipt}},
			{"unknown source", NewCostLayerParams{Key: key, Quantity: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(1), SourceType: "gift"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewCostLayer(tc.params)
				require.Error(t, err)
				assert.True(t, errors.Is(err, shared.ErrInvalidInput))
			})
		}
	})
}

func TestCostLayer_Consume(t *testing.T) {
	key := testKey()
	now := time.Now()

	t.Run("partial drain", func(t *testing.T) {
		layer := mustLayer(t, key, "5", "1", now)
		drained := layer.Consume(decimal.NewFromInt(3))
		assert.True(t, drained.Equal(decimal.NewFromInt(3)))
		assert.True(t, layer.RemainingQuantity.Equal(decimal.NewFromInt(2)))
	})

	t.Run("never below zero", func(t *testing.T) {
		layer := mustLayer(t, key, "5", "1", now)
		drained := layer.Consume(decimal.NewFromInt(9))
		assert.True(t, drained.Equal(decimal.NewFromInt(5)))
		assert.True(t, layer.RemainingQuantity.IsZero())
		assert.False(t, layer.IsOpen())
		assert.True(t, layer.Consume(decimal.NewFromInt(1)).IsZero())
	})

	t.Run("ignores non-positive requests", func(t *testing.T) {
		layer := mustLayer(t, key, "5", "1", now)
		assert.True(t, layer.Consume(decimal.NewFromInt(-2)).IsZero())
		assert.True(t, layer.RemainingQuantity.Equal(decimal.NewFromInt(5)))
	})

	t.Run("voided layer drains nothing", func(t *testing.T) {
		layer := mustLayer(t, key, "5", "1", now)
		require.NoError(t, layer.Void(now))
		assert.True(t, layer.Consume(decimal.NewFromInt(1)).IsZero())
		assert.True(t, layer.RemainingQuantity.Equal(decimal.NewFromInt(5)))
	})
}

func TestCostLayer_Void(t *testing.T) {
	layer := mustLayer(t, testKey(), "4", "3", time.Now())
	assert.True(t, layer.ExtendedValue().Equal(decimal.NewFromInt(12)))

	require.NoError(t, layer.Void(time.Now()))
	assert.True(t, layer.IsVoided())
	assert.True(t, layer.ExtendedValue().IsZero())

	err := layer.Void(time.Now())
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}
