package cost

import (
	"context"
	"testing"
	"time"

	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFIFOCostStrategy(t *testing.T) {
	s := NewFIFOCostStrategy()

	assert.Equal(t, "fifo", s.Name())
	assert.Equal(t, strategy.StrategyTypeCost, s.Type())
	assert.Equal(t, strategy.CostMethodFIFO, s.Method())
}

func TestFIFOCostStrategy_CalculateCost(t *testing.T) {
	s := NewFIFOCostStrategy()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := entry("a", 10, 5)
	older.EntryDate = base
	newer := entry("b", 10, 8)
	newer.EntryDate = base.AddDate(0, 0, 1)

	t.Run("uses oldest first", func(t *testing.T) {
		result, err := s.CalculateCost(ctx, strategy.CostContext{Quantity: decimal.NewFromInt(15)},
			[]strategy.StockEntry{newer, older})
		require.NoError(t, err)

		// 10 @ 5 + 5 @ 8 = 90
		assert.True(t, result.TotalCost.Equal(decimal.NewFromInt(90)))
		assert.True(t, result.UnitCost.Equal(decimal.NewFromInt(6)))
		assert.True(t, result.RemainingQty.IsZero())
		require.Len(t, result.EntriesUsed, 2)
		assert.Equal(t, "a", result.EntriesUsed[0].ID)
	})

	t.Run("reports uncovered quantity", func(t *testing.T) {
		result, err := s.CalculateCost(ctx, strategy.CostContext{Quantity: decimal.NewFromInt(25)},
			[]strategy.StockEntry{older, newer})
		require.NoError(t, err)

		assert.True(t, result.RemainingQty.Equal(decimal.NewFromInt(5)))
		assert.True(t, result.TotalCost.Equal(decimal.NewFromInt(130)))
		assert.True(t, result.UnitCost.Equal(decimal.RequireFromString("6.5")))
	})

	t.Run("no entries", func(t *testing.T) {
		_, err := s.CalculateCost(ctx, strategy.CostContext{Quantity: decimal.NewFromInt(1)}, nil)
		assert.Error(t, err)
	})
}
