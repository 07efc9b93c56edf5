package cost

import (
	"context"
	"fmt"

	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// LayerCostCalculator prices an inbound line from the open layers of its FIFO group
type LayerCostCalculator struct {
	strategy strategy.CostCalculationStrategy
}

// NewLayerCostCalculator wraps a cost strategy
func NewLayerCostCalculator(s strategy.CostCalculationStrategy) *LayerCostCalculator {
	return &LayerCostCalculator{strategy: s}
}

// NewLayerAverageCostCalculator prices at the weighted average of open layers
func NewLayerAverageCostCalculator() *LayerCostCalculator {
	return NewLayerCostCalculator(NewMovingAverageCostStrategy())
}

// NewCalculatorForMethod returns the calculator for a configured cost method
func NewCalculatorForMethod(method string) (*LayerCostCalculator, error) {
	switch strategy.CostMethod(method) {
	case "", strategy.CostMethodMovingAverage:
		return NewLayerAverageCostCalculator(), nil
	case strategy.CostMethodFIFO:
		return NewLayerCostCalculator(NewFIFOCostStrategy()), nil
	default:
		return nil, fmt.Errorf("unknown cost method %q", method)
	}
}

// Method returns the wrapped strategy's method
func (c *LayerCostCalculator) Method() strategy.CostMethod {
	return c.strategy.Method()
}

// MovementUnitCost implements costing.MovementCostCalculator.
// ok is false when the group has no open layer to price from.
func (c *LayerCostCalculator) MovementUnitCost(ctx context.Context, in costing.UnitCostInput) (decimal.Decimal, bool, error) {
	entries := layerEntries(in.OpenLayers)
	if len(entries) == 0 {
		return decimal.Zero, false, nil
	}

	result, err := c.strategy.CalculateCost(ctx, strategy.CostContext{
		TenantID:   in.Key.TenantID.String(),
		ItemID:     in.Key.ItemID.String(),
		LocationID: in.Key.LocationID.String(),
		Quantity:   in.Line.EffectiveDelta().Abs(),
		Date:       in.Movement.OccurredAt,
	}, entries)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%s cost: %w", c.strategy.Name(), err)
	}
	if len(result.EntriesUsed) == 0 {
		return decimal.Zero, false, nil
	}
	return result.UnitCost, true, nil
}

func layerEntries(layers []*costing.CostLayer) []strategy.StockEntry {
	entries := make([]strategy.StockEntry, 0, len(layers))
	for _, l := range layers {
		if !l.IsOpen() {
			continue
		}
		entries = append(entries, strategy.StockEntry{
			ID:         l.ID.String(),
			ItemID:     l.ItemID.String(),
			LocationID: l.LocationID.String(),
			Quantity:   l.RemainingQuantity,
			UnitCost:   l.UnitCost,
			TotalCost:  l.ExtendedValue(),
			EntryDate:  l.LayerDate,
		})
	}
	return entries
}

var _ costing.MovementCostCalculator = (*LayerCostCalculator)(nil)
