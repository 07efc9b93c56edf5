package cost

import (
	"context"
	"errors"

	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

var (
	errNoEntries    = errors.New("no stock entries provided")
	errZeroQuantity = errors.New("total quantity is zero")
)

// MovingAverageCostStrategy implements weighted average cost calculation
type MovingAverageCostStrategy struct {
	strategy.BaseStrategy
}

// NewMovingAverageCostStrategy creates a new moving average cost strategy
func NewMovingAverageCostStrategy() *MovingAverageCostStrategy {
	return &MovingAverageCostStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"moving_average",
			strategy.StrategyTypeCost,
			"Weighted average of the open layers",
		),
	}
}

// Method returns the costing method
func (s *MovingAverageCostStrategy) Method() strategy.CostMethod {
	return strategy.CostMethodMovingAverage
}

// CalculateCost prices qty at the weighted average of all entries
func (s *MovingAverageCostStrategy) CalculateCost(
	ctx context.Context,
	costCtx strategy.CostContext,
	entries []strategy.StockEntry,
) (strategy.CostResult, error) {
	avgCost, err := s.CalculateAverageCost(ctx, entries)
	if err != nil {
		return strategy.CostResult{}, err
	}

	return strategy.CostResult{
		UnitCost:     avgCost,
		TotalCost:    avgCost.Mul(costCtx.Quantity),
		Method:       strategy.CostMethodMovingAverage,
		EntriesUsed:  entries,
		RemainingQty: decimal.Zero,
	}, nil
}

// CalculateAverageCost returns sum(total cost) / sum(quantity)
func (s *MovingAverageCostStrategy) CalculateAverageCost(
	_ context.Context,
	entries []strategy.StockEntry,
) (decimal.Decimal, error) {
	return weightedAverage(entries)
}

func weightedAverage(entries []strategy.StockEntry) (decimal.Decimal, error) {
	if len(entries) == 0 {
		return decimal.Zero, errNoEntries
	}

	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, entry := range entries {
		totalQty = totalQty.Add(entry.Quantity)
		totalCost = totalCost.Add(entry.TotalCost)
	}

	if totalQty.IsZero() {
		return decimal.Zero, errZeroQuantity
	}
	return totalCost.Div(totalQty), nil
}
