package cost

import (
	"context"
	"sort"

	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// FIFOCostStrategy prices a quantity by walking the oldest entries first
type FIFOCostStrategy struct {
	strategy.BaseStrategy
}

// NewFIFOCostStrategy creates a new FIFO cost strategy
func NewFIFOCostStrategy() *FIFOCostStrategy {
	return &FIFOCostStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"fifo",
			strategy.StrategyTypeCost,
			"Cost of the oldest open layers",
		),
	}
}

// Method returns the costing method
func (s *FIFOCostStrategy) Method() strategy.CostMethod {
	return strategy.CostMethodFIFO
}

// CalculateCost prices costCtx.Quantity from the oldest entries.
// RemainingQty is the part the entries could not cover.
func (s *FIFOCostStrategy) CalculateCost(
	_ context.Context,
	costCtx strategy.CostContext,
	entries []strategy.StockEntry,
) (strategy.CostResult, error) {
	if len(entries) == 0 {
		return strategy.CostResult{}, errNoEntries
	}

	sorted := make([]strategy.StockEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].EntryDate.Equal(sorted[j].EntryDate) {
			return sorted[i].EntryDate.Before(sorted[j].EntryDate)
		}
		return sorted[i].ID < sorted[j].ID
	})

	remaining := costCtx.Quantity
	totalCost := decimal.Zero
	used := make([]strategy.StockEntry, 0, len(sorted))

	for _, entry := range sorted {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, entry.Quantity)
		if !take.IsPositive() {
			continue
		}
		totalCost = totalCost.Add(take.Mul(entry.UnitCost))
		remaining = remaining.Sub(take)
		used = append(used, entry)
	}

	unitCost := decimal.Zero
	if covered := costCtx.Quantity.Sub(remaining); covered.IsPositive() {
		unitCost = totalCost.Div(covered)
	}

	return strategy.CostResult{
		UnitCost:     unitCost,
		TotalCost:    totalCost,
		Method:       strategy.CostMethodFIFO,
		EntriesUsed:  used,
		RemainingQty: remaining,
	}, nil
}

// CalculateAverageCost returns the weighted average of all entries
func (s *FIFOCostStrategy) CalculateAverageCost(
	_ context.Context,
	entries []strategy.StockEntry,
) (decimal.Decimal, error) {
	return weightedAverage(entries)
}
