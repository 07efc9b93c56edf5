package costing

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LayerDraw is the quantity planned to be drained from one layer
type LayerDraw struct {
	Layer    *CostLayer
	Quantity decimal.Decimal
}

// FIFOPlan is the outcome of planning a consumption against a set of layers
type FIFOPlan struct {
	Requested decimal.Decimal
	Draws     []LayerDraw
	Shortfall decimal.Decimal
}

// Drawn returns the total quantity covered by layers
func (p FIFOPlan) Drawn() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.Draws {
		total = total.Add(d.Quantity)
	}
	return total
}

// HasShortfall returns true if the layers could not cover the request
func (p FIFOPlan) HasShortfall() bool {
	return p.Shortfall.IsPositive()
}

// SortFIFO orders layers oldest first: layer date, then creation time, then id
func SortFIFO(layers []*CostLayer) {
	sort.SliceStable(layers, func(i, j int) bool {
		a, b := layers[i], layers[j]
		if !a.LayerDate.Equal(b.LayerDate) {
			return a.LayerDate.Before(b.LayerDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

// PlanFIFO plans draining qty from the open layers, oldest first.
// It does not mutate the layers. Voided and empty layers are ignored.
func PlanFIFO(layers []*CostLayer, qty decimal.Decimal) FIFOPlan {
	plan := FIFOPlan{Requested: qty, Shortfall: decimal.Zero}
	if !qty.IsPositive() {
		return plan
	}

	open := make([]*CostLayer, 0, len(layers))
	for _, l := range layers {
		if l.IsOpen() {
			open = append(open, l)
		}
	}
	SortFIFO(open)

	remaining := qty
	for _, l := range open {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, l.RemainingQuantity)
		plan.Draws = append(plan.Draws, LayerDraw{Layer: l, Quantity: take})
		remaining = remaining.Sub(take)
	}
	plan.Shortfall = remaining
	return plan
}

// Apply drains the planned layers and returns one consumption per drained layer
func (p FIFOPlan) Apply(
	consumptionType ConsumptionType,
	documentID, movementID *uuid.UUID,
	consumedAt time.Time,
) []*CostLayerConsumption {
	consumptions := make([]*CostLayerConsumption, 0, len(p.Draws))
	for _, d := range p.Draws {
		drained := d.Layer.Consume(d.Quantity)
		if !drained.IsPositive() {
			continue
		}
		consumptions = append(consumptions, newConsumption(d.Layer, drained, consumptionType, documentID, movementID, consumedAt))
	}
	return consumptions
}

// Conserved checks sum(quantity) - sum(consumed) == sum(remaining) and that no
// layer has gone negative or above its original quantity.
func Conserved(layers []*CostLayer, consumptions []*CostLayerConsumption) bool {
	total, remaining, consumed := decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range layers {
		if l.RemainingQuantity.IsNegative() || l.RemainingQuantity.GreaterThan(l.Quantity) {
			return false
		}
		total = total.Add(l.Quantity)
		remaining = remaining.Add(l.RemainingQuantity)
	}
	for _, c := range consumptions {
		consumed = consumed.Add(c.Quantity)
	}
	return total.Sub(consumed).Equal(remaining)
}
