package costing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Direction tells whether a line adds a layer or drains layers
type Direction int

const (
	DirectionInbound Direction = iota + 1
	DirectionOutbound
)

// LineRole is the costing role of a movement line. Exactly one of SourceType
// (inbound) or ConsumptionType (outbound) is set.
type LineRole struct {
	Direction       Direction
	SourceType      SourceType
	ConsumptionType ConsumptionType
}

// IsInbound returns true if the line creates a layer
func (r LineRole) IsInbound() bool {
	return r.Direction == DirectionInbound
}

func inbound(s SourceType) LineRole {
	return LineRole{Direction: DirectionInbound, SourceType: s}
}

func outbound(c ConsumptionType) LineRole {
	return LineRole{Direction: DirectionOutbound, ConsumptionType: c}
}

const reasonCodeScrap = "scrap"

// Classify maps a line to its costing role. The second result is false for
// lines this ledger does not cost: transfers, zero deltas and unknown types.
//
//	receive  +  production -> production, otherwise receipt
//	receive  -  (return to vendor) -> issue
//	issue    -  shipment -> sale, work_order_issue -> production_input,
//	            scrap purpose or reason -> adjustment, otherwise issue
//	issue    +  (reversal) -> adjustment
//	adjustment, count  +/- -> adjustment
func Classify(movementType MovementType, purpose MovementPurpose, reasonCode string, delta decimal.Decimal) (LineRole, bool) {
	if delta.IsZero() || movementType.IsTransfer() {
		return LineRole{}, false
	}
	positive := delta.IsPositive()

	switch movementType {
	case MovementTypeReceive:
		if !positive {
			return outbound(ConsumptionTypeIssue), true
		}
		if purpose == PurposeProduction {
			return inbound(SourceTypeProduction), true
		}
		return inbound(SourceTypeReceipt), true

	case MovementTypeIssue:
		if positive {
			return inbound(SourceTypeAdjustment), true
		}
		switch {
		case purpose == PurposeShipment:
			return outbound(ConsumptionTypeSale), true
		case purpose == PurposeWorkOrderIssue:
			return outbound(ConsumptionTypeProductionInput), true
		case purpose == PurposeScrap, strings.EqualFold(reasonCode, reasonCodeScrap):
			return outbound(ConsumptionTypeAdjustment), true
		default:
			return outbound(ConsumptionTypeIssue), true
		}

	case MovementTypeAdjustment, MovementTypeCount:
		if positive {
			return inbound(SourceTypeAdjustment), true
		}
		return outbound(ConsumptionTypeAdjustment), true
	}

	return LineRole{}, false
}
