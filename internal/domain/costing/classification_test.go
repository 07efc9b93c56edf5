package costing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	in := decimal.NewFromInt(5)
	out := decimal.NewFromInt(-5)

	tests := []struct {
		name         string
		movementType MovementType
		purpose      MovementPurpose
		reasonCode   string
		delta        decimal.Decimal
		want         LineRole
	}{
		{"plain receipt", MovementTypeReceive, PurposeReceipt, "", in, inbound(SourceTypeReceipt)},
		{"unspecified receipt", MovementTypeReceive, PurposeUnspecified, "", in, inbound(SourceTypeReceipt)},
		{"work order completion", MovementTypeReceive, PurposeProduction, "", in, inbound(SourceTypeProduction)},
		{"customer return", MovementTypeReceive, PurposeCustomerReturn, "", in, inbound(SourceTypeReceipt)},
		{"return to vendor", MovementTypeReceive, PurposeReturnToVendor, "", out, outbound(ConsumptionTypeIssue)},
		{"plain issue", MovementTypeIssue, PurposeUnspecified, "", out, outbound(ConsumptionTypeIssue)},
		{"shipment", MovementTypeIssue, PurposeShipment, "", out, outbound(ConsumptionTypeSale)},
		{"work order issue", MovementTypeIssue, PurposeWorkOrderIssue, "", out, outbound(ConsumptionTypeProductionInput)},
		{"scrap purpose", MovementTypeIssue, PurposeScrap, "", out, outbound(ConsumptionTypeAdjustment)},
		{"scrap reason", MovementTypeIssue, PurposeUnspecified, "SCRAP", out, outbound(ConsumptionTypeAdjustment)},
		{"issue reversal", MovementTypeIssue, PurposeShipment, "", in, inbound(SourceTypeAdjustment)},
		{"adjustment up", MovementTypeAdjustment, PurposeUnspecified, "found", in, inbound(SourceTypeAdjustment)},
		{"adjustment down", MovementTypeAdjustment, PurposeUnspecified, "damaged", out, outbound(ConsumptionTypeAdjustment)},
		{"count up", MovementTypeCount, PurposeCycleCount, "", in, inbound(SourceTypeAdjustment)},
		{"count down", MovementTypeCount, PurposeCycleCount, "", out, outbound(ConsumptionTypeAdjustment)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.movementType, tt.purpose, tt.reasonCode, tt.delta)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_NotCosted(t *testing.T) {
	tests := []struct {
		name         string
		movementType MovementType
		delta        decimal.Decimal
	}{
		{"transfer out", MovementTypeTransfer, decimal.NewFromInt(-1)},
		{"transfer in", MovementTypeTransfer, decimal.NewFromInt(1)},
		{"transfer reversal", MovementTypeTransferReversal, decimal.NewFromInt(1)},
		{"zero delta", MovementTypeReceive, decimal.Zero},
		{"unknown type", MovementType("teleport"), decimal.NewFromInt(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Classify(tt.movementType, PurposeUnspecified, "", tt.delta)
			assert.False(t, ok)
		})
	}
}

func TestPurposeFromExternalRef(t *testing.T) {
	tests := []struct {
		movementType MovementType
		ref          string
		want         MovementPurpose
	}{
		{MovementTypeReceive, "work_order_completion:WO-1001", PurposeProduction},
		{MovementTypeReceive, "WORK_ORDER_COMPLETION", PurposeProduction},
		{MovementTypeIssue, "work_order_issue:WO-1001", PurposeWorkOrderIssue},
		{MovementTypeIssue, "shipment:SHP-9", PurposeShipment},
		{MovementTypeReceive, "return_to_vendor:RTV-2", PurposeReturnToVendor},
		{MovementTypeReceive, "rma/77", PurposeCustomerReturn},
		{MovementTypeReceive, "po_receipt:PO-5", PurposeReceipt},
		{MovementTypeReceive, "", PurposeReceipt},
		{MovementTypeCount, "", PurposeCycleCount},
		{MovementTypeIssue, "shipments-report", PurposeUnspecified},
		{MovementTypeAdjustment, "manual", PurposeUnspecified},
	}

	for _, tt := range tests {
		t.Run(string(tt.movementType)+"/"+tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, PurposeFromExternalRef(tt.movementType, tt.ref))
		})
	}
}

func TestMovementLine_Effective(t *testing.T) {
	canonical := decimal.NewFromInt(12)
	canonicalUOM := "EA"
	line := MovementLine{
		ItemID:                 uuid.New(),
		LocationID:             uuid.New(),
		QuantityDelta:          decimal.NewFromInt(1),
		UOM:                    "DOZ",
		CanonicalQuantityDelta: &canonical,
		CanonicalUOM:           &canonicalUOM,
	}
	assert.True(t, line.EffectiveDelta().Equal(canonical))
	assert.Equal(t, "EA", line.EffectiveUOM())

	line.CanonicalQuantityDelta = nil
	line.CanonicalUOM = nil
	assert.True(t, line.EffectiveDelta().Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "DOZ", line.EffectiveUOM())
}

func TestMovementLine_HalfCanonicalFallsBackToRaw(t *testing.T) {
	canonical := decimal.NewFromInt(12)
	canonicalUOM := "EA"
	empty := ""

	tests := []struct {
		name string
		line MovementLine
	}{
		{"delta without uom", MovementLine{QuantityDelta: decimal.NewFromInt(1), UOM: "DOZ", CanonicalQuantityDelta: &canonical}},
		{"delta with empty uom", MovementLine{QuantityDelta: decimal.NewFromInt(1), UOM: "DOZ", CanonicalQuantityDelta: &canonical, CanonicalUOM: &empty}},
		{"uom without delta", MovementLine{QuantityDelta: decimal.NewFromInt(1), UOM: "DOZ", CanonicalUOM: &canonicalUOM}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.line.HasCanonical())
			assert.True(t, tt.line.EffectiveDelta().Equal(decimal.NewFromInt(1)))
			assert.Equal(t, "DOZ", tt.line.EffectiveUOM())
		})
	}
}

func TestInventoryMovement_DistinctIDs(t *testing.T) {
	item, loc1, loc2 := uuid.New(), uuid.New(), uuid.New()
	m := &InventoryMovement{Lines: []MovementLine{
		{ItemID: item, LocationID: loc1},
		{ItemID: item, LocationID: loc2},
	}}
	assert.Equal(t, []uuid.UUID{item}, m.ItemIDs())
	assert.Equal(t, []uuid.UUID{loc1, loc2}, m.LocationIDs())
}
