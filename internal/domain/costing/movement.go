package costing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType is the physical kind of an inventory movement
type MovementType string

const (
	MovementTypeReceive          MovementType = "receive"
	MovementTypeIssue            MovementType = "issue"
	MovementTypeAdjustment       MovementType = "adjustment"
	MovementTypeTransfer         MovementType = "transfer"
	MovementTypeTransferReversal MovementType = "transfer_reversal"
	MovementTypeCount            MovementType = "count"
)

// IsValid returns true if the movement type is known
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeReceive, MovementTypeIssue, MovementTypeAdjustment,
		MovementTypeTransfer, MovementTypeTransferReversal, MovementTypeCount:
		return true
	default:
		return false
	}
}

// IsTransfer returns true for movement types costed at posting time rather than by projection
func (t MovementType) IsTransfer() bool {
	return t == MovementTypeTransfer || t == MovementTypeTransferReversal
}

// MovementPurpose is the business intent of a movement, fixed when the movement is created
type MovementPurpose string

const (
	PurposeUnspecified    MovementPurpose = ""
	PurposeReceipt        MovementPurpose = "receipt"
	PurposeProduction     MovementPurpose = "production"
	PurposeWorkOrderIssue MovementPurpose = "work_order_issue"
	PurposeShipment       MovementPurpose = "shipment"
	PurposeReturnToVendor MovementPurpose = "return_to_vendor"
	PurposeCustomerReturn MovementPurpose = "customer_return"
	PurposeScrap          MovementPurpose = "scrap"
	PurposeCycleCount     MovementPurpose = "cycle_count"
)

// IsValid returns true if the purpose is known (unspecified included)
func (p MovementPurpose) IsValid() bool {
	switch p {
	case PurposeUnspecified, PurposeReceipt, PurposeProduction, PurposeWorkOrderIssue, PurposeShipment,
		PurposeReturnToVendor, PurposeCustomerReturn, PurposeScrap, PurposeCycleCount:
		return true
	default:
		return false
	}
}

// externalRefPurposes maps legacy correlation token prefixes to a purpose
var externalRefPurposes = []struct {
	prefix  string
	purpose MovementPurpose
}{
	{"work_order_completion", PurposeProduction},
	{"work_order_batch_completion", PurposeProduction},
	{"work_order_issue", PurposeWorkOrderIssue},
	{"work_order_batch_issue", PurposeWorkOrderIssue},
	{"shipment", PurposeShipment},
	{"sales_order_shipment", PurposeShipment},
	{"return_to_vendor", PurposeReturnToVendor},
	{"vendor_return", PurposeReturnToVendor},
	{"customer_return", PurposeCustomerReturn},
	{"rma", PurposeCustomerReturn},
	{"receipt", PurposeReceipt},
	{"po_receipt", PurposeReceipt},
	{"scrap", PurposeScrap},
	{"cycle_count", PurposeCycleCount},
}

// PurposeFromExternalRef derives a purpose from a legacy external reference token.
// It is only meant for the posting path; the projector reads Purpose directly.
func PurposeFromExternalRef(movementType MovementType, ref string) MovementPurpose {
	token := strings.ToLower(strings.TrimSpace(ref))
	for _, candidate := range externalRefPurposes {
		if token == candidate.prefix ||
			strings.HasPrefix(token, candidate.prefix+":") ||
			strings.HasPrefix(token, candidate.prefix+"/") {
			return candidate.purpose
		}
	}
	switch movementType {
	case MovementTypeReceive:
		return PurposeReceipt
	case MovementTypeCount:
		return PurposeCycleCount
	default:
		return PurposeUnspecified
	}
}

// MovementStatus is the posting status of a movement
type MovementStatus string

const (
	MovementStatusDraft  MovementStatus = "draft"
	MovementStatusPosted MovementStatus = "posted"
)

// InventoryMovement is the read model of a movement owned by the ledger-posting service
type InventoryMovement struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	MovementType MovementType
	Purpose      MovementPurpose
	ExternalRef  string
	Status       MovementStatus
	OccurredAt   time.Time
	PostedAt     *time.Time
	Lines        []MovementLine
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsPosted returns true once the movement may be projected
func (m *InventoryMovement) IsPosted() bool {
	return m.Status == MovementStatusPosted
}

// ItemIDs returns the distinct item ids across lines, in line order
func (m *InventoryMovement) ItemIDs() []uuid.UUID {
	return distinct(m.Lines, func(l MovementLine) uuid.UUID { return l.ItemID })
}

// LocationIDs returns the distinct location ids across lines, in line order
func (m *InventoryMovement) LocationIDs() []uuid.UUID {
	return distinct(m.Lines, func(l MovementLine) uuid.UUID { return l.LocationID })
}

func distinct(lines []MovementLine, pick func(MovementLine) uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	out := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		id := pick(l)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MovementLine is one signed quantity change of a movement
type MovementLine struct {
	ID                     uuid.UUID
	MovementID             uuid.UUID
	ItemID                 uuid.UUID
	LocationID             uuid.UUID
	QuantityDelta          decimal.Decimal
	UOM                    string
	CanonicalQuantityDelta *decimal.Decimal
	CanonicalUOM           *string
	UnitCost               *decimal.Decimal
	ReasonCode             string
	CreatedAt              time.Time
}

// HasCanonical reports whether the line carries both a canonical delta and
// a canonical unit of measure. A half-filled pair is ignored.
func (l MovementLine) HasCanonical() bool {
	return l.CanonicalQuantityDelta != nil && l.CanonicalUOM != nil && *l.CanonicalUOM != ""
}

// EffectiveDelta prefers the canonical-UOM delta when the pair is complete
func (l MovementLine) EffectiveDelta() decimal.Decimal {
	if l.HasCanonical() {
		return *l.CanonicalQuantityDelta
	}
	return l.QuantityDelta
}

// EffectiveUOM prefers the canonical unit of measure when the pair is complete
func (l MovementLine) EffectiveUOM() string {
	if l.HasCanonical() {
		return *l.CanonicalUOM
	}
	return l.UOM
}

// LayerKey returns the FIFO group the line affects
func (l MovementLine) LayerKey(tenantID uuid.UUID) LayerKey {
	return LayerKey{
		TenantID:   tenantID,
		ItemID:     l.ItemID,
		LocationID: l.LocationID,
		UOM:        l.EffectiveUOM(),
	}
}
