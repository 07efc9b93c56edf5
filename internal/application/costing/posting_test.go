package costing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func validPostInput() PostMovementInput {
	cost := decimal.RequireFromString("2.50")
	return PostMovementInput{
		TenantID:     uuid.New(),
		MovementID:   uuid.New(),
		MovementType: "receive",
		ExternalRef:  "work_order_completion:WO-7",
		OccurredAt:   time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC),
		Lines: []PostMovementLineInput{
			{ItemID: uuid.New(), LocationID: uuid.New(), QuantityDelta: decimal.NewFromInt(10), UOM: "EA", UnitCost: &cost},
		},
	}
}

func TestPostingService_RecordPostedMovement(t *testing.T) {
	ledger := newMemLedger()
	svc := NewPostingService(ledger, zaptest.NewLogger(t))
	in := validPostInput()

	result, err := svc.RecordPostedMovement(context.Background(), ledger, in)
	require.NoError(t, err)

	assert.Equal(t, in.MovementID, result.MovementID)
	assert.Equal(t, string(costing.PurposeProduction), result.Purpose)

	movement, ok := ledger.movements[in.MovementID]
	require.True(t, ok)
	assert.Equal(t, costing.MovementStatusPosted, movement.Status)
	assert.Equal(t, costing.PurposeProduction, movement.Purpose)
	require.Len(t, movement.Lines, 1)

	require.Len(t, ledger.outbox, 1)
	event := ledger.outbox[0]
	assert.Equal(t, result.OutboxEventID, event.ID)
	assert.Equal(t, costing.EventTypeMovementPosted, event.EventType)
	assert.Equal(t, costing.AggregateTypeInventoryMovement, event.AggregateType)
	assert.Equal(t, in.MovementID, event.AggregateID)
	assert.Equal(t, shared.OutboxStatusPending, event.Status)

	var payload costing.MovementPostedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, in.MovementID, payload.MovementID)
	assert.Equal(t, in.TenantID, payload.TenantID)
	assert.Equal(t, costing.MovementTypeReceive, payload.MovementType)
	assert.True(t, in.OccurredAt.Equal(payload.OccurredAt))
}

func TestPostingService_EnqueueIsIdempotent(t *testing.T) {
	ledger := newMemLedger()
	svc := NewPostingService(ledger, zaptest.NewLogger(t))
	in := validPostInput()

	first, err := svc.Post(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.Post(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.OutboxEventID, second.OutboxEventID)
	assert.Len(t, ledger.outbox, 1)
}

func TestPostingService_ExplicitPurposeWins(t *testing.T) {
	ledger := newMemLedger()
	svc := NewPostingService(ledger, zaptest.NewLogger(t))
	in := validPostInput()
	in.Purpose = "customer_return"

	result, err := svc.RecordPostedMovement(context.Background(), ledger, in)
	require.NoError(t, err)
	assert.Equal(t, string(costing.PurposeCustomerReturn), result.Purpose)
}

func TestPostingService_GeneratesMovementID(t *testing.T) {
	ledger := newMemLedger()
	svc := NewPostingService(ledger, zaptest.NewLogger(t))
	in := validPostInput()
	in.MovementID = uuid.Nil

	result, err := svc.RecordPostedMovement(context.Background(), ledger, in)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, result.MovementID)
}

func TestPostingService_Validation(t *testing.T) {
	ledger := newMemLedger()
	svc := NewPostingService(ledger, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		mutate func(*PostMovementInput)
	}{
		{"missing tenant", func(in *PostMovementInput) { in.TenantID = uuid.Nil }},
		{"unknown movement type", func(in *PostMovementInput) { in.MovementType = "teleport" }},
		{"unknown purpose", func(in *PostMovementInput) { in.Purpose = "gift" }},
		{"no lines", func(in *PostMovementInput) { in.Lines = nil }},
		{"missing occurred at", func(in *PostMovementInput) { in.OccurredAt = time.Time{} }},
		{"line without uom", func(in *PostMovementInput) { in.Lines[0].UOM = "" }},
		{"line without item", func(in *PostMovementInput) { in.Lines[0].ItemID = uuid.Nil }},
		{"canonical delta without uom", func(in *PostMovementInput) {
			d := decimal.NewFromInt(120)
			in.Lines[0].CanonicalQuantityDelta = &d
		}},
		{"canonical uom without delta", func(in *PostMovementInput) {
			uom := "PC"
			in.Lines[0].CanonicalUOM = &uom
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validPostInput()
			tt.mutate(&in)

			_, err := svc.RecordPostedMovement(context.Background(), ledger, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrInvalidInput), "got %v", err)
		})
	}
	assert.Empty(t, ledger.outbox)
}

func TestPostingService_PostWithoutScope(t *testing.T) {
	svc := NewPostingService(nil, zaptest.NewLogger(t))
	_, err := svc.Post(context.Background(), validPostInput())
	assert.Error(t, err)
}
