package costing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PostMovementInput is what the ledger-posting collaborator hands over when a movement is posted
type PostMovementInput struct {
	TenantID     uuid.UUID               `json:"tenant_id" validate:"required"`
	MovementID   uuid.UUID               `json:"movement_id"`
	MovementType string                  `json:"movement_type" validate:"required,oneof=receive issue adjustment transfer transfer_reversal count"`
	Purpose      string                  `json:"purpose" validate:"omitempty,oneof=receipt production work_order_issue shipment return_to_vendor customer_return scrap cycle_count"`
	ExternalRef  string                  `json:"external_ref" validate:"max=255"`
	OccurredAt   time.Time               `json:"occurred_at" validate:"required"`
	Lines        []PostMovementLineInput `json:"lines" validate:"required,min=1,dive"`
}

// PostMovementLineInput is one line of a posted movement
type PostMovementLineInput struct {
	ItemID                 uuid.UUID        `json:"item_id" validate:"required"`
	LocationID             uuid.UUID        `json:"location_id" validate:"required"`
	QuantityDelta          decimal.Decimal  `json:"quantity_delta"`
	UOM                    string           `json:"uom" validate:"required,max=32"`
	CanonicalQuantityDelta *decimal.Decimal `json:"canonical_quantity_delta,omitempty"`
	CanonicalUOM           *string          `json:"canonical_uom,omitempty" validate:"omitempty,max=32"`
	UnitCost               *decimal.Decimal `json:"unit_cost,omitempty"`
	ReasonCode             string           `json:"reason_code,omitempty" validate:"max=64"`
}

// PostMovementResult identifies the rows written by RecordPostedMovement
type PostMovementResult struct {
	MovementID    uuid.UUID `json:"movement_id"`
	OutboxEventID uuid.UUID `json:"outbox_event_id"`
	Purpose       string    `json:"purpose"`
}

// PostingService records posted movements together with their outbox event
type PostingService struct {
	scope    TransactionScope
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewPostingService creates a posting service. scope is only needed by Post.
func NewPostingService(scope TransactionScope, logger *zap.Logger) *PostingService {
	return &PostingService{
		scope:    scope,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Post records the movement in a transaction of its own
func (s *PostingService) Post(ctx context.Context, in PostMovementInput) (*PostMovementResult, error) {
	if s.scope == nil {
		return nil, errors.New("posting service has no transaction scope")
	}
	var result *PostMovementResult
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		var err error
		result, err = s.RecordPostedMovement(ctx, repos, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordPostedMovement writes the posted movement and enqueues
// inventory.movement.posted within the transaction repos belong to.
// Calling it again for the same movement id keeps the first movement and
// its lines and returns the existing outbox row.
func (s *PostingService) RecordPostedMovement(ctx context.Context, repos LedgerRepositories, in PostMovementInput) (*PostMovementResult, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	movementType := costing.MovementType(in.MovementType)
	purpose := costing.MovementPurpose(in.Purpose)
	if purpose == costing.PurposeUnspecified {
		purpose = costing.PurposeFromExternalRef(movementType, in.ExternalRef)
	}

	movementID := in.MovementID
	if movementID == uuid.Nil {
		movementID = uuid.New()
	}

	now := s.now()
	movement := &costing.InventoryMovement{
		ID:           movementID,
		TenantID:     in.TenantID,
		MovementType: movementType,
		Purpose:      purpose,
		ExternalRef:  in.ExternalRef,
		Status:       costing.MovementStatusPosted,
		OccurredAt:   in.OccurredAt,
		PostedAt:     &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, l := range in.Lines {
		movement.Lines = append(movement.Lines, costing.MovementLine{
			ID:                     uuid.New(),
			MovementID:             movementID,
			ItemID:                 l.ItemID,
			LocationID:             l.LocationID,
			QuantityDelta:          l.QuantityDelta,
			UOM:                    l.UOM,
			CanonicalQuantityDelta: l.CanonicalQuantityDelta,
			CanonicalUOM:           l.CanonicalUOM,
			UnitCost:               l.UnitCost,
			ReasonCode:             l.ReasonCode,
			// keep input order stable under created_at ordering
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if err := repos.Movements().Save(ctx, movement); err != nil {
		return nil, fmt.Errorf("save movement: %w", err)
	}

	payload, err := json.Marshal(costing.MovementPostedPayload{
		MovementID:   movementID,
		TenantID:     in.TenantID,
		MovementType: movementType,
		OccurredAt:   in.OccurredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	eventID, err := repos.Outbox().Enqueue(ctx, shared.NewOutboxEvent(shared.EventKey{
		TenantID:      in.TenantID,
		AggregateType: costing.AggregateTypeInventoryMovement,
		AggregateID:   movementID,
		EventType:     costing.EventTypeMovementPosted,
	}, payload, now))
	if err != nil {
		return nil, fmt.Errorf("enqueue movement posted: %w", err)
	}

	s.logger.Debug("Movement posted",
		zap.String("tenant_id", in.TenantID.String()),
		zap.String("movement_id", movementID.String()),
		zap.String("purpose", string(purpose)),
		zap.String("outbox_event_id", eventID.String()),
	)

	return &PostMovementResult{
		MovementID:    movementID,
		OutboxEventID: eventID,
		Purpose:       string(purpose),
	}, nil
}

func (s *PostingService) validateInput(in PostMovementInput) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return shared.ErrInvalidInput.WithMessage("invalid movement: " + strings.Join(fields, ", "))
		}
		return shared.ErrInvalidInput.WithMessage(err.Error())
	}
	for i, l := range in.Lines {
		hasDelta := l.CanonicalQuantityDelta != nil
		hasUOM := l.CanonicalUOM != nil && *l.CanonicalUOM != ""
		if hasDelta != hasUOM {
			return shared.ErrInvalidInput.WithMessage(
				fmt.Sprintf("invalid movement: line %d must set canonical_quantity_delta and canonical_uom together", i))
		}
	}
	return nil
}
