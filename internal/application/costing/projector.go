package costing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SkipReason explains why a projection made no ledger change
type SkipReason string

const (
	SkipReasonNone             SkipReason = ""
	SkipReasonTransfer         SkipReason = "transfer"
	SkipReasonAlreadyProjected SkipReason = "already_projected"
)

// LineSkipReason explains why a single line was not costed
type LineSkipReason string

const (
	LineSkipNotCosted      LineSkipReason = "not_costed"
	LineSkipUnresolvedCost LineSkipReason = "unresolved_cost"
)

// SkippedLine is a movement line that produced no ledger row
type SkippedLine struct {
	LineID uuid.UUID
	Reason LineSkipReason
}

// Shortfall is the part of an outbound line no open layer could cover
type Shortfall struct {
	LineID    uuid.UUID
	Key       costing.LayerKey
	Requested decimal.Decimal
	Missing   decimal.Decimal
}

// ProjectionResult describes what Project did to the ledger
type ProjectionResult struct {
	MovementID    uuid.UUID
	Skipped       SkipReason
	LayersCreated []*costing.CostLayer
	Consumptions  []*costing.CostLayerConsumption
	SkippedLines  []SkippedLine
	Shortfalls    []Shortfall
	// SideEffects are to be executed after the surrounding transaction commits
	SideEffects []SideEffect
}

// MovementProjector turns a posted movement into cost layers and consumptions
type MovementProjector struct {
	calculator costing.MovementCostCalculator
	logger     *zap.Logger
}

// NewMovementProjector creates a projector. calculator may be nil, in which
// case inbound lines without an explicit cost fall back to the standard cost.
func NewMovementProjector(calculator costing.MovementCostCalculator, logger *zap.Logger) *MovementProjector {
	return &MovementProjector{
		calculator: calculator,
		logger:     logger,
	}
}

// Project applies a posted movement to the cost ledger through repos, which
// must share the caller's transaction. Re-projecting a movement is a no-op.
func (p *MovementProjector) Project(ctx context.Context, repos LedgerRepositories, tenantID, movementID uuid.UUID) (*ProjectionResult, error) {
	movement, err := repos.Movements().FindPosted(ctx, tenantID, movementID)
	if err != nil {
		return nil, fmt.Errorf("load movement %s: %w", movementID, err)
	}

	result := &ProjectionResult{MovementID: movement.ID}
	result.SideEffects = movementSideEffects(movement)

	if movement.MovementType.IsTransfer() {
		result.Skipped = SkipReasonTransfer
		return result, nil
	}

	projected, err := p.alreadyProjected(ctx, repos, tenantID, movementID)
	if err != nil {
		return nil, err
	}
	if projected {
		result.Skipped = SkipReasonAlreadyProjected
		p.logger.Debug("Movement already projected",
			zap.String("tenant_id", tenantID.String()),
			zap.String("movement_id", movementID.String()),
		)
		return result, nil
	}

	for _, line := range movement.Lines {
		delta := line.EffectiveDelta()
		if delta.IsZero() {
			continue
		}

		role, ok := costing.Classify(movement.MovementType, movement.Purpose, line.ReasonCode, delta)
		if !ok {
			result.SkippedLines = append(result.SkippedLines, SkippedLine{LineID: line.ID, Reason: LineSkipNotCosted})
			continue
		}

		if role.IsInbound() {
			err = p.projectInbound(ctx, repos, movement, line, role.SourceType, result)
		} else {
			err = p.projectOutbound(ctx, repos, movement, line, role.ConsumptionType, result)
		}
		if err != nil {
			return nil, fmt.Errorf("project line %s of movement %s: %w", line.ID, movement.ID, err)
		}
	}

	p.logger.Info("Movement projected",
		zap.String("tenant_id", tenantID.String()),
		zap.String("movement_id", movementID.String()),
		zap.String("movement_type", string(movement.MovementType)),
		zap.Int("layers_created", len(result.LayersCreated)),
		zap.Int("consumptions", len(result.Consumptions)),
		zap.Int("shortfalls", len(result.Shortfalls)),
		zap.Int("skipped_lines", len(result.SkippedLines)),
	)
	return result, nil
}

func (p *MovementProjector) alreadyProjected(ctx context.Context, repos LedgerRepositories, tenantID, movementID uuid.UUID) (bool, error) {
	hasLayers, err := repos.CostLayers().ExistsForMovement(ctx, tenantID, movementID)
	if err != nil {
		return false, fmt.Errorf("check layers for movement %s: %w", movementID, err)
	}
	if hasLayers {
		return true, nil
	}
	hasConsumptions, err := repos.Consumptions().ExistsForMovement(ctx, tenantID, movementID)
	if err != nil {
		return false, fmt.Errorf("check consumptions for movement %s: %w", movementID, err)
	}
	return hasConsumptions, nil
}

func (p *MovementProjector) projectInbound(
	ctx context.Context,
	repos LedgerRepositories,
	movement *costing.InventoryMovement,
	line costing.MovementLine,
	sourceType costing.SourceType,
	result *ProjectionResult,
) error {
	key := line.LayerKey(movement.TenantID)

	unitCost, ok, err := p.resolveUnitCost(ctx, repos, movement, line, key)
	if err != nil {
		return err
	}
	if !ok {
		p.logger.Warn("No unit cost for inbound line, layer not created",
			zap.String("movement_id", movement.ID.String()),
			zap.String("line_id", line.ID.String()),
			zap.String("item_id", line.ItemID.String()),
		)
		result.SkippedLines = append(result.SkippedLines, SkippedLine{LineID: line.ID, Reason: LineSkipUnresolvedCost})
		return nil
	}

	movementID := movement.ID
	layer, err := costing.NewCostLayer(costing.NewCostLayerParams{
		Key:              key,
		Quantity:         line.EffectiveDelta(),
		UnitCost:         unitCost,
		SourceType:       sourceType,
		SourceDocumentID: &movementID,
		MovementID:       &movementID,
		LayerDate:        movement.OccurredAt,
	})
	if err != nil {
		return err
	}
	if err := repos.CostLayers().Create(ctx, layer); err != nil {
		return fmt.Errorf("create cost layer: %w", err)
	}
	result.LayersCreated = append(result.LayersCreated, layer)
	return nil
}

// resolveUnitCost tries the line's own cost, then the calculator, then the standard cost
func (p *MovementProjector) resolveUnitCost(
	ctx context.Context,
	repos LedgerRepositories,
	movement *costing.InventoryMovement,
	line costing.MovementLine,
	key costing.LayerKey,
) (decimal.Decimal, bool, error) {
	if line.UnitCost != nil && !line.UnitCost.IsNegative() {
		return *line.UnitCost, true, nil
	}

	if p.calculator != nil {
		open, err := repos.CostLayers().FindOpenLayers(ctx, key)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("load open layers: %w", err)
		}
		cost, ok, err := p.calculator.MovementUnitCost(ctx, costing.UnitCostInput{
			Movement:   movement,
			Line:       line,
			Key:        key,
			OpenLayers: open,
		})
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("movement cost: %w", err)
		}
		if ok && !cost.IsNegative() {
			return cost, true, nil
		}
	}

	cost, ok, err := repos.StandardCosts().StandardCost(ctx, key.TenantID, key.ItemID, key.UOM)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("standard cost: %w", err)
	}
	if ok && !cost.IsNegative() {
		return cost, true, nil
	}
	return decimal.Zero, false, nil
}

func (p *MovementProjector) projectOutbound(
	ctx context.Context,
	repos LedgerRepositories,
	movement *costing.InventoryMovement,
	line costing.MovementLine,
	consumptionType costing.ConsumptionType,
	result *ProjectionResult,
) error {
	key := line.LayerKey(movement.TenantID)
	requested := line.EffectiveDelta().Abs()

	layers, err := repos.CostLayers().LockOpenLayers(ctx, key)
	if err != nil {
		return fmt.Errorf("lock open layers: %w", err)
	}

	plan := costing.PlanFIFO(layers, requested)
	movementID := movement.ID
	consumptions := plan.Apply(consumptionType, &movementID, &movementID, movement.OccurredAt)

	if len(plan.Draws) > 0 {
		drained := make([]*costing.CostLayer, 0, len(plan.Draws))
		for _, d := range plan.Draws {
			drained = append(drained, d.Layer)
		}
		if err := repos.CostLayers().UpdateRemaining(ctx, drained...); err != nil {
			return fmt.Errorf("update layers: %w", err)
		}
	}
	if len(consumptions) > 0 {
		if err := repos.Consumptions().CreateBatch(ctx, consumptions); err != nil {
			return fmt.Errorf("record consumptions: %w", err)
		}
	}
	result.Consumptions = append(result.Consumptions, consumptions...)

	if plan.HasShortfall() {
		p.logger.Warn("Cost layer shortfall",
			zap.String("movement_id", movement.ID.String()),
			zap.String("line_id", line.ID.String()),
			zap.String("item_id", key.ItemID.String()),
			zap.String("location_id", key.LocationID.String()),
			zap.String("requested", requested.String()),
			zap.String("missing", plan.Shortfall.String()),
		)
		result.Shortfalls = append(result.Shortfalls, Shortfall{
			LineID:    line.ID,
			Key:       key,
			Requested: requested,
			Missing:   plan.Shortfall,
		})
	}
	return nil
}

func movementSideEffects(m *costing.InventoryMovement) []SideEffect {
	return []SideEffect{
		InvalidateTenantCache{TenantID: m.TenantID},
		PublishMovementPosted{
			TenantID:     m.TenantID,
			MovementID:   m.ID,
			MovementType: m.MovementType,
			ItemIDs:      m.ItemIDs(),
			LocationIDs:  m.LocationIDs(),
		},
	}
}
